package markup

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldRe   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	// *italic* only when both asterisks sit at word boundaries, so 2*3*4 stays arithmetic
	italicRe = regexp.MustCompile(`(^|[^\p{L}\p{N}*])\*([^*\s](?:[^*\n]*?[^*\s])?)\*($|[^\p{L}\p{N}*])`)
	headerRe = regexp.MustCompile(`(?m)^#{1,4} +(.+)$`)
)

// Story is the content of one assembled story fragment
type Story struct {
	Name            string // child's name, used for alt text
	Text            string
	PhotoURL        string // uploaded photo; omitted when empty
	IllustrationURL string // generated illustration; omitted when empty
}

// StoryHTML renders the story fragment: wrapper div, optional photo, optional illustration and
// the story paragraph. Every interpolated value is HTML-escaped; URLs that are neither http(s)
// nor site-relative are dropped.
func StoryHTML(s Story) string {
	var b strings.Builder
	b.WriteString(`<div class="story" style="overflow: hidden; font-family: 'Segoe UI', 'Helvetica Neue', sans-serif;">`)

	if url, ok := safeURL(s.PhotoURL); ok {
		b.WriteString(`<img class="story-photo" src="`)
		b.WriteString(html.EscapeString(url))
		b.WriteString(`" alt="`)
		b.WriteString(html.EscapeString(altText("Photo of ", s.Name)))
		b.WriteString(`" style="float: left; margin: 10px; max-width: 200px; border-radius: 10px;" />`)
	}
	if url, ok := safeURL(s.IllustrationURL); ok {
		b.WriteString(`<img class="story-illustration" src="`)
		b.WriteString(html.EscapeString(url))
		b.WriteString(`" alt="`)
		b.WriteString(html.EscapeString(altText("Illustration for the story of ", s.Name)))
		b.WriteString(`" style="display: block; margin: 10px auto; max-width: 100%; border-radius: 10px;" />`)
	}

	b.WriteString(`<p class="story-text" style="font-size: 18px; line-height: 1.6;">`)
	b.WriteString(TextToHTML(s.Text))
	b.WriteString(`</p></div>`)
	return b.String()
}

// TextToHTML escapes story text, converts the emphasis models commonly emit (**bold**, *italic*,
// # headings) and turns newlines into <br/>.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)
	out = headerRe.ReplaceAllString(out, "<b>$1</b>")
	out = boldRe.ReplaceAllString(out, "<b>$1</b>")
	// twice: a match consumes the boundary character an adjacent span needs
	out = italicRe.ReplaceAllString(out, "$1<i>$2</i>$3")
	out = italicRe.ReplaceAllString(out, "$1<i>$2</i>$3")
	return strings.ReplaceAll(out, "\n", "<br/>")
}

func safeURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return raw, true
	case strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//"):
		return raw, true
	default:
		return "", false
	}
}

func altText(prefix, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(prefix, " "), " of"))
	}
	return prefix + name
}
