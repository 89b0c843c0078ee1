package llm

import (
	"fmt"
	"strings"
)

// StorySystemPrompt is the persona sent as the system message of every story request.
const StorySystemPrompt = "You are a children's book author."

// VisionInstruction is sent alongside the uploaded photo.
const VisionInstruction = "Describe this image in one sentence for a children's story cover."

// DefaultStoryWords is the target story length when none is configured.
const DefaultStoryWords = 300

// BuildStoryPrompt returns the user prompt for the story model. name and interests are
// interpolated verbatim; callers validate and length-cap them first.
func BuildStoryPrompt(name, interests string, words int) string {
	if words <= 0 {
		words = DefaultStoryWords
	}
	return fmt.Sprintf(`You are a warm, imaginative storyteller creating a short children's bedtime story. Focus on it being fantasy. Make sure this is appropriate for children.

Use this context:
- Child's name: %s
- Traits or interests: %s

Write a %d-word original story starring %s. The story should:
- Be written in the third person
- Use a whimsical and lyrical tone
- Have a clear beginning, middle, and end
- Take place in a fantastical world that reflects the child's interests
- Use simple language suitable for a child aged 3-7
- Avoid violence or mature themes
- Optionally include a gentle moral about kindness, curiosity, or bravery`, name, interests, words, name)
}

// BuildIllustrationPrompt returns the image prompt seeded by the photo description.
// An empty description yields an empty prompt (no illustration).
func BuildIllustrationPrompt(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	return "Create a whimsical, fantasy-style cartoon cover image for a children's story. Include characters that look like: " + description
}
