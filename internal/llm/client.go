package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxResponseLogBytes is the max length of a model response to log in full (to avoid huge logs).
const maxResponseLogBytes = 4096

// Text providers
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil || base.Host == "" {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid GEMINI_API_ENDPOINT, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logModelResponse logs a model response at debug level, truncating if over maxResponseLogBytes.
func logModelResponse(caller, raw string) {
	if len(raw) <= maxResponseLogBytes {
		log.Debug().Str("caller", caller).Str("model_response", raw).Msg("Model response")
		return
	}
	log.Debug().
		Str("caller", caller).
		Str("model_response", truncateBytes(raw, maxResponseLogBytes)+"... [truncated]").
		Int("model_response_len", len(raw)).
		Msg("Model response")
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// truncateRunes returns the first n runes of s, with "..." appended when s was longer.
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}

// NewStoryModel builds the langchaingo model for story text from cfg.TextProvider.
// It returns the model and the model name used for logging.
func NewStoryModel(ctx context.Context, cfg *config.Config) (llms.Model, string, error) {
	switch cfg.TextProvider {
	case ProviderOpenAI, "":
		opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(cfg.TextModel)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize openai story model: %w", err)
		}
		return model, cfg.TextModel, nil

	case ProviderGemini:
		opts := []googleai.Option{googleai.WithAPIKey(cfg.GeminiAPIKey), googleai.WithDefaultModel(cfg.GeminiModelText)}
		if cfg.GeminiAPIEndpoint != "" {
			if httpClient := httpClientForEndpoint(cfg.GeminiAPIEndpoint); httpClient != nil {
				opts = append(opts, googleai.WithHTTPClient(httpClient))
			}
		}
		model, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("failed to initialize gemini story model: %w", err)
		}
		return model, cfg.GeminiModelText, nil

	default:
		return nil, "", fmt.Errorf("unknown TEXT_PROVIDER %q", cfg.TextProvider)
	}
}
