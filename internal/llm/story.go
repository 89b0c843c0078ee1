package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/metrics"
	"github.com/tendertales/storyteller/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// StoryWriter generates story text with a chat model.
type StoryWriter struct {
	model       llms.Model
	modelName   string
	temperature float64
	maxTokens   int
}

// NewStoryWriter creates a StoryWriter. temperature and maxTokens are sent with every call.
func NewStoryWriter(model llms.Model, modelName string, temperature float64, maxTokens int) *StoryWriter {
	return &StoryWriter{
		model:       model,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Write sends prompt with the children's author persona and returns the trimmed first completion.
// Any failure is ErrUpstreamGeneration; there is no fallback text.
func (w *StoryWriter) Write(ctx context.Context, prompt string) (*models.GeneratedStory, error) {
	if w.model == nil {
		return nil, fmt.Errorf("%w: story model not initialized", models.ErrUpstreamGeneration)
	}

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextContent{Text: StorySystemPrompt}}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt}}},
	}

	start := time.Now()
	resp, err := w.model.GenerateContent(ctx, messages,
		llms.WithTemperature(w.temperature),
		llms.WithMaxTokens(w.maxTokens),
	)
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamStory, start, err)
		return nil, fmt.Errorf("%w: story completion: %v", models.ErrUpstreamGeneration, err)
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		err = fmt.Errorf("%w: story completion returned no choices", models.ErrUpstreamGeneration)
		metrics.ObserveUpstream(metrics.UpstreamStory, start, err)
		return nil, err
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		err = fmt.Errorf("%w: story completion returned empty text", models.ErrUpstreamGeneration)
		metrics.ObserveUpstream(metrics.UpstreamStory, start, err)
		return nil, err
	}
	metrics.ObserveUpstream(metrics.UpstreamStory, start, nil)

	logModelResponse("WriteStory", text)
	log.Info().
		Str("model", w.modelName).
		Int("story_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Story generation complete")

	return &models.GeneratedStory{Text: text}, nil
}
