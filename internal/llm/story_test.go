package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendertales/storyteller/internal/models"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is a minimal llms.Model for tests.
type fakeModel struct {
	resp     *llms.ContentResponse
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
	calls    int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}
}

func TestStoryWriter_Write(t *testing.T) {
	model := &fakeModel{resp: textResponse("\n  Once upon a time, Mia met a dinosaur.  \n")}
	w := NewStoryWriter(model, "gpt-4o", 0.8, 1000)

	story, err := w.Write(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "Once upon a time, Mia met a dinosaur.", story.Text)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.TextContent{Text: StorySystemPrompt}, model.messages[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "prompt text"}, model.messages[1].Parts[0])
	assert.InDelta(t, 0.8, model.opts.Temperature, 1e-9)
	assert.Equal(t, 1000, model.opts.MaxTokens)
}

func TestStoryWriter_Write_Failures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"transport error", &fakeModel{err: errors.New("status 503")}},
		{"nil response", &fakeModel{}},
		{"no choices", &fakeModel{resp: &llms.ContentResponse{}}},
		{"blank text", &fakeModel{resp: textResponse("   ")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewStoryWriter(tt.model, "gpt-4o", 0.8, 1000)
			story, err := w.Write(context.Background(), "prompt")
			assert.Nil(t, story)
			assert.ErrorIs(t, err, models.ErrUpstreamGeneration)
			assert.Equal(t, 1, tt.model.calls)
		})
	}
}

func TestStoryWriter_Write_NilModel(t *testing.T) {
	w := NewStoryWriter(nil, "", 0.8, 1000)
	_, err := w.Write(context.Background(), "prompt")
	assert.ErrorIs(t, err, models.ErrUpstreamGeneration)
}
