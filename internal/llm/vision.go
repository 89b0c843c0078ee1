package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openaigo "github.com/sashabaranov/go-openai"
	"github.com/tendertales/storyteller/internal/metrics"
	"github.com/tendertales/storyteller/internal/models"
)

// VisionClient describes uploaded photos with a multimodal chat model.
type VisionClient struct {
	client *openaigo.Client
	model  string
}

// NewVisionClient creates a VisionClient. baseURL overrides the OpenAI API base (e.g. http://proxy/v1) when set.
func NewVisionClient(apiKey, baseURL, model string) *VisionClient {
	cfg := openaigo.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openaigo.GPT4o
	}
	return &VisionClient{
		client: openaigo.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Describe returns a one-sentence description of the photo suitable for seeding an illustration prompt.
func (v *VisionClient) Describe(ctx context.Context, photo *models.Photo) (string, error) {
	if photo == nil || len(photo.Data) == 0 {
		return "", fmt.Errorf("%w: empty photo", models.ErrUpstreamGeneration)
	}

	start := time.Now()
	resp, err := v.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model: v.model,
		Messages: []openaigo.ChatCompletionMessage{
			{
				Role: openaigo.ChatMessageRoleUser,
				MultiContent: []openaigo.ChatMessagePart{
					{Type: openaigo.ChatMessagePartTypeText, Text: VisionInstruction},
					{
						Type:     openaigo.ChatMessagePartTypeImageURL,
						ImageURL: &openaigo.ChatMessageImageURL{URL: dataURL(photo), Detail: openaigo.ImageURLDetailAuto},
					},
				},
			},
		},
	})
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamVision, start, err)
		return "", fmt.Errorf("%w: vision completion: %v", models.ErrUpstreamGeneration, err)
	}

	if len(resp.Choices) == 0 {
		err = fmt.Errorf("%w: vision completion returned no choices", models.ErrUpstreamGeneration)
		metrics.ObserveUpstream(metrics.UpstreamVision, start, err)
		return "", err
	}
	description := strings.TrimSpace(resp.Choices[0].Message.Content)
	if description == "" {
		err = fmt.Errorf("%w: vision completion returned empty text", models.ErrUpstreamGeneration)
		metrics.ObserveUpstream(metrics.UpstreamVision, start, err)
		return "", err
	}
	metrics.ObserveUpstream(metrics.UpstreamVision, start, nil)

	logModelResponse("DescribePhoto", description)
	log.Info().
		Str("model", v.model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Photo description complete")

	return description, nil
}

// dataURL inlines the photo as a base64 data URL. JPEG is assumed when the type is unknown.
func dataURL(photo *models.Photo) string {
	mimeType := photo.MimeType
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(photo.Data)
}
