package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/metrics"
	"github.com/tendertales/storyteller/internal/models"
	"google.golang.org/api/option"
)

// ObjectStore persists generated images and returns a URL the caller can resolve.
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string, size int64) (string, error)
}

// imageModel is the subset of *genai.GenerativeModel used for illustrations.
type imageModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiIllustrator generates illustrations with a Gemini image model and stores them.
type GeminiIllustrator struct {
	client    *genai.Client
	model     imageModel
	modelName string
	store     ObjectStore
}

// NewGeminiIllustrator creates a Gemini illustrator. apiEndpoint overrides the default Gemini API base URL when set.
func NewGeminiIllustrator(ctx context.Context, apiKey, apiEndpoint, modelName string, store ObjectStore) (*GeminiIllustrator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for gemini illustrations")
	}
	if modelName == "" {
		modelName = "gemini-3-pro-image-preview"
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(apiEndpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Strict modality: request native image output
	setResponseModality(model, []string{"IMAGE"})

	log.Info().Str("model_image", modelName).Msg("Gemini illustrator initialized")

	return &GeminiIllustrator{client: client, model: model, modelName: modelName, store: store}, nil
}

// Close releases the underlying genai client.
func (g *GeminiIllustrator) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Generate produces an illustration for prompt and returns its stored URL.
func (g *GeminiIllustrator) Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	log.Debug().
		Str("prompt", truncateRunes(prompt, 50)).
		Msg("Generating illustration")

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		metrics.ObserveUpstream(metrics.UpstreamIllustration, start, err)
		return nil, fmt.Errorf("%w: gemini: %v", models.ErrImageGeneration, err)
	}

	blob, ok := firstImageBlob(resp)
	if !ok {
		err = fmt.Errorf("%w: no image blob in response (strict modality: expected IMAGE)", models.ErrImageGeneration)
		metrics.ObserveUpstream(metrics.UpstreamIllustration, start, err)
		return nil, err
	}
	metrics.ObserveUpstream(metrics.UpstreamIllustration, start, nil)

	mimeType := blob.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	key := "illustrations/" + uuid.New().String() + extensionFor(mimeType)
	url, err := g.store.Put(ctx, key, bytes.NewReader(blob.Data), mimeType, int64(len(blob.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: store illustration: %v", models.ErrImageGeneration, err)
	}

	log.Info().
		Str("model", g.modelName).
		Int("image_size_bytes", len(blob.Data)).
		Str("mime_type", mimeType).
		Str("key", key).
		Msg("Illustration generated")

	return &models.GeneratedImage{URL: url}, nil
}

func firstImageBlob(resp *genai.GenerateContentResponse) (genai.Blob, bool) {
	if resp == nil {
		return genai.Blob{}, false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				return blob, true
			}
		}
	}
	return genai.Blob{}, false
}

// setResponseModality sets model.ResponseModality when the genai SDK exposes it (e.g. for Gemini 3).
// Uses reflection so it no-ops on older SDKs that don't have the field.
func setResponseModality(model *genai.GenerativeModel, modalities []string) {
	v := reflect.ValueOf(model).Elem()
	f := v.FieldByName("ResponseModality")
	if !f.IsValid() || !f.CanSet() {
		log.Debug().Msg("ResponseModality not available on GenerativeModel (SDK may not support it yet)")
		return
	}
	if f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String {
		f.Set(reflect.ValueOf(modalities))
	}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
