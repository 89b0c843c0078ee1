package services

import (
	"context"
	"io"

	"github.com/tendertales/storyteller/internal/models"
)

// StoryWriter generates story text from a prompt (e.g. llm.StoryWriter).
type StoryWriter interface {
	Write(ctx context.Context, prompt string) (*models.GeneratedStory, error)
}

// PhotoDescriber describes an uploaded photo in one sentence (e.g. llm.VisionClient).
type PhotoDescriber interface {
	Describe(ctx context.Context, photo *models.Photo) (string, error)
}

// Illustrator generates an illustration from a prompt (replicate.Client, llm.GeminiIllustrator).
type Illustrator interface {
	Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error)
}

// ObjectStore keeps uploaded photos retrievable by URL (storage.LocalStore, storage.S3Store).
type ObjectStore interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher publishes story outcomes (e.g. kafka.Producer). May be nil to skip publishing.
type EventPublisher interface {
	PublishStoryEvent(ctx context.Context, event *models.StoryEvent) error
}
