package models

import (
	"time"

	"github.com/google/uuid"
)

// Photo is an uploaded picture of the child
type Photo struct {
	Filename string
	MimeType string
	Data     []byte
}

// StoryRequest represents a request to generate a bedtime story
type StoryRequest struct {
	Name      string
	Interests string
	Photo     *Photo // optional
}

// GeneratedStory is the text produced by the story model
type GeneratedStory struct {
	Text string
}

// GeneratedImage is a generated illustration; nil means no illustration
type GeneratedImage struct {
	URL string
}

// StoryResponse is returned by POST /generate-story
type StoryResponse struct {
	Story    string `json:"story"`
	ImageURL string `json:"imageURL,omitempty"`
}

// ErrorResponse is the JSON body for failed requests
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ServiceInfo is returned by GET /
type ServiceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// Story event statuses
const (
	StoryStatusSucceeded = "succeeded"
	StoryStatusDegraded  = "degraded"
	StoryStatusFailed    = "failed"
)

// StoryEvent describes the outcome of one generation request. It never carries the child's name or interests.
type StoryEvent struct {
	RequestID  uuid.UUID `json:"request_id"`
	Status     string    `json:"status"` // succeeded, degraded, failed
	HasPhoto   bool      `json:"has_photo"`
	HasImage   bool      `json:"has_image"`
	Strategy   string    `json:"strategy"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
