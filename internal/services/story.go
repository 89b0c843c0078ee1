package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/config"
	"github.com/tendertales/storyteller/internal/llm"
	"github.com/tendertales/storyteller/internal/markup"
	"github.com/tendertales/storyteller/internal/metrics"
	"github.com/tendertales/storyteller/internal/models"
)

// eventPublishTimeout bounds event publishing so a slow broker cannot hold a response.
const eventPublishTimeout = 5 * time.Second

// cleanupTimeout bounds removal of a stored photo after a failed request.
const cleanupTimeout = 10 * time.Second

// Allowed MIME types for photo uploads
var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Deps are the collaborators of StoryService. Describer, Illustrator, Photos and Events may be nil.
type Deps struct {
	Writer      StoryWriter
	Describer   PhotoDescriber
	Illustrator Illustrator
	Photos      ObjectStore
	Events      EventPublisher
}

// Options configures StoryService behavior
type Options struct {
	StoryFormat       string // html, text
	StoryWords        int
	MaxFieldLength    int
	MaxPhotoSize      int64
	ImageFailureFatal bool
	Strategy          string // illustration strategy name, for events and logs
}

// StoryService turns a StoryRequest into a StoryResponse
type StoryService struct {
	deps Deps
	opts Options
}

// NewStoryService creates a new StoryService
func NewStoryService(deps Deps, opts Options) *StoryService {
	if opts.StoryFormat == "" {
		opts.StoryFormat = config.StoryFormatHTML
	}
	if opts.MaxFieldLength <= 0 {
		opts.MaxFieldLength = 200
	}
	if opts.MaxPhotoSize <= 0 {
		opts.MaxPhotoSize = 10 * 1024 * 1024
	}
	return &StoryService{deps: deps, opts: opts}
}

// Validate checks a request without calling any upstream service.
func (s *StoryService) Validate(req *models.StoryRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Interests = strings.TrimSpace(req.Interests)
	if req.Name == "" || req.Interests == "" {
		return fmt.Errorf("%w: %s", models.ErrValidation, models.MsgMissingFields)
	}
	if utf8.RuneCountInString(req.Name) > s.opts.MaxFieldLength || utf8.RuneCountInString(req.Interests) > s.opts.MaxFieldLength {
		return fmt.Errorf("%w: %s", models.ErrValidation, models.MsgFieldsTooLong)
	}
	if req.Photo != nil {
		if len(req.Photo.Data) == 0 {
			return fmt.Errorf("%w: photo is empty", models.ErrValidation)
		}
		if int64(len(req.Photo.Data)) > s.opts.MaxPhotoSize {
			return fmt.Errorf("%w: photo exceeds maximum of %d bytes", models.ErrValidation, s.opts.MaxPhotoSize)
		}
		if !allowedPhotoTypes[req.Photo.MimeType] {
			return fmt.Errorf("%w: unsupported photo type %s", models.ErrValidation, req.Photo.MimeType)
		}
	}
	return nil
}

// Generate runs the story pipeline: optional photo description, story text, optional
// illustration, then assembly. Story failures are fatal; photo and illustration failures
// degrade to a response without imageURL unless ImageFailureFatal is set.
func (s *StoryService) Generate(ctx context.Context, requestID uuid.UUID, req *models.StoryRequest) (*models.StoryResponse, error) {
	start := time.Now()
	logger := log.With().Str("request_id", requestID.String()).Logger()

	if err := s.Validate(req); err != nil {
		metrics.ObserveStoryRequest("rejected")
		return nil, err
	}

	hasPhoto := req.Photo != nil
	event := &models.StoryEvent{RequestID: requestID, HasPhoto: hasPhoto, Strategy: s.opts.Strategy}

	// run tracks what this request stored so failures can remove it
	run := &storyRun{logger: logger, event: event, start: start}
	var photoURL string
	if hasPhoto && s.opts.StoryFormat == config.StoryFormatHTML && s.deps.Photos != nil {
		photoURL, run.photoKey = s.storePhoto(ctx, logger, req.Photo)
	}

	// The description only seeds the illustration, so skip it when there is no illustrator.
	var (
		description string
		imageErr    error
	)
	if hasPhoto && s.deps.Describer != nil && s.deps.Illustrator != nil {
		description, imageErr = s.deps.Describer.Describe(ctx, req.Photo)
		if imageErr != nil {
			if s.opts.ImageFailureFatal {
				return nil, s.fail(ctx, run, imageErr)
			}
			logger.Warn().Err(imageErr).Msg("Photo description failed, continuing without illustration")
		}
	}

	story, err := s.deps.Writer.Write(ctx, llm.BuildStoryPrompt(req.Name, req.Interests, s.opts.StoryWords))
	if err != nil {
		return nil, s.fail(ctx, run, err)
	}

	var image *models.GeneratedImage
	if prompt := llm.BuildIllustrationPrompt(description); prompt != "" {
		image, imageErr = s.deps.Illustrator.Generate(ctx, prompt)
		if imageErr != nil {
			if s.opts.ImageFailureFatal {
				return nil, s.fail(ctx, run, imageErr)
			}
			logger.Warn().Err(imageErr).Str("strategy", s.opts.Strategy).Msg("Illustration failed, responding without image")
		}
	}

	resp := &models.StoryResponse{}
	if image != nil {
		resp.ImageURL = image.URL
	}
	if s.opts.StoryFormat == config.StoryFormatText {
		resp.Story = story.Text
	} else {
		resp.Story = markup.StoryHTML(markup.Story{
			Name:            req.Name,
			Text:            story.Text,
			PhotoURL:        photoURL,
			IllustrationURL: resp.ImageURL,
		})
	}

	event.HasImage = resp.ImageURL != ""
	event.Status = models.StoryStatusSucceeded
	if imageErr != nil {
		event.Status = models.StoryStatusDegraded
		event.Error = imageErr.Error()
	}
	s.finish(ctx, logger, event, start)

	logger.Info().
		Str("status", event.Status).
		Bool("has_photo", hasPhoto).
		Bool("has_image", event.HasImage).
		Dur("duration", time.Since(start)).
		Msg("Story generated")

	return resp, nil
}

// storyRun is the per-request state needed to finish or unwind a generation.
type storyRun struct {
	logger   zerolog.Logger
	event    *models.StoryEvent
	start    time.Time
	photoKey string // stored photo copy, removed when the request fails
}

// storePhoto keeps a copy of the photo for embedding and returns its URL and key.
// Failures only drop the photo from the fragment.
func (s *StoryService) storePhoto(ctx context.Context, logger zerolog.Logger, photo *models.Photo) (string, string) {
	key := "photos/" + uuid.New().String() + photoExtension(photo)
	url, err := s.deps.Photos.Put(ctx, key, bytes.NewReader(photo.Data), photo.MimeType, int64(len(photo.Data)))
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to store photo, omitting it from the story")
		return "", ""
	}
	return url, key
}

// removePhoto deletes the stored photo copy of a failed request. ctx may already be done.
func (s *StoryService) removePhoto(ctx context.Context, run *storyRun) {
	if run.photoKey == "" {
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.deps.Photos.Delete(delCtx, run.photoKey); err != nil {
		run.logger.Warn().Err(err).Str("key", run.photoKey).Msg("Failed to remove stored photo")
		return
	}
	run.photoKey = ""
}

func (s *StoryService) fail(ctx context.Context, run *storyRun, err error) error {
	s.removePhoto(ctx, run)

	logger, event, start := run.logger, run.event, run.start
	event.Status = models.StoryStatusFailed
	event.Error = err.Error()
	s.finish(ctx, logger, event, start)
	logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Story generation failed")
	if errors.Is(err, models.ErrUpstreamGeneration) || errors.Is(err, models.ErrImageGeneration) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrInternal, err)
}

func (s *StoryService) finish(ctx context.Context, logger zerolog.Logger, event *models.StoryEvent, start time.Time) {
	metrics.ObserveStoryRequest(event.Status)
	if s.deps.Events == nil {
		return
	}
	event.DurationMs = time.Since(start).Milliseconds()
	event.CreatedAt = time.Now().UTC()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.deps.Events.PublishStoryEvent(pubCtx, event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish story event")
	}
}

func photoExtension(photo *models.Photo) string {
	ext := strings.ToLower(filepath.Ext(photo.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return ext
	}
	switch photo.MimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
