package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/models"
)

const (
	serviceName    = "tendertales-storyteller"
	serviceVersion = "1.0.0"

	// defaultMultipartMemory is the part of a multipart body kept in memory; the rest spills to temp files.
	defaultMultipartMemory = 4 << 20
	// formOverhead is allowed on top of the photo for the text fields and multipart framing.
	formOverhead = 1 << 20
)

// storyService is the subset of services.StoryService used by the handlers.
type storyService interface {
	Generate(ctx context.Context, requestID uuid.UUID, req *models.StoryRequest) (*models.StoryResponse, error)
}

// Handler contains all HTTP handlers
type Handler struct {
	stories        storyService
	maxPhotoSize   int64
	requestTimeout time.Duration
	maxMemory      int64
}

// NewHandler creates a new handler
func NewHandler(stories storyService, maxPhotoSize int64, requestTimeout time.Duration) *Handler {
	if maxPhotoSize <= 0 {
		maxPhotoSize = 10 * 1024 * 1024
	}
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Minute
	}
	return &Handler{
		stories:        stories,
		maxPhotoSize:   maxPhotoSize,
		requestTimeout: requestTimeout,
		maxMemory:      defaultMultipartMemory,
	}
}

// GenerateStory handles POST /generate-story (multipart/form-data: name, interests, optional photo)
func (h *Handler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New()
	w.Header().Set("X-Request-ID", requestID.String())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPhotoSize+formOverhead)
	err := r.ParseMultipartForm(h.maxMemory)
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				log.Warn().Err(err).Str("request_id", requestID.String()).Msg("Failed to remove multipart temp files")
			}
		}()
	}
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusBadRequest, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	req := &models.StoryRequest{
		Name:      r.FormValue("name"),
		Interests: r.FormValue("interests"),
	}

	// Missing fields win over any photo problem.
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Interests) == "" {
		writeJSONError(w, http.StatusBadRequest, models.MsgMissingFields)
		return
	}

	if r.MultipartForm != nil {
		photo, err := h.readPhoto(r.MultipartForm)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Photo = photo
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.stories.Generate(ctx, requestID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			writeJSONError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), models.ErrValidation.Error()+": "))
		case errors.Is(err, models.ErrUpstreamGeneration), errors.Is(err, models.ErrImageGeneration):
			writeJSONError(w, http.StatusInternalServerError, models.MsgGenerateFailed)
		default:
			log.Error().Err(err).Str("request_id", requestID.String()).Msg("Unexpected story generation error")
			writeJSONError(w, http.StatusInternalServerError, models.ErrInternal.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// readPhoto returns the optional "photo" part, or nil when none was sent.
func (h *Handler) readPhoto(form *multipart.Form) (*models.Photo, error) {
	headers := form.File["photo"]
	if len(headers) == 0 {
		return nil, nil
	}
	if len(headers) > 1 {
		return nil, errors.New("only one photo may be uploaded")
	}
	header := headers[0]
	if header.Size > h.maxPhotoSize {
		return nil, errors.New("photo is too large")
	}

	file, err := header.Open()
	if err != nil {
		return nil, errors.New("failed to read photo")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxPhotoSize+1))
	if err != nil {
		return nil, errors.New("failed to read photo")
	}

	return &models.Photo{
		Filename: header.Filename,
		MimeType: photoMimeType(header.Header.Get("Content-Type"), data),
		Data:     data,
	}, nil
}

// photoMimeType prefers the declared part type and sniffs the content when it is missing or generic.
func photoMimeType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
		return strings.ToLower(mt)
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ServiceInfo{
		Service: serviceName,
		Version: serviceVersion,
		Endpoints: map[string]string{
			"POST /generate-story": "multipart form: name, interests, optional photo",
			"GET /health":          "liveness check",
			"GET /metrics":         "Prometheus metrics",
		},
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
