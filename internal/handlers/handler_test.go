package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendertales/storyteller/internal/models"
)

// fakeStoryService records the last request and returns canned results.
type fakeStoryService struct {
	generate func(context.Context, *models.StoryRequest) (*models.StoryResponse, error)
	last     *models.StoryRequest
	calls    int
}

func (f *fakeStoryService) Generate(ctx context.Context, _ uuid.UUID, req *models.StoryRequest) (*models.StoryResponse, error) {
	f.calls++
	f.last = req
	if f.generate != nil {
		return f.generate(ctx, req)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Interests) == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, models.MsgMissingFields)
	}
	return &models.StoryResponse{Story: "<div class=\"story\">Once upon a time</div>"}, nil
}

type photoPart struct {
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, photos ...photoPart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, p := range photos {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, p.filename))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate-story", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func TestGenerateStory_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"missing interests", map[string]string{"name": "Mia"}},
		{"missing name", map[string]string{"interests": "dragons"}},
		{"empty form", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeStoryService{}, 0, 0)
			rec := httptest.NewRecorder()

			h.GenerateStory(rec, multipartRequest(t, tt.fields))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "Missing name or interests", decodeError(t, rec))
		})
	}
}

func TestGenerateStory_URLEncodedForm(t *testing.T) {
	svc := &fakeStoryService{}
	h := NewHandler(svc, 0, 0)
	req := httptest.NewRequest(http.MethodPost, "/generate-story", strings.NewReader("name=Mia&interests=dragons"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	h.GenerateStory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.last)
	assert.Equal(t, "Mia", svc.last.Name)
	assert.Nil(t, svc.last.Photo)
}

func TestGenerateStory_SuccessWithoutImage(t *testing.T) {
	svc := &fakeStoryService{}
	h := NewHandler(svc, 0, 0)
	rec := httptest.NewRecorder()

	h.GenerateStory(rec, multipartRequest(t, map[string]string{"name": "Mia", "interests": "dragons"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var raw map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Contains(t, raw, "story")
	assert.NotContains(t, raw, "imageURL")
	assert.Nil(t, svc.last.Photo)
}

func TestGenerateStory_SuccessWithImage(t *testing.T) {
	svc := &fakeStoryService{generate: func(_ context.Context, req *models.StoryRequest) (*models.StoryResponse, error) {
		return &models.StoryResponse{Story: "story", ImageURL: "https://img.example/a.png"}, nil
	}}
	h := NewHandler(svc, 0, 0)
	rec := httptest.NewRecorder()

	h.GenerateStory(rec, multipartRequest(t,
		map[string]string{"name": "Mia", "interests": "dragons"},
		photoPart{filename: "kid.png", contentType: "image/png", data: pngBytes},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.StoryResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://img.example/a.png", resp.ImageURL)

	require.NotNil(t, svc.last.Photo)
	assert.Equal(t, "kid.png", svc.last.Photo.Filename)
	assert.Equal(t, "image/png", svc.last.Photo.MimeType)
	assert.Equal(t, pngBytes, svc.last.Photo.Data)
}

func TestGenerateStory_SniffsGenericPhotoType(t *testing.T) {
	svc := &fakeStoryService{}
	h := NewHandler(svc, 0, 0)
	rec := httptest.NewRecorder()

	h.GenerateStory(rec, multipartRequest(t,
		map[string]string{"name": "Mia", "interests": "dragons"},
		photoPart{filename: "kid", contentType: "application/octet-stream", data: pngBytes},
	))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", svc.last.Photo.MimeType)
}

func TestGenerateStory_PhotoErrors(t *testing.T) {
	tests := []struct {
		name   string
		photos []photoPart
		want   string
	}{
		{"too large", []photoPart{{filename: "big.png", contentType: "image/png", data: bytes.Repeat([]byte{1}, 200)}}, "photo is too large"},
		{"two photos", []photoPart{
			{filename: "a.png", contentType: "image/png", data: pngBytes[:10]},
			{filename: "b.png", contentType: "image/png", data: pngBytes[:10]},
		}, "only one photo may be uploaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeStoryService{}
			h := NewHandler(svc, 100, 0)
			rec := httptest.NewRecorder()

			h.GenerateStory(rec, multipartRequest(t, map[string]string{"name": "Mia", "interests": "dragons"}, tt.photos...))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeError(t, rec))
			assert.Zero(t, svc.calls)
		})
	}
}

func TestGenerateStory_MissingFieldsWinOverPhotoErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		photos []photoPart
	}{
		{"missing name, two photos", map[string]string{"interests": "dragons"}, []photoPart{
			{filename: "a.png", contentType: "image/png", data: pngBytes[:10]},
			{filename: "b.png", contentType: "image/png", data: pngBytes[:10]},
		}},
		{"missing interests, oversized photo", map[string]string{"name": "Mia"}, []photoPart{
			{filename: "big.png", contentType: "image/png", data: bytes.Repeat([]byte{1}, 200)},
		}},
		{"blank name, valid photo", map[string]string{"name": "  ", "interests": "dragons"}, []photoPart{
			{filename: "kid.png", contentType: "image/png", data: pngBytes},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeStoryService{}
			h := NewHandler(svc, 100, 0)
			rec := httptest.NewRecorder()

			h.GenerateStory(rec, multipartRequest(t, tt.fields, tt.photos...))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing name or interests", decodeError(t, rec))
			assert.Zero(t, svc.calls)
		})
	}
}

func TestGenerateStory_BodyTooLarge(t *testing.T) {
	svc := &fakeStoryService{}
	h := NewHandler(svc, 10, 0)
	rec := httptest.NewRecorder()

	h.GenerateStory(rec, multipartRequest(t,
		map[string]string{"name": "Mia", "interests": "dragons"},
		photoPart{filename: "big.png", contentType: "image/png", data: bytes.Repeat([]byte{1}, formOverhead+100)},
	))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestGenerateStory_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"validation", fmt.Errorf("%w: %s", models.ErrValidation, models.MsgFieldsTooLong), http.StatusBadRequest, "name or interests too long"},
		{"upstream", fmt.Errorf("%w: 429", models.ErrUpstreamGeneration), http.StatusInternalServerError, "Failed to generate story"},
		{"image fatal", fmt.Errorf("%w: prediction failed", models.ErrImageGeneration), http.StatusInternalServerError, "Failed to generate story"},
		{"internal", fmt.Errorf("%w: boom", models.ErrInternal), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeStoryService{generate: func(context.Context, *models.StoryRequest) (*models.StoryResponse, error) {
				return nil, tt.err
			}}, 0, 0)
			rec := httptest.NewRecorder()

			h.GenerateStory(rec, multipartRequest(t, map[string]string{"name": "Mia", "interests": "dragons"}))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, decodeError(t, rec))
		})
	}
}

func TestGenerateStory_AppliesRequestTimeout(t *testing.T) {
	var deadline time.Time
	h := NewHandler(&fakeStoryService{generate: func(ctx context.Context, _ *models.StoryRequest) (*models.StoryResponse, error) {
		deadline, _ = ctx.Deadline()
		return &models.StoryResponse{Story: "s"}, nil
	}}, 0, 5*time.Second)
	rec := httptest.NewRecorder()

	start := time.Now()
	h.GenerateStory(rec, multipartRequest(t, map[string]string{"name": "Mia", "interests": "dragons"}))

	require.False(t, deadline.IsZero())
	assert.WithinDuration(t, start.Add(5*time.Second), deadline, time.Second)
}

func TestGenerateStory_RemovesTempFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	for _, fail := range []bool{false, true} {
		svc := &fakeStoryService{generate: func(context.Context, *models.StoryRequest) (*models.StoryResponse, error) {
			if fail {
				return nil, fmt.Errorf("%w: down", models.ErrUpstreamGeneration)
			}
			return &models.StoryResponse{Story: "s"}, nil
		}}
		h := NewHandler(svc, 0, 0)
		h.maxMemory = 1 // force the photo part onto disk
		rec := httptest.NewRecorder()

		h.GenerateStory(rec, multipartRequest(t,
			map[string]string{"name": "Mia", "interests": "dragons"},
			photoPart{filename: "kid.png", contentType: "image/png", data: pngBytes},
		))

		entries, err := os.ReadDir(tmp)
		require.NoError(t, err)
		assert.Empty(t, entries, "fail=%v", fail)
	}
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeStoryService{}, 0, 0)
	rec := httptest.NewRecorder()

	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OK", resp.Status)
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)
}

func TestIndex(t *testing.T) {
	h := NewHandler(&fakeStoryService{}, 0, 0)
	rec := httptest.NewRecorder()

	h.Index(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ServiceInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, serviceName, resp.Service)
	assert.Contains(t, resp.Endpoints, "POST /generate-story")
}
