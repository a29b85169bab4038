package videos_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/testsupport"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type api struct {
	*fixture
	router  *gin.Engine
	sources *testsupport.MemorySources
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	sources := testsupport.NewMemorySources()
	h := videos.NewHandler(f.svc, f.remote, sources, nil)

	r := gin.New()
	r.GET("/courses/:id/videos", h.ListPublic)
	admin := r.Group("/admin")
	admin.POST("/courses/:id/videos", h.Create)
	admin.GET("/courses/:id/videos", h.ListAdmin)
	admin.POST("/courses/:id/videos/upload-url", h.UploadURL)
	admin.POST("/courses/:id/videos/source", h.UploadSource)
	admin.POST("/courses/:id/videos/import", h.Import)
	admin.GET("/courses/:id/lessons/:lesson/video", h.GetByLesson)
	admin.GET("/videos/:id", h.Get)
	admin.PATCH("/videos/:id", h.Update)
	admin.DELETE("/videos/:id", h.Delete)
	return &api{fixture: f, router: r, sources: sources}
}

func (a *api) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (a *api) coursePath(suffix string) string {
	return "/admin/courses/" + a.course.ID.String() + suffix
}

func TestHandlerCreateAndGet(t *testing.T) {
	a := newAPI(t)
	w, env := a.do(t, http.MethodPost, a.coursePath("/videos"), gin.H{"lesson_id": "L1", "external_id": "X1", "title": "Intro"})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var v models.Video
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, models.VideoStatusQueued, v.Status)

	w, env = a.do(t, http.MethodGet, "/admin/videos/"+v.ID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = a.do(t, http.MethodGet, a.coursePath("/lessons/L1/video"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodGet, a.coursePath("/lessons/L2/video"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerCreateErrors(t *testing.T) {
	a := newAPI(t)
	a.create(t, "L1", "X1")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"bad course id", "/admin/courses/nope/videos", gin.H{"lesson_id": "L2", "external_id": "X2", "title": "t"}, http.StatusBadRequest},
		{"missing title", a.coursePath("/videos"), gin.H{"lesson_id": "L2", "external_id": "X2"}, http.StatusBadRequest},
		{"unknown course", "/admin/courses/" + uuid.NewString() + "/videos", gin.H{"lesson_id": "L2", "external_id": "X2", "title": "t"}, http.StatusNotFound},
		{"duplicate external id", a.coursePath("/videos"), gin.H{"lesson_id": "L2", "external_id": "X1", "title": "t"}, http.StatusConflict},
		{"duplicate lesson", a.coursePath("/videos"), gin.H{"lesson_id": "L1", "external_id": "X2", "title": "t"}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, env := a.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.want, w.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestHandlerListAdminAndPublic(t *testing.T) {
	a := newAPI(t)
	ready := a.create(t, "L1", "X1")
	a.create(t, "L2", "X2")
	_, err := a.svc.Update(context.Background(), ready.ID, models.VideoUpdate{
		Status:      models.StatusPtr(models.VideoStatusReady),
		PlaybackHLS: models.StringPtr("https://cdn.example/X1.m3u8"),
	})
	require.NoError(t, err)

	count := func(env envelope) int {
		var list []models.Video
		require.NoError(t, json.Unmarshal(env.Data, &list))
		return len(list)
	}

	_, env := a.do(t, http.MethodGet, a.coursePath("/videos"), nil)
	assert.Equal(t, 2, count(env))
	_, env = a.do(t, http.MethodGet, a.coursePath("/videos?include_not_ready=false"), nil)
	assert.Equal(t, 1, count(env))
	_, env = a.do(t, http.MethodGet, "/courses/"+a.course.ID.String()+"/videos", nil)
	assert.Equal(t, 1, count(env))

	w, _ := a.do(t, http.MethodGet, a.coursePath("/videos?include_not_ready=maybe"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerUpdate(t *testing.T) {
	a := newAPI(t)
	v := a.create(t, "L1", "X1")

	w, env := a.do(t, http.MethodPatch, "/admin/videos/"+v.ID.String(), gin.H{"status": "in_progress", "processing_progress": 30})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var got models.Video
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 30, got.ProcessingProgress)

	w, _ = a.do(t, http.MethodPatch, "/admin/videos/"+v.ID.String(), gin.H{"status": "queued"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPatch, "/admin/videos/"+v.ID.String(), gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = a.do(t, http.MethodPatch, "/admin/videos/"+uuid.NewString(), gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerDelete(t *testing.T) {
	a := newAPI(t)
	v := a.create(t, "L1", "X1")

	a.remote.DeleteErr = apperr.Wrap(apperr.ErrExternalService, "provider delete", "status 500", nil)
	w, _ := a.do(t, http.MethodDelete, "/admin/videos/"+v.ID.String(), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	a.remote.DeleteErr = nil
	w, _ = a.do(t, http.MethodDelete, "/admin/videos/"+v.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"X1"}, a.remote.Deleted())

	w, _ = a.do(t, http.MethodDelete, "/admin/videos/"+v.ID.String()+"?delete_remote=false", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerUploadURL(t *testing.T) {
	a := newAPI(t)
	w, env := a.do(t, http.MethodPost, a.coursePath("/videos/upload-url"), gin.H{"lesson_id": "L1", "filename": "intro.mov"})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var out struct {
		UploadURL   string `json:"upload_url"`
		SourceKey   string `json:"source_key"`
		ContentType string `json:"content_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.True(t, strings.HasPrefix(out.SourceKey, "sources/"+a.course.ID.String()+"/L1/"))
	assert.True(t, strings.HasSuffix(out.SourceKey, ".mov"))
	assert.Equal(t, "video/quicktime", out.ContentType)
	assert.Equal(t, 3600, out.ExpiresIn)
	assert.Contains(t, out.UploadURL, out.SourceKey)

	w, _ = a.do(t, http.MethodPost, a.coursePath("/videos/upload-url"), gin.H{"lesson_id": "L1", "filename": "slides.pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerUploadSource(t *testing.T) {
	a := newAPI(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("lesson_id", "L1"))
	fw, err := mw.CreateFormFile("file", "intro.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("not really a video"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, a.coursePath("/videos/source"), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var out struct {
		SourceKey string `json:"source_key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	body, ok := a.sources.Object(out.SourceKey)
	require.True(t, ok)
	assert.Equal(t, "not really a video", string(body))
}

func TestHandlerImport(t *testing.T) {
	a := newAPI(t)
	key := "sources/" + a.course.ID.String() + "/L1/obj.mp4"

	w, _ := a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Intro", "source_key": key})
	assert.Equal(t, http.StatusNotFound, w.Code, "source not uploaded yet")

	w, _ = a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Intro", "source_key": "sources/" + uuid.NewString() + "/L1/obj.mp4"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	a.sources.Put(key, []byte("video"))
	a.remote.NextUID = "remote-1"
	w, env := a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Intro", "source_key": key})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var v models.Video
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, "remote-1", v.ExternalID)
	assert.Equal(t, []string{"https://sources.test/get/" + key}, a.remote.Copies())

	w, _ = a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Again", "source_key": key})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, a.remote.Copies(), 1, "lesson conflict is detected before the provider is asked")
}

func TestHandlerImportDeletesRemoteWhenCreateFails(t *testing.T) {
	a := newAPI(t)
	a.create(t, "L0", "taken")
	key := "sources/" + a.course.ID.String() + "/L1/obj.mp4"
	a.sources.Put(key, []byte("video"))
	a.remote.NextUID = "taken"

	w, _ := a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Intro", "source_key": key})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"taken"}, a.remote.Deleted())
}

func TestHandlerImportProviderFailure(t *testing.T) {
	a := newAPI(t)
	key := "sources/" + a.course.ID.String() + "/L1/obj.mp4"
	a.sources.Put(key, []byte("video"))
	a.remote.CopyErr = errors.New("connection reset")

	w, _ := a.do(t, http.MethodPost, a.coursePath("/videos/import"), gin.H{"lesson_id": "L1", "title": "Intro", "source_key": key})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandlerWithoutSourceStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	h := videos.NewHandler(f.svc, f.remote, nil, nil)
	r := gin.New()
	r.POST("/admin/courses/:id/videos/import", h.Import)

	req := httptest.NewRequest(http.MethodPost, "/admin/courses/"+f.course.ID.String()+"/videos/import", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
