package videos

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/apperr"
	"github.com/aura-academy/backend/pkg/response"
	"github.com/aura-academy/backend/pkg/storage"
)

// Ingester asks the provider to pull a source and can undo it.
type Ingester interface {
	CopyFromURL(ctx context.Context, sourceURL string, meta map[string]string) (string, error)
	DeleteVideo(ctx context.Context, externalID string) error
}

// SourceStorage stages raw uploads before the provider imports them.
type SourceStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
	PresignExpire() time.Duration
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Handler serves the admin and public video endpoints.
type Handler struct {
	svc     *Service
	ingest  Ingester
	sources SourceStorage
	logger  *zap.Logger
}

// NewHandler creates a video handler. sources may be nil when S3 is not configured;
// the upload and import endpoints then answer 503.
func NewHandler(svc *Service, ingest Ingester, sources SourceStorage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, ingest: ingest, sources: sources, logger: logger}
}

// CreateRequest is the body for POST /admin/courses/:id/videos.
type CreateRequest struct {
	LessonID    string         `json:"lesson_id" binding:"required"`
	ExternalID  string         `json:"external_id" binding:"required"`
	Title       string         `json:"title" binding:"required"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// UploadURLRequest is the body for POST /admin/courses/:id/videos/upload-url.
type UploadURLRequest struct {
	LessonID    string `json:"lesson_id" binding:"required"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// ImportRequest is the body for POST /admin/courses/:id/videos/import.
type ImportRequest struct {
	LessonID    string         `json:"lesson_id" binding:"required"`
	Title       string         `json:"title" binding:"required"`
	SourceKey   string         `json:"source_key" binding:"required"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+strings.ReplaceAll(name, "_", " "))
		return uuid.Nil, false
	}
	return id, true
}

func boolQuery(c *gin.Context, key string, def bool) (bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		response.BadRequest(c, "invalid "+key)
		return false, false
	}
	return v, true
}

// Create handles POST /admin/courses/:id/videos for an asset the provider already holds.
func (h *Handler) Create(c *gin.Context) {
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.svc.Create(c.Request.Context(), models.CreateVideoInput{
		CourseID:    courseID,
		LessonID:    req.LessonID,
		ExternalID:  req.ExternalID,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}

// ListAdmin handles GET /admin/courses/:id/videos?include_not_ready=true.
func (h *Handler) ListAdmin(c *gin.Context) {
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	includeNotReady, ok := boolQuery(c, "include_not_ready", true)
	if !ok {
		return
	}
	list, err := h.svc.ListByCourse(c.Request.Context(), courseID, includeNotReady)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// ListPublic handles GET /courses/:id/videos. Only playable videos are listed.
func (h *Handler) ListPublic(c *gin.Context) {
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListByCourse(c.Request.Context(), courseID, false)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /admin/videos/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if v == nil {
		response.NotFound(c, "video not found")
		return
	}
	response.OK(c, v)
}

// GetByLesson handles GET /admin/courses/:id/lessons/:lesson/video.
func (h *Handler) GetByLesson(c *gin.Context) {
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.GetByLesson(c.Request.Context(), courseID, c.Param("lesson"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if v == nil {
		response.NotFound(c, "lesson has no video")
		return
	}
	response.OK(c, v)
}

// Update handles PATCH /admin/videos/:id. Absent fields are left unchanged.
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req models.VideoUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	v, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// Delete handles DELETE /admin/videos/:id?delete_remote=true.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	deleteRemote, ok := boolQuery(c, "delete_remote", true)
	if !ok {
		return
	}
	deleted, err := h.svc.Delete(c.Request.Context(), id, deleteRemote)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !deleted {
		response.NotFound(c, "video not found")
		return
	}
	response.NoContent(c)
}

// UploadURL handles POST /admin/courses/:id/videos/upload-url. Returns a pre-signed
// PUT for a private source object the import endpoint can later hand to the provider.
func (h *Handler) UploadURL(c *gin.Context) {
	if h.sources == nil {
		response.ServiceUnavailable(c, "source storage not configured")
		return
	}
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "lesson_id and filename required")
		return
	}
	if !storage.ValidateSourceType(req.ContentType, req.Filename) {
		response.BadRequest(c, "unsupported video type")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	key := storage.SourceKey(courseID.String(), req.LessonID, uuid.New().String(), storage.ExtensionFor(contentType, req.Filename))
	url, err := h.sources.PresignUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign source upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"source_key":   key,
		"content_type": contentType,
		"expires_in":   int(h.sources.PresignExpire().Seconds()),
	})
}

// UploadSource handles POST /admin/courses/:id/videos/source (multipart "file", "lesson_id")
// for clients that cannot PUT to S3 directly.
func (h *Handler) UploadSource(c *gin.Context) {
	if h.sources == nil {
		response.ServiceUnavailable(c, "source storage not configured")
		return
	}
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	lessonID := strings.TrimSpace(c.PostForm("lesson_id"))
	if lessonID == "" {
		response.BadRequest(c, "lesson_id required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file required")
		return
	}
	if fh.Size > storage.MaxSourceFileSize {
		response.BadRequest(c, "file too large")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if !storage.ValidateSourceType(contentType, fh.Filename) {
		response.BadRequest(c, "unsupported video type")
		return
	}
	if _, known := storage.AllowedSourceTypes[strings.ToLower(contentType)]; !known {
		contentType = storage.ContentTypeForFilename(fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer f.Close()

	key := storage.SourceKey(courseID.String(), lessonID, uuid.New().String(), storage.ExtensionFor(contentType, fh.Filename))
	if err := h.sources.Upload(c.Request.Context(), key, contentType, f, fh.Size); err != nil {
		h.logger.Error("source upload failed", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to store source")
		return
	}
	response.Created(c, gin.H{"source_key": key, "content_type": contentType, "size": fh.Size})
}

// Import handles POST /admin/courses/:id/videos/import. The provider copies the staged
// source, then the record is created. If the record cannot be created the remote
// asset is deleted again so no orphan is left at the provider.
func (h *Handler) Import(c *gin.Context) {
	if h.sources == nil {
		response.ServiceUnavailable(c, "source storage not configured")
		return
	}
	courseID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.IsSourceKey(courseID.String(), req.SourceKey) {
		response.BadRequest(c, "source_key does not belong to this course")
		return
	}
	ctx := c.Request.Context()

	existing, err := h.svc.GetByLesson(ctx, courseID, strings.TrimSpace(req.LessonID))
	if err != nil {
		response.Error(c, err)
		return
	}
	if existing != nil {
		response.Conflict(c, "lesson already has a video")
		return
	}
	found, err := h.sources.Exists(ctx, req.SourceKey)
	if err != nil {
		h.logger.Error("source lookup failed", zap.String("key", req.SourceKey), zap.Error(err))
		response.Internal(c, "failed to check source")
		return
	}
	if !found {
		response.NotFound(c, "source not uploaded")
		return
	}
	sourceURL, err := h.sources.PresignDownload(ctx, req.SourceKey)
	if err != nil {
		h.logger.Error("presign source download failed", zap.String("key", req.SourceKey), zap.Error(err))
		response.Internal(c, "failed to sign source")
		return
	}

	externalID, err := h.ingest.CopyFromURL(ctx, sourceURL, map[string]string{
		"name":      req.Title,
		"course_id": courseID.String(),
		"lesson_id": req.LessonID,
	})
	if err != nil {
		h.logger.Warn("provider import failed", zap.String("source_key", req.SourceKey), zap.Error(err))
		if !errors.Is(err, apperr.ErrExternalService) {
			err = apperr.Wrap(apperr.ErrExternalService, "import video", "", err)
		}
		response.Error(c, err)
		return
	}

	v, err := h.svc.Create(ctx, models.CreateVideoInput{
		CourseID:    courseID,
		LessonID:    req.LessonID,
		ExternalID:  externalID,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if delErr := h.ingest.DeleteVideo(context.WithoutCancel(ctx), externalID); delErr != nil {
			h.logger.Error("orphaned remote video after failed import",
				zap.String("external_id", externalID),
				zap.Error(delErr),
			)
		}
		response.Error(c, err)
		return
	}
	response.Created(c, v)
}
