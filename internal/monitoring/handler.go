package monitoring

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/middleware"
	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/queue"
	"github.com/aura-academy/backend/pkg/response"
)

// RetryEnqueuer hands manual retries to the worker.
type RetryEnqueuer interface {
	EnqueueVideoRetry(ctx context.Context, p queue.VideoRetryPayload) (string, error)
}

// Handler serves the admin reconcile, retry and stuck-job endpoints.
type Handler struct {
	videos       VideoService
	reconciler   *Reconciler
	orchestrator *Orchestrator
	detector     *StuckDetector
	jobs         RetryEnqueuer
	logger       *zap.Logger
}

// NewHandler creates a monitoring handler. With a nil jobs queue every retry runs inline.
func NewHandler(svc VideoService, r *Reconciler, o *Orchestrator, d *StuckDetector, jobs RetryEnqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{videos: svc, reconciler: r, orchestrator: o, detector: d, jobs: jobs, logger: logger}
}

func videoID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return uuid.Nil, false
	}
	return id, true
}

// Reconcile handles POST /admin/videos/:id/reconcile.
func (h *Handler) Reconcile(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	st, err := h.reconciler.ReconcileOne(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}

// ReconcileAll handles POST /admin/videos/reconcile.
func (h *Handler) ReconcileAll(c *gin.Context) {
	checked, err := h.reconciler.ReconcileBatch(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"checked": checked})
}

// Retry handles POST /admin/videos/:id/retry. The retry normally runs on the
// worker so backoff sleeps never hold the request; ?sync=true runs it inline.
func (h *Handler) Retry(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	inline, err := strconv.ParseBool(c.DefaultQuery("sync", "false"))
	if err != nil {
		response.BadRequest(c, "invalid sync")
		return
	}
	ctx := c.Request.Context()

	v, err := h.videos.Get(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if v == nil {
		response.NotFound(c, "video not found")
		return
	}
	if v.Status != models.VideoStatusError {
		response.Conflict(c, "video is not in error state")
		return
	}

	if inline || h.jobs == nil {
		recovered, err := h.orchestrator.RetryVideo(ctx, id, nil)
		if err != nil {
			response.Error(c, err)
			return
		}
		attempts, _ := h.orchestrator.Attempts(ctx, id)
		response.OK(c, gin.H{"recovered": recovered, "attempts": attempts})
		return
	}

	requestedBy := ""
	if uid, ok := c.Get(middleware.ContextUserID); ok {
		if u, ok := uid.(uuid.UUID); ok {
			requestedBy = u.String()
		}
	}
	jobID, err := h.jobs.EnqueueVideoRetry(ctx, queue.VideoRetryPayload{VideoID: id, RequestedBy: requestedBy})
	if err != nil {
		h.logger.Error("enqueue video retry failed", zap.String("video_id", id.String()), zap.Error(err))
		response.ServiceUnavailable(c, "retry queue unavailable")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID, "video_id": id})
}

// RetryAll handles POST /admin/videos/retry-all. Runs inline and reports how many recovered.
func (h *Handler) RetryAll(c *gin.Context) {
	recovered, err := h.orchestrator.RetryAll(c.Request.Context(), nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"recovered": recovered})
}

// Attempts handles GET /admin/videos/:id/retry-attempts.
func (h *Handler) Attempts(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	attempts, err := h.orchestrator.Attempts(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"attempts": attempts, "max_retries": h.orchestrator.Config().MaxRetries})
}

// ResetAttempts handles DELETE /admin/videos/:id/retry-attempts, giving the video a fresh retry budget.
func (h *Handler) ResetAttempts(c *gin.Context) {
	id, ok := videoID(c)
	if !ok {
		return
	}
	if err := h.orchestrator.Reset(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stuck handles GET /admin/videos/stuck?threshold_minutes=60.
func (h *Handler) Stuck(c *gin.Context) {
	threshold := DefaultStuckThresholdMinutes
	if raw := c.Query("threshold_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "threshold_minutes must be a positive integer")
			return
		}
		threshold = n
	}
	list, err := h.detector.FindStuck(c.Request.Context(), threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"threshold_minutes": threshold, "videos": list})
}
