package monitoring

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/pkg/response"
)

const (
	maxWebhookBody = 1 << 20
	// DefaultSignatureTolerance rejects webhook signatures older than this.
	DefaultSignatureTolerance = 5 * time.Minute
)

// ExternalLookup resolves a provider id to the local record.
type ExternalLookup interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Video, error)
}

// WebhookHandler receives provider status callbacks. The body only says which
// video changed; the current state is always pulled through the reconciler.
type WebhookHandler struct {
	videos     ExternalLookup
	reconciler *Reconciler
	secret     string
	tolerance  time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables signature checks.
func NewWebhookHandler(videos ExternalLookup, r *Reconciler, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		videos:     videos,
		reconciler: r,
		secret:     secret,
		tolerance:  DefaultSignatureTolerance,
		now:        time.Now,
		logger:     logger,
	}
}

// StreamEvent handles POST /webhooks/stream.
func (h *WebhookHandler) StreamEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if h.secret != "" {
		if err := provider.VerifySignature(h.secret, c.GetHeader(provider.SignatureHeader), body, h.now(), h.tolerance); err != nil {
			h.logger.Warn("webhook signature rejected", zap.String("client_ip", c.ClientIP()), zap.Error(err))
			response.Unauthorized(c, "invalid signature")
			return
		}
	}

	externalID, hint, err := provider.ParseWebhook(body)
	if externalID == "" {
		response.BadRequest(c, "invalid webhook: "+err.Error())
		return
	}
	if err != nil {
		// unknown state names still identify the video; the pull decides
		h.logger.Debug("webhook state not understood", zap.String("external_id", externalID), zap.Error(err))
	}

	ctx := c.Request.Context()
	v, err := h.videos.GetByExternalID(ctx, externalID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if v == nil {
		h.logger.Info("webhook for unknown video ignored", zap.String("external_id", externalID))
		response.Accepted(c, gin.H{"ignored": true})
		return
	}

	st, err := h.reconciler.ReconcileOne(ctx, v.ID)
	if err != nil {
		h.logger.Warn("webhook reconcile failed", zap.String("video_id", v.ID.String()), zap.Error(err))
		response.Error(c, err)
		return
	}
	if hint != nil && hint.EffectiveStatus() != st.Status {
		h.logger.Debug("webhook hint differs from pulled state",
			zap.String("video_id", v.ID.String()),
			zap.String("hint", string(hint.EffectiveStatus())),
			zap.String("status", string(st.Status)),
		)
	}
	response.OK(c, st)
}
