package emaillogs

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-academy/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByVideo handles GET /admin/videos/:id/emails. Returns the failure alerts sent for the video.
func (h *Handler) ListByVideo(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	logs, err := h.repo.ListByVideo(c.Request.Context(), videoID)
	if err != nil {
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
