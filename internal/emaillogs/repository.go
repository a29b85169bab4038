package emaillogs

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

// Repository handles email_logs persistence.
type Repository struct {
	db videos.DBTX
}

// NewRepository creates an email logs repository.
func NewRepository(db videos.DBTX) *Repository {
	return &Repository{db: db}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Insert records a delivery attempt and fills in ID and CreatedAt.
func (r *Repository) Insert(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (video_id, email_type, recipient_email, subject, status, sent_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, q, el.VideoID, el.EmailType, el.RecipientEmail, nullIfEmpty(el.Subject), el.Status, el.SentAt, nullIfEmpty(el.ErrorMessage)).
		Scan(&el.ID, &el.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "insert email log", el.EmailType, err)
	}
	return nil
}

// ListByVideo returns email logs for a video, newest first.
func (r *Repository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, video_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE video_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, q, videoID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "list email logs", "", err)
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.VideoID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.ErrDatabase, "scan email log", "", err)
		}
		el.Subject = models.Deref(subject)
		el.ErrorMessage = models.Deref(errMsg)
		list = append(list, &el)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "list email logs", "", err)
	}
	return list, nil
}
