package courses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

// Repository reads courses. Course authoring lives elsewhere.
type Repository struct {
	db videos.DBTX
}

// NewRepository creates a course repository.
func NewRepository(db videos.DBTX) *Repository {
	return &Repository{db: db}
}

// GetByID returns a course by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	const q = `SELECT id, title, slug FROM courses WHERE id = $1`
	var c models.Course
	err := r.db.QueryRow(ctx, q, id).Scan(&c.ID, &c.Title, &c.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.ErrDatabase, "get course", "", err)
	}
	return &c, nil
}
