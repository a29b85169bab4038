package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/apperr"
)

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const videoColumns = `id, external_id, course_id, lesson_id, title, description, status, processing_progress,
	error_message, error_code, playback_hls, playback_dash, thumbnail_url, duration_seconds, metadata, created_at, updated_at`

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository handles course video persistence.
type Repository struct {
	db DBTX
}

// NewRepository creates a course video repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Insert creates a row and fills in ID, CreatedAt and UpdatedAt.
func (r *Repository) Insert(ctx context.Context, v *models.Video) error {
	meta, err := marshalMetadata(v.Metadata)
	if err != nil {
		return err
	}
	const q = `INSERT INTO course_videos (external_id, course_id, lesson_id, title, description, status, processing_progress, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err = r.db.QueryRow(ctx, q, v.ExternalID, v.CourseID, v.LessonID, v.Title, v.Description, string(v.Status), v.ProcessingProgress, meta).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return classify(err, "insert video")
	}
	return nil
}

// GetByID returns a video by ID, or nil when none exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE id = $1`
	return r.getOne(ctx, q, id)
}

// GetByLesson returns the video attached to a course lesson, or nil.
func (r *Repository) GetByLesson(ctx context.Context, courseID uuid.UUID, lessonID string) (*models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE course_id = $1 AND lesson_id = $2`
	return r.getOne(ctx, q, courseID, lessonID)
}

// GetByExternalID returns the video for a provider id, or nil.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE external_id = $1`
	return r.getOne(ctx, q, externalID)
}

// ListByCourse returns every video of a course, oldest first.
func (r *Repository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE course_id = $1 ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, courseID)
}

// ListByStatus returns videos in any of statuses, ascending by the given timestamp.
func (r *Repository) ListByStatus(ctx context.Context, statuses []models.VideoStatus, order SortOrder) ([]models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE status = ANY($1) ORDER BY ` + order.column() + ` ASC, id ASC`
	return r.list(ctx, q, statusStrings(statuses))
}

// ListStale returns videos in any of statuses last updated before cutoff, oldest update first.
func (r *Repository) ListStale(ctx context.Context, statuses []models.VideoStatus, cutoff time.Time) ([]models.Video, error) {
	q := `SELECT ` + videoColumns + ` FROM course_videos WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at ASC, id ASC`
	return r.list(ctx, q, statusStrings(statuses), cutoff)
}

// Update writes only the supplied columns and bumps updated_at. It reports whether a row matched.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u models.VideoUpdate) (bool, error) {
	q, args, err := buildUpdate(id, u)
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return false, classify(err, "update video")
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a video row. It reports whether a row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `DELETE FROM course_videos WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return false, classify(err, "delete video")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) getOne(ctx context.Context, q string, args ...any) (*models.Video, error) {
	v, err := scanVideo(r.db.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(err, "get video")
	}
	return v, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.Video, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "list videos")
	}
	defer rows.Close()
	var list []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, classify(err, "scan video")
		}
		list = append(list, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list videos")
	}
	return list, nil
}

func scanVideo(row pgx.Row) (*models.Video, error) {
	var (
		v      models.Video
		status string
		meta   []byte
	)
	err := row.Scan(&v.ID, &v.ExternalID, &v.CourseID, &v.LessonID, &v.Title, &v.Description, &status, &v.ProcessingProgress,
		&v.ErrorMessage, &v.ErrorCode, &v.PlaybackHLS, &v.PlaybackDASH, &v.ThumbnailURL, &v.DurationSeconds, &meta, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Status = models.VideoStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &v, nil
}

// buildUpdate renders an UPDATE touching only the columns set in u.
func buildUpdate(id uuid.UUID, u models.VideoUpdate) (string, []any, error) {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", nullIfEmpty(*u.Description))
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.ProcessingProgress != nil {
		set("processing_progress", *u.ProcessingProgress)
	}
	if u.ErrorMessage != nil {
		set("error_message", nullIfEmpty(*u.ErrorMessage))
	} else if u.ClearError {
		sets = append(sets, "error_message = NULL")
	}
	if u.ErrorCode != nil {
		set("error_code", nullIfEmpty(*u.ErrorCode))
	} else if u.ClearError {
		sets = append(sets, "error_code = NULL")
	}
	if u.PlaybackHLS != nil {
		set("playback_hls", nullIfEmpty(*u.PlaybackHLS))
	}
	if u.PlaybackDASH != nil {
		set("playback_dash", nullIfEmpty(*u.PlaybackDASH))
	}
	if u.ThumbnailURL != nil {
		set("thumbnail_url", nullIfEmpty(*u.ThumbnailURL))
	}
	if u.DurationSeconds != nil {
		set("duration_seconds", *u.DurationSeconds)
	}
	if u.Metadata != nil {
		meta, err := marshalMetadata(u.Metadata)
		if err != nil {
			return "", nil, err
		}
		args = append(args, meta)
		sets = append(sets, fmt.Sprintf("metadata = metadata || $%d::jsonb", len(args)))
	}
	if len(sets) == 0 {
		return "", nil, apperr.Invalid("update video", "no fields to update")
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	q := fmt.Sprintf("UPDATE course_videos SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return q, args, nil
}

func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.ErrConflict, op, uniqueMessage(pgErr.ConstraintName), err)
		case pgForeignKeyViolation:
			return apperr.Wrap(apperr.ErrNotFound, op, "course does not exist", err)
		}
	}
	return apperr.Wrap(apperr.ErrDatabase, op, "", err)
}

func uniqueMessage(constraint string) string {
	switch constraint {
	case "course_videos_external_id_key":
		return "external id already registered"
	case "course_videos_course_lesson_key":
		return "lesson already has a video"
	}
	return "duplicate video"
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidInput, "encode metadata", "", err)
	}
	return b, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func statusStrings(statuses []models.VideoStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
