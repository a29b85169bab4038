// Package testsupport holds in-memory collaborators for engine and handler tests.
package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

// MemoryStore is an in-memory videos.Store with the same uniqueness rules as the table.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*models.Video
	now    func() time.Time
	writes int

	// Err, when set, is returned by every call.
	Err error
}

var _ videos.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store stamping rows with now (time.Now when nil).
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{rows: make(map[uuid.UUID]*models.Video), now: now}
}

// Writes counts successful inserts, updates and deletes.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Put stores v as-is, bypassing uniqueness checks. Used to seed fixtures.
func (s *MemoryStore) Put(v models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	s.rows[v.ID] = cloneVideo(&v)
}

func (s *MemoryStore) Insert(_ context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, row := range s.rows {
		if row.ExternalID == v.ExternalID {
			return apperr.Wrap(apperr.ErrConflict, "insert video", "external id already registered", nil)
		}
		if row.CourseID == v.CourseID && row.LessonID == v.LessonID {
			return apperr.Wrap(apperr.ErrConflict, "insert video", "lesson already has a video", nil)
		}
	}
	v.ID = uuid.New()
	v.CreatedAt = s.now()
	v.UpdatedAt = v.CreatedAt
	s.rows[v.ID] = cloneVideo(v)
	s.writes++
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	return s.find(func(v *models.Video) bool { return v.ID == id })
}

func (s *MemoryStore) GetByLesson(_ context.Context, courseID uuid.UUID, lessonID string) (*models.Video, error) {
	return s.find(func(v *models.Video) bool { return v.CourseID == courseID && v.LessonID == lessonID })
}

func (s *MemoryStore) GetByExternalID(_ context.Context, externalID string) (*models.Video, error) {
	return s.find(func(v *models.Video) bool { return v.ExternalID == externalID })
}

func (s *MemoryStore) ListByCourse(_ context.Context, courseID uuid.UUID) ([]models.Video, error) {
	return s.list(func(v *models.Video) bool { return v.CourseID == courseID }, videos.SortByCreated)
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses []models.VideoStatus, order videos.SortOrder) ([]models.Video, error) {
	return s.list(func(v *models.Video) bool { return hasStatus(statuses, v.Status) }, order)
}

func (s *MemoryStore) ListStale(_ context.Context, statuses []models.VideoStatus, cutoff time.Time) ([]models.Video, error) {
	return s.list(func(v *models.Video) bool {
		return hasStatus(statuses, v.Status) && v.UpdatedAt.Before(cutoff)
	}, videos.SortByUpdated)
}

func (s *MemoryStore) Update(_ context.Context, id uuid.UUID, u models.VideoUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	v, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	if u.Title != nil {
		v.Title = *u.Title
	}
	if u.Description != nil {
		v.Description = nullable(*u.Description)
	}
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.ProcessingProgress != nil {
		v.ProcessingProgress = *u.ProcessingProgress
	}
	switch {
	case u.ErrorMessage != nil:
		v.ErrorMessage = nullable(*u.ErrorMessage)
	case u.ClearError:
		v.ErrorMessage = nil
	}
	switch {
	case u.ErrorCode != nil:
		v.ErrorCode = nullable(*u.ErrorCode)
	case u.ClearError:
		v.ErrorCode = nil
	}
	if u.PlaybackHLS != nil {
		v.PlaybackHLS = nullable(*u.PlaybackHLS)
	}
	if u.PlaybackDASH != nil {
		v.PlaybackDASH = nullable(*u.PlaybackDASH)
	}
	if u.ThumbnailURL != nil {
		v.ThumbnailURL = nullable(*u.ThumbnailURL)
	}
	if u.DurationSeconds != nil {
		d := *u.DurationSeconds
		v.DurationSeconds = &d
	}
	if u.Metadata != nil {
		if v.Metadata == nil {
			v.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, val := range u.Metadata {
			v.Metadata[k] = val
		}
	}
	v.UpdatedAt = s.now()
	s.writes++
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if _, ok := s.rows[id]; !ok {
		return false, nil
	}
	delete(s.rows, id)
	s.writes++
	return true, nil
}

func (s *MemoryStore) find(match func(*models.Video) bool) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, v := range s.rows {
		if match(v) {
			return cloneVideo(v), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) list(match func(*models.Video) bool, order videos.SortOrder) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []models.Video
	for _, v := range s.rows {
		if match(v) {
			out = append(out, *cloneVideo(v))
		}
	}
	key := func(v models.Video) time.Time {
		if order == videos.SortByUpdated {
			return v.UpdatedAt
		}
		return v.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki.Equal(kj) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return ki.Before(kj)
	})
	return out, nil
}

func hasStatus(statuses []models.VideoStatus, s models.VideoStatus) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func cloneVideo(v *models.Video) *models.Video {
	c := *v
	if v.Metadata != nil {
		c.Metadata = make(map[string]any, len(v.Metadata))
		for k, val := range v.Metadata {
			c.Metadata[k] = val
		}
	}
	return &c
}
