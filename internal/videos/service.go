package videos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/apperr"
)

// SortOrder picks the timestamp a status listing is ordered by (always ascending).
type SortOrder int

const (
	SortByCreated SortOrder = iota
	SortByUpdated
)

func (o SortOrder) column() string {
	if o == SortByUpdated {
		return "updated_at"
	}
	return "created_at"
}

// Store is the durable video table. Lookups return (nil, nil) when nothing matches.
type Store interface {
	Insert(ctx context.Context, v *models.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Video, error)
	GetByLesson(ctx context.Context, courseID uuid.UUID, lessonID string) (*models.Video, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Video, error)
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]models.Video, error)
	ListByStatus(ctx context.Context, statuses []models.VideoStatus, order SortOrder) ([]models.Video, error)
	ListStale(ctx context.Context, statuses []models.VideoStatus, cutoff time.Time) ([]models.Video, error)
	Update(ctx context.Context, id uuid.UUID, u models.VideoUpdate) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// CourseLookup resolves courses. GetByID returns (nil, nil) for an unknown course.
type CourseLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Course, error)
}

// RemoteDeleter removes the provider-side asset of a video.
type RemoteDeleter interface {
	DeleteVideo(ctx context.Context, externalID string) error
}

// EventPublisher is notified after a write changes a video's status or progress.
type EventPublisher interface {
	PublishVideoStatus(ctx context.Context, v *models.Video) error
}

// Service is the only writer of course videos. Every write path invalidates
// the cache entries it can make stale; read paths are cache-first.
type Service struct {
	store   Store
	courses CourseLookup
	remote  RemoteDeleter
	cache   *readThrough
	events  EventPublisher
	onLeave []func(ctx context.Context, v *models.Video)
	logger  *zap.Logger
}

// NewService creates the video record service. cache may be nil (no caching).
func NewService(store Store, courses CourseLookup, remote RemoteDeleter, cache Cache, cacheCfg CacheConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		courses: courses,
		remote:  remote,
		cache:   newReadThrough(cache, cacheCfg, logger),
		logger:  logger,
	}
}

// SetEventPublisher sets the optional live status publisher.
func (s *Service) SetEventPublisher(p EventPublisher) { s.events = p }

// OnLeaveError registers fn to run after any update that moves a video out of
// the error status, whichever caller made it. Register before serving.
func (s *Service) OnLeaveError(fn func(ctx context.Context, v *models.Video)) {
	s.onLeave = append(s.onLeave, fn)
}

// Create registers an uploaded video as queued with zero progress.
func (s *Service) Create(ctx context.Context, in models.CreateVideoInput) (*models.Video, error) {
	in.LessonID = strings.TrimSpace(in.LessonID)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.CourseID == uuid.Nil:
		return nil, apperr.Invalid("create video", "course_id required")
	case in.LessonID == "":
		return nil, apperr.Invalid("create video", "lesson_id required")
	case in.ExternalID == "":
		return nil, apperr.Invalid("create video", "external_id required")
	case in.Title == "":
		return nil, apperr.Invalid("create video", "title required")
	}

	course, err := s.courses.GetByID(ctx, in.CourseID)
	if err != nil {
		return nil, storeErr("lookup course", err)
	}
	if course == nil {
		return nil, apperr.NotFound("create video", "course "+in.CourseID.String()+" does not exist")
	}

	existing, err := s.store.GetByExternalID(ctx, in.ExternalID)
	if err != nil {
		return nil, storeErr("lookup external id", err)
	}
	if existing != nil {
		return nil, apperr.Wrap(apperr.ErrConflict, "create video", "external id already registered", nil)
	}
	existing, err = s.store.GetByLesson(ctx, in.CourseID, in.LessonID)
	if err != nil {
		return nil, storeErr("lookup lesson", err)
	}
	if existing != nil {
		return nil, apperr.Wrap(apperr.ErrConflict, "create video", "lesson already has a video", nil)
	}

	v := &models.Video{
		ExternalID:         in.ExternalID,
		CourseID:           in.CourseID,
		LessonID:           in.LessonID,
		Title:              in.Title,
		Description:        in.Description,
		Status:             models.VideoStatusQueued,
		ProcessingProgress: 0,
		Metadata:           in.Metadata,
	}
	if err := s.store.Insert(ctx, v); err != nil {
		return nil, storeErr("insert video", err)
	}

	s.cache.put(ctx, s.cache.keys.video(v.ID), v)
	s.cache.invalidate(ctx, s.cache.keys.lesson(v.CourseID, v.LessonID), s.cache.keys.course(v.CourseID))
	s.publish(ctx, v)

	s.logger.Info("video registered",
		zap.String("video_id", v.ID.String()),
		zap.String("course_id", v.CourseID.String()),
		zap.String("lesson_id", v.LessonID),
		zap.String("external_id", v.ExternalID),
	)
	return v, nil
}

// Get returns a video by ID, or nil when none exists.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	v, _, err := cachedLoad(ctx, s.cache, s.cache.keys.video(id), func(ctx context.Context) (*models.Video, bool, error) {
		v, err := s.store.GetByID(ctx, id)
		return v, v != nil, err
	})
	if err != nil {
		return nil, storeErr("get video", err)
	}
	return v, nil
}

// GetByLesson returns the video attached to a course lesson, or nil.
func (s *Service) GetByLesson(ctx context.Context, courseID uuid.UUID, lessonID string) (*models.Video, error) {
	v, _, err := cachedLoad(ctx, s.cache, s.cache.keys.lesson(courseID, lessonID), func(ctx context.Context) (*models.Video, bool, error) {
		v, err := s.store.GetByLesson(ctx, courseID, lessonID)
		return v, v != nil, err
	})
	if err != nil {
		return nil, storeErr("get video by lesson", err)
	}
	return v, nil
}

// GetByExternalID resolves a provider id. It always reads the store.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*models.Video, error) {
	v, err := s.store.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, storeErr("get video by external id", err)
	}
	return v, nil
}

// ListByCourse returns a course's videos. The cache always holds the full
// list; includeNotReady=false filters to ready videos after the read.
func (s *Service) ListByCourse(ctx context.Context, courseID uuid.UUID, includeNotReady bool) ([]models.Video, error) {
	all, _, err := cachedLoad(ctx, s.cache, s.cache.keys.course(courseID), func(ctx context.Context) ([]models.Video, bool, error) {
		list, err := s.store.ListByCourse(ctx, courseID)
		if list == nil {
			list = []models.Video{}
		}
		return list, true, err
	})
	if err != nil {
		return nil, storeErr("list course videos", err)
	}
	if includeNotReady {
		return all, nil
	}
	ready := make([]models.Video, 0, len(all))
	for _, v := range all {
		if v.Status == models.VideoStatusReady {
			ready = append(ready, v)
		}
	}
	return ready, nil
}

// ListByStatus returns videos in any of statuses, read straight from the store.
func (s *Service) ListByStatus(ctx context.Context, statuses []models.VideoStatus, order SortOrder) ([]models.Video, error) {
	list, err := s.store.ListByStatus(ctx, statuses, order)
	if err != nil {
		return nil, storeErr("list videos by status", err)
	}
	return list, nil
}

// ListStale returns videos in any of statuses not updated since cutoff, oldest first.
func (s *Service) ListStale(ctx context.Context, statuses []models.VideoStatus, cutoff time.Time) ([]models.Video, error) {
	list, err := s.store.ListStale(ctx, statuses, cutoff)
	if err != nil {
		return nil, storeErr("list stale videos", err)
	}
	return list, nil
}

// Update writes only the supplied fields. Leaving the error status clears the
// stored error; status changes must follow the allowed transitions.
func (s *Service) Update(ctx context.Context, id uuid.UUID, u models.VideoUpdate) (*models.Video, error) {
	if u.IsEmpty() {
		return nil, apperr.Invalid("update video", "no fields to update")
	}
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load video", err)
	}
	if current == nil {
		return nil, apperr.NotFound("update video", "video "+id.String()+" does not exist")
	}
	if err := prepareUpdate(current, &u); err != nil {
		return nil, err
	}

	ok, err := s.store.Update(ctx, id, u)
	if err != nil {
		return nil, storeErr("update video", err)
	}
	if !ok {
		return nil, apperr.NotFound("update video", "video "+id.String()+" does not exist")
	}
	s.cache.invalidate(ctx, s.cache.videoKeys(current)...)

	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("reload video", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("update video", "video "+id.String()+" vanished after update")
	}
	if current.Status == models.VideoStatusError && updated.Status != models.VideoStatusError {
		for _, fn := range s.onLeave {
			fn(ctx, updated)
		}
	}
	if updated.Status != current.Status || updated.ProcessingProgress != current.ProcessingProgress {
		s.publish(ctx, updated)
	}
	s.logger.Debug("video updated",
		zap.String("video_id", id.String()),
		zap.String("status", string(updated.Status)),
		zap.Int("progress", updated.ProcessingProgress),
	)
	return updated, nil
}

// prepareUpdate validates u against the current row and adds implied changes.
func prepareUpdate(current *models.Video, u *models.VideoUpdate) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return apperr.Invalid("update video", "title cannot be empty")
	}
	if u.ProcessingProgress != nil && (*u.ProcessingProgress < 0 || *u.ProcessingProgress > 100) {
		return apperr.Invalid("update video", fmt.Sprintf("processing_progress %d out of range", *u.ProcessingProgress))
	}
	next := current.Status
	if u.Status != nil {
		if !u.Status.IsValid() {
			return apperr.Invalid("update video", fmt.Sprintf("unknown status %q", *u.Status))
		}
		if !current.Status.CanTransition(*u.Status) {
			return apperr.Invalid("update video", fmt.Sprintf("status %s cannot move to %s", current.Status, *u.Status))
		}
		next = *u.Status
	}
	if next != models.VideoStatusError {
		if models.Deref(u.ErrorMessage) != "" || models.Deref(u.ErrorCode) != "" {
			return apperr.Invalid("update video", "error details require status error")
		}
		if current.ErrorMessage != nil || current.ErrorCode != nil {
			u.ClearError = true
		}
	}
	if next != models.VideoStatusReady && hasPlaybackValue(u) {
		return apperr.Invalid("update video", "playback fields require status ready")
	}
	return nil
}

func hasPlaybackValue(u *models.VideoUpdate) bool {
	return models.Deref(u.PlaybackHLS) != "" || models.Deref(u.PlaybackDASH) != "" ||
		models.Deref(u.ThumbnailURL) != "" || u.DurationSeconds != nil
}

// Delete removes a video. With alsoDeleteRemote the provider asset is deleted
// first; if that fails the local row is kept and the error returned.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, alsoDeleteRemote bool) (bool, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, storeErr("load video", err)
	}
	if current == nil {
		return false, apperr.NotFound("delete video", "video "+id.String()+" does not exist")
	}
	if alsoDeleteRemote && s.remote != nil {
		if err := s.remote.DeleteVideo(ctx, current.ExternalID); err != nil {
			s.logger.Warn("remote delete failed, keeping local record",
				zap.String("video_id", id.String()),
				zap.String("external_id", current.ExternalID),
				zap.Error(err),
			)
			if apperr.Kind(err) == apperr.ErrExternalService {
				return false, err
			}
			return false, apperr.Wrap(apperr.ErrExternalService, "delete remote video", current.ExternalID, err)
		}
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, storeErr("delete video", err)
	}
	s.cache.invalidate(ctx, s.cache.videoKeys(current)...)
	s.logger.Info("video deleted",
		zap.String("video_id", id.String()),
		zap.String("external_id", current.ExternalID),
		zap.Bool("remote", alsoDeleteRemote),
	)
	return ok, nil
}

func (s *Service) publish(ctx context.Context, v *models.Video) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishVideoStatus(ctx, v); err != nil {
		s.logger.Warn("publish video status failed", zap.String("video_id", v.ID.String()), zap.Error(err))
	}
}

// storeErr tags untagged store errors as database errors.
func storeErr(op string, err error) error {
	if apperr.Kind(err) != nil {
		return err
	}
	return apperr.Wrap(apperr.ErrDatabase, op, "", err)
}
