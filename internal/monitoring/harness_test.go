package monitoring_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/testsupport"
	"github.com/aura-academy/backend/internal/videos"
)

var epoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type harness struct {
	store    *testsupport.MemoryStore
	svc      *videos.Service
	remote   *testsupport.FakeProvider
	clock    *testsupport.FakeClock
	notifier *testsupport.RecordingNotifier
	course   models.Course
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testsupport.NewFakeClock(epoch)
	course := models.Course{ID: uuid.New(), Title: "Distributed Systems", Slug: "distributed-systems"}
	store := testsupport.NewMemoryStore(clock.Now)
	remote := testsupport.NewFakeProvider()
	svc := videos.NewService(store, testsupport.NewCourses(course), remote, nil, videos.CacheConfig{}, nil)
	return &harness{
		store:    store,
		svc:      svc,
		remote:   remote,
		clock:    clock,
		notifier: &testsupport.RecordingNotifier{},
		course:   course,
	}
}

// seed stores a video directly. age sets both created_at and updated_at that far before the clock.
func (h *harness) seed(externalID string, status models.VideoStatus, age time.Duration, mutate func(*models.Video)) models.Video {
	at := h.clock.Now().Add(-age)
	v := models.Video{
		ID:         uuid.New(),
		ExternalID: externalID,
		CourseID:   h.course.ID,
		LessonID:   "lesson-" + externalID,
		Title:      "Video " + externalID,
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if mutate != nil {
		mutate(&v)
	}
	h.store.Put(v)
	return v
}
