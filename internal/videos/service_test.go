package videos_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/testsupport"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

type fixture struct {
	svc       *videos.Service
	store     *testsupport.MemoryStore
	remote    *testsupport.FakeProvider
	mr        *miniredis.Miniredis
	publisher *testsupport.RecordingPublisher
	course    models.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	course := models.Course{ID: uuid.New(), Title: "Go in Practice", Slug: "go-in-practice"}
	store := testsupport.NewMemoryStore(nil)
	remote := testsupport.NewFakeProvider()
	svc := videos.NewService(store, testsupport.NewCourses(course), remote, videos.NewRedisCache(client), videos.CacheConfig{TTL: time.Minute}, nil)
	pub := &testsupport.RecordingPublisher{}
	svc.SetEventPublisher(pub)
	return &fixture{svc: svc, store: store, remote: remote, mr: mr, publisher: pub, course: course}
}

func (f *fixture) create(t *testing.T, lesson, external string) *models.Video {
	t.Helper()
	v, err := f.svc.Create(context.Background(), models.CreateVideoInput{
		CourseID:   f.course.ID,
		LessonID:   lesson,
		ExternalID: external,
		Title:      "Lesson " + lesson,
	})
	require.NoError(t, err)
	return v
}

func TestCreateThenGet(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "L1", "X1")

	got, err := f.svc.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.VideoStatusQueued, got.Status)
	assert.Zero(t, got.ProcessingProgress)
	assert.Nil(t, got.PlaybackHLS)
	assert.Nil(t, got.PlaybackDASH)
	assert.Nil(t, got.ThumbnailURL)
	assert.Nil(t, got.DurationSeconds)
	assert.True(t, f.mr.Exists("cache:video:"+v.ID.String()))
	assert.Len(t, f.publisher.Events(), 1)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	base := models.CreateVideoInput{CourseID: f.course.ID, LessonID: "L1", ExternalID: "X1", Title: "t"}
	tests := []struct {
		name   string
		mutate func(*models.CreateVideoInput)
		want   error
	}{
		{"missing course", func(in *models.CreateVideoInput) { in.CourseID = uuid.Nil }, apperr.ErrInvalidInput},
		{"blank lesson", func(in *models.CreateVideoInput) { in.LessonID = "  " }, apperr.ErrInvalidInput},
		{"blank external", func(in *models.CreateVideoInput) { in.ExternalID = "" }, apperr.ErrInvalidInput},
		{"blank title", func(in *models.CreateVideoInput) { in.Title = "" }, apperr.ErrInvalidInput},
		{"unknown course", func(in *models.CreateVideoInput) { in.CourseID = uuid.New() }, apperr.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.svc.Create(context.Background(), in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, f.store.Writes())
}

func TestCreateConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "L1", "X1")

	_, err := f.svc.Create(context.Background(), models.CreateVideoInput{CourseID: f.course.ID, LessonID: "L1", ExternalID: "X2", Title: "dup lesson"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Create(context.Background(), models.CreateVideoInput{CourseID: f.course.ID, LessonID: "L2", ExternalID: "X1", Title: "dup external"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateInvalidatesCourseList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "L1", "X1")

	list, err := f.svc.ListByCourse(ctx, f.course.ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, f.mr.Exists("cache:videos:course:"+f.course.ID.String()))

	f.create(t, "L2", "X2")
	assert.False(t, f.mr.Exists("cache:videos:course:"+f.course.ID.String()))
	list, err = f.svc.ListByCourse(ctx, f.course.ID, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGetMissingIsNotAnError(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = f.svc.GetByLesson(context.Background(), f.course.ID, "nope")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestUpdateIsVisibleAfterCachedRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")

	// Warm every cache entry for the video.
	_, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	_, err = f.svc.GetByLesson(ctx, f.course.ID, "L1")
	require.NoError(t, err)
	_, err = f.svc.ListByCourse(ctx, f.course.ID, true)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{
		Status:             models.StatusPtr(models.VideoStatusInProgress),
		ProcessingProgress: models.IntPtr(55),
	})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusInProgress, got.Status)
	assert.Equal(t, 55, got.ProcessingProgress)

	byLesson, err := f.svc.GetByLesson(ctx, f.course.ID, "L1")
	require.NoError(t, err)
	assert.Equal(t, 55, byLesson.ProcessingProgress)

	list, err := f.svc.ListByCourse(ctx, f.course.ID, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.VideoStatusInProgress, list[0].Status)
}

func TestCachedReadSkipsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")

	f.store.Err = errors.New("store offline")
	got, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
}

func TestListByCourseFiltersAfterCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ready := f.create(t, "L1", "X1")
	f.create(t, "L2", "X2")
	_, err := f.svc.Update(ctx, ready.ID, models.VideoUpdate{
		Status:      models.StatusPtr(models.VideoStatusReady),
		PlaybackHLS: models.StringPtr("https://cdn.example/X1.m3u8"),
	})
	require.NoError(t, err)

	public, err := f.svc.ListByCourse(ctx, f.course.ID, false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, ready.ID, public[0].ID)

	all, err := f.svc.ListByCourse(ctx, f.course.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")

	_, err := f.svc.Update(ctx, v.ID, models.VideoUpdate{})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Update(ctx, uuid.New(), models.VideoUpdate{Title: models.StringPtr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{ProcessingProgress: models.IntPtr(101)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{PlaybackHLS: models.StringPtr("https://cdn.example/x.m3u8")})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "playback requires ready")

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{ErrorMessage: models.StringPtr("boom")})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "error details require error status")

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{Status: models.StatusPtr(models.VideoStatusReady)})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{Status: models.StatusPtr(models.VideoStatusQueued)})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput, "ready never regresses")

	got, err := f.svc.Update(ctx, v.ID, models.VideoUpdate{Title: models.StringPtr("Renamed")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.VideoStatusReady, got.Status)
}

func TestRecoveryFromErrorClearsMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")

	_, err := f.svc.Update(ctx, v.ID, models.VideoUpdate{
		Status:       models.StatusPtr(models.VideoStatusError),
		ErrorMessage: models.StringPtr("decode failed"),
		ErrorCode:    models.StringPtr("ERR_DECODE"),
	})
	require.NoError(t, err)

	got, err := f.svc.Update(ctx, v.ID, models.VideoUpdate{Status: models.StatusPtr(models.VideoStatusQueued)})
	require.NoError(t, err)
	assert.Equal(t, models.VideoStatusQueued, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.ErrorCode)
}

func TestUpdatePublishesOnlyStatusChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")

	_, err := f.svc.Update(ctx, v.ID, models.VideoUpdate{Title: models.StringPtr("New title")})
	require.NoError(t, err)
	assert.Len(t, f.publisher.Events(), 1)

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{ProcessingProgress: models.IntPtr(5)})
	require.NoError(t, err)
	events := f.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 5, events[1].ProcessingProgress)
}

func TestDeleteRemoteFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")
	_, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)

	ok, err := f.svc.Delete(ctx, v.ID, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"X1"}, f.remote.Deleted())
	assert.False(t, f.mr.Exists("cache:video:"+v.ID.String()))

	got, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteKeepsLocalWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")
	f.remote.DeleteErr = errors.New("provider unavailable")

	_, err := f.svc.Delete(ctx, v.ID, true)
	assert.ErrorIs(t, err, apperr.ErrExternalService)

	got, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestDeleteLocalOnly(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "L1", "X1")
	f.remote.DeleteErr = errors.New("must not be called")

	ok, err := f.svc.Delete(context.Background(), v.ID, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.remote.Deleted())
}

func TestDeleteMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Delete(context.Background(), uuid.New(), true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreErrorsAreDatabaseErrors(t *testing.T) {
	f := newFixture(t)
	f.store.Err = errors.New("connection reset")
	_, err := f.svc.ListByStatus(context.Background(), models.LiveStatuses, videos.SortByCreated)
	assert.ErrorIs(t, err, apperr.ErrDatabase)
}

func TestCacheOutageFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "L1", "X1")
	f.mr.Close()

	got, err := f.svc.Get(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = f.svc.Update(ctx, v.ID, models.VideoUpdate{Title: models.StringPtr("still works")})
	require.NoError(t, err)
}
