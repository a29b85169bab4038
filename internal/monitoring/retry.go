package monitoring

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/notify"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

// RetryConfig bounds the retry loop of one video.
type RetryConfig struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig is 3 attempts, 5s initial delay doubling up to 5 minutes.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 5 * time.Second,
		MaxDelay:     300 * time.Second,
		Multiplier:   2,
	}
}

// WithDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) WithDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// Delay is the wait before attempt n (1-based). The first attempt runs
// immediately; attempt n waits InitialDelay*Multiplier^(n-2), capped at MaxDelay.
func (c RetryConfig) Delay(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(n-2))
	if d >= float64(c.MaxDelay) || math.IsInf(d, 0) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Notifier receives the single terminal failure alert of a video.
type Notifier interface {
	SendTerminalFailure(ctx context.Context, f notify.TerminalFailure) error
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Retry     RetryConfig
	ItemDelay time.Duration

	// AdminBaseURL prefixes the deep link in alerts, e.g. https://admin.example.com.
	AdminBaseURL string
}

// Orchestrator retries videos in error until the provider reports them alive
// again or the attempt budget runs out.
type Orchestrator struct {
	videos    VideoService
	source    StatusSource
	attempts  AttemptStore
	notifier  Notifier
	courses   videos.CourseLookup
	clock     Clock
	cfg       RetryConfig
	itemDelay time.Duration
	adminURL  string
	logger    *zap.Logger
}

// NewOrchestrator creates a retry orchestrator. notifier and courses may be nil.
func NewOrchestrator(svc VideoService, source StatusSource, attempts AttemptStore, notifier Notifier, courses videos.CourseLookup, clock Clock, opts OrchestratorOptions, logger *zap.Logger) *Orchestrator {
	if attempts == nil {
		attempts = NewMemoryAttemptStore()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.ItemDelay <= 0 {
		opts.ItemDelay = DefaultItemDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		videos:    svc,
		source:    source,
		attempts:  attempts,
		notifier:  notifier,
		courses:   courses,
		clock:     clock,
		cfg:       opts.Retry.WithDefaults(),
		itemDelay: opts.ItemDelay,
		adminURL:  strings.TrimRight(opts.AdminBaseURL, "/"),
		logger:    logger,
	}
}

// Config returns the default retry configuration.
func (o *Orchestrator) Config() RetryConfig { return o.cfg }

// RetryVideo re-checks a failed video at the provider, sleeping between
// attempts. It returns true when the video was recovered to a live or ready
// status. Videos not in error are left alone and report false. override
// replaces the default configuration when non-nil.
func (o *Orchestrator) RetryVideo(ctx context.Context, id uuid.UUID, override *RetryConfig) (bool, error) {
	cfg := o.cfg
	if override != nil {
		cfg = override.WithDefaults()
	}
	v, err := o.videos.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if v == nil {
		return false, apperr.NotFound("retry video", "video "+id.String()+" does not exist")
	}
	if v.Status != models.VideoStatusError {
		o.logger.Debug("retry skipped, video not in error", zap.String("video_id", id.String()), zap.String("status", string(v.Status)))
		return false, nil
	}
	history, err := o.attempts.History(ctx, id)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrDatabase, "load retry history", id.String(), err)
	}

	// History may be capped, so numbering continues from the last attempt.
	start := 1
	if len(history) > 0 {
		start = history[len(history)-1].Attempt + 1
	}
	for n := start; ; n++ {
		if n > cfg.MaxRetries {
			o.exhausted(ctx, v, n)
			return false, nil
		}
		if err := o.clock.Sleep(ctx, cfg.Delay(n)); err != nil {
			return false, err
		}

		st, err := o.source.GetStatus(ctx, v.ExternalID)
		if err != nil {
			o.record(ctx, id, n, false, err.Error())
			o.logger.Warn("retry status check failed", zap.String("video_id", id.String()), zap.Int("attempt", n), zap.Error(err))
			continue
		}
		next := st.EffectiveStatus()
		if next == models.VideoStatusError {
			o.record(ctx, id, n, false, st.ErrorDetail())
			o.logger.Info("video still failing", zap.String("video_id", id.String()), zap.Int("attempt", n), zap.String("error", st.ErrorDetail()))
			continue
		}

		u := models.VideoUpdate{
			Status:             models.StatusPtr(next),
			ProcessingProgress: models.IntPtr(clampProgress(st.ProgressPercent)),
		}
		if next == models.VideoStatusReady {
			u.PlaybackHLS = models.StringPtr(st.PlaybackHLS)
			u.PlaybackDASH = models.StringPtr(st.PlaybackDASH)
			u.ThumbnailURL = models.StringPtr(st.ThumbnailURL)
			u.DurationSeconds = st.DurationSeconds
		}
		if _, err := o.videos.Update(ctx, id, u); err != nil {
			return false, err
		}
		o.record(ctx, id, n, true, "")
		if err := o.attempts.Clear(ctx, id); err != nil {
			o.logger.Warn("clear retry history failed", zap.String("video_id", id.String()), zap.Error(err))
		}
		o.logger.Info("video recovered", zap.String("video_id", id.String()), zap.Int("attempt", n), zap.String("status", string(next)))
		return true, nil
	}
}

// RetryAll retries every video in error, in the order they failed, and
// returns how many recovered. Per-video errors are logged and skipped.
func (o *Orchestrator) RetryAll(ctx context.Context, override *RetryConfig) (int, error) {
	list, err := o.videos.ListByStatus(ctx, []models.VideoStatus{models.VideoStatusError}, videos.SortByUpdated)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for i, v := range list {
		if i > 0 {
			if err := o.clock.Sleep(ctx, o.itemDelay); err != nil {
				return recovered, err
			}
		}
		ok, err := o.RetryVideo(ctx, v.ID, override)
		if err != nil {
			o.logger.Warn("retry failed", zap.String("video_id", v.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			recovered++
		}
	}
	o.logger.Info("retry-all finished", zap.Int("failed_videos", len(list)), zap.Int("recovered", recovered))
	return recovered, nil
}

// Attempts returns the retry history of a video.
func (o *Orchestrator) Attempts(ctx context.Context, id uuid.UUID) ([]models.RetryAttempt, error) {
	list, err := o.attempts.History(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDatabase, "load retry history", id.String(), err)
	}
	return list, nil
}

// Reset forgets the retry history of a video so it gets a fresh budget and alert.
func (o *Orchestrator) Reset(ctx context.Context, id uuid.UUID) error {
	if err := o.attempts.Clear(ctx, id); err != nil {
		return apperr.Wrap(apperr.ErrDatabase, "reset retry history", id.String(), err)
	}
	o.logger.Info("retry history reset", zap.String("video_id", id.String()))
	return nil
}

// Forget drops the retry history of a video that left the error status by any
// path, so a later failure starts with a fresh budget and alerts again. It is
// meant for videos.Service.OnLeaveError.
func (o *Orchestrator) Forget(ctx context.Context, v *models.Video) {
	if err := o.attempts.Clear(ctx, v.ID); err != nil {
		o.logger.Warn("clear retry history failed", zap.String("video_id", v.ID.String()), zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, id uuid.UUID, n int, success bool, detail string) {
	a := models.RetryAttempt{VideoID: id, Attempt: n, At: o.clock.Now(), Success: success, Error: detail}
	if err := o.attempts.Append(ctx, a); err != nil {
		o.logger.Warn("record retry attempt failed", zap.String("video_id", id.String()), zap.Error(err))
	}
}

// exhausted records the over-budget attempt and alerts once per video.
func (o *Orchestrator) exhausted(ctx context.Context, v *models.Video, n int) {
	o.record(ctx, v.ID, n, false, "max retries exceeded")
	first, err := o.attempts.MarkNotified(ctx, v.ID)
	if err != nil {
		o.logger.Warn("mark notified failed", zap.String("video_id", v.ID.String()), zap.Error(err))
		return
	}
	if !first {
		return
	}
	o.logger.Warn("video retries exhausted", zap.String("video_id", v.ID.String()), zap.String("external_id", v.ExternalID))
	if o.notifier == nil {
		return
	}
	f := notify.TerminalFailure{
		VideoID:    v.ID,
		VideoTitle: v.Title,
		ExternalID: v.ExternalID,
		ErrorCode:  models.Deref(v.ErrorCode),
		ErrorText:  models.Deref(v.ErrorMessage),
		UploadedAt: v.CreatedAt,
	}
	if o.adminURL != "" {
		f.AdminURL = o.adminURL + "/admin/videos/" + v.ID.String()
	}
	if o.courses != nil {
		if c, err := o.courses.GetByID(ctx, v.CourseID); err == nil && c != nil {
			f.CourseTitle = c.Title
		}
	}
	if err := o.notifier.SendTerminalFailure(ctx, f); err != nil {
		o.logger.Error("terminal failure notification failed", zap.String("video_id", v.ID.String()), zap.Error(err))
	}
}
