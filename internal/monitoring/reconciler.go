package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/provider"
	"github.com/aura-academy/backend/internal/videos"
	"github.com/aura-academy/backend/pkg/apperr"
)

// DefaultItemDelay spaces provider calls inside batch operations.
const DefaultItemDelay = time.Second

// VideoService is the part of the video record service the engine reads and writes through.
type VideoService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Video, error)
	Update(ctx context.Context, id uuid.UUID, u models.VideoUpdate) (*models.Video, error)
	ListByStatus(ctx context.Context, statuses []models.VideoStatus, order videos.SortOrder) ([]models.Video, error)
	ListStale(ctx context.Context, statuses []models.VideoStatus, cutoff time.Time) ([]models.Video, error)
}

// StatusSource reports the remote state of a transcoding job.
type StatusSource interface {
	GetStatus(ctx context.Context, externalID string) (*provider.Status, error)
}

// ProcessingStatus is the outcome of one reconciliation.
type ProcessingStatus struct {
	VideoID     uuid.UUID          `json:"video_id"`
	RemoteState string             `json:"remote_state"`
	Status      models.VideoStatus `json:"status"`
	Progress    int                `json:"processing_progress"`
	Changed     bool               `json:"changed"`
}

// Reconciler pulls remote job state and writes it locally when it differs.
type Reconciler struct {
	videos    VideoService
	source    StatusSource
	clock     Clock
	itemDelay time.Duration
	logger    *zap.Logger
}

// NewReconciler creates a status reconciler. itemDelay <= 0 uses DefaultItemDelay.
func NewReconciler(svc VideoService, source StatusSource, clock Clock, itemDelay time.Duration, logger *zap.Logger) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	if itemDelay <= 0 {
		itemDelay = DefaultItemDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{videos: svc, source: source, clock: clock, itemDelay: itemDelay, logger: logger}
}

// ReconcileOne refreshes a single video from the provider.
func (r *Reconciler) ReconcileOne(ctx context.Context, id uuid.UUID) (*ProcessingStatus, error) {
	v, err := r.videos.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.NotFound("reconcile video", "video "+id.String()+" does not exist")
	}
	st, err := r.source.GetStatus(ctx, v.ExternalID)
	if err != nil {
		if apperr.Kind(err) == nil {
			err = apperr.Wrap(apperr.ErrExternalService, "reconcile video", v.ExternalID, err)
		}
		return nil, err
	}

	result := &ProcessingStatus{
		VideoID:     v.ID,
		RemoteState: st.State.String(),
		Status:      v.Status,
		Progress:    v.ProcessingProgress,
	}
	u, changed := diffRemote(v, st)
	if !changed {
		return result, nil
	}
	updated, err := r.videos.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	r.logger.Info("video reconciled",
		zap.String("video_id", id.String()),
		zap.String("from", string(v.Status)),
		zap.String("to", string(updated.Status)),
		zap.Int("progress", updated.ProcessingProgress),
	)
	result.Status = updated.Status
	result.Progress = updated.ProcessingProgress
	result.Changed = true
	return result, nil
}

// ReconcileBatch reconciles every queued or in-progress video, oldest first.
// Per-item failures are logged and skipped. It returns how many were checked.
func (r *Reconciler) ReconcileBatch(ctx context.Context) (int, error) {
	list, err := r.videos.ListByStatus(ctx, models.LiveStatuses, videos.SortByCreated)
	if err != nil {
		return 0, err
	}
	checked := 0
	for i, v := range list {
		if i > 0 {
			if err := r.clock.Sleep(ctx, r.itemDelay); err != nil {
				return checked, err
			}
		}
		if _, err := r.ReconcileOne(ctx, v.ID); err != nil {
			r.logger.Warn("reconcile failed",
				zap.String("video_id", v.ID.String()),
				zap.String("external_id", v.ExternalID),
				zap.Error(err),
			)
			continue
		}
		checked++
	}
	r.logger.Info("reconcile batch finished", zap.Int("candidates", len(list)), zap.Int("checked", checked))
	return checked, nil
}

// diffRemote builds the update that brings v in line with st. It reports
// false when nothing differs or when the remote state would regress v.
func diffRemote(v *models.Video, st *provider.Status) (models.VideoUpdate, bool) {
	var u models.VideoUpdate
	u.Metadata = metadataChanges(v.Metadata, st.Meta)
	observed := st.EffectiveStatus()
	if !v.Status.CanTransition(observed) {
		// A regressing state is ignored, but provider metadata still refreshes.
		return u, u.Metadata != nil
	}
	changed := u.Metadata != nil
	if observed != v.Status {
		u.Status = models.StatusPtr(observed)
		changed = true
	}

	if observed != models.VideoStatusError {
		progress := clampProgress(st.ProgressPercent)
		// Within one live status a lower reading is stale; keep what we have.
		if observed == v.Status && observed.IsLive() && progress < v.ProcessingProgress {
			progress = v.ProcessingProgress
		}
		if progress != v.ProcessingProgress {
			u.ProcessingProgress = models.IntPtr(progress)
			changed = true
		}
	}

	switch observed {
	case models.VideoStatusReady:
		changed = setIfDiffers(&u.PlaybackHLS, v.PlaybackHLS, st.PlaybackHLS) || changed
		changed = setIfDiffers(&u.PlaybackDASH, v.PlaybackDASH, st.PlaybackDASH) || changed
		changed = setIfDiffers(&u.ThumbnailURL, v.ThumbnailURL, st.ThumbnailURL) || changed
		if st.DurationSeconds != nil && (v.DurationSeconds == nil || *v.DurationSeconds != *st.DurationSeconds) {
			d := *st.DurationSeconds
			u.DurationSeconds = &d
			changed = true
		}
	case models.VideoStatusError:
		msg := st.ErrorText
		if msg == "" {
			msg = st.ErrorDetail()
		}
		changed = setIfDiffers(&u.ErrorMessage, v.ErrorMessage, msg) || changed
		changed = setIfDiffers(&u.ErrorCode, v.ErrorCode, st.ErrorCode) || changed
	}
	return u, changed
}

// metadataChanges returns the remote keys whose values differ from the stored
// ones, or nil. The store merges them into the existing bag.
func metadataChanges(stored, remote map[string]any) map[string]any {
	var out map[string]any
	for k, rv := range remote {
		if sv, ok := stored[k]; ok && sameJSON(sv, rv) {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = rv
	}
	return out
}

// sameJSON compares values by their JSON encoding so 3 and 3.0 read back
// from jsonb compare equal.
func sameJSON(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func setIfDiffers(field **string, current *string, observed string) bool {
	if models.Deref(current) == observed {
		return false
	}
	*field = models.StringPtr(observed)
	return true
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
