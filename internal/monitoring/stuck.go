package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
)

// DefaultStuckThresholdMinutes is used when FindStuck gets a non-positive threshold.
const DefaultStuckThresholdMinutes = 60

// StuckDetector finds live jobs that stopped making progress.
type StuckDetector struct {
	videos VideoService
	clock  Clock
	logger *zap.Logger
}

// NewStuckDetector creates a stuck-job detector.
func NewStuckDetector(svc VideoService, clock Clock, logger *zap.Logger) *StuckDetector {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StuckDetector{videos: svc, clock: clock, logger: logger}
}

// FindStuck returns queued or in-progress videos not updated for
// thresholdMinutes, oldest update first. It never writes.
func (d *StuckDetector) FindStuck(ctx context.Context, thresholdMinutes int) ([]models.Video, error) {
	if thresholdMinutes <= 0 {
		thresholdMinutes = DefaultStuckThresholdMinutes
	}
	cutoff := d.clock.Now().Add(-time.Duration(thresholdMinutes) * time.Minute)
	list, err := d.videos.ListStale(ctx, models.LiveStatuses, cutoff)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Video{}
	}
	return list, nil
}
