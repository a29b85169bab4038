package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SchedulerConfig sets how often each periodic job runs. A zero interval disables that job.
type SchedulerConfig struct {
	ReconcileInterval     time.Duration
	RetryInterval         time.Duration
	StuckInterval         time.Duration
	StuckThresholdMinutes int
}

// Scheduler drives the reconciler, orchestrator and stuck detector on tickers.
type Scheduler struct {
	reconciler   *Reconciler
	orchestrator *Orchestrator
	detector     *StuckDetector
	cfg          SchedulerConfig
	logger       *zap.Logger
}

// NewScheduler creates a scheduler over the three engine components.
func NewScheduler(r *Reconciler, o *Orchestrator, d *StuckDetector, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{reconciler: r, orchestrator: o, detector: d, cfg: cfg, logger: logger}
}

// Run blocks until ctx is done. Each job runs on its own ticker and never
// overlaps with itself.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	start := func(name string, every time.Duration, fn func(context.Context)) {
		if every <= 0 {
			s.logger.Info("scheduled job disabled", zap.String("job", name))
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, every, fn)
		}()
	}
	start("reconcile", s.cfg.ReconcileInterval, s.runReconcile)
	start("retry_all", s.cfg.RetryInterval, s.runRetryAll)
	start("stuck", s.cfg.StuckInterval, s.runStuck)
	s.logger.Info("monitoring scheduler started")
	wg.Wait()
	s.logger.Info("monitoring scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Debug("scheduled job tick", zap.String("job", name))
			fn(ctx)
		}
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	if _, err := s.reconciler.ReconcileBatch(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled reconcile failed", zap.Error(err))
	}
}

func (s *Scheduler) runRetryAll(ctx context.Context) {
	if _, err := s.orchestrator.RetryAll(ctx, nil); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled retry-all failed", zap.Error(err))
	}
}

func (s *Scheduler) runStuck(ctx context.Context) {
	stuck, err := s.detector.FindStuck(ctx, s.cfg.StuckThresholdMinutes)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("stuck detection failed", zap.Error(err))
		}
		return
	}
	for _, v := range stuck {
		s.logger.Warn("video stuck",
			zap.String("video_id", v.ID.String()),
			zap.String("external_id", v.ExternalID),
			zap.String("status", string(v.Status)),
			zap.Int("progress", v.ProcessingProgress),
			zap.Time("updated_at", v.UpdatedAt),
		)
	}
}
