// Package monitoring keeps local video records in step with the remote
// transcoding provider: it reconciles live jobs, retries failed ones with
// bounded backoff and reports jobs that stopped making progress.
package monitoring

import (
	"context"
	"time"
)

// Clock supplies time and sleeping so backoff can be driven by tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
