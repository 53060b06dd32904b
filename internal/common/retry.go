package common

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryConfig controls fixed-interval retry of transient errors, used by
// the MQTT trigger's bounded connect window.
type RetryConfig struct {
	// MaxElapsed bounds the total time spent retrying. Zero means retry
	// forever until ctx is cancelled.
	MaxElapsed time.Duration
	// Interval is the fixed wait between attempts.
	Interval time.Duration
}

// Retry calls fn repeatedly at cfg.Interval until fn succeeds, ctx is
// cancelled, or cfg.MaxElapsed has passed. It returns the last error seen,
// joined with ctx's error when ctx was cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}

	deadline := time.Time{}
	if cfg.MaxElapsed > 0 {
		deadline = time.Now().Add(cfg.MaxElapsed)
	}

	var lastErr error
	for {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return errors.Join(lastErr, ctx.Err())
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return lastErr
		}

		slog.Debug("retrying after transient error", "error", lastErr, "interval", cfg.Interval)

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return lastErr
		}
	}
}
