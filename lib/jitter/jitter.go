// Package jitter provides randomized delays used to avoid predictable
// request timing against the upstream site.
package jitter

import (
	"context"
	"log/slog"
	"time"

	"github.com/mazen160/go-random"
)

// Duration picks a random duration in [min, max].
func Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	ms, err := random.IntRange(int(min.Milliseconds()), int(max.Milliseconds())+1)
	if err != nil {
		return min
	}
	return time.Duration(ms) * time.Millisecond
}

// Sleep blocks for a random duration in [min, max] or until the context
// is cancelled.
func Sleep(ctx context.Context, min, max time.Duration) {
	d := Duration(min, max)
	slog.DebugContext(ctx, "random delay", "wait", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
