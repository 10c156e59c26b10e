package exam

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically expires overdue attempts so timed exams close even
// when the student never comes back.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
	Batch    int
	Parallel int
	Log      zerolog.Logger
}

// Run blocks until ctx is cancelled. A non-positive Interval disables it.
func (sw *Sweeper) Run(ctx context.Context) {
	if sw.Interval <= 0 {
		return
	}
	t := time.NewTicker(sw.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	n, err := sw.Service.ExpireOverdue(ctx, sw.Batch, sw.Parallel)
	if err != nil && ctx.Err() == nil {
		sw.Log.Error().Err(err).Msg("expire overdue attempts")
		return
	}
	if n > 0 {
		sw.Log.Info().Int("expired", n).Msg("overdue attempts expired")
	}
}
