// Package reaperworker runs the expired-lock reaper on a ticker.
package reaperworker

import (
	"context"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

type lockReaper interface {
	ReapExpiredLocks(ctx context.Context, now time.Time) (*reservation.ReapResult, error)
}

// Reaper periodically clears expired slot locks. While a pass keeps reaping
// it drains again before waiting for the next tick.
type Reaper struct {
	engine    lockReaper
	logger    *logging.Logger
	interval  time.Duration
	maxPasses int
	now       func() time.Time
}

func NewReaper(engine lockReaper, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reaper{
		engine:    engine,
		logger:    logger,
		interval:  30 * time.Second,
		maxPasses: 10,
		now:       time.Now,
	}
}

func (r *Reaper) WithInterval(d time.Duration) *Reaper {
	if d > 0 {
		r.interval = d
	}
	return r
}

// WithMaxPasses bounds how many back-to-back passes one tick may run.
func (r *Reaper) WithMaxPasses(n int) *Reaper {
	if n > 0 {
		r.maxPasses = n
	}
	return r
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// Drain runs passes until one reaps nothing or the pass bound is hit, and
// returns the combined result.
func (r *Reaper) Drain(ctx context.Context) (reservation.ReapResult, error) {
	total := reservation.ReapResult{}
	if r.engine == nil {
		return total, nil
	}
	for pass := 0; pass < r.maxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := r.engine.ReapExpiredLocks(ctx, r.now())
		if err != nil {
			return total, err
		}
		if res == nil || res.ReapedCount == 0 {
			return total, nil
		}
		total.ReapedCount += res.ReapedCount
		total.RecordsVisited += res.RecordsVisited
		r.logger.Debug("lock reap pass", "pass", pass+1, "reaped", res.ReapedCount, "records", res.RecordsVisited)
	}
	return total, nil
}

func (r *Reaper) drain(ctx context.Context) {
	if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("lock reap failed", "error", err)
	}
}
