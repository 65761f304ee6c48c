// Package scheduler implements the Periodic Refresh Scheduler: a
// single cooperative loop that re-pulls the comprehensive portfolio
// snapshot on a fixed interval, pausing while an operator-driven
// interactive session is in flight. A failing cycle is logged and the
// loop continues; it never terminates on its own.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/asterdex/dn-arb-core/internal/orchestrator"
)

const defaultInterval = 30 * time.Second

// Refresher is the subset of *orchestrator.Orchestrator this package
// depends on.
type Refresher interface {
	GetComprehensivePortfolioData(ctx context.Context) (orchestrator.PortfolioSnapshot, error)
}

// Scheduler drives Refresher.GetComprehensivePortfolioData on a fixed
// cadence.
type Scheduler struct {
	refresh     Refresher
	interval    time.Duration
	log         *zap.Logger
	interactive atomic.Bool
}

// New builds a Scheduler with the default 30-second refresh interval.
// Pass interval=0 to keep the default.
func New(refresh Refresher, interval time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{refresh: refresh, interval: interval, log: log}
}

// SetInteractive marks (or clears) an operator-driven session in
// flight. It is sampled once at the top of each cycle; a cycle already
// underway when the flag flips runs to completion.
func (s *Scheduler) SetInteractive(active bool) {
	s.interactive.Store(active)
}

// Run blocks, refreshing every interval until ctx is cancelled. A
// refresh error is logged and the loop continues; it never exits
// except via ctx cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("refresh scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("refresh scheduler stopped")
			return
		case <-ticker.C:
			if s.interactive.Load() {
				s.log.Debug("refresh cycle skipped: interactive session in progress")
				continue
			}
			if _, err := s.refresh.GetComprehensivePortfolioData(ctx); err != nil {
				s.log.Warn("refresh cycle failed, continuing", zap.Error(err))
			}
		}
	}
}
