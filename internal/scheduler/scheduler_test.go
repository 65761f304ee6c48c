package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/asterdex/dn-arb-core/internal/orchestrator"
)

type fakeRefresher struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRefresher) GetComprehensivePortfolioData(ctx context.Context) (orchestrator.PortfolioSnapshot, error) {
	f.calls.Add(1)
	return orchestrator.PortfolioSnapshot{}, f.err
}

func TestRunRefreshesOnEveryTick(t *testing.T) {
	refresher := &fakeRefresher{}
	s := New(refresher, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, refresher.calls.Load(), int32(3))
}

func TestRunSkipsCyclesWhileInteractive(t *testing.T) {
	refresher := &fakeRefresher{}
	s := New(refresher, 10*time.Millisecond, nil)
	s.SetInteractive(true)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestRunContinuesAfterRefreshError(t *testing.T) {
	refresher := &fakeRefresher{err: assert.AnError}
	s := New(refresher, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, refresher.calls.Load(), int32(3))
}

func TestNewDefaultsIntervalWhenNonPositive(t *testing.T) {
	s := New(&fakeRefresher{}, 0, nil)
	assert.Equal(t, defaultInterval, s.interval)
}
