package reaperworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/kalos-marketplace/internal/reservation"
)

type fakeEngine struct {
	mu      sync.Mutex
	results []*reservation.ReapResult
	err     error
	calls   int
}

func (f *fakeEngine) ReapExpiredLocks(ctx context.Context, now time.Time) (*reservation.ReapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &reservation.ReapResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestReaperDrainsUntilEmpty(t *testing.T) {
	engine := &fakeEngine{results: []*reservation.ReapResult{
		{ReapedCount: 5, RecordsVisited: 2},
		{ReapedCount: 1, RecordsVisited: 1},
	}}
	NewReaper(engine, nil).drain(context.Background())
	assert.Equal(t, 3, engine.callCount())
}

func TestReaperBoundsPasses(t *testing.T) {
	results := make([]*reservation.ReapResult, 50)
	for i := range results {
		results[i] = &reservation.ReapResult{ReapedCount: 1}
	}
	engine := &fakeEngine{results: results}
	NewReaper(engine, nil).WithMaxPasses(4).drain(context.Background())
	assert.Equal(t, 4, engine.callCount())
}

func TestReaperHandlesErrors(t *testing.T) {
	engine := &fakeEngine{err: errors.New("boom")}
	NewReaper(engine, nil).drain(context.Background())
	assert.Equal(t, 1, engine.callCount())
}

func TestReaperRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := &fakeEngine{}
	reaper := NewReaper(engine, nil).WithInterval(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
	assert.GreaterOrEqual(t, engine.callCount(), 1)
}

func TestReaperDrainSumsPasses(t *testing.T) {
	engine := &fakeEngine{results: []*reservation.ReapResult{
		{ReapedCount: 4, RecordsVisited: 2},
		{ReapedCount: 1, RecordsVisited: 1},
	}}
	total, err := NewReaper(engine, nil).Drain(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, reservation.ReapResult{ReapedCount: 5, RecordsVisited: 3}, total)
}

func TestReaperDrainReturnsError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("redis down")}
	_, err := NewReaper(engine, nil).Drain(context.Background())
	assert.Error(t, err)
}
