package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	reaperworker "github.com/wolfman30/kalos-marketplace/internal/worker/reaper"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

type failingDrainer struct{}

func (failingDrainer) Drain(context.Context) (reservation.ReapResult, error) {
	return reservation.ReapResult{}, errors.New("redis down")
}

func TestHandleReapsExpiredHolds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	logger := logging.New("error")

	store := availability.NewMemoryStore()
	manager := availability.NewManager(store, logger, availability.WithClock(clock))
	base := schedule.BaseSchedule{Start: "09:00", End: "12:00", GranularityMinutes: 60, WorkingDays: []int{1}}
	_, err := manager.GenerateAvailability(ctx, "pro-1", []string{"2024-06-03"}, base)
	require.NoError(t, err)

	engine := reservation.NewEngine(store, nil, logger).WithClock(clock)
	_, err = engine.FindAndLock(ctx, "pro-1", "2024-06-03", 120)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	h := &handler{reaper: reaperworker.NewReaper(engine, logger), logger: logger}
	total, err := h.handle(ctx, events.CloudWatchEvent{ID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total.ReapedCount)
	assert.Equal(t, 1, total.RecordsVisited)
}

func TestHandleReturnsError(t *testing.T) {
	h := &handler{reaper: failingDrainer{}, logger: logging.New("error")}
	_, err := h.handle(context.Background(), events.CloudWatchEvent{})
	assert.Error(t, err)
}
