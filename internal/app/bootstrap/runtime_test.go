package bootstrap

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, true); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	unreachable := &appconfig.Config{RedisAddr: "127.0.0.1:1"}
	if client := BuildRedisClient(context.Background(), unreachable, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client for unreachable redis")
	}
}

func TestBuildLockIndex(t *testing.T) {
	logger := logging.New("error")
	if _, ok := BuildLockIndex(nil, nil, logger).(*reservation.MemoryLockIndex); !ok {
		t.Fatalf("expected memory index without redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()
	index := BuildLockIndex(client, &appconfig.Config{LockIndexKey: "test:locks"}, logger)
	if _, ok := index.(*reservation.RedisLockIndex); !ok {
		t.Fatalf("expected redis index, got %T", index)
	}

	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	key := availability.Key{ProfessionalID: "pro-1", Date: "2024-06-03"}
	if err := index.Track(context.Background(), key, now.Add(time.Minute), now); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !mr.Exists("test:locks") {
		t.Fatalf("expected configured key to be used")
	}
}

func TestBuildStoresRequiresAWSConfig(t *testing.T) {
	if _, _, err := BuildStores(&appconfig.Config{}, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error without aws config")
	}
	if _, _, err := BuildStores(nil, nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
	a, b, err := BuildStores(&appconfig.Config{AvailabilityTable: "availability", BookingsTable: "bookings"}, &aws.Config{Region: "us-east-1"}, logging.New("error"))
	if err != nil || a == nil || b == nil {
		t.Fatalf("expected dynamodb stores, got %v", err)
	}
}

func TestBuildMediaStore(t *testing.T) {
	if store := BuildMediaStore(&appconfig.Config{}, &aws.Config{}, nil); store != nil {
		t.Fatalf("expected nil media store without bucket")
	}
	store := BuildMediaStore(&appconfig.Config{MediaBucket: "kalos-media"}, &aws.Config{Region: "us-east-1"}, logging.New("error"))
	if store == nil || !store.Enabled() {
		t.Fatalf("expected enabled media store")
	}
}

func TestBuildRuntimeInMemory(t *testing.T) {
	cfg := &appconfig.Config{
		UseMemoryStore:      true,
		LockTTL:             time.Minute,
		LockMaxAttempts:     3,
		LockBaseBackoff:     time.Millisecond,
		ReaperBatch:         10,
		ScheduleHorizonDays: 30,
	}
	rt, err := BuildRuntime(context.Background(), cfg, nil, prometheus.NewRegistry(), logging.New("error"))
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	defer rt.Close()

	if rt.Media != nil {
		t.Fatalf("expected media disabled")
	}
	if rt.Engine.LockTTL() != time.Minute {
		t.Fatalf("expected configured lock ttl, got %s", rt.Engine.LockTTL())
	}

	date := time.Now().UTC().AddDate(0, 0, 7).Format(availability.DateLayout)
	base := schedule.BaseSchedule{
		Start:              "09:00",
		End:                "12:00",
		GranularityMinutes: 60,
		WorkingDays:        []int{0, 1, 2, 3, 4, 5, 6},
	}
	if _, err := rt.Manager.GenerateAvailability(context.Background(), "pro-1", []string{date}, base); err != nil {
		t.Fatalf("generate: %v", err)
	}
	hold, err := rt.Engine.FindAndLock(context.Background(), "pro-1", date, 60)
	if err != nil {
		t.Fatalf("find and lock: %v", err)
	}
	if hold.Start != "09:00" {
		t.Fatalf("expected 09:00 hold, got %s", hold.Start)
	}
}
