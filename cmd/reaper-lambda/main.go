package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/kalos-marketplace/cmd/mainconfig"
	"github.com/wolfman30/kalos-marketplace/internal/app/bootstrap"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	reaperworker "github.com/wolfman30/kalos-marketplace/internal/worker/reaper"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

type drainer interface {
	Drain(ctx context.Context) (reservation.ReapResult, error)
}

// handler drains expired locks once per scheduled EventBridge invocation.
type handler struct {
	reaper drainer
	logger *logging.Logger
}

func (h *handler) handle(ctx context.Context, evt events.CloudWatchEvent) (reservation.ReapResult, error) {
	total, err := h.reaper.Drain(ctx)
	if err != nil {
		h.logger.Error("scheduled reap failed", "error", err, "event_id", evt.ID, "reaped", total.ReapedCount)
		return total, err
	}
	h.logger.Info("scheduled reap finished", "event_id", evt.ID, "reaped", total.ReapedCount, "records", total.RecordsVisited)
	return total, nil
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	rt, err := bootstrap.BuildRuntime(ctx, cfg, &awsCfg, nil, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	if rt.Redis == nil {
		// Without the shared index this process would only see its own locks.
		logger.Error("reaper lambda requires REDIS_ADDR")
		os.Exit(1)
	}

	h := &handler{
		reaper: reaperworker.NewReaper(rt.Engine, logger.Component("reaper")),
		logger: logger,
	}
	lambda.Start(h.handle)
}
