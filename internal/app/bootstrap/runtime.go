package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/bookings"
	appconfig "github.com/wolfman30/kalos-marketplace/internal/config"
	"github.com/wolfman30/kalos-marketplace/internal/media"
	"github.com/wolfman30/kalos-marketplace/internal/observability/metrics"
	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// Runtime is the wired service graph shared by the API server and the reaper lambda.
type Runtime struct {
	AvailabilityStore availability.Store
	BookingsStore     bookings.Store
	Manager           *availability.Manager
	Query             *availability.Query
	Engine            *reservation.Engine
	Bookings          *bookings.Service
	Media             *media.Store
	Redis             *redis.Client
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLockIndex prefers the shared Redis index. Without Redis, expiry
// tracking stays in process and a reaper only sees locks taken locally.
func BuildLockIndex(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) reservation.LockIndex {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient == nil {
		logger.Warn("redis not configured; lock expiry index is process-local")
		return reservation.NewMemoryLockIndex()
	}
	index := reservation.NewRedisLockIndex(redisClient, logger)
	if cfg != nil && strings.TrimSpace(cfg.LockIndexKey) != "" {
		index = index.WithKey(cfg.LockIndexKey)
	}
	return index
}

// BuildStores returns the DynamoDB-backed stores, or in-memory ones when
// cfg.UseMemoryStore is set.
func BuildStores(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (availability.Store, bookings.Store, error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory stores; data is lost on restart")
		return availability.NewMemoryStore(), bookings.NewMemoryRepository(), nil
	}
	if awsCfg == nil {
		return nil, nil, errors.New("bootstrap: aws config required for dynamodb stores")
	}
	client := dynamodb.NewFromConfig(*awsCfg)
	return availability.NewDynamoStore(client, cfg.AvailabilityTable, logger),
		bookings.NewRepository(client, cfg.BookingsTable),
		nil
}

// BuildMediaStore returns the S3 media store, or nil when no bucket is configured.
func BuildMediaStore(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *media.Store {
	if cfg == nil || strings.TrimSpace(cfg.MediaBucket) == "" || awsCfg == nil {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		// LocalStack and MinIO serve buckets by path.
		o.UsePathStyle = cfg.Endpoint("s3") != ""
	})
	return media.NewStore(client, cfg.MediaBucket, cfg.MediaBaseURL, logger)
}

// BuildRuntime wires stores, the lock index and the domain services.
// awsCfg may be nil when cfg.UseMemoryStore is set.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, reg prometheus.Registerer, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	availStore, bookingStore, err := BuildStores(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	index := BuildLockIndex(redisClient, cfg, logger)

	engine := reservation.NewEngine(availStore, index, logger.Component("reservation")).
		WithLockTTL(cfg.LockTTL).
		WithMaxAttempts(cfg.LockMaxAttempts).
		WithBackoff(cfg.LockBaseBackoff).
		WithReapBatch(cfg.ReaperBatch)
	if reg != nil {
		engine = engine.WithMetrics(metrics.NewReservationMetrics(reg))
	}

	manager := availability.NewManager(availStore, logger.Component("availability"),
		availability.WithLocation(cfg.Location()),
		availability.WithHorizonDays(cfg.ScheduleHorizonDays),
	)

	return &Runtime{
		AvailabilityStore: availStore,
		BookingsStore:     bookingStore,
		Manager:           manager,
		Query:             availability.NewQuery(availStore),
		Engine:            engine,
		Bookings:          bookings.NewService(bookingStore, engine, logger.Component("bookings")),
		Media:             BuildMediaStore(cfg, awsCfg, logger),
		Redis:             redisClient,
	}, nil
}

// Close releases the runtime's network clients.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Redis == nil {
		return nil
	}
	return rt.Redis.Close()
}
