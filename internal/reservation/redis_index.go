package reservation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// DefaultIndexKey is the sorted set holding record lock expiries.
const DefaultIndexKey = "kalos:reservation:lock-expiry"

var trackScript = redis.NewScript(`
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
local exp = tonumber(ARGV[2])
if (not cur) or tonumber(cur) > exp or tonumber(cur) <= tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
  return 1
end
return 0
`)

var settleScript = redis.NewScript(`
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
if (not cur) or tonumber(cur) ~= tonumber(ARGV[2]) then
  return 0
end
if ARGV[3] == '' then
  redis.call('ZREM', KEYS[1], ARGV[1])
else
  redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
end
return 1
`)

// RedisLockIndex keeps the index in a Redis sorted set scored by expiry in
// Unix milliseconds. Members are record keys.
type RedisLockIndex struct {
	redis  *redis.Client
	key    string
	logger *logging.Logger
}

var _ LockIndex = (*RedisLockIndex)(nil)

// NewRedisLockIndex wires the index to a client.
func NewRedisLockIndex(client *redis.Client, logger *logging.Logger) *RedisLockIndex {
	if client == nil {
		panic("reservation: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLockIndex{redis: client, key: DefaultIndexKey, logger: logger}
}

// WithKey overrides the sorted set name.
func (r *RedisLockIndex) WithKey(key string) *RedisLockIndex {
	if key != "" {
		r.key = key
	}
	return r
}

func (r *RedisLockIndex) Track(ctx context.Context, key availability.Key, expiresAt, now time.Time) error {
	err := trackScript.Run(ctx, r.redis, []string{r.key},
		key.String(),
		strconv.FormatInt(toMillis(expiresAt), 10),
		strconv.FormatInt(toMillis(now), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("reservation: track lock expiry: %w", err)
	}
	return nil
}

func (r *RedisLockIndex) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	members, err := r.redis.ZRangeByScoreWithScores(ctx, r.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(toMillis(now), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reservation: list due locks: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, z := range members {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		key, err := availability.ParseKey(member)
		if err != nil {
			r.logger.Warn("dropping malformed lock index member", "member", member, "error", err)
			r.redis.ZRem(ctx, r.key, member)
			continue
		}
		entries = append(entries, Entry{Key: key, DueAt: fromMillis(int64(z.Score))})
	}
	return entries, nil
}

func (r *RedisLockIndex) Settle(ctx context.Context, entry Entry, next *time.Time) error {
	nextArg := ""
	if next != nil {
		nextArg = strconv.FormatInt(toMillis(*next), 10)
	}
	err := settleScript.Run(ctx, r.redis, []string{r.key},
		entry.Key.String(),
		strconv.FormatInt(toMillis(entry.DueAt), 10),
		nextArg,
	).Err()
	if err != nil {
		return fmt.Errorf("reservation: settle lock expiry: %w", err)
	}
	return nil
}
