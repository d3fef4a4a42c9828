package reservation

import (
	"context"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
)

// Entry is a record due for reaping and the expiry it was indexed under.
type Entry struct {
	Key   availability.Key
	DueAt time.Time
}

// LockIndex tracks, per record, the earliest expiry among its slot locks so
// the reaper can visit only records that may hold stale locks.
type LockIndex interface {
	// Track records a new lock expiry for key. The stored expiry moves
	// earlier, or replaces one that is already due at now.
	Track(ctx context.Context, key availability.Key, expiresAt, now time.Time) error

	// Due lists up to limit records whose indexed expiry is at or before now,
	// earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Entry, error)

	// Settle finishes a reap of entry. When the index still holds entry.DueAt
	// it is replaced with next, or removed when next is nil. A concurrent
	// Track wins.
	Settle(ctx context.Context, entry Entry, next *time.Time) error
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
