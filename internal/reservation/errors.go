package reservation

import "errors"

var (
	// ErrNoSlotAvailable means no contiguous run of open slots fits the duration.
	ErrNoSlotAvailable = errors.New("reservation: no slot available")

	// ErrConflict means retries were exhausted under contention; the caller may retry later.
	ErrConflict = errors.New("reservation: contention, retry later")

	// ErrLockExpired means the hold no longer owns every slot it covered.
	ErrLockExpired = errors.New("reservation: lock expired")

	// ErrInvalidHold is returned for holds missing their identifiers or slots.
	ErrInvalidHold = errors.New("reservation: invalid hold")

	// errNoChange short-circuits an update that has nothing to write.
	errNoChange = errors.New("reservation: no change")
)
