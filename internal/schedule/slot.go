package schedule

import (
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

// Slot is one bookable interval embedded in a daily availability record.
type Slot struct {
	Start       string     `dynamodbav:"start" json:"start"`
	End         string     `dynamodbav:"end" json:"end"`
	Available   bool       `dynamodbav:"available" json:"available"`
	Locked      bool       `dynamodbav:"locked" json:"locked"`
	LockedUntil *time.Time `dynamodbav:"lockedUntil" json:"lockedUntil"`
	LockID      string     `dynamodbav:"lockId,omitempty" json:"lockId,omitempty"`
	BookingID   string     `dynamodbav:"bookingId,omitempty" json:"bookingId,omitempty"`
}

// LockActive reports whether a pending hold still owns the slot. The locked
// flag alone is never trusted: an expired lock is released even before the
// reaper clears it.
func (s Slot) LockActive(now time.Time) bool {
	return s.Locked && s.LockedUntil != nil && s.LockedUntil.After(now)
}

// Booked reports whether a confirmed booking occupies the slot.
func (s Slot) Booked() bool {
	return s.BookingID != ""
}

// Offerable reports whether the slot may be handed to a new booking search.
func (s Slot) Offerable(now time.Time) bool {
	return !s.Booked() && s.Available && !s.LockActive(now)
}

// HeldBy reports whether the slot is still locked by the given hold at now.
func (s Slot) HeldBy(lockID string, now time.Time) bool {
	return lockID != "" && s.LockID == lockID && s.LockActive(now)
}

// Lock places a hold on the slot until the given instant.
func (s *Slot) Lock(lockID string, until time.Time) {
	u := until.UTC()
	s.Locked = true
	s.LockedUntil = &u
	s.LockID = lockID
}

// Unlock clears every lock field.
func (s *Slot) Unlock() {
	s.Locked = false
	s.LockedUntil = nil
	s.LockID = ""
}

// LockExpired reports a physically present lock whose expiry has passed.
func (s Slot) LockExpired(now time.Time) bool {
	return s.Locked && !s.LockActive(now)
}

// Minutes returns the slot bounds as minute offsets.
func (s Slot) Minutes() (start, end int, err error) {
	if start, err = timeofday.ToMinutes(s.Start); err != nil {
		return 0, 0, err
	}
	if end, err = timeofday.ToMinutes(s.End); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
