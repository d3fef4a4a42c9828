// Package availability owns the per-day availability records of every
// professional: generation from a base schedule, exceptions, range queries
// and the "which openings fit this service" query.
package availability

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

const (
	// DateLayout is the ISO 8601 calendar date used as the record sort key.
	DateLayout = time.DateOnly

	maxReasonLength = 500
)

// Exception overrides the base schedule on one date. All-day exceptions
// close the day; partial ones block the slots they intersect.
type Exception struct {
	AllDay bool   `dynamodbav:"allDay" json:"allDay"`
	Reason string `dynamodbav:"reason" json:"reason"`
	Start  string `dynamodbav:"start,omitempty" json:"start,omitempty"`
	End    string `dynamodbav:"end,omitempty" json:"end,omitempty"`
}

// Validate checks the exception shape.
func (e Exception) Validate() error {
	if len(e.Reason) > maxReasonLength {
		return fmt.Errorf("%w: reason longer than %d characters", ErrInvalidException, maxReasonLength)
	}
	if e.AllDay {
		return nil
	}
	start, err := timeofday.ToMinutes(e.Start)
	if err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidException, err)
	}
	end, err := timeofday.ToMinutes(e.End)
	if err != nil {
		return fmt.Errorf("%w: end: %v", ErrInvalidException, err)
	}
	if start >= end {
		return fmt.Errorf("%w: end must be after start", ErrInvalidException)
	}
	return nil
}

func (e Exception) blocks(slot schedule.Slot) bool {
	if e.AllDay {
		return true
	}
	es, err1 := timeofday.ToMinutes(e.Start)
	ee, err2 := timeofday.ToMinutes(e.End)
	ss, se, err3 := slot.Minutes()
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	return timeofday.Overlaps(ss, se, es, ee)
}

// Key identifies a record.
type Key struct {
	ProfessionalID string
	Date           string
}

func (k Key) String() string {
	return k.Date + ":" + k.ProfessionalID
}

// ParseKey reverses Key.String.
func ParseKey(s string) (Key, error) {
	if len(s) < len(DateLayout)+2 || s[len(DateLayout)] != ':' {
		return Key{}, fmt.Errorf("%w: malformed record key %q", ErrInvalidRequest, s)
	}
	return Key{Date: s[:len(DateLayout)], ProfessionalID: s[len(DateLayout)+1:]}, nil
}

// Record is the availability of one professional on one date.
type Record struct {
	ProfessionalID string                `dynamodbav:"professionalId" json:"professionalId"`
	Date           string                `dynamodbav:"date" json:"date"`
	DayOfWeek      int                   `dynamodbav:"dayOfWeek" json:"dayOfWeek"`
	BaseSchedule   schedule.BaseSchedule `dynamodbav:"baseSchedule" json:"baseSchedule"`
	IsWorkingDay   bool                  `dynamodbav:"isWorkingDay" json:"isWorkingDay"`
	TimeSlots      []schedule.Slot       `dynamodbav:"timeSlots" json:"timeSlots"`
	Exceptions     []Exception           `dynamodbav:"exceptions" json:"exceptions"`
	Version        int64                 `dynamodbav:"version" json:"version"`
	CreatedAt      time.Time             `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time             `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Key returns the record identity.
func (r *Record) Key() Key {
	return Key{ProfessionalID: r.ProfessionalID, Date: r.Date}
}

// Normalize replaces nil collections so records render as empty lists.
func (r *Record) Normalize() {
	if r.TimeSlots == nil {
		r.TimeSlots = []schedule.Slot{}
	}
	if r.Exceptions == nil {
		r.Exceptions = []Exception{}
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.BaseSchedule = cloneSchedule(r.BaseSchedule)
	out.TimeSlots = make([]schedule.Slot, len(r.TimeSlots))
	for i, s := range r.TimeSlots {
		if s.LockedUntil != nil {
			until := *s.LockedUntil
			s.LockedUntil = &until
		}
		out.TimeSlots[i] = s
	}
	out.Exceptions = append([]Exception{}, r.Exceptions...)
	return &out
}

// SlotIndex returns the index of the slot starting at start, or -1.
func (r *Record) SlotIndex(start string) int {
	for i, s := range r.TimeSlots {
		if s.Start == start {
			return i
		}
	}
	return -1
}

// EarliestLockExpiry returns the soonest expiry among locks still active at now.
func (r *Record) EarliestLockExpiry(now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, s := range r.TimeSlots {
		if !s.LockActive(now) {
			continue
		}
		if !found || s.LockedUntil.Before(earliest) {
			earliest = *s.LockedUntil
			found = true
		}
	}
	return earliest, found
}

func (r *Record) hasAllDayException() bool {
	for _, e := range r.Exceptions {
		if e.AllDay {
			return true
		}
	}
	return false
}

// applyPartialExceptions recomputes the available flag of every slot from the
// partial exceptions currently on the record. Blocked slots lose their lock.
func (r *Record) applyPartialExceptions() {
	for i := range r.TimeSlots {
		available := true
		for _, e := range r.Exceptions {
			if !e.AllDay && e.blocks(r.TimeSlots[i]) {
				available = false
				break
			}
		}
		r.TimeSlots[i].Available = available
		if !available {
			r.TimeSlots[i].Unlock()
		}
	}
}

func cloneSchedule(b schedule.BaseSchedule) schedule.BaseSchedule {
	if b.LunchBreak != nil {
		lunch := *b.LunchBreak
		b.LunchBreak = &lunch
	}
	if b.WorkingDays != nil {
		b.WorkingDays = append([]int{}, b.WorkingDays...)
	}
	return b
}

// ParseDate validates an ISO date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// DateRange enumerates the ISO dates from start to end inclusive.
func DateRange(start, end string) ([]string, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidDate, end, start)
	}
	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}
