// Package schedule expands a professional's recurring base schedule into the
// fixed-length slots of a single day.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

const (
	// DefaultGranularityMinutes is the slot length used when a schedule does not set one.
	DefaultGranularityMinutes = 60
	MinGranularityMinutes     = 5
	MaxGranularityMinutes     = 720
)

// ErrInvalidSchedule wraps every base schedule validation failure.
var ErrInvalidSchedule = errors.New("schedule: invalid base schedule")

// DefaultWorkingDays is Monday through Saturday (0=Sunday).
func DefaultWorkingDays() []int {
	return []int{1, 2, 3, 4, 5, 6}
}

// Break is a daily pause, e.g. lunch, during which no slot is offered.
type Break struct {
	Start string `dynamodbav:"start" json:"start"`
	End   string `dynamodbav:"end" json:"end"`
}

// BaseSchedule is the weekly template daily slots are generated from.
type BaseSchedule struct {
	Start              string `dynamodbav:"start" json:"start"`
	End                string `dynamodbav:"end" json:"end"`
	LunchBreak         *Break `dynamodbav:"lunchBreak,omitempty" json:"lunchBreak,omitempty"`
	GranularityMinutes int    `dynamodbav:"granularityMinutes" json:"granularityMinutes"`
	WorkingDays        []int  `dynamodbav:"workingDays" json:"workingDays"`
}

// WithDefaults fills the granularity and working days when unset.
func (b BaseSchedule) WithDefaults() BaseSchedule {
	if b.GranularityMinutes == 0 {
		b.GranularityMinutes = DefaultGranularityMinutes
	}
	if b.WorkingDays == nil {
		b.WorkingDays = DefaultWorkingDays()
	}
	if b.LunchBreak != nil && b.LunchBreak.Start == "" && b.LunchBreak.End == "" {
		b.LunchBreak = nil
	}
	return b
}

// Validate checks the schedule after defaults are applied.
func (b BaseSchedule) Validate() error {
	b = b.WithDefaults()

	start, err := timeofday.ToMinutes(b.Start)
	if err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidSchedule, err)
	}
	end, err := timeofday.ToMinutes(b.End)
	if err != nil {
		return fmt.Errorf("%w: end: %v", ErrInvalidSchedule, err)
	}
	if start > end {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidSchedule, b.Start, b.End)
	}
	if b.LunchBreak != nil {
		ls, err := timeofday.ToMinutes(b.LunchBreak.Start)
		if err != nil {
			return fmt.Errorf("%w: lunch start: %v", ErrInvalidSchedule, err)
		}
		le, err := timeofday.ToMinutes(b.LunchBreak.End)
		if err != nil {
			return fmt.Errorf("%w: lunch end: %v", ErrInvalidSchedule, err)
		}
		if ls >= le {
			return fmt.Errorf("%w: lunch break must end after it starts", ErrInvalidSchedule)
		}
	}
	if b.GranularityMinutes < MinGranularityMinutes || b.GranularityMinutes > MaxGranularityMinutes {
		return fmt.Errorf("%w: granularity %d outside %d..%d", ErrInvalidSchedule,
			b.GranularityMinutes, MinGranularityMinutes, MaxGranularityMinutes)
	}
	for _, d := range b.WorkingDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: working day %d outside 0..6", ErrInvalidSchedule, d)
		}
	}
	return nil
}

// IsWorkingDay reports whether dayOfWeek (0=Sunday) is listed in workingDays.
func IsWorkingDay(dayOfWeek int, workingDays []int) bool {
	for _, d := range workingDays {
		if d == dayOfWeek {
			return true
		}
	}
	return false
}

// DayOfWeek returns the 0=Sunday weekday of an ISO date.
func DayOfWeek(date time.Time) int {
	return int(date.Weekday())
}

// GenerateSlots lays fixed-length slots from start to end. A slot that
// intersects the lunch break at all is dropped rather than truncated, so a
// lunch break not aligned to the granularity removes more than its own length.
func GenerateSlots(base BaseSchedule) ([]Slot, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	base = base.WithDefaults()

	start := timeofday.MustMinutes(base.Start)
	end := timeofday.MustMinutes(base.End)
	step := base.GranularityMinutes

	lunchStart, lunchEnd := -1, -1
	if base.LunchBreak != nil {
		lunchStart = timeofday.MustMinutes(base.LunchBreak.Start)
		lunchEnd = timeofday.MustMinutes(base.LunchBreak.End)
	}

	slots := make([]Slot, 0, (end-start)/step)
	for t := start; t+step <= end; t += step {
		if lunchStart >= 0 && timeofday.Overlaps(t, t+step, lunchStart, lunchEnd) {
			continue
		}
		slots = append(slots, newSlot(t, t+step))
	}
	return slots, nil
}

func newSlot(start, end int) Slot {
	// end never exceeds the validated schedule end, so both conversions succeed.
	s, _ := timeofday.FromMinutes(start)
	e, _ := timeofday.FromMinutes(end)
	return Slot{Start: s, End: e, Available: true}
}
