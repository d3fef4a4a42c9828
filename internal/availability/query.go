package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

// Opening is a start time at which a service of DurationMinutes fits.
type Opening struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"durationMinutes"`
}

// Run is an opening plus the indexes of the slots that cover it.
type Run struct {
	Opening
	Slots []int
}

// FindRuns lists every opening for durationMinutes in slot order. A run must
// be made of back-to-back offerable slots; lunch gaps break it. Runs overlap
// when the duration spans several slots.
func FindRuns(rec *Record, durationMinutes int, now time.Time) ([]Run, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMinutes)
	}
	runs := []Run{}
	if rec == nil || !rec.IsWorkingDay {
		return runs, nil
	}

	slots := rec.TimeSlots
	for i := range slots {
		if !slots[i].Offerable(now) {
			continue
		}
		start, covered, err := slots[i].Minutes()
		if err != nil {
			return nil, fmt.Errorf("availability: corrupt slot %q: %w", slots[i].Start, err)
		}
		need := start + durationMinutes
		if need >= timeofday.MinutesPerDay {
			continue
		}

		indexes := []int{i}
		ok := true
		for j := i + 1; covered < need; j++ {
			if j >= len(slots) || !slots[j].Offerable(now) {
				ok = false
				break
			}
			next, end, err := slots[j].Minutes()
			if err != nil || next != covered {
				ok = false
				break
			}
			indexes = append(indexes, j)
			covered = end
		}
		if !ok {
			continue
		}

		end, err := timeofday.FromMinutes(need)
		if err != nil {
			continue
		}
		runs = append(runs, Run{
			Opening: Opening{Start: slots[i].Start, End: end, DurationMinutes: durationMinutes},
			Slots:   indexes,
		})
	}
	return runs, nil
}

// AvailableSlots returns the openings on rec for a service of durationMinutes.
func AvailableSlots(rec *Record, durationMinutes int, now time.Time) ([]Opening, error) {
	runs, err := FindRuns(rec, durationMinutes, now)
	if err != nil {
		return nil, err
	}
	openings := make([]Opening, 0, len(runs))
	for _, r := range runs {
		openings = append(openings, r.Opening)
	}
	return openings, nil
}

// Query answers availability questions against a Store.
type Query struct {
	store Store
	now   func() time.Time
}

// NewQuery builds a query over store.
func NewQuery(store Store) *Query {
	return &Query{store: store, now: time.Now}
}

// WithClock overrides the clock used for lock expiry.
func (q *Query) WithClock(now func() time.Time) *Query {
	if now != nil {
		q.now = now
	}
	return q
}

// GetAvailableSlots loads the record for date and lists its openings. A date
// without a record has no openings.
func (q *Query) GetAvailableSlots(ctx context.Context, professionalID, date string, durationMinutes int) ([]Opening, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMinutes)
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	rec, err := q.store.Get(ctx, professionalID, date)
	if errors.Is(err, ErrRecordNotFound) {
		return []Opening{}, nil
	}
	if err != nil {
		return nil, err
	}
	return AvailableSlots(rec, durationMinutes, q.now())
}
