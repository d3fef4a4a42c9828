package availability

import (
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

// Orphan describes a confirmed booking whose slots a change would remove.
type Orphan struct {
	Date      string `json:"date"`
	BookingID string `json:"bookingId"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// rebuild regenerates rec's slots from base, carrying bookings and active
// locks onto every new slot they overlap, and re-applies exceptions. It
// returns the bookings that no longer have a slot.
func rebuild(rec *Record, base schedule.BaseSchedule, now time.Time) ([]Orphan, error) {
	base = base.WithDefaults()
	day, err := ParseDate(rec.Date)
	if err != nil {
		return nil, err
	}
	rec.BaseSchedule = cloneSchedule(base)
	rec.DayOfWeek = schedule.DayOfWeek(day)

	fresh := []schedule.Slot{}
	if rec.hasAllDayException() {
		rec.IsWorkingDay = false
	} else {
		rec.IsWorkingDay = schedule.IsWorkingDay(rec.DayOfWeek, base.WorkingDays)
		if rec.IsWorkingDay {
			fresh, err = schedule.GenerateSlots(base)
			if err != nil {
				return nil, err
			}
		}
	}

	orphans := carryState(rec.Date, rec.TimeSlots, fresh, now)
	rec.TimeSlots = fresh
	rec.applyPartialExceptions()
	return orphans, nil
}

func carryState(date string, old, fresh []schedule.Slot, now time.Time) []Orphan {
	placed := make(map[string]bool)
	for i := range fresh {
		fs, fe, err := fresh[i].Minutes()
		if err != nil {
			continue
		}
		for _, prev := range old {
			if !prev.Booked() && !prev.LockActive(now) {
				continue
			}
			ps, pe, err := prev.Minutes()
			if err != nil || !timeofday.Overlaps(fs, fe, ps, pe) {
				continue
			}
			if prev.Booked() {
				if !fresh[i].Booked() {
					fresh[i].Unlock()
					fresh[i].BookingID = prev.BookingID
					placed[prev.BookingID] = true
				}
				continue
			}
			if !fresh[i].Booked() && !fresh[i].Locked {
				fresh[i].Lock(prev.LockID, *prev.LockedUntil)
			}
		}
	}
	return orphansOf(date, old, placed)
}

// orphansOf groups the booked slots of old whose booking is not in placed.
func orphansOf(date string, old []schedule.Slot, placed map[string]bool) []Orphan {
	var orphans []Orphan
	index := make(map[string]int)
	for _, s := range old {
		if !s.Booked() || placed[s.BookingID] {
			continue
		}
		if i, ok := index[s.BookingID]; ok {
			orphans[i].End = s.End
			continue
		}
		index[s.BookingID] = len(orphans)
		orphans = append(orphans, Orphan{Date: date, BookingID: s.BookingID, Start: s.Start, End: s.End})
	}
	return orphans
}
