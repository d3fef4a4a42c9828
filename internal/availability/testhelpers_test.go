package availability

import (
	"time"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
)

const (
	monday = "2024-06-03"
	sunday = "2024-06-09"
)

var fixedNow = time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)

func standardSchedule() schedule.BaseSchedule {
	return schedule.BaseSchedule{
		Start:              "09:00",
		End:                "18:00",
		LunchBreak:         &schedule.Break{Start: "13:00", End: "14:00"},
		GranularityMinutes: 60,
		WorkingDays:        []int{1, 2, 3, 4, 5, 6},
	}
}

func slotStarts(rec *Record) []string {
	starts := make([]string, 0, len(rec.TimeSlots))
	for _, s := range rec.TimeSlots {
		starts = append(starts, s.Start)
	}
	return starts
}

func openingStarts(openings []Opening) []string {
	starts := make([]string, 0, len(openings))
	for _, o := range openings {
		starts = append(starts, o.Start)
	}
	return starts
}
