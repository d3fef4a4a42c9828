package availability

import (
	"errors"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
)

var (
	// ErrRecordNotFound is returned when no record exists for a professional and date.
	ErrRecordNotFound = errors.New("availability: record not found")

	// ErrRecordExists is returned by Store.Create when the record is already present.
	ErrRecordExists = errors.New("availability: record already exists")

	// ErrConflict is returned when a conditional write lost a concurrent race.
	ErrConflict = errors.New("availability: concurrent modification")

	// ErrInvalidRequest covers missing identifiers and malformed arguments.
	ErrInvalidRequest = errors.New("availability: invalid request")

	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("availability: invalid date")

	// ErrInvalidException is returned for malformed exceptions or bad indexes.
	ErrInvalidException = errors.New("availability: invalid exception")

	// ErrInvalidDuration is returned when a service duration is not positive.
	ErrInvalidDuration = errors.New("availability: invalid service duration")

	// ErrOrphanedBookings is returned when a change would remove slots held by confirmed bookings.
	ErrOrphanedBookings = errors.New("availability: change would orphan confirmed bookings")
)

// IsValidation reports whether err stems from bad caller input rather than store state.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidException) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, schedule.ErrInvalidSchedule) ||
		errors.Is(err, timeofday.ErrFormat) ||
		errors.Is(err, timeofday.ErrRange)
}
