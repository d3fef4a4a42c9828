// Package timeofday converts between "HH:MM" wall-clock strings and minute
// offsets from midnight. Values never roll over into the next day.
package timeofday

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MinutesPerDay bounds every offset handled by this package: valid values are 0..MinutesPerDay-1.
const MinutesPerDay = 24 * 60

var (
	// ErrFormat is returned for strings that are not a valid HH:MM time of day.
	ErrFormat = errors.New("timeofday: malformed time")
	// ErrRange is returned for offsets or durations outside a single day.
	ErrRange = errors.New("timeofday: out of range")
)

var clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// ToMinutes parses "H:MM" or "HH:MM" into minutes since midnight. Hours past
// 23 or minutes past 59 are malformed, not out of range.
func ToMinutes(t string) (int, error) {
	if !clockPattern.MatchString(t) {
		return 0, fmt.Errorf("%w: %q", ErrFormat, t)
	}
	hh, mm, _ := strings.Cut(t, ":")
	hours, _ := strconv.Atoi(hh)
	minutes, _ := strconv.Atoi(mm)
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrFormat, t)
	}
	return hours*60 + minutes, nil
}

// FromMinutes renders a minute offset as zero-padded "HH:MM".
func FromMinutes(m int) (string, error) {
	if m < 0 || m >= MinutesPerDay {
		return "", fmt.Errorf("%w: %d minutes", ErrRange, m)
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60), nil
}

// AddDuration returns start+minutes. The result must stay within the same day.
func AddDuration(start string, minutes int) (string, error) {
	if minutes < 0 {
		return "", fmt.Errorf("%w: negative duration %d", ErrRange, minutes)
	}
	base, err := ToMinutes(start)
	if err != nil {
		return "", err
	}
	return FromMinutes(base + minutes)
}

// MustMinutes is ToMinutes for values already validated by the caller.
func MustMinutes(t string) int {
	m, err := ToMinutes(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Overlaps reports whether half-open intervals [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
