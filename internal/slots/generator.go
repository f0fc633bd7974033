package slots

import (
	"errors"
	"fmt"
	"time"
)

// DefaultInterval is the spacing between two reservation start times.
const DefaultInterval = 30 * time.Minute

// ErrInvalidTimeFormat is returned for clock values that are not zero-padded 24h HH:MM.
var ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	hour, okHour := twoDigits(s[0], s[1])
	minute, okMinute := twoDigits(s[3], s[4])
	if !okHour || !okMinute || hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return hour*60 + minute, nil
}

// FormatClock converts minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GenerateTimeSlots returns the start times from start (inclusive) to end (exclusive),
// interval apart. A window with start >= end yields no slots.
func GenerateTimeSlots(start, end string, interval time.Duration) ([]string, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	startMin, err := ParseClock(start)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	endMin, err := ParseClock(end)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	step := int(interval / time.Minute)
	if step <= 0 {
		step = int(DefaultInterval / time.Minute)
	}

	result := make([]string, 0)
	for cursor := startMin; cursor < endMin; cursor += step {
		result = append(result, FormatClock(cursor))
	}
	return result, nil
}

// ValidWindow reports whether both ends parse and opening is strictly before closing.
func ValidWindow(opening, closing string) error {
	o, err := ParseClock(opening)
	if err != nil {
		return err
	}
	c, err := ParseClock(closing)
	if err != nil {
		return err
	}
	if o >= c {
		return fmt.Errorf("opening %s must be before closing %s", opening, closing)
	}
	return nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}
