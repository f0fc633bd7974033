package availability

import (
	"time"

	"tablebook/internal/model"
)

var defaultResolver = NewResolver()

// ParseDate validates a YYYY-MM-DD date on the local calendar.
func ParseDate(date string) (time.Time, error) {
	return defaultResolver.ParseDate(date)
}

// ResolveDayStatus resolves date with 30-minute slots on the local calendar.
func ResolveDayStatus(date string, weekly model.WeeklyTemplate, overrides model.Overrides) (model.ResolvedDayStatus, error) {
	return defaultResolver.ResolveDayStatus(date, weekly, overrides)
}

// IsDateClosed reports whether date is closed using the default resolver.
func IsDateClosed(date string, weekly model.WeeklyTemplate, overrides model.Overrides) (bool, error) {
	return defaultResolver.IsDateClosed(date, weekly, overrides)
}

// GetTimeSlots returns the slots for date using the default resolver.
func GetTimeSlots(date string, weekly model.WeeklyTemplate, overrides model.Overrides) ([]string, error) {
	return defaultResolver.GetTimeSlots(date, weekly, overrides)
}
