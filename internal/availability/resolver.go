// Package availability resolves whether the restaurant is open on a date and which
// reservation slots exist, from a weekly template and per-date overrides.
package availability

import (
	"errors"
	"fmt"
	"time"

	"tablebook/internal/model"
	"tablebook/internal/slots"
)

var (
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrMalformedOverride = errors.New("malformed date override")
	ErrInvalidTimeFormat = slots.ErrInvalidTimeFormat
)

// WeeklyClosedReason is reported for dates closed by the weekly template.
const WeeklyClosedReason = "closed per weekly schedule"

// Resolver answers availability queries. It holds only options, so one value can be
// shared by any number of goroutines.
type Resolver struct {
	interval time.Duration
	loc      *time.Location
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInterval sets the spacing between slots. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLocation sets the calendar used to derive the weekday of a date.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewResolver creates a resolver with 30-minute slots on the local calendar.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		interval: slots.DefaultInterval,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the slot spacing.
func (r *Resolver) Interval() time.Duration { return r.interval }

// Location returns the calendar location.
func (r *Resolver) Location() *time.Location { return r.loc }

// ParseDate parses a YYYY-MM-DD string as local midnight in the resolver's location.
func (r *Resolver) ParseDate(date string) (time.Time, error) {
	if len(date) != len(model.DateLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	t, err := time.ParseInLocation(model.DateLayout, date, r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, date)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc), nil
}

// ResolveDayStatus returns the effective status for date. An override for the date is
// returned as-is; otherwise the weekly entry for the date's weekday applies, falling back
// to open 10:00-20:00 when the template has no entry.
func (r *Resolver) ResolveDayStatus(date string, weekly model.WeeklyTemplate, overrides model.Overrides) (model.ResolvedDayStatus, error) {
	day, err := r.ParseDate(date)
	if err != nil {
		return model.ResolvedDayStatus{}, err
	}

	if o, ok := overrides[date]; ok {
		if err := validateOverride(o); err != nil {
			return model.ResolvedDayStatus{}, fmt.Errorf("override %s: %w", date, err)
		}
		return fromOverride(date, o), nil
	}

	entry, ok := weekly[int(day.Weekday())]
	if !ok {
		status := fromWeekly(date, model.DefaultWeeklyDay(int(day.Weekday())))
		status.Source = model.SourceDefault
		return status, nil
	}
	return fromWeekly(date, entry), nil
}

// IsDateClosed reports whether the restaurant is closed on date.
func (r *Resolver) IsDateClosed(date string, weekly model.WeeklyTemplate, overrides model.Overrides) (bool, error) {
	status, err := r.ResolveDayStatus(date, weekly, overrides)
	if err != nil {
		return false, err
	}
	return status.IsClosed, nil
}

// GetTimeSlots returns the bookable start times for date in concatenation order.
func (r *Resolver) GetTimeSlots(date string, weekly model.WeeklyTemplate, overrides model.Overrides) ([]string, error) {
	status, err := r.ResolveDayStatus(date, weekly, overrides)
	if err != nil {
		return nil, err
	}
	return r.SlotsFor(status)
}

// SlotsFor generates slots for an already resolved status. Split windows are concatenated
// morning first without sorting or overlap checks.
func (r *Resolver) SlotsFor(status model.ResolvedDayStatus) ([]string, error) {
	result := make([]string, 0)
	for _, w := range status.Windows() {
		part, err := slots.GenerateTimeSlots(w.Opening, w.Closing, r.interval)
		if err != nil {
			return nil, fmt.Errorf("date %s: %w", status.Date, err)
		}
		result = append(result, part...)
	}
	return result, nil
}

// Day is a resolved status together with its slots.
type Day struct {
	model.ResolvedDayStatus
	Slots []string `json:"slots"`
}

// ResolveRange resolves every date from start to end inclusive.
func (r *Resolver) ResolveRange(start, end string, weekly model.WeeklyTemplate, overrides model.Overrides) ([]Day, error) {
	from, err := r.ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := r.ParseDate(end)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, fmt.Errorf("start %s is after end %s", start, end)
	}

	var days []Day
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		date := d.Format(model.DateLayout)
		status, err := r.ResolveDayStatus(date, weekly, overrides)
		if err != nil {
			return nil, err
		}
		daySlots, err := r.SlotsFor(status)
		if err != nil {
			return nil, err
		}
		days = append(days, Day{ResolvedDayStatus: status, Slots: daySlots})
	}
	return days, nil
}

func fromOverride(date string, o model.DateOverride) model.ResolvedDayStatus {
	return model.ResolvedDayStatus{
		Date:             date,
		IsClosed:         o.IsClosed,
		Reason:           o.Reason,
		UseSplitHours:    o.UseSplitHours,
		OpeningTime:      o.OpeningTime,
		ClosingTime:      o.ClosingTime,
		MorningOpening:   o.MorningOpening,
		MorningClosing:   o.MorningClosing,
		AfternoonOpening: o.AfternoonOpening,
		AfternoonClosing: o.AfternoonClosing,
		Source:           model.SourceOverride,
	}
}

func fromWeekly(date string, d model.WeeklyScheduleDay) model.ResolvedDayStatus {
	status := model.ResolvedDayStatus{Date: date, Source: model.SourceWeekly}
	switch {
	case !d.IsOpen:
		status.IsClosed = true
		status.Reason = WeeklyClosedReason
	case d.UseSplitHours:
		status.UseSplitHours = true
		status.MorningOpening = d.MorningOpening
		status.MorningClosing = d.MorningClosing
		status.AfternoonOpening = d.AfternoonOpening
		status.AfternoonClosing = d.AfternoonClosing
	default:
		status.OpeningTime = d.SingleOpening
		status.ClosingTime = d.SingleClosing
	}
	return status
}

// validateOverride checks that an open override carries every hour field its mode needs.
// Equal or reversed windows are allowed and simply produce no slots.
func validateOverride(o model.DateOverride) error {
	if o.IsClosed {
		return nil
	}

	fields := map[string]string{
		"opening_time": o.OpeningTime,
		"closing_time": o.ClosingTime,
	}
	if o.UseSplitHours {
		fields = map[string]string{
			"morning_opening":   o.MorningOpening,
			"morning_closing":   o.MorningClosing,
			"afternoon_opening": o.AfternoonOpening,
			"afternoon_closing": o.AfternoonClosing,
		}
	}

	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("%w: %s is missing", ErrMalformedOverride, name)
		}
		if _, err := slots.ParseClock(value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedOverride, name, err)
		}
	}
	return nil
}
