package model

import "time"

// DateLayout is the YYYY-MM-DD form used for calendar dates.
const DateLayout = "2006-01-02"

// Hours applied to any weekday missing from the weekly template.
const (
	DefaultOpening = "10:00"
	DefaultClosing = "20:00"
)

// WeeklyScheduleDay is the template for one weekday (0=Sunday .. 6=Saturday).
type WeeklyScheduleDay struct {
	DayOfWeek        int       `json:"day_of_week"`
	IsOpen           bool      `json:"is_open"`
	UseSplitHours    bool      `json:"use_split_hours"`
	SingleOpening    string    `json:"single_opening"`  // "10:00"
	SingleClosing    string    `json:"single_closing"`  // "20:00"
	MorningOpening   string    `json:"morning_opening"` // "12:00"
	MorningClosing   string    `json:"morning_closing"`
	AfternoonOpening string    `json:"afternoon_opening"` // "19:00"
	AfternoonClosing string    `json:"afternoon_closing"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// DefaultWeeklyDay returns the open, continuous 10:00-20:00 entry used for missing days.
func DefaultWeeklyDay(dayOfWeek int) WeeklyScheduleDay {
	return WeeklyScheduleDay{
		DayOfWeek:     dayOfWeek,
		IsOpen:        true,
		SingleOpening: DefaultOpening,
		SingleClosing: DefaultClosing,
	}
}

// WeeklyTemplate maps day_of_week to its entry.
type WeeklyTemplate map[int]WeeklyScheduleDay

// NewWeeklyTemplate indexes days by DayOfWeek. Later entries win on duplicates.
func NewWeeklyTemplate(days []WeeklyScheduleDay) WeeklyTemplate {
	t := make(WeeklyTemplate, len(days))
	for _, d := range days {
		t[d.DayOfWeek] = d
	}
	return t
}

// Missing returns the weekdays without an entry, in ascending order.
func (t WeeklyTemplate) Missing() []int {
	var missing []int
	for day := 0; day <= 6; day++ {
		if _, ok := t[day]; !ok {
			missing = append(missing, day)
		}
	}
	return missing
}

// WithDefaults returns a copy with DefaultWeeklyDay filled in for every missing weekday.
func (t WeeklyTemplate) WithDefaults() WeeklyTemplate {
	out := make(WeeklyTemplate, 7)
	for day, entry := range t {
		out[day] = entry
	}
	for _, day := range t.Missing() {
		out[day] = DefaultWeeklyDay(day)
	}
	return out
}

// Days returns the entries ordered Sunday to Saturday, skipping missing days.
func (t WeeklyTemplate) Days() []WeeklyScheduleDay {
	days := make([]WeeklyScheduleDay, 0, len(t))
	for day := 0; day <= 6; day++ {
		if entry, ok := t[day]; ok {
			days = append(days, entry)
		}
	}
	return days
}

// DateOverride replaces the weekly template for one calendar date.
type DateOverride struct {
	Date             string    `json:"date"` // "2025-06-03"
	IsClosed         bool      `json:"is_closed"`
	Reason           string    `json:"reason,omitempty"`
	UseSplitHours    bool      `json:"use_split_hours"`
	OpeningTime      string    `json:"opening_time,omitempty"`
	ClosingTime      string    `json:"closing_time,omitempty"`
	MorningOpening   string    `json:"morning_opening,omitempty"`
	MorningClosing   string    `json:"morning_closing,omitempty"`
	AfternoonOpening string    `json:"afternoon_opening,omitempty"`
	AfternoonClosing string    `json:"afternoon_closing,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at,omitempty"`
}

// Overrides maps a YYYY-MM-DD date to its override.
type Overrides map[string]DateOverride

// NewOverrides indexes overrides by Date.
func NewOverrides(list []DateOverride) Overrides {
	o := make(Overrides, len(list))
	for _, item := range list {
		o[item.Date] = item
	}
	return o
}

// StatusSource tells where a resolved status came from.
type StatusSource string

const (
	SourceOverride StatusSource = "override"
	SourceWeekly   StatusSource = "weekly"
	SourceDefault  StatusSource = "default"
)

// Window is one service period, [Opening, Closing).
type Window struct {
	Opening string `json:"opening"`
	Closing string `json:"closing"`
}

// ResolvedDayStatus is the override-aware answer for one date. It is never persisted.
type ResolvedDayStatus struct {
	Date             string       `json:"date"`
	IsClosed         bool         `json:"is_closed"`
	Reason           string       `json:"reason,omitempty"`
	UseSplitHours    bool         `json:"use_split_hours"`
	OpeningTime      string       `json:"opening_time,omitempty"`
	ClosingTime      string       `json:"closing_time,omitempty"`
	MorningOpening   string       `json:"morning_opening,omitempty"`
	MorningClosing   string       `json:"morning_closing,omitempty"`
	AfternoonOpening string       `json:"afternoon_opening,omitempty"`
	AfternoonClosing string       `json:"afternoon_closing,omitempty"`
	Source           StatusSource `json:"source"`
}

// Windows returns the service windows in concatenation order: morning then afternoon for
// split hours, the single pair otherwise. Closed days have none.
func (s ResolvedDayStatus) Windows() []Window {
	if s.IsClosed {
		return nil
	}
	if s.UseSplitHours {
		return []Window{
			{Opening: s.MorningOpening, Closing: s.MorningClosing},
			{Opening: s.AfternoonOpening, Closing: s.AfternoonClosing},
		}
	}
	return []Window{{Opening: s.OpeningTime, Closing: s.ClosingTime}}
}
