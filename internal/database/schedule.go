package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tablebook/internal/events"
	"tablebook/internal/model"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// EnsureDefaultSchedules inserts a row for every weekday missing from weekly_schedule.
// Entries come from seed when present, otherwise open 10:00-20:00. Existing rows are
// never touched. It returns the inserted days.
func (db *DB) EnsureDefaultSchedules(ctx context.Context, seed model.WeeklyTemplate) ([]int, error) {
	current, err := db.GetWeeklyTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weekly schedule: %w", err)
	}

	var inserted []int
	for _, day := range current.Missing() {
		entry, ok := seed[day]
		if !ok {
			entry = model.DefaultWeeklyDay(day)
		}
		entry.DayOfWeek = day
		if err := db.insertWeeklyDay(ctx, entry); err != nil {
			return inserted, fmt.Errorf("create schedule for day %d: %w", day, err)
		}
		inserted = append(inserted, day)
	}

	for _, day := range inserted {
		db.publish(events.WeeklyScheduleChanged, strconv.Itoa(day))
	}
	return inserted, nil
}

func (db *DB) insertWeeklyDay(ctx context.Context, d model.WeeklyScheduleDay) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO weekly_schedule (
			day_of_week, is_open, use_split_hours, single_opening, single_closing,
			morning_opening, morning_closing, afternoon_opening, afternoon_closing, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO NOTHING`,
		d.DayOfWeek, d.IsOpen, d.UseSplitHours, nullString(d.SingleOpening), nullString(d.SingleClosing),
		nullString(d.MorningOpening), nullString(d.MorningClosing),
		nullString(d.AfternoonOpening), nullString(d.AfternoonClosing), time.Now(),
	)
	return err
}

// GetWeeklyTemplate returns all stored weekly rows. Missing days are not filled in.
func (db *DB) GetWeeklyTemplate(ctx context.Context) (model.WeeklyTemplate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, is_open, use_split_hours, single_opening, single_closing,
		       morning_opening, morning_closing, afternoon_opening, afternoon_closing, updated_at
		FROM weekly_schedule
		ORDER BY day_of_week`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tmpl := make(model.WeeklyTemplate, 7)
	for rows.Next() {
		d, err := scanWeeklyDay(rows)
		if err != nil {
			return nil, err
		}
		tmpl[d.DayOfWeek] = d
	}
	return tmpl, rows.Err()
}

// UpdateWeeklyDay creates or overwrites the entry for d.DayOfWeek.
func (db *DB) UpdateWeeklyDay(ctx context.Context, d model.WeeklyScheduleDay) error {
	if d.DayOfWeek < 0 || d.DayOfWeek > 6 {
		return fmt.Errorf("invalid day of week %d", d.DayOfWeek)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO weekly_schedule (
			day_of_week, is_open, use_split_hours, single_opening, single_closing,
			morning_opening, morning_closing, afternoon_opening, afternoon_closing, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET
			is_open = excluded.is_open,
			use_split_hours = excluded.use_split_hours,
			single_opening = excluded.single_opening,
			single_closing = excluded.single_closing,
			morning_opening = excluded.morning_opening,
			morning_closing = excluded.morning_closing,
			afternoon_opening = excluded.afternoon_opening,
			afternoon_closing = excluded.afternoon_closing,
			updated_at = excluded.updated_at`,
		d.DayOfWeek, d.IsOpen, d.UseSplitHours, nullString(d.SingleOpening), nullString(d.SingleClosing),
		nullString(d.MorningOpening), nullString(d.MorningClosing),
		nullString(d.AfternoonOpening), nullString(d.AfternoonClosing), time.Now(),
	)
	if err != nil {
		return err
	}

	db.publish(events.WeeklyScheduleChanged, strconv.Itoa(d.DayOfWeek))
	return nil
}

func scanWeeklyDay(row rowScanner) (model.WeeklyScheduleDay, error) {
	var d model.WeeklyScheduleDay
	var singleOpening, singleClosing, morningOpening, morningClosing, afternoonOpening, afternoonClosing sql.NullString
	var updatedAt sql.NullTime
	err := row.Scan(
		&d.DayOfWeek, &d.IsOpen, &d.UseSplitHours, &singleOpening, &singleClosing,
		&morningOpening, &morningClosing, &afternoonOpening, &afternoonClosing, &updatedAt,
	)
	if err != nil {
		return d, err
	}
	d.SingleOpening = singleOpening.String
	d.SingleClosing = singleClosing.String
	d.MorningOpening = morningOpening.String
	d.MorningClosing = morningClosing.String
	d.AfternoonOpening = afternoonOpening.String
	d.AfternoonClosing = afternoonClosing.String
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return d, nil
}

const overrideColumns = `date, is_closed, reason, use_split_hours, opening_time, closing_time,
		       morning_opening, morning_closing, afternoon_opening, afternoon_closing, created_at, updated_at`

// GetDateOverride returns the override for date, or ErrNotFound.
func (db *DB) GetDateOverride(ctx context.Context, date string) (*model.DateOverride, error) {
	row := db.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM date_overrides WHERE date = ?`, date)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListDateOverrides returns all overrides with from <= date <= to, ordered by date.
func (db *DB) ListDateOverrides(ctx context.Context, from, to string) ([]model.DateOverride, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+overrideColumns+`
		FROM date_overrides
		WHERE date >= ? AND date <= ?
		ORDER BY date`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.DateOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// UpsertDateOverride creates or replaces the override for o.Date. Last write wins.
func (db *DB) UpsertDateOverride(ctx context.Context, o *model.DateOverride) error {
	if o == nil {
		return fmt.Errorf("override is nil")
	}
	if _, err := time.Parse(model.DateLayout, o.Date); err != nil {
		return fmt.Errorf("invalid override date %q: %w", o.Date, err)
	}

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO date_overrides (
			date, is_closed, reason, use_split_hours, opening_time, closing_time,
			morning_opening, morning_closing, afternoon_opening, afternoon_closing, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			is_closed = excluded.is_closed,
			reason = excluded.reason,
			use_split_hours = excluded.use_split_hours,
			opening_time = excluded.opening_time,
			closing_time = excluded.closing_time,
			morning_opening = excluded.morning_opening,
			morning_closing = excluded.morning_closing,
			afternoon_opening = excluded.afternoon_opening,
			afternoon_closing = excluded.afternoon_closing,
			updated_at = excluded.updated_at`,
		o.Date, o.IsClosed, nullString(o.Reason), o.UseSplitHours,
		nullString(o.OpeningTime), nullString(o.ClosingTime),
		nullString(o.MorningOpening), nullString(o.MorningClosing),
		nullString(o.AfternoonOpening), nullString(o.AfternoonClosing), now, now,
	)
	if err != nil {
		return err
	}

	db.publish(events.DateOverrideChanged, o.Date)
	return nil
}

// DeleteDateOverride removes the override for date, reverting it to the weekly template.
func (db *DB) DeleteDateOverride(ctx context.Context, date string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM date_overrides WHERE date = ?", date)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	db.publish(events.DateOverrideChanged, date)
	return nil
}

// SetDayOff marks a specific date as closed.
func (db *DB) SetDayOff(ctx context.Context, date, reason string) error {
	return db.UpsertDateOverride(ctx, &model.DateOverride{
		Date:     date,
		IsClosed: true,
		Reason:   reason,
	})
}

// SetSpecialHours sets continuous opening hours for a specific date.
func (db *DB) SetSpecialHours(ctx context.Context, date, opening, closing, reason string) error {
	return db.UpsertDateOverride(ctx, &model.DateOverride{
		Date:        date,
		Reason:      reason,
		OpeningTime: opening,
		ClosingTime: closing,
	})
}

// SetSplitHours sets lunch and dinner windows for a specific date.
func (db *DB) SetSplitHours(ctx context.Context, date string, morning, afternoon model.Window, reason string) error {
	return db.UpsertDateOverride(ctx, &model.DateOverride{
		Date:             date,
		Reason:           reason,
		UseSplitHours:    true,
		MorningOpening:   morning.Opening,
		MorningClosing:   morning.Closing,
		AfternoonOpening: afternoon.Opening,
		AfternoonClosing: afternoon.Closing,
	})
}

func scanOverride(row rowScanner) (model.DateOverride, error) {
	var o model.DateOverride
	var reason, openingTime, closingTime, morningOpening, morningClosing, afternoonOpening, afternoonClosing sql.NullString
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(
		&o.Date, &o.IsClosed, &reason, &o.UseSplitHours, &openingTime, &closingTime,
		&morningOpening, &morningClosing, &afternoonOpening, &afternoonClosing, &createdAt, &updatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Reason = reason.String
	o.OpeningTime = openingTime.String
	o.ClosingTime = closingTime.String
	o.MorningOpening = morningOpening.String
	o.MorningClosing = morningClosing.String
	o.AfternoonOpening = afternoonOpening.String
	o.AfternoonClosing = afternoonClosing.String
	if createdAt.Valid {
		o.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		o.UpdatedAt = updatedAt.Time
	}
	return o, nil
}
