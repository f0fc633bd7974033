package database

import (
	"context"
	"fmt"
	"time"

	"tablebook/internal/config"
	"tablebook/internal/events"
)

// SyncHoursFromConfig seeds the store from hours.yaml. Weekdays without a row get the
// configured entry and each holiday becomes a closed override unless the date already has
// one. A holiday is seeded at most once: seeded dates are recorded in seeded_holidays, so an
// override the admin edits or deletes later stays that way. It returns the number of rows created.
func (db *DB) SyncHoursFromConfig(ctx context.Context, cfg *config.HoursConfig) (int, error) {
	if cfg == nil {
		return 0, fmt.Errorf("hours config is nil")
	}

	days, err := db.EnsureDefaultSchedules(ctx, cfg.Template())
	if err != nil {
		return len(days), fmt.Errorf("seed weekly schedule: %w", err)
	}
	created := len(days)

	for _, h := range cfg.Holidays {
		ok, err := db.seedHoliday(ctx, h)
		if err != nil {
			return created, fmt.Errorf("seed holiday %s: %w", h.Date, err)
		}
		if ok {
			created++
			db.publish(events.DateOverrideChanged, h.Date)
		}
	}

	return created, nil
}

// seedHoliday inserts the closed override for h unless the date was seeded before.
// The date is marked as seeded even when an admin override already exists.
func (db *DB) seedHoliday(ctx context.Context, h config.HolidayConfig) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seeded_holidays (date) VALUES (?)`, h.Date)
	if err != nil {
		return false, fmt.Errorf("mark seeded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	now := time.Now()
	res, err = tx.ExecContext(ctx, `
		INSERT INTO date_overrides (date, is_closed, reason, created_at, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(date) DO NOTHING`,
		h.Date, nullString(h.Name), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert override: %w", err)
	}
	inserted, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return inserted > 0, nil
}
