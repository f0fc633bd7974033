package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"tablebook/internal/events"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Publisher receives change notifications after each successful mutation.
type Publisher interface {
	Publish(event events.Event)
}

// DB wraps sql.DB and stores the weekly schedule and date overrides.
type DB struct {
	*sql.DB
	publisher Publisher
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

// SetPublisher sets where change notifications go. A nil publisher disables them.
func (db *DB) SetPublisher(p Publisher) {
	db.publisher = p
}

func (db *DB) publish(eventType, key string) {
	if db.publisher == nil {
		return
	}
	db.publisher.Publish(events.Event{Type: eventType, Key: key})
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS weekly_schedule (
			day_of_week INTEGER PRIMARY KEY CHECK (day_of_week BETWEEN 0 AND 6),
			is_open BOOLEAN NOT NULL DEFAULT 1,
			use_split_hours BOOLEAN NOT NULL DEFAULT 0,
			single_opening TEXT,
			single_closing TEXT,
			morning_opening TEXT,
			morning_closing TEXT,
			afternoon_opening TEXT,
			afternoon_closing TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS date_overrides (
			date TEXT PRIMARY KEY,
			is_closed BOOLEAN NOT NULL DEFAULT 0,
			reason TEXT,
			use_split_hours BOOLEAN NOT NULL DEFAULT 0,
			opening_time TEXT,
			closing_time TEXT,
			morning_opening TEXT,
			morning_closing TEXT,
			afternoon_opening TEXT,
			afternoon_closing TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS seeded_holidays (
			date TEXT PRIMARY KEY,
			seeded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
