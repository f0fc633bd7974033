package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tablebook/internal/model"
	"tablebook/internal/slots"
)

// WindowConfig is one service window.
type WindowConfig struct {
	Open  string `yaml:"open"`  // "12:00"
	Close string `yaml:"close"` // "15:00"
}

// DayHoursConfig seeds the weekly template for one weekday.
type DayHoursConfig struct {
	Day       int           `yaml:"day"` // 0=Sun .. 6=Sat
	Closed    bool          `yaml:"closed"`
	Open      string        `yaml:"open,omitempty"`
	Close     string        `yaml:"close,omitempty"`
	Morning   *WindowConfig `yaml:"morning,omitempty"`
	Afternoon *WindowConfig `yaml:"afternoon,omitempty"`
}

// HolidayConfig closes the restaurant on a specific date.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"` // "Christmas"
}

// HoursConfig is the root of hours.yaml.
type HoursConfig struct {
	Defaults WindowConfig     `yaml:"defaults"`
	Weekly   []DayHoursConfig `yaml:"weekly"`
	Holidays []HolidayConfig  `yaml:"holidays"`
}

// LoadHoursConfig loads and validates the opening hours seed file.
func LoadHoursConfig(path string) (*HoursConfig, error) {
	if path == "" {
		path = "configs/hours.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hours config: %w", err)
	}

	return ParseHoursConfig(data)
}

// ParseHoursConfig decodes and validates hours.yaml content.
func ParseHoursConfig(data []byte) (*HoursConfig, error) {
	var cfg HoursConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse hours config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate hours config: %w", err)
	}

	return &cfg, nil
}

func (c *HoursConfig) applyDefaults() {
	if c.Defaults.Open == "" {
		c.Defaults.Open = model.DefaultOpening
	}
	if c.Defaults.Close == "" {
		c.Defaults.Close = model.DefaultClosing
	}
}

// Validate checks the configuration for errors.
func (c *HoursConfig) Validate() error {
	if err := slots.ValidWindow(c.Defaults.Open, c.Defaults.Close); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}

	seen := make(map[int]bool)
	for i, d := range c.Weekly {
		if d.Day < 0 || d.Day > 6 {
			return fmt.Errorf("weekly[%d]: invalid day %d, must be 0-6 (0=Sun)", i, d.Day)
		}
		if seen[d.Day] {
			return fmt.Errorf("weekly[%d]: duplicate day %d", i, d.Day)
		}
		seen[d.Day] = true

		if d.Closed {
			continue
		}

		split := d.Morning != nil || d.Afternoon != nil
		if split {
			if d.Morning == nil || d.Afternoon == nil {
				return fmt.Errorf("weekly[%d]: split hours need both morning and afternoon", i)
			}
			if err := slots.ValidWindow(d.Morning.Open, d.Morning.Close); err != nil {
				return fmt.Errorf("weekly[%d].morning: %w", i, err)
			}
			if err := slots.ValidWindow(d.Afternoon.Open, d.Afternoon.Close); err != nil {
				return fmt.Errorf("weekly[%d].afternoon: %w", i, err)
			}
			continue
		}

		if d.Open == "" && d.Close == "" {
			continue // falls back to defaults
		}
		if err := slots.ValidWindow(d.Open, d.Close); err != nil {
			return fmt.Errorf("weekly[%d]: %w", i, err)
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse(model.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

// Template converts the weekly section into a full seven-day template. Days not listed
// use the defaults window.
func (c *HoursConfig) Template() model.WeeklyTemplate {
	tmpl := make(model.WeeklyTemplate, 7)
	for day := 0; day <= 6; day++ {
		tmpl[day] = model.WeeklyScheduleDay{
			DayOfWeek:     day,
			IsOpen:        true,
			SingleOpening: c.Defaults.Open,
			SingleClosing: c.Defaults.Close,
		}
	}

	for _, d := range c.Weekly {
		entry := model.WeeklyScheduleDay{DayOfWeek: d.Day, IsOpen: !d.Closed}
		switch {
		case d.Closed:
		case d.Morning != nil && d.Afternoon != nil:
			entry.UseSplitHours = true
			entry.MorningOpening = d.Morning.Open
			entry.MorningClosing = d.Morning.Close
			entry.AfternoonOpening = d.Afternoon.Open
			entry.AfternoonClosing = d.Afternoon.Close
		case d.Open != "":
			entry.SingleOpening = d.Open
			entry.SingleClosing = d.Close
		default:
			entry.SingleOpening = c.Defaults.Open
			entry.SingleClosing = c.Defaults.Close
		}
		tmpl[d.Day] = entry
	}
	return tmpl
}

// String returns a summary of the configuration.
func (c *HoursConfig) String() string {
	closed := 0
	for _, d := range c.Weekly {
		if d.Closed {
			closed++
		}
	}
	return fmt.Sprintf("HoursConfig: %d weekly entries (%d closed), %d holidays",
		len(c.Weekly), closed, len(c.Holidays))
}
