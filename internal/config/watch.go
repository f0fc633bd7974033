package config

import (
	"context"
	"os"
	"time"
)

// WatchHours loads hours.yaml, hands it to onUpdate and then polls the file every interval,
// reloading when its modification time advances. Invalid edits are reported to onError and
// the previous config stays in effect.
func WatchHours(ctx context.Context, path string, interval time.Duration, onUpdate func(*HoursConfig), onError func(error)) error {
	if path == "" {
		path = "configs/hours.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadHoursConfig(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()
	if onUpdate != nil {
		onUpdate(cfg)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()

			cfg, err := LoadHoursConfig(path)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}()

	return nil
}
