package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configs that cannot produce a working instance. It is
// called on initial load and before every hot-reload commit.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret is required")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}

	durations := []struct{ path, raw string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"auth.access_ttl", c.Auth.AccessTTL},
		{"auth.refresh_ttl", c.Auth.RefreshTTL},
		{"scheduler.tick_interval", c.Scheduler.TickInterval},
		{"scheduler.run_timeout", c.Scheduler.RunTimeout},
		{"supplier.timeout", c.Supplier.Timeout},
		{"rate_limit.auth.window", c.RateLimit.Auth.Window},
		{"rate_limit.task_create.window", c.RateLimit.TaskCreate.Window},
		{"rate_limit.global.window", c.RateLimit.Global.Window},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if c.RateLimit.Enabled {
		windows := []struct {
			path string
			w    RateWindow
		}{
			{"rate_limit.auth", c.RateLimit.Auth},
			{"rate_limit.task_create", c.RateLimit.TaskCreate},
			{"rate_limit.global", c.RateLimit.Global},
		}
		for _, w := range windows {
			if w.w.Max < 0 {
				return fmt.Errorf("%s.max must be >= 0", w.path)
			}
		}
	}

	if c.Notifications.Enabled && c.Notifications.Telegram.Token == "" && c.Notifications.Email.Host == "" {
		return errors.New("notifications enabled but no channel configured")
	}
	return nil
}
