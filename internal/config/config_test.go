package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wbautoslot/pkg/logx"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalJSON = `{
  "auth": {"secret": "test-secret"},
  "database": {"path": "test.db"}
}`

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "cfg.json", minimalJSON), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("server addr default = %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.TickInterval != "60s" {
		t.Fatalf("tick interval default = %q", cfg.Scheduler.TickInterval)
	}
	if cfg.RateLimit.Auth.Max != 5 || cfg.RateLimit.Auth.Window != "300s" {
		t.Fatalf("auth rate limit default = %+v", cfg.RateLimit.Auth)
	}
	if cfg.Backup.RetentionDays != 30 {
		t.Fatalf("backup retention default = %d", cfg.Backup.RetentionDays)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  secret: test-secret
database:
  path: data/app.db
server:
  addr: ":9000"
scheduler:
  tick_interval: 30s
`
	m := NewManager(writeConfig(t, "cfg.yaml", yaml), logx.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Database.Path != "data/app.db" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Scheduler.TickInterval != "30s" {
		t.Fatalf("tick interval = %q", cfg.Scheduler.TickInterval)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	bad := `{
  "auth": {"secret": "s"},
  "database": {"path": "x.db"},
  "schedular": {"tick_interval": "10s"}
}`
	m := NewManager(writeConfig(t, "cfg.json", bad), logx.Nop())
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for misspelled section")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.Auth.Secret = "" }, "auth.secret"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad duration", func(c *Config) { c.Scheduler.TickInterval = "sixty seconds" }, "tick_interval"},
		{"negative limit", func(c *Config) { c.RateLimit.Auth.Max = -1 }, "rate_limit.auth"},
		{"channelless notifications", func(c *Config) { c.Notifications.Enabled = true }, "no channel"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			cfg.Auth.Secret = "s"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 42*time.Second)
	if err != nil || d != 42*time.Second {
		t.Fatalf("empty -> default: %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "150ms", time.Second)
	if err != nil || d != 150*time.Millisecond {
		t.Fatalf("explicit: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestWatchPublishesChangedConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "cfg.json", minimalJSON)
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// give the watcher a moment to attach before writing
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(minimalJSON, "test-secret", "rotated-secret", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Auth.Secret != "rotated-secret" {
			t.Fatalf("published secret = %q", cfg.Auth.Secret)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published after file change")
	}
}
