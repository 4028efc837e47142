package config

// Config is the root of the application configuration.
//
// All duration fields are Go duration strings (e.g. "500ms", "30s", "1m").
// The file may be JSON or YAML; YAML is coerced to JSON before the strict
// decode, so unknown keys are rejected in both formats.
type Config struct {
	Server        ServerConfig    `json:"server"`
	Logging       LoggingConfig   `json:"logging"`
	Database      DatabaseConfig  `json:"database"`
	Auth          AuthConfig      `json:"auth"`
	Scheduler     SchedulerConfig `json:"scheduler"`
	Supplier      SupplierConfig  `json:"supplier"`
	RateLimit     RateLimitConfig `json:"rate_limit"`
	Notifications NotifyConfig    `json:"notifications"`
	Backup        BackupConfig    `json:"backup"`
}

type ServerConfig struct {
	Addr         string `json:"addr"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type AuthConfig struct {
	// Secret signs JWTs. Required; there is no insecure default.
	Secret     string `json:"secret"`
	AccessTTL  string `json:"access_ttl,omitempty"`
	RefreshTTL string `json:"refresh_ttl,omitempty"`
}

type SchedulerConfig struct {
	TickInterval string `json:"tick_interval,omitempty"`
	RunTimeout   string `json:"run_timeout,omitempty"`
}

// SupplierConfig points at the supplier portal API.
type SupplierConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// RateWindow is one sliding-window limit: at most Max hits per Window.
type RateWindow struct {
	Max    int    `json:"max"`
	Window string `json:"window"`
}

type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	// Auth covers login/register/refresh, keyed per client IP.
	Auth RateWindow `json:"auth"`
	// TaskCreate covers task creation, keyed per user.
	TaskCreate RateWindow `json:"task_create"`
	// Global covers all API requests, keyed per client IP.
	Global RateWindow `json:"global"`
}

type NotifyConfig struct {
	Enabled    bool           `json:"enabled"`
	RatePerSec int            `json:"rate_per_sec,omitempty"`
	Telegram   NotifyTelegram `json:"telegram"`
	Email      NotifyEmail    `json:"email"`
}

type NotifyTelegram struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type NotifyEmail struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	From     string `json:"from,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type BackupConfig struct {
	Enabled       bool   `json:"enabled"`
	Dir           string `json:"dir,omitempty"`
	Schedule      string `json:"schedule,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

// Default returns the configuration used when a section is omitted.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080"},
		Logging:  LoggingConfig{Level: "info", Console: true},
		Database: DatabaseConfig{Path: "wbautoslot.db"},
		Scheduler: SchedulerConfig{
			TickInterval: "60s",
			RunTimeout:   "5m",
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			Auth:       RateWindow{Max: 5, Window: "300s"},
			TaskCreate: RateWindow{Max: 10, Window: "60s"},
			Global:     RateWindow{Max: 100, Window: "3600s"},
		},
		Backup: BackupConfig{Dir: "backups", Schedule: "0 3 * * *", RetentionDays: 30},
	}
}
