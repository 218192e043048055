// Package config handles loading and validating Rasid configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Rasid.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Default: ~/.rasid/data. Override: RASID_DATA_DIR.
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`   // nil = SQLite under DataDir.
	Telegram      *TelegramConfig      `json:"telegram,omitempty" yaml:"telegram,omitempty"` // nil = Telegram gateway disabled.
	HTTPAPI       *HTTPAPIConfig       `json:"http_api,omitempty" yaml:"http_api,omitempty"` // nil = HTTP API disabled.
	Confirm       ConfirmConfig        `json:"confirm" yaml:"confirm"`
	Interpreter   InterpreterConfig    `json:"interpreter" yaml:"interpreter"`
	Report        *ReportConfig        `json:"report,omitempty" yaml:"report,omitempty"`               // nil = query_report disabled.
	Reminders     *RemindersConfig     `json:"reminders,omitempty" yaml:"reminders,omitempty"`         // nil = reminder scheduler disabled.
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled.
	RateLimit     RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`                 // "sqlite" (default) or "postgres".
	Path   string `json:"path,omitempty" yaml:"path,omitempty"` // SQLite file. Default: derived from DataDir.
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`   // Postgres DSN. Override: RASID_DB_DSN.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// TelegramConfig configures the Telegram gateway.
type TelegramConfig struct {
	BotToken     string  `json:"bot_token,omitempty" yaml:"bot_token,omitempty"` // Usually from TELEGRAM_BOT_TOKEN.
	WebhookURL   string  `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	ListenAddr   string  `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`
	AllowedChats []int64 `json:"allowed_chats" yaml:"allowed_chats"` // Operator chat IDs. Empty = deny all.
	PollTimeout  int     `json:"poll_timeout" yaml:"poll_timeout"`   // Seconds. 0 = 30.
}

// HTTPAPIConfig configures the admin HTTP API.
type HTTPAPIConfig struct {
	ListenAddr string            `json:"listen_addr" yaml:"listen_addr"` // e.g. ":8080".
	EnableDocs bool              `json:"enable_docs" yaml:"enable_docs"`
	APIKeys    map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // key -> operator name. RASID_API_KEY adds "admin".
}

// ConfirmConfig tunes the confirmation gateway.
type ConfirmConfig struct {
	TTLSeconds        int `json:"ttl_seconds" yaml:"ttl_seconds"`                       // Pending action lifetime. 0 = 600.
	MaxPending        int `json:"max_pending" yaml:"max_pending"`                       // Capacity bound. 0 = 512.
	SweepIntervalSecs int `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"` // Background purge. 0 = 60.
}

// TTL returns the pending action lifetime with a default of 10 minutes.
func (c ConfirmConfig) TTL() time.Duration {
	if c.TTLSeconds > 0 {
		return time.Duration(c.TTLSeconds) * time.Second
	}
	return 10 * time.Minute
}

// SweepInterval returns the purge interval with a default of one minute.
func (c ConfirmConfig) SweepInterval() time.Duration {
	if c.SweepIntervalSecs > 0 {
		return time.Duration(c.SweepIntervalSecs) * time.Second
	}
	return time.Minute
}

// InterpreterConfig configures the LLM interpreter.
type InterpreterConfig struct {
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Usually from OPENAI_API_KEY.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
}

// ReportConfig points the query_report operation at a reporting replica.
type ReportConfig struct {
	DSN     string `json:"dsn" yaml:"dsn"` // Override: RASID_REPORT_DSN.
	MaxRows int    `json:"max_rows" yaml:"max_rows"`
}

// RemindersConfig configures the reminder scheduler.
type RemindersConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	TickSeconds     int    `json:"tick_seconds" yaml:"tick_seconds"`                     // Template check interval. 0 = 60.
	OverdueCronSpec string `json:"overdue_cron,omitempty" yaml:"overdue_cron,omitempty"` // Overdue sweep schedule. Default: "0 9 * * *".
}

// Tick returns the template check interval with a default of one minute.
func (r *RemindersConfig) Tick() time.Duration {
	if r != nil && r.TickSeconds > 0 {
		return time.Duration(r.TickSeconds) * time.Second
	}
	return time.Minute
}

// OverdueCron returns the overdue sweep schedule, default 09:00 daily.
func (r *RemindersConfig) OverdueCron() string {
	if r != nil && r.OverdueCronSpec != "" {
		return r.OverdueCronSpec
	}
	return "0 9 * * *"
}

// ObservabilityConfig configures metrics and tracing.
// When nil, both are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "rasid"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// RateLimitConfig configures the per-chat token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"` // 0 = unlimited.
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// DefaultConfigPath returns the default config file path (~/.rasid/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/rasid.yaml"
	}
	return filepath.Join(home, ".rasid", "config.yaml")
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Secrets can live in the file or in environment variables;
// environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".rasid", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overlays environment variables onto the loaded file.
func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Interpreter.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		if c.Telegram == nil {
			c.Telegram = &TelegramConfig{}
		}
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("RASID_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		c.Storage.DSN = v
	}
	if v := os.Getenv("RASID_REPORT_DSN"); v != "" {
		if c.Report == nil {
			c.Report = &ReportConfig{}
		}
		c.Report.DSN = v
	}
	if v := os.Getenv("RASID_API_KEY"); v != "" {
		if c.HTTPAPI == nil {
			c.HTTPAPI = &HTTPAPIConfig{ListenAddr: ":8080"}
		}
		if c.HTTPAPI.APIKeys == nil {
			c.HTTPAPI.APIKeys = make(map[string]string)
		}
		c.HTTPAPI.APIKeys[v] = "admin"
	}
	if v := os.Getenv("RASID_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RASID_ALLOWED_CHATS"); v != "" {
		if c.Telegram == nil {
			c.Telegram = &TelegramConfig{}
		}
		c.Telegram.AllowedChats = parseChatList(v)
	}
}

func parseChatList(s string) []int64 {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".rasid", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "rasid.db")
}

func (c *Config) validate() error {
	if c.Interpreter.APIKey == "" {
		return fmt.Errorf("interpreter.api_key is required (set OPENAI_API_KEY env var)")
	}
	if c.Telegram == nil && c.HTTPAPI == nil {
		return fmt.Errorf("at least one of telegram or http_api must be configured")
	}
	if c.Telegram != nil {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required (set TELEGRAM_BOT_TOKEN env var)")
		}
		if len(c.Telegram.AllowedChats) == 0 {
			return fmt.Errorf("telegram.allowed_chats must list at least one operator chat")
		}
		if c.Telegram.WebhookURL != "" && c.Telegram.ListenAddr == "" {
			return fmt.Errorf("telegram.listen_addr is required in webhook mode")
		}
	}
	if c.HTTPAPI != nil {
		if c.HTTPAPI.ListenAddr == "" {
			return fmt.Errorf("http_api.listen_addr is required")
		}
		if len(c.HTTPAPI.APIKeys) == 0 {
			return fmt.Errorf("http_api.api_keys must contain at least one key (or set RASID_API_KEY)")
		}
	}
	if c.Storage != nil {
		switch c.Storage.StorageDriver() {
		case "sqlite":
		case "postgres":
			if c.Storage.DSN == "" {
				return fmt.Errorf("storage.dsn is required for the postgres driver (set RASID_DB_DSN env var)")
			}
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
	}
	if c.Confirm.TTLSeconds < 0 || c.Confirm.MaxPending < 0 {
		return fmt.Errorf("confirm settings must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	return nil
}
