package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Storage
	DataBackend       string
	SQLiteDBPath      string
	PrefsPath         string
	SnapshotCacheSize int
	SnapshotCacheTTL  time.Duration

	// Logging
	LogLevel string

	// Ops listener for /metrics and probes, empty disables it
	OpsAddr string

	// Demo data
	LoadSampleData bool

	// AMQP (optional, empty URL disables change events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Notifications
	NotifyDailyReminder bool
	NotifyDailyTime     string
	NotifyWeeklySummary bool
	NotifyWeeklyDay     string
	NotifyBudgetAlerts  bool
	MonthlyBudget       decimal.Decimal
	NotifyTickInterval  time.Duration
}

var validBackends = []string{"memory", "sqlite"}

func Load() *Config {
	cfg := &Config{
		DataBackend:       getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/traty.db"),
		PrefsPath:         getEnv("PREFS_PATH", "./data/preferences.json"),
		SnapshotCacheSize: getEnvInt("SNAPSHOT_CACHE_SIZE", 64),
		SnapshotCacheTTL:  getEnvDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		OpsAddr:  getEnv("OPS_ADDR", ""),

		LoadSampleData: getEnvBool("LOAD_SAMPLE_DATA", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "traty"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		NotifyDailyReminder: getEnvBool("NOTIFY_DAILY_REMINDER", true),
		NotifyDailyTime:     getEnv("NOTIFY_DAILY_TIME", "19:00"),
		NotifyWeeklySummary: getEnvBool("NOTIFY_WEEKLY_SUMMARY", true),
		NotifyWeeklyDay:     strings.ToLower(getEnv("NOTIFY_WEEKLY_DAY", "monday")),
		NotifyBudgetAlerts:  getEnvBool("NOTIFY_BUDGET_ALERTS", true),
		MonthlyBudget:       getEnvDecimal("MONTHLY_BUDGET", decimal.Zero),
		NotifyTickInterval:  getEnvDuration("NOTIFY_TICK_INTERVAL", time.Minute),
	}

	return cfg
}

// LoadEnvFile loads a .env file when present. A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate data backend
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if err := ensureDir(c.SQLiteDBPath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create SQLite database directory: %v", err))
		}
		if c.PrefsPath == "" {
			errors = append(errors, "preferences path cannot be empty when using sqlite backend")
		}
	}

	if c.SnapshotCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache size %d: must be at least 1", c.SnapshotCacheSize))
	}
	if c.SnapshotCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid snapshot cache TTL %v: must be at least 1 second", c.SnapshotCacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if c.OpsAddr != "" {
		if _, _, err := net.SplitHostPort(c.OpsAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid ops address '%s': %v", c.OpsAddr, err))
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate notification configuration
	if _, err := time.Parse("15:04", c.NotifyDailyTime); err != nil {
		errors = append(errors, fmt.Sprintf("invalid daily reminder time '%s': must be HH:MM", c.NotifyDailyTime))
	}
	if _, ok := ParseWeekday(c.NotifyWeeklyDay); !ok {
		errors = append(errors, fmt.Sprintf("invalid weekly summary day '%s'", c.NotifyWeeklyDay))
	}
	if c.MonthlyBudget.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid monthly budget %s: must not be negative", c.MonthlyBudget))
	}
	if c.NotifyTickInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid notify tick interval %v: must be at least 1 second", c.NotifyTickInterval))
	} else if c.NotifyTickInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid notify tick interval %v: must be at most 1 hour", c.NotifyTickInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ParseWeekday accepts English weekday names, full or three-letter, any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return time.Sunday, false
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("'%s': %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
