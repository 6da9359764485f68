package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"finledger/internal/core"
)

const minAdminTokenLength = 16

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	AdminToken         string // job trigger routes are disabled when empty

	// Backend selection
	DataBackend  string
	SQLiteDBPath string

	// Ledger rules
	DefaultReservePercentage int
	RoundingMode             string

	// Recurring jobs
	JobsInterval    time.Duration
	JobsConcurrency int

	// Distributed locking, in-process when empty
	RedisAddress string
	LockTTL      time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Notification outbox
	NotifyPollInterval time.Duration
	NotifyBatchSize    int
	NotifyMaxAttempts  int

	// Google Sheets ledger feed, disabled when the spreadsheet ID is empty
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledger.db"),

		DefaultReservePercentage: getEnvInt("DEFAULT_RESERVE_PERCENTAGE", core.DefaultReservePercentage),
		RoundingMode:             getEnv("ROUNDING_MODE", string(core.RoundHalfAwayFromZero)),

		JobsInterval:    getEnvDuration("JOBS_INTERVAL", time.Hour),
		JobsConcurrency: getEnvInt("JOBS_CONCURRENCY", 4),

		RedisAddress: getEnv("REDIS_ADDRESS", ""),
		LockTTL:      getEnvDuration("LOCK_TTL", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		NotifyPollInterval: getEnvDuration("NOTIFY_POLL_INTERVAL", 2*time.Second),
		NotifyBatchSize:    getEnvInt("NOTIFY_BATCH_SIZE", 50),
		NotifyMaxAttempts:  getEnvInt("NOTIFY_MAX_ATTEMPTS", 10),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Ledger"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Rounding returns the configured rounding mode.
func (c *Config) Rounding() core.RoundingMode {
	return core.RoundingMode(c.RoundingMode)
}

// SheetsFeedEnabled reports whether notifications are also appended to a spreadsheet.
func (c *Config) SheetsFeedEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	// Validate ledger rules
	if err := core.ValidateReservePercentage(c.DefaultReservePercentage); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default reserve percentage %d: must be one of %v", c.DefaultReservePercentage, core.AllowedReservePercentages))
	}
	if !c.Rounding().Valid() {
		errors = append(errors, fmt.Sprintf("invalid rounding mode '%s': must be '%s' or '%s'", c.RoundingMode, core.RoundHalfAwayFromZero, core.RoundBankers))
	}

	// Validate jobs
	if c.JobsInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid jobs interval %v: must be at least 1 minute", c.JobsInterval))
	} else if c.JobsInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid jobs interval %v: must be at most 24 hours", c.JobsInterval))
	}
	if c.JobsConcurrency < 1 || c.JobsConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid jobs concurrency %d: must be between 1 and 64", c.JobsConcurrency))
	}

	// Validate locking
	if c.RedisAddress != "" && c.LockTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LockTTL))
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

	// Validate outbox dispatcher
	if c.NotifyBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid notify batch size %d: must be at least 1", c.NotifyBatchSize))
	} else if c.NotifyBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid notify batch size %d: must be at most 1000", c.NotifyBatchSize))
	}
	if c.NotifyPollInterval < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid notify poll interval %v: must be at least 100ms", c.NotifyPollInterval))
	}
	if c.NotifyMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid notify max attempts %d: must be at least 1", c.NotifyMaxAttempts))
	}

	// Validate Google Sheets feed if enabled
	if c.SheetsFeedEnabled() {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the sheets feed")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate logging
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.AdminToken != "" && len(c.AdminToken) < minAdminTokenLength {
		errors = append(errors, fmt.Sprintf("admin token too short: must be at least %d characters", minAdminTokenLength))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
