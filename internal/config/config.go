package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// minSessionSecret matches the token signer's minimum key length.
const minSessionSecret = 32

var (
	validBackends  = []string{"memory", "sqlite", "mongo"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string
	// PublicBaseURL is where clients reach this server; in-process image
	// links are built on it.
	PublicBaseURL string
	AuthRateLimit int
	// SessionSecret signs session tokens; empty means a random secret per
	// process start.
	SessionSecret string
	SessionTTL    time.Duration

	// Document store
	DataBackend   string
	SQLiteDBPath  string
	MongoURI      string
	MongoDatabase string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Image host
	CloudinaryCloudName    string
	CloudinaryUploadPreset string
	ImageCacheSize         int
	ImageCacheTTL          time.Duration

	// Worker
	GoogleSpreadsheetID  string
	MirrorResyncSchedule string
}

func Load() *Config {
	port := getEnv("PORT", "8081")
	return &Config{
		Port:          port,
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		PublicBaseURL: strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		AuthRateLimit: getEnvInt("AUTH_RATE_LIMIT", 10),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),

		DataBackend:   getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/receipts.db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "receipts"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "receipts"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changes"),

		CloudinaryCloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryUploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", ""),
		ImageCacheSize:         getEnvInt("IMAGE_CACHE_SIZE", 64),
		ImageCacheTTL:          getEnvDuration("IMAGE_CACHE_TTL", 10*time.Minute),

		GoogleSpreadsheetID:  getEnv("GOOGLE_SPREADSHEET_ID", ""),
		MirrorResyncSchedule: getEnv("MIRROR_RESYNC_SCHEDULE", "0 3 * * *"),
	}
}

// UsesCloudinary reports whether receipt images go to Cloudinary rather than
// the in-process host.
func (c *Config) UsesCloudinary() bool {
	return c.CloudinaryCloudName != ""
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.PublicBaseURL != "" {
		if u, err := url.Parse(c.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid public base URL '%s': must be an absolute http(s) URL", c.PublicBaseURL))
		}
	}

	if c.AuthRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid auth rate limit %d: must be at least 1 request per minute", c.AuthRateLimit))
	}

	if c.SessionSecret != "" && len(c.SessionSecret) < minSessionSecret {
		errors = append(errors, fmt.Sprintf("session secret too short: must be at least %d bytes", minSessionSecret))
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

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
	case "mongo":
		if u, err := url.Parse(c.MongoURI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errors = append(errors, fmt.Sprintf("invalid Mongo URI '%s': must use mongodb:// or mongodb+srv://", c.MongoURI))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "Mongo database name cannot be empty when using mongo backend")
		}
	}

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

	if c.UsesCloudinary() && c.CloudinaryUploadPreset == "" {
		errors = append(errors, "Cloudinary upload preset is required when a cloud name is set")
	}

	if c.ImageCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid image cache size %d: must be at least 1", c.ImageCacheSize))
	}
	if c.ImageCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid image cache TTL %v: must be at least 1 second", c.ImageCacheTTL))
	}

	if c.MirrorResyncSchedule != "" {
		if _, err := cron.ParseStandard(c.MirrorResyncSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid resync schedule '%s': %v", c.MirrorResyncSchedule, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the mirror worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required for the mirror worker")
	}
	if c.DataBackend == "memory" {
		errors = append(errors, "the mirror worker needs a shared data backend (sqlite or mongo)")
	}
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
