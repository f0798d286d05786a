package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// mailKeys is the closed set of recognized keys in the MAIL_ namespace.
// Anything else under that prefix is a configuration error.
var mailKeys = map[string]struct{}{
	"MAIL_CLIENT_ID":            {},
	"MAIL_CLIENT_SECRET":        {},
	"MAIL_CALLBACK_URL":         {},
	"MAIL_REDIRECT_URL":         {},
	"MAIL_UNREAD_LABEL":         {},
	"MAIL_ATTACHMENT_UPLOAD_TO": {},
	"MAIL_SYNC_LOCK_LIFETIME":   {},
	"MAIL_GMAIL_CHUNK_SIZE":     {},
	"MAIL_STATE_SECRET":         {},
}

type Config struct {
	Port        string
	Environment string

	// Database
	DatabaseURL string
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// OAuth
	ClientID     string
	ClientSecret string
	CallbackURL  string
	RedirectURL  string
	StateSecret  string

	// Mailbox sync
	UnreadLabel        string
	AttachmentUploadTo string
	SyncLockLifetime   int
	GmailChunkSize     int64
	StorageRoot        string

	// Worker
	WorkerID        string
	WorkerCount     int
	WorkerQueueSize int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerRetryDelaySec   int

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// Tasks
	TaskRetryDelay time.Duration
	TaskMaxRetries int
}

func Load() (*Config, error) {
	if err := validateMailKeys(os.Environ()); err != nil {
		return nil, err
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_DATABASE", "mailsync"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		// OAuth
		ClientID:     getEnv("MAIL_CLIENT_ID", ""),
		ClientSecret: getEnv("MAIL_CLIENT_SECRET", ""),
		CallbackURL:  getEnv("MAIL_CALLBACK_URL", "http://localhost:8080/oauth/callback"),
		RedirectURL:  getEnv("MAIL_REDIRECT_URL", ""),
		StateSecret:  getEnv("MAIL_STATE_SECRET", ""),

		// Mailbox sync
		UnreadLabel:        getEnv("MAIL_UNREAD_LABEL", "UNREAD"),
		AttachmentUploadTo: getEnv("MAIL_ATTACHMENT_UPLOAD_TO", "downloads/attachments/%d/%s"),
		SyncLockLifetime:   getEnvInt("MAIL_SYNC_LOCK_LIFETIME", 3600),
		GmailChunkSize:     getEnvInt64("MAIL_GMAIL_CHUNK_SIZE", 1024*1024),
		StorageRoot:        getEnv("STORAGE_ROOT", "./data"),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:     getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 1000),

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 30),
		ConsumerRetryDelaySec:   getEnvInt("CONSUMER_RETRY_DELAY_SEC", 5),

		// Scheduler
		SchedulerEnabled:  getEnvBool("SCHEDULER_ENABLED", true),
		SchedulerInterval: time.Duration(getEnvInt("SCHEDULER_INTERVAL_SEC", 20)) * time.Second,

		// Tasks
		TaskRetryDelay: time.Duration(getEnvInt("TASK_RETRY_DELAY_SEC", 30)) * time.Second,
		TaskMaxRetries: getEnvInt("TASK_MAX_RETRIES", 3),
	}, nil
}

// validateMailKeys rejects unrecognized keys in the MAIL_ namespace so a
// typo in deployment config fails loudly instead of silently using a default.
func validateMailKeys(environ []string) error {
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MAIL_") {
			continue
		}
		if _, known := mailKeys[key]; !known {
			return fmt.Errorf("unknown configuration key: %s", key)
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
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Store holds the live configuration behind an atomic pointer so tests and
// signal handlers can swap it without racing readers.
type Store struct {
	current atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload re-reads the environment and swaps in the new configuration.
func (s *Store) Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}
