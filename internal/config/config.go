package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	AI       AIConfig       `mapstructure:"ai" validate:"required"`
	Ingest   IngestConfig   `mapstructure:"ingest" validate:"required"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Database backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DatabaseConfig contains all database-related configuration settings.
// The memory backend keeps jobs in process and is meant for local runs.
type DatabaseConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=postgres memory"`
	URL     string `mapstructure:"url" validate:"required_if=Backend postgres"`
}

// AI providers.
const (
	ProviderHTTP   = "http"
	ProviderGemini = "gemini"
)

// AIConfig configures the transcription and analysis backend and the retry
// policy applied to every call made to it.
type AIConfig struct {
	Provider       string        `mapstructure:"provider" validate:"required,oneof=http gemini"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay      time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	GeminiAPIKey   string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	ModelName      string        `mapstructure:"model_name" validate:"required_if=Provider gemini"`
}

// IngestConfig bounds streaming uploads.
type IngestConfig struct {
	Dir            string        `mapstructure:"dir"`
	MaxBytes       int64         `mapstructure:"max_bytes" validate:"gt=0"`
	ChunkSize      int           `mapstructure:"chunk_size" validate:"gte=512"`
	StallThreshold time.Duration `mapstructure:"stall_threshold" validate:"gt=0"`
	PollBackoff    time.Duration `mapstructure:"poll_backoff" validate:"gt=0"`
	HintWindow     int           `mapstructure:"hint_window" validate:"gte=64"`
}

// JobsConfig sizes the worker pool and its queues.
type JobsConfig struct {
	WorkerCount       int           `mapstructure:"worker_count" validate:"gte=1"`
	QueueSize         int           `mapstructure:"queue_size" validate:"gte=1"`
	EnqueueTimeout    time.Duration `mapstructure:"enqueue_timeout" validate:"gte=0"`
	PurgeFailedOnList bool          `mapstructure:"purge_failed_on_list"`
	PurgeQueueSize    int           `mapstructure:"purge_queue_size" validate:"gte=1"`
}

// CleanupConfig drives the retention sweeper. Values are in hours.
type CleanupConfig struct {
	JobMaxAgeHours int `mapstructure:"job_max_age_hours" validate:"gte=0"`
	IntervalHours  int `mapstructure:"interval_hours" validate:"gte=1"`
}

// MaxAge returns the retention window.
func (c CleanupConfig) MaxAge() time.Duration {
	return time.Duration(c.JobMaxAgeHours) * time.Hour
}

// Interval returns the sweep period.
func (c CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// AuthConfig enables bearer-token identity when JWTSecret is set. Without
// it the owner is taken from the userID query parameter.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=1,lte=44640"`
}

// Enabled reports whether JWT authentication is configured.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// ArchiveConfig points at an S3-compatible bucket that keeps a copy of
// ingested audio. Leaving Endpoint empty disables archiving.
type ArchiveConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key" validate:"required_with=Endpoint"`
	SecretKey string `mapstructure:"secret_key" validate:"required_with=Endpoint"`
	Bucket    string `mapstructure:"bucket" validate:"required_with=Endpoint"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether an archive bucket is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// EventsConfig configures publication of job status events to RabbitMQ.
// Leaving AMQPURL empty keeps events in process.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=AMQPURL"`
}

// Enabled reports whether a broker is configured.
func (c EventsConfig) Enabled() bool {
	return c.AMQPURL != ""
}
