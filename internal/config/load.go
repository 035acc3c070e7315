package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the service reads,
// e.g. TASKCONVERT_SERVER_PORT for server.port.
const EnvPrefix = "TASKCONVERT"

// defaults lists every configuration key. Viper only resolves environment
// variables for keys it knows about, so optional keys are listed too.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": "10s",

	"database.backend": BackendPostgres,
	"database.url":     "",

	"ai.provider":        ProviderHTTP,
	"ai.base_url":        "http://localhost:9000",
	"ai.request_timeout": "15s",
	"ai.max_attempts":    3,
	"ai.base_delay":      "1s",
	"ai.gemini_api_key":  "",
	"ai.model_name":      "gemini-2.0-flash",

	"ingest.dir":             "",
	"ingest.max_bytes":       int64(500 * 1024 * 1024),
	"ingest.chunk_size":      64 * 1024,
	"ingest.stall_threshold": "5s",
	"ingest.poll_backoff":    "5ms",
	"ingest.hint_window":     2048,

	"jobs.worker_count":         4,
	"jobs.queue_size":           100,
	"jobs.enqueue_timeout":      "2s",
	"jobs.purge_failed_on_list": true,
	"jobs.purge_queue_size":     16,

	"cleanup.job_max_age_hours": 24,
	"cleanup.interval_hours":    6,

	"auth.jwt_secret":             "",
	"auth.token_lifetime_minutes": 60,

	"archive.endpoint":   "",
	"archive.access_key": "",
	"archive.secret_key": "",
	"archive.bucket":     "",
	"archive.use_ssl":    false,

	"events.amqp_url": "",
	"events.exchange": "taskconvert.jobs",
}

// Load configuration from environment variables and optionally a
// config.yaml in the working directory.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml. A missing explicit file is an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
