// Package config loads the worker's configuration from the environment,
// the way the teacher's viper-based config layer does, with defaults for
// every variable spec.md §6 marks optional.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the immutable configuration snapshot handed to every component
// at startup. Nothing in the worker re-reads the environment after boot.
type Config struct {
	Database  DatabaseConfig `mapstructure:"database"`
	Bus       BusConfig      `mapstructure:"bus"`
	FCM       FCMConfig      `mapstructure:"fcm"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Worker    WorkerConfig   `mapstructure:"worker"`
	Health    HealthConfig   `mapstructure:"health"`
	DebugMode bool           `mapstructure:"debug_mode"`
	Logger    LoggerConfig   `mapstructure:"logger"`
}

// LoggerConfig holds logging-specific settings.
type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig holds the DB Gateway's connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// BusConfig holds the Bus Publisher's settings.
type BusConfig struct {
	URL          string `mapstructure:"url"`
	ServiceToken string `mapstructure:"service_token"`
}

// FCMConfig holds the Push Publisher's settings.
type FCMConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// RedisConfig holds the optional shared-cache settings. An empty Addr
// disables Redis-backed caching; components fall back to in-process state.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the worker loop's scheduling and retry settings.
type WorkerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// HealthConfig holds the health/metrics HTTP server's settings.
type HealthConfig struct {
	Port string `mapstructure:"port"`
}

// NewConfig reads environment variables into a Config, applying the
// defaults spec.md §6 specifies.
func NewConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("worker.poll_interval", 60*time.Second)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.shutdown_grace", 15*time.Second)
	v.SetDefault("health.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("debug_mode", false)

	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("bus.url", "WEBSOCKET_BUS_URL")
	v.BindEnv("bus.service_token", "SERVICE_TOKEN")
	v.BindEnv("fcm.project_id", "FCM_PROJECT_ID")
	v.BindEnv("fcm.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	v.BindEnv("worker.poll_interval", "WORKER_POLL_INTERVAL_SECS")
	v.BindEnv("worker.batch_size", "WORKER_BATCH_SIZE")
	v.BindEnv("worker.max_retries", "MAX_RETRIES")
	v.BindEnv("health.port", "WEBSOCKET_PORT")
	v.BindEnv("worker.shutdown_grace", "SHUTDOWN_GRACE_SECS")
	v.BindEnv("debug_mode", "DEBUG_MODE")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// secondsToDurationHookFunc converts the bare-integer-seconds form spec.md
// §6 specifies for WORKER_POLL_INTERVAL_SECS and SHUTDOWN_GRACE_SECS (e.g.
// "60") into a time.Duration, ahead of mapstructure's stricter
// StringToTimeDurationHookFunc which only accepts Go duration syntax.
func secondsToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) || from == to {
			return data, nil
		}
		switch from.Kind() {
		case reflect.String:
			s := data.(string)
			if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
			return data, nil
		case reflect.Int, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		default:
			return data, nil
		}
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.Bus.URL == "" {
		return fmt.Errorf("config: WEBSOCKET_BUS_URL is required")
	}
	if c.Bus.ServiceToken == "" {
		return fmt.Errorf("config: SERVICE_TOKEN is required")
	}
	if c.FCM.ProjectID == "" {
		return fmt.Errorf("config: FCM_PROJECT_ID is required")
	}
	if c.FCM.CredentialsFile == "" {
		return fmt.Errorf("config: GOOGLE_APPLICATION_CREDENTIALS is required")
	}
	return nil
}
