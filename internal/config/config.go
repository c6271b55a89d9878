// Package config defines service configuration structures and loading hooks.
package config

import (
	"runtime"

	"github.com/okian/ridergrid/internal/domain/metric"
)

// Store backends accepted by StoreBackend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects where the athlete blob lives: memory or redis.
	StoreBackend  string `koanf:"store_backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	// RedisPrefix namespaces every key written to Redis.
	RedisPrefix string `koanf:"redis_prefix"`

	// QueueSize bounds the in-memory telemetry queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of telemetry workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many sample keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// RiderDBURL is the base URL of the external rider database.
	RiderDBURL       string `koanf:"riderdb_url"`
	RiderDBTimeoutMS int    `koanf:"riderdb_timeout_ms"`
	RiderDBBatchSize int    `koanf:"riderdb_batch_size"`

	// LiveMinIntervalMS gates how often the live feed recomputes the cohort.
	LiveMinIntervalMS int `koanf:"live_min_interval_ms"`

	// LiveOrigins lists host patterns allowed to open the live feed from
	// another origin.
	LiveOrigins []string `koanf:"live_origins"`

	// DefaultColumns is used when a session names no columns.
	DefaultColumns []string `koanf:"default_columns"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		StoreBackend:      BackendMemory,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "ridergrid:",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        50_000,
		RiderDBURL:        "https://riderdb.example.com/api",
		RiderDBTimeoutMS:  10_000,
		RiderDBBatchSize:  50,
		LiveMinIntervalMS: 500,
		DefaultColumns:    metric.DefaultColumnIDs(),
	}
}
