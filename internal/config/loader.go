package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/ridergrid/internal/domain/metric"
)

const (
	envPrefix  = "RIDERGRID_"
	envConfig  = "RIDERGRID_CONFIG"
	maxBatchSz = 50
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RIDERGRID_CONFIG is set
//  3. env (prefix RIDERGRID_)
func Load() (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// RIDERGRID_QUEUE_SIZE -> queue_size; keys stay flat to match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// The config path itself is not a field.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	cfg.DefaultColumns = splitList(cfg.DefaultColumns)
	if len(cfg.DefaultColumns) == 0 {
		cfg.DefaultColumns = base.DefaultColumns
	}
	cfg.LiveOrigins = splitList(cfg.LiveOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendRedis:
		return fmt.Errorf("%w: store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == BackendRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for the redis backend", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.RiderDBBatchSize <= 0 || c.RiderDBBatchSize > maxBatchSz:
		return fmt.Errorf("%w: riderdb_batch_size must be within 1..%d", ErrInvalidConfig, maxBatchSz)
	case c.RiderDBTimeoutMS <= 0:
		return fmt.Errorf("%w: riderdb_timeout_ms must be positive", ErrInvalidConfig)
	case c.LiveMinIntervalMS < 0:
		return fmt.Errorf("%w: live_min_interval_ms must not be negative", ErrInvalidConfig)
	}
	for _, id := range c.DefaultColumns {
		if _, ok := metric.Lookup(id); !ok {
			return fmt.Errorf("%w: default_columns: unknown column %q", ErrInvalidConfig, id)
		}
	}
	return nil
}

// splitList accepts both a YAML list and a single comma separated env value.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
