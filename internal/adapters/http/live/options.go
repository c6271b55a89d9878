package live

import (
	"time"

	"github.com/okian/ridergrid/pkg/logger"
)

// Option configures a Hub.
type Option func(*Hub)

// WithMinInterval sets the minimum gap between two pushes to one client.
func WithMinInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.minInterval = d
		}
	}
}

// WithOriginPatterns allows cross-origin upgrades from the given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) {
		h.originPatterns = append([]string(nil), patterns...)
	}
}

// WithWriteTimeout bounds each push.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}
