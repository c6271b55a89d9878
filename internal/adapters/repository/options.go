package repository

import "time"

// Option applies a configuration option to the AthleteStore.
type Option func(*AthleteStore)

// WithKey overrides the blob key holding the athlete map.
func WithKey(key string) Option {
	return func(s *AthleteStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock replaces time.Now, used for edit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AthleteStore) {
		if now != nil {
			s.now = now
		}
	}
}
