package riderdb

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the Importer.
type Option func(*Importer)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Importer) {
		if c != nil {
			i.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(i *Importer) {
		if d > 0 {
			i.client.Timeout = d
		}
	}
}

// WithBatchSize sets how many ids are sent per request, capped at MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 && n <= MaxBatchSize {
			i.batchSize = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		if now != nil {
			i.now = now
		}
	}
}
