package service

import (
	"net/http"
	"time"

	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBlobStore sets where athletes and settings are persisted.
func WithBlobStore(b repository.BlobStore) Option {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

// WithWorkerCount sets the number of telemetry workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the telemetry queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many sample keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRiderDB configures the rider database endpoint.
func WithRiderDB(baseURL string, timeout time.Duration, batchSize int) Option {
	return func(s *Service) {
		if baseURL != "" {
			s.riderDBURL = baseURL
		}
		if timeout > 0 {
			s.riderDBTimeout = timeout
		}
		if batchSize > 0 {
			s.riderDBBatchSize = batchSize
		}
	}
}

// WithHTTPClient sets the client used for the rider database.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.httpClient = c
	}
}

// WithDefaultColumns sets the columns used when a session names none.
func WithDefaultColumns(ids []string) Option {
	return func(s *Service) {
		if len(ids) > 0 {
			s.defaultColumns = append([]string(nil), ids...)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
