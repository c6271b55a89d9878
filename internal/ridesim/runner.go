package ridesim

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ridergrid/pkg/logger"
)

// Run executes a complete simulation: health check, generation,
// concurrent submission and verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Riders <= 0 || cfg.Snapshots <= 0 {
		return nil, fmt.Errorf("riders and snapshots must be positive")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting ride simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("riders", cfg.Riders),
		logger.Int("snapshots", cfg.Snapshots),
		logger.Int("workers", cfg.Workers),
		logger.Duration("settle", cfg.Settle))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := checkServiceHealth(ctx, client); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	p := generate(cfg, time.Now())
	submitSnapshots(ctx, cfg, client, p.snapshots, stats)
	if stats.SnapshotsFailed > 0 {
		return stats, fmt.Errorf("%d of %d snapshots failed", stats.SnapshotsFailed, stats.SnapshotsSubmitted)
	}

	err := verifyMaxima(ctx, cfg, client, p, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, err
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var samplesPerSecond float64
	if stats.Duration > 0 {
		samplesPerSecond = float64(stats.SamplesAccepted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("snapshotsSubmitted", stats.SnapshotsSubmitted),
		logger.Int("snapshotsFailed", stats.SnapshotsFailed),
		logger.Int("samplesAccepted", stats.SamplesAccepted),
		logger.Int("samplesDuplicate", stats.SamplesDuplicate),
		logger.Int("samplesRejected", stats.SamplesRejected),
		logger.Int("ridersVerified", stats.RidersVerified),
		logger.Int("ridersAboveSent", stats.RidersAboveSent),
		logger.Duration("duration", stats.Duration),
		logger.Float64("samplesPerSecond", samplesPerSecond))
}
