package ridesim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ridergrid/pkg/logger"
)

const maxErrorBody = 256

// HTTPClient wraps http.Client with JSON helpers.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// PostJSON posts body and decodes a 2xx response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// submitSnapshots pushes every snapshot through a worker pool.
func submitSnapshots(ctx context.Context, cfg *Config, client *HTTPClient, snaps []snapshot, stats *Stats) {
	logger.Get().Info(ctx, "submitting snapshots",
		logger.Int("snapshots", len(snaps)),
		logger.Int("workers", cfg.Workers))

	var submitted, failed, accepted, duplicates, rejected int64

	work := make(chan snapshot, cfg.Workers*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range work {
				var res ingestResult
				err := client.PostJSON(ctx, "/telemetry", snap, &res)
				atomic.AddInt64(&submitted, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						logger.Get().Warn(ctx, "snapshot failed", logger.Error(err))
					}
					continue
				}
				atomic.AddInt64(&accepted, int64(res.Accepted))
				atomic.AddInt64(&duplicates, int64(res.Duplicates))
				atomic.AddInt64(&rejected, int64(res.Rejected))
			}
		}()
	}

	func() {
		defer close(work)
		for _, s := range snaps {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()
	wg.Wait()

	stats.SnapshotsSubmitted = int(submitted)
	stats.SnapshotsFailed = int(failed)
	stats.SamplesAccepted = int(accepted)
	stats.SamplesDuplicate = int(duplicates)
	stats.SamplesRejected = int(rejected)

	logger.Get().Info(ctx, "snapshot submission completed",
		logger.Int("failed", stats.SnapshotsFailed),
		logger.Int("accepted", stats.SamplesAccepted),
		logger.Int("duplicates", stats.SamplesDuplicate),
		logger.Int("rejected", stats.SamplesRejected))
}
