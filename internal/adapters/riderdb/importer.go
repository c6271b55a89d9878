// Package riderdb imports athlete data from the external rider database.
package riderdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/pkg/logger"
	"github.com/okian/ridergrid/pkg/metrics"
)

// MaxBatchSize is the largest number of ids the rider database accepts per request.
const MaxBatchSize = 50

const maxErrorBody = 512

// Credentials authorize requests to the rider database.
type Credentials struct {
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether c has an expiry at or before now.
func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Progress is reported after every batch.
type Progress struct {
	Batch    int
	Batches  int
	Imported int
	Failed   int
}

// Report summarizes an import. On a failed batch it still holds the
// results of the batches that completed.
type Report struct {
	JobID     string            `json:"job_id"`
	Requested int               `json:"requested"`
	Imported  []model.AthleteID `json:"imported"`
	Failed    []model.AthleteID `json:"failed"`
	Batches   int               `json:"batches"`
}

// Merger is the part of the athlete store an import writes to.
type Merger interface {
	MergeBatch(ctx context.Context, updates []repository.Update) ([]repository.MergeResult, error)
}

// Importer fetches riders in batches and merges them into the store.
type Importer struct {
	baseURL   string
	client    *http.Client
	batchSize int
	now       func() time.Time

	store    Merger
	settings *repository.Settings

	mu    sync.RWMutex
	creds *Credentials
}

type batchRequest struct {
	RiderIDs []model.AthleteID `json:"rider_ids"`
}

type batchResponse struct {
	Riders []Rider `json:"riders"`
}

// NewImporter creates an importer posting to baseURL. Stored credentials are
// loaded from settings when present.
func NewImporter(ctx context.Context, baseURL string, store Merger, settings *repository.Settings, opts ...Option) (*Importer, error) {
	i := &Importer{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 10 * time.Second},
		batchSize: MaxBatchSize,
		now:       time.Now,
		store:     store,
		settings:  settings,
	}
	for _, opt := range opts {
		opt(i)
	}

	if settings != nil {
		var c Credentials
		ok, err := settings.Load(ctx, repository.KeyCredentials, &c)
		if err != nil {
			return nil, err
		}
		if ok && c.APIKey != "" {
			i.creds = &c
		}
	}
	return i, nil
}

// SetCredentials replaces and persists the credentials.
func (i *Importer) SetCredentials(ctx context.Context, c Credentials) error {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.APIKey == "" {
		return ErrNoCredentials
	}
	if i.settings != nil {
		if err := i.settings.Save(ctx, repository.KeyCredentials, c); err != nil {
			return err
		}
	}
	i.mu.Lock()
	i.creds = &c
	i.mu.Unlock()
	return nil
}

// CheckCredentials returns ErrNoCredentials or ErrCredentialsExpired when an
// import could not start.
func (i *Importer) CheckCredentials() (Credentials, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	if i.creds.Expired(i.now()) {
		return Credentials{}, ErrCredentialsExpired
	}
	return *i.creds, nil
}

// Import fetches ids in batches and merges the riders found. The first
// non-2xx response aborts the remaining batches. There is no retry.
func (i *Importer) Import(ctx context.Context, ids []model.AthleteID, progress func(Progress)) (Report, error) {
	creds, err := i.CheckCredentials()
	if err != nil {
		return Report{}, err
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return Report{}, ErrNoRiders
	}

	rep := Report{
		JobID:     uuid.NewString(),
		Requested: len(ids),
		Imported:  []model.AthleteID{},
		Failed:    []model.AthleteID{},
	}
	total := (len(ids) + i.batchSize - 1) / i.batchSize
	log := logger.Get().With(logger.String("job_id", rep.JobID))
	log.Info(ctx, "rider import started", logger.Int("riders", len(ids)), logger.Int("batches", total))

	for start := 0; start < len(ids); start += i.batchSize {
		end := min(start+i.batchSize, len(ids))
		batch := ids[start:end]

		began := time.Now()
		riders, err := i.fetch(ctx, creds, batch)
		latency := float64(time.Since(began).Milliseconds())
		if err != nil {
			metrics.RecordImportBatch("failed", latency)
			metrics.RecordErrorByComponent("riderdb", "batch")
			log.Error(ctx, "rider import aborted", logger.Int("batch", rep.Batches+1), logger.Error(err))
			return rep, err
		}
		metrics.RecordImportBatch("ok", latency)
		rep.Batches++

		imported, failed, err := i.merge(ctx, batch, riders)
		if err != nil {
			return rep, err
		}
		rep.Imported = append(rep.Imported, imported...)
		rep.Failed = append(rep.Failed, failed...)
		metrics.RecordImportRiders("imported", len(imported))
		metrics.RecordImportRiders("not_found", len(failed))

		if progress != nil {
			progress(Progress{Batch: rep.Batches, Batches: total, Imported: len(rep.Imported), Failed: len(rep.Failed)})
		}
	}

	log.Info(ctx, "rider import finished",
		logger.Int("imported", len(rep.Imported)),
		logger.Int("failed", len(rep.Failed)))
	return rep, nil
}

func (i *Importer) fetch(ctx context.Context, creds Credentials, batch []model.AthleteID) ([]Rider, error) {
	body, err := json.Marshal(batchRequest{RiderIDs: batch})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/riders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBatchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBatchFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrBatchFailed, err)
	}
	return out.Riders, nil
}

// merge writes the riders that were asked for. Requested ids missing from
// the response are reported as failed.
func (i *Importer) merge(ctx context.Context, batch []model.AthleteID, riders []Rider) (imported, failed []model.AthleteID, err error) {
	byID := make(map[model.AthleteID]Rider, len(riders))
	for _, r := range riders {
		byID[r.ID] = r
	}

	now := i.now()
	updates := make([]repository.Update, 0, len(batch))
	for _, id := range batch {
		r, ok := byID[id]
		if !ok {
			failed = append(failed, id)
			continue
		}
		updates = append(updates, repository.Update{ID: id, Fields: r.Fields(), TS: now, Imported: true})
		imported = append(imported, id)
	}
	if len(updates) > 0 {
		if _, err := i.store.MergeBatch(ctx, updates); err != nil {
			return nil, nil, err
		}
	}
	return imported, failed, nil
}

func uniqueIDs(ids []model.AthleteID) []model.AthleteID {
	seen := make(map[model.AthleteID]struct{}, len(ids))
	out := make([]model.AthleteID, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
