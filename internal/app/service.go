// Package service wires the store, ranking engine, telemetry pipeline and
// rider database importer behind the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/ridergrid/internal/adapters/mq/queue"
	"github.com/okian/ridergrid/internal/adapters/mq/worker"
	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/adapters/riderdb"
	"github.com/okian/ridergrid/internal/domain/dedupe"
	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/ranking"
	"github.com/okian/ridergrid/pkg/logger"
	"github.com/okian/ridergrid/pkg/metrics"
)

// NearbySource names the source rebuilt from every telemetry snapshot.
const NearbySource = "nearby"

// Snapshot is one telemetry push: the riders currently around the user.
type Snapshot struct {
	Riders []model.Sample `json:"riders"`
	TS     time.Time      `json:"ts"`
}

// IngestResult counts what happened to the samples of a snapshot.
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// ImportRequest selects riders to import, by id or by a roster's entrants.
type ImportRequest struct {
	IDs    []model.AthleteID `json:"ids"`
	Source string            `json:"source,omitempty"`
}

// Service owns every stateful component of the process.
type Service struct {
	mu sync.RWMutex

	blobs    repository.BlobStore
	store    *repository.AthleteStore
	settings *repository.Settings
	engine   *ranking.Engine
	tracker  *worker.Tracker
	importer *riderdb.Importer
	deduper  dedupe.Deduper
	queue    *queue.InMemoryQueue
	pool     *worker.Pool

	workerCount      int
	queueSize        int
	dedupeSize       int
	riderDBURL       string
	riderDBTimeout   time.Duration
	riderDBBatchSize int
	httpClient       *http.Client
	defaultColumns   []string

	rosters map[string]ranking.Source
	nearby  ranking.Source
	changes chan struct{}

	started bool
	logger  logger.Logger
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      4,
		queueSize:        10_000,
		dedupeSize:       50_000,
		riderDBURL:       "https://riderdb.example.com/api",
		riderDBTimeout:   10 * time.Second,
		riderDBBatchSize: riderdb.MaxBatchSize,
		defaultColumns:   metric.DefaultColumnIDs(),
		rosters:          make(map[string]ranking.Source),
		nearby:           ranking.Source{Name: NearbySource, Tag: model.TagNearby},
		changes:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads persisted state and starts the telemetry workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.blobs == nil {
		s.blobs = repository.NewMemoryBlobStore()
	}

	store, err := repository.NewAthleteStore(ctx, s.blobs)
	if err != nil {
		return fmt.Errorf("load athletes: %w", err)
	}
	s.store = store
	s.settings = repository.NewSettings(s.blobs)
	s.tracker = worker.NewTracker(store, s.notify)
	s.engine = ranking.NewEngine(s.tracker)

	var mode worker.MaxMode
	if ok, err := s.settings.Load(ctx, repository.KeyMaxMode, &mode); err != nil {
		return fmt.Errorf("load max mode: %w", err)
	} else if ok {
		if m, err := worker.ParseMaxMode(string(mode)); err == nil {
			s.tracker.SetMode(m)
		}
	}

	var rosters []ranking.Source
	if _, err := s.settings.Load(ctx, repository.KeyRosters, &rosters); err != nil {
		return fmt.Errorf("load rosters: %w", err)
	}
	for _, r := range rosters {
		s.rosters[r.Name] = r
	}

	importerOpts := []riderdb.Option{
		riderdb.WithTimeout(s.riderDBTimeout),
		riderdb.WithBatchSize(s.riderDBBatchSize),
	}
	if s.httpClient != nil {
		importerOpts = append(importerOpts, riderdb.WithHTTPClient(s.httpClient))
	}
	s.importer, err = riderdb.NewImporter(ctx, s.riderDBURL, store, s.settings, importerOpts...)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.tracker)
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "ridergrid service started",
		logger.Int("athletes", store.Count(ctx)),
		logger.Int("rosters", len(s.rosters)),
		logger.Int("workers", s.workerCount),
		logger.String("max_mode", string(s.tracker.Mode())))
	return nil
}

// Stop drains the telemetry queue and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	err := s.pool.Shutdown(ctx)
	s.logger.Info(ctx, "ridergrid service stopped")
	return err
}

// Changes signals, coalesced, that a rebuilt cohort may differ: the store,
// the rosters or the nearby snapshot changed. It has a single consumer.
func (s *Service) Changes() <-chan struct{} {
	return s.changes
}

func (s *Service) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// BuildCohort renders the table for sess. Sources are resolved by name;
// an empty list compares every roster plus the nearby snapshot.
func (s *Service) BuildCohort(ctx context.Context, sess ranking.Session) (ranking.Result, error) {
	if err := s.ready(); err != nil {
		return ranking.Result{}, err
	}
	sess = sess.Normalize(s.defaultColumns)

	s.mu.RLock()
	names := sess.Sources
	if len(names) == 0 {
		names = s.sourceNamesLocked()
	}
	sources := make([]ranking.Source, 0, len(names))
	var missing []string
	for _, n := range names {
		src, ok := s.sourceLocked(n)
		if !ok {
			missing = append(missing, n)
			continue
		}
		sources = append(sources, src)
	}
	s.mu.RUnlock()

	if len(missing) > 0 {
		return ranking.Result{}, fmt.Errorf("%w: %s", ErrUnknownSource, strings.Join(missing, ", "))
	}
	req, err := sess.Request(sources)
	if err != nil {
		return ranking.Result{}, err
	}
	return s.engine.Build(ctx, req)
}

func (s *Service) sourceLocked(name string) (ranking.Source, bool) {
	if name == NearbySource {
		return s.nearby, true
	}
	src, ok := s.rosters[name]
	return src, ok
}

func (s *Service) sourceNamesLocked() []string {
	names := make([]string, 0, len(s.rosters)+1)
	for n := range s.rosters {
		names = append(names, n)
	}
	sort.Strings(names)
	return append(names, NearbySource)
}

// PutRoster adds or replaces a roster and persists the set.
func (s *Service) PutRoster(ctx context.Context, src ranking.Source) error {
	if err := s.ready(); err != nil {
		return err
	}
	if src.Name == NearbySource {
		return fmt.Errorf("%w: %s", ErrReservedSource, src.Name)
	}

	s.mu.Lock()
	s.rosters[src.Name] = src
	all := s.rostersLocked()
	s.mu.Unlock()

	if err := s.settings.Save(ctx, repository.KeyRosters, all); err != nil {
		return err
	}
	s.notify()
	return nil
}

// DeleteRoster removes a roster by name.
func (s *Service) DeleteRoster(ctx context.Context, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.rosters[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	delete(s.rosters, name)
	all := s.rostersLocked()
	s.mu.Unlock()

	if err := s.settings.Save(ctx, repository.KeyRosters, all); err != nil {
		return err
	}
	s.notify()
	return nil
}

// Rosters returns every roster ordered by name.
func (s *Service) Rosters() []ranking.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rostersLocked()
}

func (s *Service) rostersLocked() []ranking.Source {
	out := make([]ranking.Source, 0, len(s.rosters))
	for _, r := range s.rosters {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IngestTelemetry replaces the nearby source with snap and queues its
// readings for max tracking. Repeated (athlete, timestamp) pairs are dropped.
func (s *Service) IngestTelemetry(ctx context.Context, snap Snapshot) (IngestResult, error) {
	if err := s.ready(); err != nil {
		return IngestResult{}, err
	}
	ts := snap.TS
	if ts.IsZero() {
		ts = time.Now()
	}

	var res IngestResult
	entrants := make([]ranking.Entrant, 0, len(snap.Riders))
	for _, smp := range snap.Riders {
		if smp.TS.IsZero() {
			smp.TS = ts
		}
		if err := smp.Validate(); err != nil {
			res.Rejected++
			s.logger.Debug(ctx, "telemetry sample rejected", logger.Error(err))
			continue
		}
		entrants = append(entrants, ranking.Entrant{
			AthleteID:  smp.AthleteID,
			Name:       smp.Name,
			Team:       smp.Team,
			EventGroup: smp.EventGroup,
			HeartRate:  smp.HeartRate,
		})

		key := dedupe.SampleKey(smp.AthleteID, smp.TS)
		if s.deduper.SeenAndRecord(ctx, key) {
			res.Duplicates++
			metrics.RecordTelemetryDuplicate()
			continue
		}
		if !s.queue.Enqueue(ctx, smp) {
			s.deduper.Unrecord(ctx, key)
			res.Rejected++
			s.logger.Warn(ctx, "telemetry sample dropped",
				logger.Int64("athlete", int64(smp.AthleteID)),
				logger.Error(queue.ErrQueueFull))
			continue
		}
		res.Accepted++
		metrics.RecordTelemetrySample()
	}

	s.mu.Lock()
	s.nearby = ranking.Source{Name: NearbySource, Tag: model.TagNearby, Entrants: entrants}
	s.mu.Unlock()
	s.notify()
	return res, nil
}

// Import fetches riders from the rider database. When req.Source names a
// roster its entrants are imported along with req.IDs.
func (s *Service) Import(ctx context.Context, req ImportRequest, progress func(riderdb.Progress)) (riderdb.Report, error) {
	if err := s.ready(); err != nil {
		return riderdb.Report{}, err
	}
	ids := append([]model.AthleteID(nil), req.IDs...)
	if req.Source != "" {
		s.mu.RLock()
		src, ok := s.sourceLocked(req.Source)
		s.mu.RUnlock()
		if !ok {
			return riderdb.Report{}, fmt.Errorf("%w: %s", ErrUnknownSource, req.Source)
		}
		for _, e := range src.Entrants {
			ids = append(ids, e.AthleteID)
		}
	}

	rep, err := s.importer.Import(ctx, ids, progress)
	if len(rep.Imported) > 0 {
		s.notify()
	}
	return rep, err
}

// SetCredentials stores the rider database credentials.
func (s *Service) SetCredentials(ctx context.Context, c riderdb.Credentials) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.importer.SetCredentials(ctx, c)
}

// SetMaxMode switches and persists the live max-tracking baseline.
func (s *Service) SetMaxMode(ctx context.Context, raw string) (worker.MaxMode, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	m, err := worker.ParseMaxMode(raw)
	if err != nil {
		return "", err
	}
	if err := s.settings.Save(ctx, repository.KeyMaxMode, m); err != nil {
		return "", err
	}
	s.tracker.SetMode(m)
	s.notify()
	return m, nil
}

// Athlete returns the stored record for id.
func (s *Service) Athlete(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rec, ok := s.store.Get(ctx, id)
	if !ok {
		return nil, fmt.Errorf("athlete %d: %w", id, repository.ErrNotFound)
	}
	return rec, nil
}

// Athletes returns every stored record ordered by id.
func (s *Service) Athletes(ctx context.Context) ([]*model.AthleteRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	all := s.store.GetAll(ctx)
	out := make([]*model.AthleteRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// EditAthlete applies user edits. Each edited field is pinned against
// imports and telemetry.
func (s *Service) EditAthlete(ctx context.Context, id model.AthleteID, fields map[string]model.Value) (*model.AthleteRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", repository.ErrInvalidField)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rec *model.AthleteRecord
	for _, k := range keys {
		var err error
		if rec, err = s.store.Edit(ctx, id, k, fields[k]); err != nil {
			return nil, err
		}
	}
	s.notify()
	return rec, nil
}

// ClearEdit unpins a user-edited field.
func (s *Service) ClearEdit(ctx context.Context, id model.AthleteID, field string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.store.ClearEdit(ctx, id, field)
}

// RemoveAthlete deletes one stored record.
func (s *Service) RemoveAthlete(ctx context.Context, id model.AthleteID) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.notify()
	return nil
}

// ResetAthletes deletes every stored record.
func (s *Service) ResetAthletes(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	s.notify()
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	_, credErr := s.importer.CheckCredentials()
	stats["athletes"] = s.store.Count(ctx)
	stats["storeVersion"] = s.store.Version()
	stats["rosters"] = len(s.rosters)
	stats["nearby"] = len(s.nearby.Entrants)
	stats["queueLength"] = s.queue.Len(ctx)
	stats["dedupeEntries"] = s.deduper.Size()
	stats["maxMode"] = string(s.tracker.Mode())
	stats["credentials"] = credentialState(credErr)
	return stats
}

func credentialState(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, riderdb.ErrCredentialsExpired):
		return "expired"
	default:
		return "missing"
	}
}
