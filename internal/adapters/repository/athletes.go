package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/pkg/metrics"
)

// MergeResult lists which incoming fields were written and which were kept
// because a user had edited them.
type MergeResult struct {
	Applied   []string `json:"applied"`
	Protected []string `json:"protected"`
}

// Update is one record's worth of incoming fields for MergeBatch.
type Update struct {
	ID       model.AthleteID
	Fields   map[string]model.Value
	TS       time.Time
	Imported bool
}

// AthleteStore is the in-memory athlete map, persisted as one blob after
// every mutation.
//
// Merge contract: an incoming field never overwrites a user-edited field.
// Everything else is last writer wins. Null incoming values carry no
// information and are skipped.
type AthleteStore struct {
	mu      sync.RWMutex
	byID    map[model.AthleteID]*model.AthleteRecord
	blobs   BlobStore
	key     string
	now     func() time.Time
	version uint64
}

// NewAthleteStore loads the athlete map from blobs. A missing blob starts empty.
func NewAthleteStore(ctx context.Context, blobs BlobStore, opts ...Option) (*AthleteStore, error) {
	s := &AthleteStore{
		byID:  make(map[model.AthleteID]*model.AthleteRecord),
		blobs: blobs,
		key:   KeyAthletes,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	b, err := blobs.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, &s.byID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
		}
		for id, rec := range s.byID {
			if rec == nil {
				delete(s.byID, id)
				continue
			}
			rec.ID = id
			if rec.Fields == nil {
				rec.Fields = make(map[string]model.Value)
			}
			if rec.UserEdited == nil {
				rec.UserEdited = make(map[string]bool)
			}
		}
	}
	metrics.UpdateStoreRecords(len(s.byID))
	return s, nil
}

// Get returns a copy of the record for id.
func (s *AthleteStore) Get(_ context.Context, id model.AthleteID) (*model.AthleteRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetAll returns copies of every record.
func (s *AthleteStore) GetAll(_ context.Context) map[model.AthleteID]*model.AthleteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.AthleteID]*model.AthleteRecord, len(s.byID))
	for id, rec := range s.byID {
		out[id] = rec.Clone()
	}
	return out
}

// Count returns the number of stored records.
func (s *AthleteStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Version increases on every successful mutation.
func (s *AthleteStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Merge applies fields to the record for id, creating it if absent.
func (s *AthleteStore) Merge(ctx context.Context, id model.AthleteID, fields map[string]model.Value, ts time.Time) (MergeResult, error) {
	res, err := s.MergeBatch(ctx, []Update{{ID: id, Fields: fields, TS: ts}})
	if err != nil {
		return MergeResult{}, err
	}
	return res[0], nil
}

// MergeBatch merges every update, then persists once.
func (s *AthleteStore) MergeBatch(ctx context.Context, updates []Update) ([]MergeResult, error) {
	for _, u := range updates {
		if u.ID <= 0 {
			return nil, fmt.Errorf("%w: athlete id %d", ErrInvalidField, u.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]MergeResult, len(updates))
	applied, protected := 0, 0
	for i, u := range updates {
		rec, ok := s.byID[u.ID]
		if !ok {
			rec = model.NewAthleteRecord(u.ID)
			s.byID[u.ID] = rec
		}
		results[i] = mergeInto(rec, u.Fields)
		rec.LastUpdated = u.TS
		if u.Imported {
			rec.ImportedAt = u.TS
		}
		applied += len(results[i].Applied)
		protected += len(results[i].Protected)
	}
	metrics.RecordStoreMerge(applied, protected)
	return results, s.persistLocked(ctx)
}

func mergeInto(rec *model.AthleteRecord, fields map[string]model.Value) MergeResult {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := MergeResult{Applied: []string{}, Protected: []string{}}
	for _, k := range keys {
		v := fields[k]
		if k == "" || v.IsNull() {
			continue
		}
		if rec.IsUserEdited(k) {
			res.Protected = append(res.Protected, k)
			continue
		}
		rec.SetField(k, v)
		res.Applied = append(res.Applied, k)
	}
	return res
}

// Edit records a human edit of field. The field is pinned against merges
// until ClearEdit. Editing an unknown athlete creates the record.
func (s *AthleteStore) Edit(ctx context.Context, id model.AthleteID, field string, v model.Value) (*model.AthleteRecord, error) {
	field = strings.TrimSpace(field)
	if field == "" || id <= 0 {
		return nil, fmt.Errorf("%w: %q on athlete %d", ErrInvalidField, field, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		rec = model.NewAthleteRecord(id)
		s.byID[id] = rec
	}
	rec.SetField(field, v)
	rec.UserEdited[field] = true
	rec.LastUpdated = s.now()
	return rec.Clone(), s.persistLocked(ctx)
}

// ClearEdit unpins field so later merges may overwrite it.
func (s *AthleteStore) ClearEdit(ctx context.Context, id model.AthleteID, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !rec.UserEdited[field] {
		return nil
	}
	delete(rec.UserEdited, field)
	return s.persistLocked(ctx)
}

// Remove deletes the record for id.
func (s *AthleteStore) Remove(ctx context.Context, id model.AthleteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return s.persistLocked(ctx)
}

// Reset deletes every record.
func (s *AthleteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[model.AthleteID]*model.AthleteRecord)
	return s.persistLocked(ctx)
}

// persistLocked writes the whole map. The in-memory state is kept even when
// the write fails. Callers hold s.mu.
func (s *AthleteStore) persistLocked(ctx context.Context) error {
	s.version++
	metrics.UpdateStoreRecords(len(s.byID))

	start := time.Now()
	b, err := json.Marshal(s.byID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.blobs.Set(ctx, s.key, b); err != nil {
		metrics.RecordErrorByComponent("repository", "persist")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	metrics.RecordStorePersistLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}
