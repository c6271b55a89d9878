package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/pkg/metrics"
)

// MaxMode selects the baseline a live reading must beat.
type MaxMode string

const (
	// ModeStored compares against the value already in the store.
	ModeStored MaxMode = "stored"
	// ModeSession compares against the maxima seen since the process started.
	ModeSession MaxMode = "session"
)

// ErrUnknownMode is returned by ParseMaxMode.
var ErrUnknownMode = errors.New("unknown max mode")

// ParseMaxMode accepts "stored" or "session", case-insensitive.
func ParseMaxMode(s string) (MaxMode, error) {
	switch m := MaxMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStored, ModeSession:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Store is what the tracker reads baselines from and merges into.
type Store interface {
	Get(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, bool)
	Merge(ctx context.Context, id model.AthleteID, fields map[string]model.Value, ts time.Time) (repository.MergeResult, error)
}

// Tracker keeps per-field maxima from live telemetry. The store only ever
// receives readings that beat its own value; the store's user-edit pin still
// applies. In ModeSession the maxima seen since start are laid over the
// stored records by Get, so the table shows this session's bests without
// touching persisted data.
type Tracker struct {
	store    Store
	onChange func()

	mu      sync.Mutex
	mode    MaxMode
	session map[model.AthleteID]map[string]float64
}

// NewTracker creates a tracker in ModeStored.
func NewTracker(store Store, onChange func()) *Tracker {
	return &Tracker{
		store:    store,
		onChange: onChange,
		mode:     ModeStored,
		session:  make(map[model.AthleteID]map[string]float64),
	}
}

// SetMode switches the baseline. Session maxima are kept across switches.
func (t *Tracker) SetMode(m MaxMode) {
	t.mu.Lock()
	t.mode = m
	t.mu.Unlock()
}

// Mode returns the current baseline mode.
func (t *Tracker) Mode() MaxMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Get returns the stored record for id. In ModeSession the session maxima
// replace the stored values of unpinned fields.
func (t *Tracker) Get(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, bool) {
	rec, ok := t.store.Get(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	seen := t.session[id]
	if t.mode != ModeSession || len(seen) == 0 {
		return rec, ok
	}
	if !ok {
		rec = model.NewAthleteRecord(id)
	}
	for k, v := range seen {
		if !rec.IsUserEdited(k) {
			rec.SetField(k, model.Num(v))
		}
	}
	return rec, true
}

// Apply records the readings of s and merges those that beat the stored
// value. It returns the fields written to the store.
func (t *Tracker) Apply(ctx context.Context, s model.Sample) ([]string, error) { //nolint:gocritic // hugeParam: samples travel by value
	if err := s.Validate(); err != nil {
		return nil, err
	}

	readings := make(map[string]float64, len(s.Fields)+1)
	for k, v := range s.Fields {
		if v > 0 {
			readings[k] = v
		}
	}
	if s.HeartRate > 0 {
		readings["max_hr"] = s.HeartRate
	}

	// Read-compare-merge must not interleave with another sample of the same athlete.
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, _ := t.store.Get(ctx, s.AthleteID)
	seen := t.session[s.AthleteID]
	if seen == nil {
		seen = make(map[string]float64)
		t.session[s.AthleteID] = seen
	}

	improved := false
	updates := make(map[string]model.Value)
	for k, v := range readings {
		if v > seen[k] {
			seen[k] = v
			improved = true
		}
		if base, ok := rec.Field(k).Float(); !ok || v > base {
			updates[k] = model.Num(v)
		}
	}
	// Identity only fills gaps; imported names stay.
	if s.Name != "" && rec.Field(model.FieldName).IsNull() {
		updates[model.FieldName] = model.Str(s.Name)
	}
	if s.Team != "" && rec.Field(model.FieldTeam).IsNull() {
		updates[model.FieldTeam] = model.Str(s.Team)
	}

	var applied []string
	if len(updates) > 0 {
		res, err := t.store.Merge(ctx, s.AthleteID, updates, s.TS)
		if err != nil {
			return nil, err
		}
		metrics.RecordMaxImprovements(len(res.Applied))
		applied = res.Applied
	}

	sessionView := t.mode == ModeSession && improved
	if (len(applied) > 0 || sessionView) && t.onChange != nil {
		t.onChange()
	}
	return applied, nil
}
