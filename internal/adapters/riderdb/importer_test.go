package riderdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeRiderDB answers every requested id except those in missing, and fails
// the request with status failOn once that many batches were served.
type fakeRiderDB struct {
	mu      sync.Mutex
	batches [][]model.AthleteID
	auth    []string
	missing map[model.AthleteID]bool
	failOn  int
}

func (f *fakeRiderDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/riders" {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.batches = append(f.batches, req.RiderIDs)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	n := len(f.batches)
	f.mu.Unlock()

	if f.failOn > 0 && n == f.failOn {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		return
	}

	resp := batchResponse{}
	for _, id := range req.RiderIDs {
		if f.missing[id] {
			continue
		}
		rating := float64(300 + id)
		resp.Riders = append(resp.Riders, Rider{ID: id, Name: fmt.Sprintf("Rider %d [RGT]", id), Rating: &rating})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newImporter(t *testing.T, srv *httptest.Server, opts ...Option) (*Importer, *repository.AthleteStore) {
	t.Helper()
	ctx := context.Background()
	blobs := repository.NewMemoryBlobStore()
	store, err := repository.NewAthleteStore(ctx, blobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imp, err := NewImporter(ctx, srv.URL, store, repository.NewSettings(blobs), opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return imp, store
}

func ids(from, to int) []model.AthleteID {
	out := make([]model.AthleteID, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, model.AthleteID(i))
	}
	return out
}

func TestImporter_BatchesAndProgress(t *testing.T) {
	fake := &fakeRiderDB{missing: map[model.AthleteID]bool{7: true, 120: true}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	imp, store := newImporter(t, srv)
	ctx := context.Background()
	if err := imp.SetCredentials(ctx, Credentials{APIKey: "secret"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var progress []Progress
	request := append(ids(1, 120), 5, 5, 0)
	rep, err := imp.Import(ctx, request, func(p Progress) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.batches) != 3 || len(fake.batches[0]) != 50 || len(fake.batches[2]) != 20 {
		t.Errorf("unexpected batching: %d batches", len(fake.batches))
	}
	for _, a := range fake.auth {
		if a != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", a)
		}
	}
	if rep.Requested != 120 || rep.Batches != 3 || len(rep.Imported) != 118 {
		t.Errorf("unexpected report %+v", rep)
	}
	if fmt.Sprint(rep.Failed) != "[7 120]" {
		t.Errorf("expected failed [7 120], got %v", rep.Failed)
	}
	if rep.JobID == "" {
		t.Error("expected a job id")
	}
	if len(progress) != 3 || progress[2].Imported != 118 || progress[2].Batches != 3 {
		t.Errorf("unexpected progress %+v", progress)
	}

	rec, ok := store.Get(ctx, 42)
	if !ok {
		t.Fatal("expected rider 42 in the store")
	}
	if rec.Team != "RGT" || rec.ImportedAt.IsZero() {
		t.Errorf("unexpected record %+v", rec)
	}
	if v, _ := rec.Field("rating").Float(); v != 342 {
		t.Errorf("expected rating 342, got %v", v)
	}
}

func TestImporter_AbortKeepsCompletedBatches(t *testing.T) {
	fake := &fakeRiderDB{failOn: 2}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	imp, store := newImporter(t, srv, WithBatchSize(10))
	ctx := context.Background()
	_ = imp.SetCredentials(ctx, Credentials{APIKey: "k"})

	var calls int
	rep, err := imp.Import(ctx, ids(1, 35), func(Progress) { calls++ })
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("expected ErrBatchFailed, got %v", err)
	}
	if len(fake.batches) != 2 {
		t.Errorf("remaining batches should be skipped, server saw %d", len(fake.batches))
	}
	if rep.Batches != 1 || len(rep.Imported) != 10 || calls != 1 {
		t.Errorf("unexpected partial report %+v (progress calls %d)", rep, calls)
	}
	if store.Count(ctx) != 10 {
		t.Errorf("completed batch should be persisted, store has %d", store.Count(ctx))
	}
}

func TestImporter_CredentialPreconditions(t *testing.T) {
	fake := &fakeRiderDB{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	imp, _ := newImporter(t, srv, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if _, err := imp.Import(ctx, ids(1, 3), nil); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
	if err := imp.SetCredentials(ctx, Credentials{APIKey: "  "}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials for a blank key, got %v", err)
	}
	_ = imp.SetCredentials(ctx, Credentials{APIKey: "k", ExpiresAt: now})
	if _, err := imp.Import(ctx, ids(1, 3), nil); !errors.Is(err, ErrCredentialsExpired) {
		t.Errorf("expected ErrCredentialsExpired, got %v", err)
	}
	if len(fake.batches) != 0 {
		t.Errorf("no request should be sent without valid credentials")
	}

	_ = imp.SetCredentials(ctx, Credentials{APIKey: "k", ExpiresAt: now.Add(time.Hour)})
	if _, err := imp.Import(ctx, []model.AthleteID{0, -4}, nil); !errors.Is(err, ErrNoRiders) {
		t.Errorf("expected ErrNoRiders, got %v", err)
	}
}

func TestImporter_CredentialsPersist(t *testing.T) {
	ctx := context.Background()
	blobs := repository.NewMemoryBlobStore()
	settings := repository.NewSettings(blobs)
	store, _ := repository.NewAthleteStore(ctx, blobs)

	first, err := NewImporter(ctx, "http://riderdb.invalid", store, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := first.SetCredentials(ctx, Credentials{APIKey: "persisted"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := NewImporter(ctx, "http://riderdb.invalid", store, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := second.CheckCredentials()
	if err != nil || c.APIKey != "persisted" {
		t.Errorf("expected persisted credentials, got %+v, %v", c, err)
	}
}

func TestRider_Fields(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	r := Rider{
		ID:       9,
		Name:     "Ana (VLT)",
		Weight:   f(60),
		Power:    map[string]float64{"60": 480, "300": 330},
		WKG:      map[string]float64{"300": 5.6},
		Profiles: map[string]float64{"hilly": 12, "cobbles": 3},
		Wins:     f(3),
		Finishes: f(12),
	}
	fields := r.Fields()

	check := func(key string, want float64) {
		t.Helper()
		got, ok := fields[key].Float()
		if !ok || got != want {
			t.Errorf("%s: expected %v, got %v (%v)", key, want, got, ok)
		}
	}
	check("w60", 480)
	check("wkg60", 8)
	check("wkg300", 5.6)
	check("profile_hilly", 12)
	check("win_rate", 0.25)
	if s, _ := fields[model.FieldTeam].Text(); s != "VLT" {
		t.Errorf("expected team from name, got %q", s)
	}
	for _, absent := range []string{"rating", "ftp", "w5", "profile_cobbles"} {
		if _, ok := fields[absent]; ok {
			t.Errorf("%s should be absent", absent)
		}
	}
}
