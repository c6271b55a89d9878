// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/ridergrid/internal/adapters/mq/worker"
	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/adapters/riderdb"
	service "github.com/okian/ridergrid/internal/app"
	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/ranking"
	"github.com/okian/ridergrid/internal/domain/roster"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 4 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	BuildCohort(ctx context.Context, sess ranking.Session) (ranking.Result, error)

	PutRoster(ctx context.Context, src ranking.Source) error
	DeleteRoster(ctx context.Context, name string) error
	Rosters() []ranking.Source

	IngestTelemetry(ctx context.Context, snap service.Snapshot) (service.IngestResult, error)

	Import(ctx context.Context, req service.ImportRequest, progress func(riderdb.Progress)) (riderdb.Report, error)
	SetCredentials(ctx context.Context, c riderdb.Credentials) error
	SetMaxMode(ctx context.Context, raw string) (worker.MaxMode, error)

	Athlete(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, error)
	Athletes(ctx context.Context) ([]*model.AthleteRecord, error)
	EditAthlete(ctx context.Context, id model.AthleteID, fields map[string]model.Value) (*model.AthleteRecord, error)
	ClearEdit(ctx context.Context, id model.AthleteID, field string) error
	RemoveAthlete(ctx context.Context, id model.AthleteID) error
	ResetAthletes(ctx context.Context) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	cohortHandler    *CohortHandler
	athletesHandler  *AthletesHandler
	rostersHandler   *RostersHandler
	telemetryHandler *TelemetryHandler
	importHandler    *ImportHandler
	settingsHandler  *SettingsHandler
	live             http.Handler
	checks           map[string]HealthChecker
}

// Option configures a Server.
type Option func(*Server)

// WithLiveHandler mounts h at GET /live.
func WithLiveHandler(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}

// WithHealthCheck adds a dependency check to GET /healthz under name.
func WithHealthCheck(name string, c HealthChecker) Option {
	return func(s *Server) {
		if c == nil {
			return
		}
		if s.checks == nil {
			s.checks = make(map[string]HealthChecker)
		}
		s.checks[name] = c
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		statsHandler:     NewStatsHandler(deps),
		cohortHandler:    NewCohortHandler(deps),
		athletesHandler:  NewAthletesHandler(deps),
		rostersHandler:   NewRostersHandler(deps),
		telemetryHandler: NewTelemetryHandler(deps),
		importHandler:    NewImportHandler(deps),
		settingsHandler:  NewSettingsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler(s.checks)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /columns", MetricsMiddleware(s.cohortHandler.HandleColumns, "columns"))
	mux.HandleFunc("POST /cohort", MetricsMiddleware(s.cohortHandler.HandleBuild, "cohort"))

	mux.HandleFunc("GET /athletes", MetricsMiddleware(s.athletesHandler.HandleList, "athletes"))
	mux.HandleFunc("DELETE /athletes", MetricsMiddleware(s.athletesHandler.HandleReset, "athletes"))
	mux.HandleFunc("GET /athletes/{id}", MetricsMiddleware(s.athletesHandler.HandleGet, "athlete"))
	mux.HandleFunc("PATCH /athletes/{id}", MetricsMiddleware(s.athletesHandler.HandleEdit, "athlete"))
	mux.HandleFunc("DELETE /athletes/{id}", MetricsMiddleware(s.athletesHandler.HandleRemove, "athlete"))
	mux.HandleFunc("DELETE /athletes/{id}/edits/{field}", MetricsMiddleware(s.athletesHandler.HandleClearEdit, "athlete_edit"))

	mux.HandleFunc("GET /rosters", MetricsMiddleware(s.rostersHandler.HandleList, "rosters"))
	mux.HandleFunc("POST /rosters", MetricsMiddleware(s.rostersHandler.HandlePut, "rosters"))
	mux.HandleFunc("DELETE /rosters/{name}", MetricsMiddleware(s.rostersHandler.HandleDelete, "roster"))

	mux.HandleFunc("POST /telemetry", MetricsMiddleware(s.telemetryHandler.HandleIngest, "telemetry"))

	mux.HandleFunc("POST /import", MetricsMiddleware(s.importHandler.HandleImport, "import"))
	mux.HandleFunc("PUT /riderdb/credentials", MetricsMiddleware(s.importHandler.HandleCredentials, "credentials"))

	mux.HandleFunc("PUT /settings/max-mode", MetricsMiddleware(s.settingsHandler.HandleMaxMode, "max_mode"))

	// The websocket upgrade needs the raw writer, so /live skips the middleware.
	if s.live != nil {
		mux.Handle("GET /live", s.live)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

// classify translates domain and adapter errors to an HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidValue),
		errors.Is(err, model.ErrInvalidSample),
		errors.Is(err, metric.ErrUnknownColumn),
		errors.Is(err, ranking.ErrNoColumns),
		errors.Is(err, ranking.ErrDuplicateColumn),
		errors.Is(err, roster.ErrMalformedRoster),
		errors.Is(err, repository.ErrInvalidField),
		errors.Is(err, worker.ErrUnknownMode),
		errors.Is(err, riderdb.ErrNoRiders):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrReservedSource):
		return http.StatusConflict, "reserved"
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrUnknownSource):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, riderdb.ErrNoCredentials):
		return http.StatusPreconditionFailed, "no_credentials"
	case errors.Is(err, riderdb.ErrCredentialsExpired):
		return http.StatusPreconditionFailed, "credentials_expired"
	case errors.Is(err, riderdb.ErrBatchFailed):
		return http.StatusBadGateway, "upstream_failed"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decodeJSON reads a single JSON document from r into dst. An empty body
// leaves dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return WrapKind(op, ErrBadRequest, err)
	}
	if dec.More() {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("trailing data after JSON body"))
	}
	return nil
}

func pathAthleteID(r *http.Request, op string) (model.AthleteID, error) {
	id, err := model.ParseAthleteID(r.PathValue("id"))
	if err != nil {
		return 0, WrapKind(op, ErrBadRequest, fmt.Errorf("invalid athlete id %q", r.PathValue("id")))
	}
	return id, nil
}
