package api

import (
	"context"
	"net/http"

	service "github.com/okian/ridergrid/internal/app"
)

// TelemetryIngester accepts live telemetry snapshots.
type TelemetryIngester interface {
	IngestTelemetry(ctx context.Context, snap service.Snapshot) (service.IngestResult, error)
}

// TelemetryHandler handles telemetry pushes.
type TelemetryHandler struct {
	deps TelemetryIngester
}

// NewTelemetryHandler creates a new telemetry handler.
func NewTelemetryHandler(deps TelemetryIngester) *TelemetryHandler {
	return &TelemetryHandler{deps: deps}
}

// HandleIngest handles POST /telemetry. Samples are processed asynchronously
// so the response is 202 with per-sample counts.
func (h *TelemetryHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var snap service.Snapshot
	if err := decodeJSON(w, r, "api.telemetry", &snap, false); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.deps.IngestTelemetry(r.Context(), snap)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
