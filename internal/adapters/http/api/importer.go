package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/ridergrid/internal/adapters/riderdb"
	service "github.com/okian/ridergrid/internal/app"
)

// Importer runs rider database imports.
type Importer interface {
	Import(ctx context.Context, req service.ImportRequest, progress func(riderdb.Progress)) (riderdb.Report, error)
	SetCredentials(ctx context.Context, c riderdb.Credentials) error
}

// ImportHandler handles rider database imports and credentials.
type ImportHandler struct {
	deps Importer
}

// NewImportHandler creates a new import handler.
func NewImportHandler(deps Importer) *ImportHandler {
	return &ImportHandler{deps: deps}
}

// importFailure carries the batches that completed before an import failed.
type importFailure struct {
	errorResponse
	Report *riderdb.Report `json:"report,omitempty"`
}

type credentialsRequest struct {
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HandleImport handles POST /import. The request runs to completion; an
// aborted batch returns 502 together with the partial report.
func (h *ImportHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var req service.ImportRequest
	if err := decodeJSON(w, r, "api.import", &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	rep, err := h.deps.Import(r.Context(), req, nil)
	if err != nil {
		status, code := classify(err)
		resp := importFailure{errorResponse: errorResponse{Code: code, Message: err.Error()}}
		if rep.JobID != "" {
			resp.Report = &rep
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleCredentials handles PUT /riderdb/credentials.
func (h *ImportHandler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, "api.credentials", &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	err := h.deps.SetCredentials(r.Context(), riderdb.Credentials{APIKey: req.APIKey, ExpiresAt: req.ExpiresAt})
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
