package api

import (
	"context"
	"net/http"

	"github.com/okian/ridergrid/internal/adapters/mq/worker"
)

// SettingsStore changes persisted settings.
type SettingsStore interface {
	SetMaxMode(ctx context.Context, raw string) (worker.MaxMode, error)
}

// SettingsHandler handles settings changes.
type SettingsHandler struct {
	deps SettingsStore
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(deps SettingsStore) *SettingsHandler {
	return &SettingsHandler{deps: deps}
}

type maxModeRequest struct {
	Mode string `json:"mode"`
}

// HandleMaxMode handles PUT /settings/max-mode.
func (h *SettingsHandler) HandleMaxMode(w http.ResponseWriter, r *http.Request) {
	var req maxModeRequest
	if err := decodeJSON(w, r, "api.max_mode", &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	m, err := h.deps.SetMaxMode(r.Context(), req.Mode)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, maxModeRequest{Mode: string(m)})
}
