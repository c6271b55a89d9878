package api

import (
	"context"
	"net/http"

	"github.com/okian/ridergrid/internal/domain/ranking"
	"github.com/okian/ridergrid/internal/domain/roster"
)

// RosterStore manages uploaded rosters.
type RosterStore interface {
	PutRoster(ctx context.Context, src ranking.Source) error
	DeleteRoster(ctx context.Context, name string) error
	Rosters() []ranking.Source
}

// RostersHandler handles roster uploads.
type RostersHandler struct {
	deps RosterStore
}

// NewRostersHandler creates a new rosters handler.
func NewRostersHandler(deps RosterStore) *RostersHandler {
	return &RostersHandler{deps: deps}
}

// HandleList handles GET /rosters.
func (h *RostersHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rosters": h.deps.Rosters()})
}

// HandlePut handles POST /rosters. The body is a roster document; a roster
// with the same name is replaced.
func (h *RostersHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	src, err := roster.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.PutRoster(r.Context(), src); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

// HandleDelete handles DELETE /rosters/{name}.
func (h *RostersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteRoster(r.Context(), r.PathValue("name")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
