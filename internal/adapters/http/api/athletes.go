package api

import (
	"context"
	"net/http"

	"github.com/okian/ridergrid/internal/domain/model"
)

// AthleteStore is the athlete CRUD surface.
type AthleteStore interface {
	Athlete(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, error)
	Athletes(ctx context.Context) ([]*model.AthleteRecord, error)
	EditAthlete(ctx context.Context, id model.AthleteID, fields map[string]model.Value) (*model.AthleteRecord, error)
	ClearEdit(ctx context.Context, id model.AthleteID, field string) error
	RemoveAthlete(ctx context.Context, id model.AthleteID) error
	ResetAthletes(ctx context.Context) error
}

// AthletesHandler handles stored athlete records.
type AthletesHandler struct {
	deps AthleteStore
}

// NewAthletesHandler creates a new athletes handler.
func NewAthletesHandler(deps AthleteStore) *AthletesHandler {
	return &AthletesHandler{deps: deps}
}

type editRequest struct {
	Fields map[string]model.Value `json:"fields"`
}

// HandleList handles GET /athletes.
func (h *AthletesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.deps.Athletes(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"athletes": recs})
}

// HandleGet handles GET /athletes/{id}.
func (h *AthletesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathAthleteID(r, "api.athlete")
	if err != nil {
		writeFailure(w, err)
		return
	}
	rec, err := h.deps.Athlete(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleEdit handles PATCH /athletes/{id}. Every field in the body is pinned
// against later imports and telemetry.
func (h *AthletesHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	const op = "api.athlete.edit"
	id, err := pathAthleteID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, op, &req, false); err != nil {
		writeFailure(w, err)
		return
	}
	rec, err := h.deps.EditAthlete(r.Context(), id, req.Fields)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleClearEdit handles DELETE /athletes/{id}/edits/{field}.
func (h *AthletesHandler) HandleClearEdit(w http.ResponseWriter, r *http.Request) {
	id, err := pathAthleteID(r, "api.athlete.clear_edit")
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.ClearEdit(r.Context(), id, r.PathValue("field")); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemove handles DELETE /athletes/{id}.
func (h *AthletesHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := pathAthleteID(r, "api.athlete.remove")
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.RemoveAthlete(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReset handles DELETE /athletes.
func (h *AthletesHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetAthletes(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
