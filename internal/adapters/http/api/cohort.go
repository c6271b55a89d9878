package api

import (
	"context"
	"net/http"

	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/ranking"
)

// CohortBuilder builds comparison tables.
type CohortBuilder interface {
	BuildCohort(ctx context.Context, sess ranking.Session) (ranking.Result, error)
}

// CohortHandler serves the comparison table and the column catalog.
type CohortHandler struct {
	deps CohortBuilder
}

// NewCohortHandler creates a new cohort handler.
func NewCohortHandler(deps CohortBuilder) *CohortHandler {
	return &CohortHandler{deps: deps}
}

// ColumnInfo describes one selectable column.
type ColumnInfo struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Format  model.Format `json:"format"`
	Derived bool         `json:"derived"`
}

// CohortResponse is a built table plus the display strings of every cell.
type CohortResponse struct {
	Columns  []ColumnInfo                  `json:"columns"`
	Rows     []RenderedRow                 `json:"rows"`
	Excluded []RenderedRow                 `json:"excluded"`
	Stats    map[string]model.ColumnStats `json:"stats"`
}

// RenderedRow is a cohort row with its values formatted for display.
type RenderedRow struct {
	model.CohortRow
	Display map[string]string `json:"display"`
}

// HandleColumns handles GET /columns.
func (h *CohortHandler) HandleColumns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":  columnInfos(metric.Catalog()),
		"defaults": metric.DefaultColumnIDs(),
		"profiles": metric.Profiles(),
	})
}

// HandleBuild handles POST /cohort. The body is a session; an empty body
// builds the default table over every source.
func (h *CohortHandler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	const op = "api.cohort"
	var sess ranking.Session
	if err := decodeJSON(w, r, op, &sess, true); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.deps.BuildCohort(r.Context(), sess)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Render(res))
}

// Render attaches column metadata and display strings to res.
func Render(res ranking.Result) CohortResponse {
	cols := make([]model.Column, 0, len(res.Columns))
	for _, id := range res.Columns {
		if c, ok := metric.Lookup(id); ok {
			cols = append(cols, c)
		}
	}
	stats := res.Stats
	if stats == nil {
		stats = map[string]model.ColumnStats{}
	}
	return CohortResponse{
		Columns:  columnInfos(cols),
		Rows:     renderRows(res.Rows, cols),
		Excluded: renderRows(res.Excluded, cols),
		Stats:    stats,
	}
}

func renderRows(rows []model.CohortRow, cols []model.Column) []RenderedRow {
	out := make([]RenderedRow, len(rows))
	for i, row := range rows {
		display := make(map[string]string, len(cols))
		for _, c := range cols {
			display[c.ID] = c.Format.Render(row.Values[c.ID])
		}
		out[i] = RenderedRow{CohortRow: row, Display: display}
	}
	return out
}

func columnInfos(cols []model.Column) []ColumnInfo {
	out := make([]ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = ColumnInfo{ID: c.ID, Label: c.Label, Format: c.Format, Derived: c.IsDerived()}
	}
	return out
}
