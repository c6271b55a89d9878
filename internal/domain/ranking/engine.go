package ranking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/scoring"
	"github.com/okian/ridergrid/pkg/metrics"
)

// Sentinel errors for cohort building.
var (
	ErrNoColumns       = errors.New("no columns requested")
	ErrDuplicateColumn = errors.New("duplicate column id")
)

// Records looks up stored athlete records.
type Records interface {
	Get(ctx context.Context, id model.AthleteID) (*model.AthleteRecord, bool)
}

// Request is everything one render pass needs.
type Request struct {
	Sources  []Source
	Columns  []model.Column
	Filters  Filters
	Sort     model.SortSpec
	Excluded map[model.AthleteID]bool
	Context  model.ResolveContext
}

// Result is the render-ready output of one pass.
type Result struct {
	// Rows is the ranked primary partition.
	Rows []model.CohortRow `json:"rows"`
	// Excluded holds rows marked out of ranking, sorted the same way and
	// colored against the primary partition's statistics.
	Excluded []model.CohortRow `json:"excluded"`
	// Stats has an entry for every column with at least one valid value.
	Stats map[string]model.ColumnStats `json:"stats"`
	// Columns lists the built column ids in display order.
	Columns []string `json:"columns"`
}

// Engine builds cohorts. It keeps no state between calls.
type Engine struct {
	records Records
}

// NewEngine creates an engine reading records from r.
func NewEngine(r Records) *Engine {
	return &Engine{records: r}
}

// Build merges the sources with stored records, filters, partitions, scores
// and sorts. It is cheap and meant to be re-run in full on every change.
func (e *Engine) Build(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if err := validateColumns(req.Columns); err != nil {
		metrics.RecordErrorByComponent("ranking", "invalid_request")
		return Result{}, err
	}

	entrants := mergeSources(req.Sources)
	var ref *Entrant
	if req.Filters.SameGroupAs != 0 {
		for i := range entrants {
			if entrants[i].AthleteID == req.Filters.SameGroupAs {
				ref = &entrants[i]
				break
			}
		}
	}
	preds := req.Filters.predicates(ref)
	sortCol, hidden := sortColumn(req.Columns, req.Sort.ColumnID)
	var hiddenValues map[model.AthleteID]model.Value
	if hidden {
		hiddenValues = make(map[model.AthleteID]model.Value, len(entrants))
	}

	primary := make([]model.CohortRow, 0, len(entrants))
	var excluded []model.CohortRow
	for i := range entrants {
		ent := &entrants[i]
		rec, _ := e.records.Get(ctx, ent.AthleteID)
		team := ent.Team
		if team == "" && rec != nil {
			team = rec.Team
		}
		if !keep(preds, ent, team) {
			continue
		}
		row := newRow(ent, rec, team, req.Columns, req.Context)
		if hidden {
			hiddenValues[ent.AthleteID] = resolveCell(ent, rec, team, *sortCol, req.Context)
		}
		if req.Excluded[ent.AthleteID] {
			excluded = append(excluded, row)
		} else {
			primary = append(primary, row)
		}
	}

	stats := make(map[string]model.ColumnStats, len(req.Columns))
	for _, col := range req.Columns {
		if col.Format.IsText() {
			continue
		}
		s := scoring.ComputeStats(primary, col.ID)
		if s != nil {
			stats[col.ID] = *s
		}
		applyScores(primary, col.ID, s)
		applyScores(excluded, col.ID, s)
	}

	if sortCol != nil {
		value := func(r *model.CohortRow) model.Value { return r.Values[sortCol.ID] }
		if hidden {
			value = func(r *model.CohortRow) model.Value { return hiddenValues[r.AthleteID] }
		}
		sortRows(primary, sortCol.Format.IsText(), req.Sort.Ascending, value)
		sortRows(excluded, sortCol.Format.IsText(), req.Sort.Ascending, value)
	}

	metrics.RecordCohortBuild(float64(time.Since(start).Microseconds())/1000, len(primary)+len(excluded))
	ids := make([]string, len(req.Columns))
	for i, col := range req.Columns {
		ids[i] = col.ID
	}
	return Result{Rows: primary, Excluded: excluded, Stats: stats, Columns: ids}, nil
}

func validateColumns(cols []model.Column) error {
	if len(cols) == 0 {
		return ErrNoColumns
	}
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

// mergeSources flattens sources in order. The first listing of an athlete
// wins; entrants inherit their source's tag.
func mergeSources(sources []Source) []Entrant {
	seen := make(map[model.AthleteID]struct{})
	var out []Entrant
	for _, src := range sources {
		for _, ent := range src.Entrants {
			if _, dup := seen[ent.AthleteID]; dup {
				continue
			}
			seen[ent.AthleteID] = struct{}{}
			if ent.Tag == "" {
				ent.Tag = src.Tag
			}
			out = append(out, ent)
		}
	}
	return out
}

func newRow(ent *Entrant, rec *model.AthleteRecord, team string, cols []model.Column, rc model.ResolveContext) model.CohortRow {
	name := ent.Name
	if name == "" && rec != nil {
		name = rec.Name
	}
	if name == "" {
		name = ent.AthleteID.String()
	}
	row := model.CohortRow{
		AthleteID:   ent.AthleteID,
		DisplayName: name,
		GroupTag:    ent.Tag,
		Team:        team,
		Values:      make(map[string]model.Value, len(cols)),
		Scores:      make(map[string]*float64, len(cols)),
		Tiers:       make(map[string]int, len(cols)),
	}
	for _, col := range cols {
		row.Values[col.ID] = resolveCell(ent, rec, team, col, rc)
		if col.Format.IsText() {
			// Text is never scored; tier 0 keeps every column keyed.
			row.Scores[col.ID] = nil
			row.Tiers[col.ID] = 0
		}
	}
	return row
}

func resolveCell(ent *Entrant, rec *model.AthleteRecord, team string, col model.Column, rc model.ResolveContext) model.Value {
	v := metric.Resolve(rec, col, rc)
	if col.Format.IsText() {
		v = withListed(v, col.DataKey, ent.Name, team)
	}
	return v
}

// withListed fills an empty name or team cell from the source listing.
func withListed(v model.Value, key, name, team string) model.Value {
	if s, _ := v.Text(); s != "" {
		return v
	}
	switch {
	case key == model.FieldName && name != "":
		return model.Str(name)
	case key == model.FieldTeam && team != "":
		return model.Str(team)
	}
	return v
}

func applyScores(rows []model.CohortRow, columnID string, s *model.ColumnStats) {
	for i := range rows {
		score := scoring.Normalize(rows[i].Values[columnID], s)
		rows[i].Scores[columnID] = score
		rows[i].Tiers[columnID] = scoring.Tier(score)
	}
}

// sortColumn finds the sort column among the displayed ones, else in the
// catalog. hidden reports a catalog column that is not displayed. Nil means
// the id is unknown and rows keep input order.
func sortColumn(cols []model.Column, id string) (col *model.Column, hidden bool) {
	for i := range cols {
		if cols[i].ID == id {
			return &cols[i], false
		}
	}
	if c, ok := metric.Lookup(id); ok {
		return &c, true
	}
	return nil, false
}

// sortRows orders rows stably. Nulls and empty strings go last in both
// directions; text compares case-insensitively.
func sortRows(rows []model.CohortRow, text, ascending bool, value func(*model.CohortRow) model.Value) {
	if len(rows) < 2 {
		return
	}
	if text {
		keys := make(map[model.AthleteID]string, len(rows))
		for i := range rows {
			keys[rows[i].AthleteID] = strings.ToLower(value(&rows[i]).String())
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := keys[rows[i].AthleteID], keys[rows[j].AthleteID]
			if a == "" || b == "" {
				return a != "" && b == ""
			}
			if ascending {
				return a < b
			}
			return a > b
		})
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, aok := value(&rows[i]).Float()
		b, bok := value(&rows[j]).Float()
		if !aok || !bok {
			return aok && !bok
		}
		if ascending {
			return a < b
		}
		return a > b
	})
}
