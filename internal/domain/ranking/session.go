package ranking

import (
	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
)

// Session is the explicit UI state of one table: which sources are compared,
// which columns are shown, the filters, the sort and the "not racing" marks.
// Callers own it and pass it in on every build.
type Session struct {
	Sources  []string          `json:"sources"`
	Columns  []string          `json:"columns,omitempty"`
	Filters  Filters           `json:"filters"`
	Sort     model.SortSpec    `json:"sort"`
	Excluded []model.AthleteID `json:"excluded,omitempty"`
	Profile  string            `json:"profile,omitempty"`
}

// Normalize fills unset fields with defaults. defaultColumns is used when the
// session selects no columns; nil falls back to the catalog default ladder.
func (s Session) Normalize(defaultColumns []string) Session {
	if len(s.Columns) == 0 {
		if len(defaultColumns) == 0 {
			defaultColumns = metric.DefaultColumnIDs()
		}
		s.Columns = append([]string(nil), defaultColumns...)
	}
	if s.Sort.ColumnID == "" {
		s.Sort = model.DefaultSort()
	}
	return s
}

// ExcludedSet returns the exclusion marks as a set.
func (s Session) ExcludedSet() map[model.AthleteID]bool {
	if len(s.Excluded) == 0 {
		return nil
	}
	out := make(map[model.AthleteID]bool, len(s.Excluded))
	for _, id := range s.Excluded {
		out[id] = true
	}
	return out
}

// Request builds an engine request from the session and resolved sources.
func (s Session) Request(sources []Source) (Request, error) {
	cols, err := metric.Columns(s.Columns...)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Sources:  sources,
		Columns:  cols,
		Filters:  s.Filters,
		Sort:     s.Sort,
		Excluded: s.ExcludedSet(),
		Context:  model.ResolveContext{Profile: s.Profile},
	}, nil
}
