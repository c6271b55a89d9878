// Package ranking merges athlete sources with stored metric records and emits
// ordered, scored cohort rows ready for drawing.
package ranking

import (
	"strings"

	"github.com/okian/ridergrid/internal/domain/model"
)

// Entrant is one athlete as listed by a source (roster, entrant list or a
// live nearby snapshot).
type Entrant struct {
	AthleteID  model.AthleteID `json:"id"`
	Name       string          `json:"name,omitempty"`
	Team       string          `json:"team,omitempty"`
	Tag        string          `json:"tag,omitempty"`
	EventGroup string          `json:"event_group,omitempty"`
	HeartRate  float64         `json:"hr,omitempty"`
	Marked     bool            `json:"marked,omitempty"`
}

// Source is a named flat list of entrants. Tag is the group tag given to
// entrants that carry none of their own.
type Source struct {
	Name     string    `json:"name"`
	Tag      string    `json:"tag,omitempty"`
	Entrants []Entrant `json:"riders"`
}

// Filters are independently toggled inclusion predicates. With ShowAll set or
// no predicate active every row is kept; otherwise a row is kept when any
// active predicate matches it.
type Filters struct {
	ShowAll     bool            `json:"show_all"`
	OnlyWithHR  bool            `json:"only_with_hr"`
	SameGroupAs model.AthleteID `json:"same_group_as,omitempty"`
	OnlyMarked  bool            `json:"only_marked"`
	ByTeam      bool            `json:"by_team"`
	TeamName    string          `json:"team_name,omitempty"`
}

type predicate func(e *Entrant, team string) bool

// predicates returns the active predicates. ref is the reference entrant for
// SameGroupAs, nil when it is not present in the merged sources.
func (f Filters) predicates(ref *Entrant) []predicate {
	if f.ShowAll {
		return nil
	}
	var ps []predicate
	if f.OnlyWithHR {
		ps = append(ps, func(e *Entrant, _ string) bool { return e.HeartRate > 0 })
	}
	if f.SameGroupAs != 0 {
		ps = append(ps, func(e *Entrant, _ string) bool {
			return ref != nil && ref.EventGroup != "" && e.EventGroup == ref.EventGroup
		})
	}
	if f.OnlyMarked {
		ps = append(ps, func(e *Entrant, _ string) bool { return e.Marked })
	}
	if needle := strings.ToLower(strings.TrimSpace(f.TeamName)); f.ByTeam && needle != "" {
		ps = append(ps, func(_ *Entrant, team string) bool {
			return strings.Contains(strings.ToLower(team), needle)
		})
	}
	return ps
}

func keep(ps []predicate, e *Entrant, team string) bool {
	if len(ps) == 0 {
		return true
	}
	for _, p := range ps {
		if p(e, team) {
			return true
		}
	}
	return false
}
