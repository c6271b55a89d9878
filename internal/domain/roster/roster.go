// Package roster validates team roster and entrant list imports at the
// boundary so the ranking engine only ever sees well-formed sources.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/ranking"
)

// ErrMalformedRoster wraps every parse or shape failure.
var ErrMalformedRoster = errors.New("malformed roster")

type rosterDoc struct {
	Name   string      `json:"name"`
	Tag    string      `json:"tag"`
	Riders []riderLine `json:"riders"`
}

type riderLine struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Team       string `json:"team"`
	EventGroup string `json:"event_group"`
	Marked     bool   `json:"marked"`
}

// Parse reads one roster document:
//
//	{"name": "Alpha", "tag": "home", "riders": [{"id": 1, "name": "Ann"}]}
//
// Riders without a team get one extracted from a bracketed name suffix.
func Parse(r io.Reader) (ranking.Source, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var doc rosterDoc
	if err := dec.Decode(&doc); err != nil {
		return ranking.Source{}, fmt.Errorf("%w: %v", ErrMalformedRoster, err)
	}
	doc.Name = strings.TrimSpace(doc.Name)
	if doc.Name == "" {
		return ranking.Source{}, fmt.Errorf("%w: missing name", ErrMalformedRoster)
	}
	if len(doc.Riders) == 0 {
		return ranking.Source{}, fmt.Errorf("%w: roster %q lists no riders", ErrMalformedRoster, doc.Name)
	}

	src := ranking.Source{Name: doc.Name, Tag: strings.TrimSpace(doc.Tag), Entrants: make([]ranking.Entrant, 0, len(doc.Riders))}
	seen := make(map[int64]int, len(doc.Riders))
	for i, line := range doc.Riders {
		if line.ID <= 0 {
			return ranking.Source{}, fmt.Errorf("%w: rider #%d has invalid id %d", ErrMalformedRoster, i+1, line.ID)
		}
		if prev, dup := seen[line.ID]; dup {
			return ranking.Source{}, fmt.Errorf("%w: rider id %d listed at #%d and #%d", ErrMalformedRoster, line.ID, prev+1, i+1)
		}
		seen[line.ID] = i
		team := strings.TrimSpace(line.Team)
		if team == "" {
			team = ExtractTeam(line.Name)
		}
		src.Entrants = append(src.Entrants, ranking.Entrant{
			AthleteID:  model.AthleteID(line.ID),
			Name:       strings.TrimSpace(line.Name),
			Team:       team,
			EventGroup: line.EventGroup,
			Marked:     line.Marked,
		})
	}
	return src, nil
}

var (
	bracketTeam = regexp.MustCompile(`\[([^\]]+)\]`)
	parenTeam   = regexp.MustCompile(`\(([^)]+)\)`)
)

// ExtractTeam guesses a team tag from a display name: the first [TEAM], else
// the first (TEAM), else "".
func ExtractTeam(name string) string {
	for _, re := range []*regexp.Regexp{bracketTeam, parenTeam} {
		if m := re.FindStringSubmatch(name); m != nil {
			if team := strings.TrimSpace(m[1]); team != "" {
				return team
			}
		}
	}
	return ""
}
