package model

import (
	"strconv"
	"time"
)

// Reserved field names that map onto AthleteRecord struct fields instead of Fields.
const (
	FieldName = "name"
	FieldTeam = "team"
)

// AthleteID identifies an athlete on the simulation platform.
type AthleteID int64

// String renders the id in base 10.
func (id AthleteID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseAthleteID parses a base-10 athlete id. Ids must be positive.
func ParseAthleteID(s string) (AthleteID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return AthleteID(n), nil
}

// AthleteRecord is the persisted, sparse bag of metrics for one athlete.
type AthleteRecord struct {
	ID         AthleteID        `json:"id"`
	Name       string           `json:"name,omitempty"`
	Team       string           `json:"team,omitempty"`
	Fields     map[string]Value `json:"fields,omitempty"`
	UserEdited map[string]bool  `json:"user_edited,omitempty"`

	// Informational only.
	LastUpdated time.Time `json:"last_updated,omitempty"`
	ImportedAt  time.Time `json:"imported_at,omitempty"`
}

// NewAthleteRecord returns an empty record for id.
func NewAthleteRecord(id AthleteID) *AthleteRecord {
	return &AthleteRecord{
		ID:         id,
		Fields:     make(map[string]Value),
		UserEdited: make(map[string]bool),
	}
}

// Field returns the value stored under key. Name and team resolve to the
// struct fields; an empty name or team is null.
func (r *AthleteRecord) Field(key string) Value {
	if r == nil {
		return Null
	}
	switch key {
	case FieldName:
		if r.Name == "" {
			return Null
		}
		return Str(r.Name)
	case FieldTeam:
		if r.Team == "" {
			return Null
		}
		return Str(r.Team)
	}
	return r.Fields[key]
}

// SetField stores v under key. Null deletes the key.
func (r *AthleteRecord) SetField(key string, v Value) {
	switch key {
	case FieldName:
		r.Name = v.String()
		return
	case FieldTeam:
		r.Team = v.String()
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	if v.IsNull() {
		delete(r.Fields, key)
		return
	}
	r.Fields[key] = v
}

// IsUserEdited reports whether key is pinned by a human edit.
func (r *AthleteRecord) IsUserEdited(key string) bool {
	return r != nil && r.UserEdited[key]
}

// Clone returns a deep copy of r.
func (r *AthleteRecord) Clone() *AthleteRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	c.UserEdited = make(map[string]bool, len(r.UserEdited))
	for k, v := range r.UserEdited {
		c.UserEdited[k] = v
	}
	return &c
}
