package metric

import (
	"errors"
	"fmt"

	"github.com/okian/ridergrid/internal/domain/model"
)

// ErrUnknownColumn is returned when a column id is not in the catalog.
var ErrUnknownColumn = errors.New("unknown column")

// Route profiles used by the adjusted rating.
const (
	ProfileFlat        = "flat"
	ProfileRolling     = "rolling"
	ProfileHilly       = "hilly"
	ProfileMountainous = "mountainous"
)

// ProfileFieldPrefix prefixes the per-profile suitability fields on a record,
// e.g. "profile_hilly".
const ProfileFieldPrefix = "profile_"

// Profiles lists the known route profiles.
func Profiles() []string {
	return []string{ProfileFlat, ProfileRolling, ProfileHilly, ProfileMountainous}
}

// AdjustedRating derives base + suitability offset for the selected profile.
// A missing or non-numeric offset counts as zero; an empty profile leaves the
// base unchanged.
func AdjustedRating(prefix string) model.Derivation {
	return func(base float64, rec *model.AthleteRecord, rc model.ResolveContext) model.Value {
		if rc.Profile == "" {
			return model.Num(base)
		}
		offset, ok := rec.Field(prefix + rc.Profile).Float()
		if !ok {
			offset = 0
		}
		return model.Num(base + offset)
	}
}

var catalog = []model.Column{
	{ID: "name", DataKey: model.FieldName, Label: "Name", Format: model.FormatText},
	{ID: "team", DataKey: model.FieldTeam, Label: "Team", Format: model.FormatText},
	{ID: "rating", DataKey: "rating", Label: "Rating", Format: model.FormatOneDecimal},
	{ID: "adjusted_rating", DataKey: "rating", Label: "Adj. Rating", Format: model.FormatOneDecimal, Derived: AdjustedRating(ProfileFieldPrefix)},
	{ID: "ftp", DataKey: "ftp", Label: "FTP", Format: model.FormatWatts},
	{ID: "weight", DataKey: "weight", Label: "Weight", Format: model.FormatOneDecimal},
	{ID: "w5", DataKey: "w5", Label: "5s", Format: model.FormatWatts},
	{ID: "w15", DataKey: "w15", Label: "15s", Format: model.FormatWatts},
	{ID: "w30", DataKey: "w30", Label: "30s", Format: model.FormatWatts},
	{ID: "w60", DataKey: "w60", Label: "1m", Format: model.FormatWatts},
	{ID: "w300", DataKey: "w300", Label: "5m", Format: model.FormatWatts},
	{ID: "w1200", DataKey: "w1200", Label: "20m", Format: model.FormatWatts},
	{ID: "wkg5", DataKey: "wkg5", Label: "5s w/kg", Format: model.FormatWKG},
	{ID: "wkg15", DataKey: "wkg15", Label: "15s w/kg", Format: model.FormatWKG},
	{ID: "wkg30", DataKey: "wkg30", Label: "30s w/kg", Format: model.FormatWKG},
	{ID: "wkg60", DataKey: "wkg60", Label: "1m w/kg", Format: model.FormatWKG},
	{ID: "wkg300", DataKey: "wkg300", Label: "5m w/kg", Format: model.FormatWKG},
	{ID: "wkg1200", DataKey: "wkg1200", Label: "20m w/kg", Format: model.FormatWKG},
	{ID: "max_hr", DataKey: "max_hr", Label: "Max HR", Format: model.FormatInteger},
	{ID: "avg_hr", DataKey: "avg_hr", Label: "Avg HR", Format: model.FormatInteger},
	{ID: "wins", DataKey: "wins", Label: "Wins", Format: model.FormatInteger},
	{ID: "finishes", DataKey: "finishes", Label: "Finishes", Format: model.FormatInteger},
	{ID: "win_rate", DataKey: "win_rate", Label: "Win %", Format: model.FormatPercent},
	{ID: "compound", DataKey: "compound", Label: "Compound", Format: model.FormatTwoDecimal},
}

var byID = func() map[string]model.Column {
	m := make(map[string]model.Column, len(catalog))
	for _, c := range catalog {
		m[c.ID] = c
	}
	return m
}()

// Catalog returns a copy of every known column in display order.
func Catalog() []model.Column {
	out := make([]model.Column, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a column by id.
func Lookup(id string) (model.Column, bool) {
	c, ok := byID[id]
	return c, ok
}

// Columns resolves ids in order.
func Columns(ids ...string) ([]model.Column, error) {
	out := make([]model.Column, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, id)
		}
		out = append(out, c)
	}
	return out, nil
}

// DefaultColumnIDs is the ladder shown when a session selects no columns.
func DefaultColumnIDs() []string {
	return []string{"team", "rating", "adjusted_rating", "w15", "w60", "w300", "w1200", "wkg300", "weight"}
}
