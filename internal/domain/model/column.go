package model

import (
	"fmt"
	"math"
)

// Format classifies how a column is displayed. The identifiers are shared with
// rendering clients and must not change.
type Format string

// Column formats.
const (
	FormatWatts      Format = "integer-watts"
	FormatWKG        Format = "one-decimal-wkg"
	FormatOneDecimal Format = "one-decimal"
	FormatTwoDecimal Format = "two-decimal"
	FormatPercent    Format = "percent"
	FormatInteger    Format = "integer"
	FormatText       Format = "text"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatWatts, FormatWKG, FormatOneDecimal, FormatTwoDecimal, FormatPercent, FormatInteger, FormatText:
		return true
	}
	return false
}

// IsText reports whether the column holds strings.
func (f Format) IsText() bool { return f == FormatText }

// Render formats v for display. Null renders as "-".
func (f Format) Render(v Value) string {
	if f.IsText() {
		if v.IsNull() {
			return "-"
		}
		return v.String()
	}
	n, ok := v.Float()
	if !ok {
		return "-"
	}
	switch f {
	case FormatWatts:
		return fmt.Sprintf("%d W", int64(math.Round(n)))
	case FormatWKG:
		return fmt.Sprintf("%.1f w/kg", n)
	case FormatOneDecimal:
		return fmt.Sprintf("%.1f", n)
	case FormatTwoDecimal:
		return fmt.Sprintf("%.2f", n)
	case FormatPercent:
		return fmt.Sprintf("%.0f%%", n*100)
	case FormatInteger:
		return fmt.Sprintf("%d", int64(math.Round(n)))
	}
	return v.String()
}

// ResolveContext carries the auxiliary selections a derived column may read.
type ResolveContext struct {
	// Profile is the selected route profile: flat, rolling, hilly or mountainous.
	Profile string `json:"profile,omitempty"`
}

// Derivation computes a derived column from its resolved, positive base value.
type Derivation func(base float64, rec *AthleteRecord, rc ResolveContext) Value

// Column is a static column definition.
type Column struct {
	ID      string     `json:"id"`
	DataKey string     `json:"data_key"`
	Label   string     `json:"label"`
	Format  Format     `json:"format"`
	Derived Derivation `json:"-"`
}

// IsDerived reports whether the column is computed rather than looked up.
func (c Column) IsDerived() bool { return c.Derived != nil }
