// Package metric extracts column values from sparse athlete records.
package metric

import (
	"github.com/okian/ridergrid/internal/domain/model"
)

// Resolve returns the value of col for rec.
//
// Numeric columns treat zero and negative readings as missing: watt and rating
// fields are never legitimately zero. Percent columns follow the same rule even
// though 0% is nominally valid.
func Resolve(rec *model.AthleteRecord, col model.Column, rc model.ResolveContext) model.Value {
	if rec == nil {
		return model.Null
	}
	if col.Format.IsText() {
		return resolveText(rec, col)
	}
	base := Positive(rec.Field(col.DataKey))
	if base.IsNull() || !col.IsDerived() {
		return base
	}
	n, _ := base.Float()
	return col.Derived(n, rec, rc)
}

// Positive passes through numbers greater than zero and maps everything else to null.
func Positive(v model.Value) model.Value {
	n, ok := v.Float()
	if !ok || n <= 0 {
		return model.Null
	}
	return v
}

func resolveText(rec *model.AthleteRecord, col model.Column) model.Value {
	v := rec.Field(col.DataKey)
	switch v.Kind() {
	case model.KindText:
		return v
	case model.KindNumber:
		return model.Str(v.String())
	}
	// Name and team read back as null when empty; the text rule keeps "".
	if col.DataKey == model.FieldName || col.DataKey == model.FieldTeam {
		return model.Str("")
	}
	return model.Null
}
