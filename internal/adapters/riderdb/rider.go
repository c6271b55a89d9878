package riderdb

import (
	"strings"

	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/roster"
)

// Durations, in seconds, reported in the power curve.
var curveDurations = []string{"5", "15", "30", "60", "300", "1200"}

// Rider is one entry of the rider database response.
type Rider struct {
	ID       model.AthleteID    `json:"id"`
	Name     string             `json:"name"`
	Team     string             `json:"team"`
	Rating   *float64           `json:"rating"`
	FTP      *float64           `json:"ftp"`
	Weight   *float64           `json:"weight"`
	Power    map[string]float64 `json:"power"`
	WKG      map[string]float64 `json:"wkg"`
	Profiles map[string]float64 `json:"profiles"`
	MaxHR    *float64           `json:"max_hr"`
	AvgHR    *float64           `json:"avg_hr"`
	Wins     *float64           `json:"wins"`
	Finishes *float64           `json:"finishes"`
	Compound *float64           `json:"compound"`
}

// Fields maps the rider onto record fields. Absent values are left out so
// they never blank existing data.
func (r Rider) Fields() map[string]model.Value {
	f := make(map[string]model.Value)
	put := func(key string, p *float64) {
		if p != nil {
			f[key] = model.Num(*p)
		}
	}

	if name := strings.TrimSpace(r.Name); name != "" {
		f[model.FieldName] = model.Str(name)
	}
	team := strings.TrimSpace(r.Team)
	if team == "" {
		team = roster.ExtractTeam(r.Name)
	}
	if team != "" {
		f[model.FieldTeam] = model.Str(team)
	}

	put("rating", r.Rating)
	put("ftp", r.FTP)
	put("weight", r.Weight)
	put("max_hr", r.MaxHR)
	put("avg_hr", r.AvgHR)
	put("wins", r.Wins)
	put("finishes", r.Finishes)
	put("compound", r.Compound)
	if r.Wins != nil && r.Finishes != nil && *r.Finishes > 0 {
		f["win_rate"] = model.Num(*r.Wins / *r.Finishes)
	}

	for _, d := range curveDurations {
		w, hasW := r.Power[d]
		if hasW {
			f["w"+d] = model.Num(w)
		}
		switch wkg, ok := r.WKG[d]; {
		case ok:
			f["wkg"+d] = model.Num(wkg)
		case hasW && r.Weight != nil && *r.Weight > 0:
			f["wkg"+d] = model.Num(w / *r.Weight)
		}
	}

	for _, p := range metric.Profiles() {
		if v, ok := r.Profiles[p]; ok {
			f[metric.ProfileFieldPrefix+p] = model.Num(v)
		}
	}
	return f
}
