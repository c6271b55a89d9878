package model

// Group tags used by the built-in sources.
const (
	TagHome   = "home"
	TagAway   = "away"
	TagNearby = "nearby"
)

// DefaultSortColumn is the column ranked on when the caller names none.
const DefaultSortColumn = "rating"

// CohortRow is one render-ready row. Rows carry no identity across renders.
type CohortRow struct {
	AthleteID   AthleteID           `json:"athlete_id"`
	DisplayName string              `json:"display_name"`
	GroupTag    string              `json:"group_tag"`
	Team        string              `json:"team,omitempty"`
	Values      map[string]Value    `json:"values"`
	Scores      map[string]*float64 `json:"scores"`
	Tiers       map[string]int      `json:"tiers"`
}

// ColumnStats summarizes the valid values of one column across a cohort.
type ColumnStats struct {
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
}

// SortSpec selects the sort column and direction.
type SortSpec struct {
	ColumnID  string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// DefaultSort ranks on the rating column, best first.
func DefaultSort() SortSpec {
	return SortSpec{ColumnID: DefaultSortColumn, Ascending: false}
}
