// Package scoring computes per-column cohort statistics and maps raw values
// onto a 0-100 relative score and a discrete color tier.
package scoring

import (
	"sort"

	"github.com/okian/ridergrid/internal/domain/model"
)

// Score scale constants.
const (
	midScore = 50
	maxScore = 100
)

// TierCount is the number of color tiers, including tier 0 for "no data".
const TierCount = 8

// tierFloors are the lower bounds of tiers 1..7. The bands are deliberately
// narrower around the middle where most athletes cluster.
var tierFloors = [TierCount - 1]float64{0, 10, 25, 40, 60, 75, 90}

// ComputeStats summarizes column columnID over rows. Only numbers greater than
// zero count. Returns nil when no row has a valid value.
func ComputeStats(rows []model.CohortRow, columnID string) *model.ColumnStats {
	values := make([]float64, 0, len(rows))
	for i := range rows {
		if n, ok := rows[i].Values[columnID].Float(); ok && n > 0 {
			values = append(values, n)
		}
	}
	return StatsOf(values)
}

// StatsOf returns min, median and max of the positive entries of values.
// The median of an even-length set is the mean of the two middle elements.
func StatsOf(values []float64) *model.ColumnStats {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			valid = append(valid, v)
		}
	}
	n := len(valid)
	if n == 0 {
		return nil
	}
	sort.Float64s(valid)

	median := valid[n/2]
	if n%2 == 0 {
		median = (valid[n/2-1] + valid[n/2]) / 2
	}
	return &model.ColumnStats{Min: valid[0], Median: median, Max: valid[n-1]}
}

// Normalize maps v onto the cohort described by s: min -> 0, median -> 50,
// max -> 100, piecewise linear in between. A degenerate half (median equal to
// min, or max equal to median) scores 50. Values outside [min, max] are not
// clamped. Returns nil for null or non-positive values and for nil stats.
func Normalize(v model.Value, s *model.ColumnStats) *float64 {
	n, ok := v.Float()
	if !ok || n <= 0 || s == nil {
		return nil
	}
	score := float64(midScore)
	if n <= s.Median {
		if s.Median != s.Min {
			score = (n - s.Min) / (s.Median - s.Min) * midScore
		}
	} else if s.Max != s.Median {
		score = midScore + (n-s.Median)/(s.Max-s.Median)*(maxScore-midScore)
	}
	return &score
}

// Tier buckets a score into 0..7. Nil and negative scores are tier 0.
func Tier(score *float64) int {
	if score == nil || *score < 0 {
		return 0
	}
	tier := 0
	for i, floor := range tierFloors {
		if *score >= floor {
			tier = i + 1
		}
	}
	return tier
}
