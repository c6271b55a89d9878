package ridesim

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ridergrid/pkg/logger"
)

const pollInterval = 250 * time.Millisecond

// verdict compares one table against the plan.
type verdict struct {
	verified int
	above    int
	behind   []string
}

func check(p plan, rows []cohortRow) verdict {
	byID := make(map[int64]cohortRow, len(rows))
	for _, r := range rows {
		byID[r.AthleteID] = r
	}

	var v verdict
	for id, want := range p.maxima {
		row, ok := byID[id]
		if !ok {
			v.behind = append(v.behind, fmt.Sprintf("rider %d missing from table", id))
			continue
		}
		above := false
		lagging := false
		for col, w := range want {
			got, _ := row.Values[col].(float64)
			switch {
			case got < w:
				lagging = true
				v.behind = append(v.behind, fmt.Sprintf("rider %d %s: got %.0f want %.0f", id, col, got, w))
			case got > w:
				above = true
			}
		}
		if !lagging {
			v.verified++
			if above {
				v.above++
			}
		}
	}
	return v
}

// verifyMaxima polls the nearby table until every rider shows at least the
// maxima it was sent, or cfg.Settle passes. A stored value above the sent
// maximum counts as verified: the store keeps earlier, higher readings.
func verifyMaxima(ctx context.Context, cfg *Config, client *HTTPClient, p plan, stats *Stats) error {
	logger.Get().Info(ctx, "verifying tracked maxima", logger.Int("riders", len(p.maxima)))

	req := cohortRequest{Sources: []string{"nearby"}, Columns: trackedColumns()}
	deadline := time.Now().Add(cfg.Settle)
	var last verdict
	for {
		var resp cohortResponse
		if err := client.PostJSON(ctx, "/cohort", req, &resp); err != nil {
			return fmt.Errorf("cohort request failed: %w", err)
		}
		last = check(p, resp.Rows)
		if len(last.behind) == 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	stats.RidersVerified = last.verified
	stats.RidersAboveSent = last.above
	if n := len(last.behind); n > 0 {
		for i, msg := range last.behind {
			if i == 10 && !cfg.Verbose {
				break
			}
			logger.Get().Warn(ctx, "rider behind", logger.String("detail", msg))
		}
		return fmt.Errorf("%w: %d values behind", ErrMismatch, n)
	}
	logger.Get().Info(ctx, "tracked maxima verified",
		logger.Int("riders", last.verified),
		logger.Int("aboveSent", last.above))
	return nil
}
