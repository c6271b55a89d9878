package ridesim

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Tracked columns and their generated ranges.
var ranges = map[string][2]float64{
	"max_hr": {110, 195},
	"w15":    {500, 1300},
	"w60":    {300, 700},
	"w300":   {220, 420},
}

const randomFloatDivisor = 1_000_000

var teams = []string{"ALP", "BRV", "CDR", "DLT"}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func between(r [2]float64) float64 {
	return float64(int(r[0] + getRandomFloat()*(r[1]-r[0])))
}

// plan is the generated ride plus the maxima every rider reached in it.
type plan struct {
	snapshots []snapshot
	maxima    map[int64]map[string]float64
}

// generate builds cfg.Snapshots pushes one second apart, each carrying
// every rider.
func generate(cfg *Config, start time.Time) plan {
	p := plan{
		snapshots: make([]snapshot, cfg.Snapshots),
		maxima:    make(map[int64]map[string]float64, cfg.Riders),
	}
	for s := range p.snapshots {
		ts := start.Add(time.Duration(s) * time.Second).UTC()
		riders := make([]sample, cfg.Riders)
		for i := range riders {
			id := cfg.FirstID + int64(i)
			team := teams[i%len(teams)]
			smp := sample{
				ID:     id,
				Name:   fmt.Sprintf("Sim %d [%s]", i+1, team),
				Team:   team,
				HR:     between(ranges["max_hr"]),
				Fields: map[string]float64{},
				TS:     ts,
			}
			for k, r := range ranges {
				if k != "max_hr" {
					smp.Fields[k] = between(r)
				}
			}
			riders[i] = smp
			p.observe(smp)
		}
		p.snapshots[s] = snapshot{Riders: riders, TS: ts}
	}
	return p
}

func (p *plan) observe(s sample) {
	m := p.maxima[s.ID]
	if m == nil {
		m = make(map[string]float64, len(ranges))
		p.maxima[s.ID] = m
	}
	if s.HR > m["max_hr"] {
		m["max_hr"] = s.HR
	}
	for k, v := range s.Fields {
		if v > m[k] {
			m[k] = v
		}
	}
}

func trackedColumns() []string {
	return []string{"max_hr", "w15", "w60", "w300"}
}
