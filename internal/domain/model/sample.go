package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidSample is returned for telemetry samples that cannot be applied.
var ErrInvalidSample = errors.New("invalid telemetry sample")

// Sample is one live telemetry reading for an athlete seen nearby.
// Fields holds metric values keyed like AthleteRecord fields, e.g. "w60".
type Sample struct {
	AthleteID  AthleteID          `json:"id"`
	Name       string             `json:"name,omitempty"`
	Team       string             `json:"team,omitempty"`
	EventGroup string             `json:"event_group,omitempty"`
	HeartRate  float64            `json:"hr,omitempty"`
	Fields     map[string]float64 `json:"fields,omitempty"`
	TS         time.Time          `json:"ts"`
}

// Validate checks the id and that every metric is finite.
func (s Sample) Validate() error {
	if s.AthleteID <= 0 {
		return fmt.Errorf("%w: athlete id %d", ErrInvalidSample, s.AthleteID)
	}
	if math.IsNaN(s.HeartRate) || math.IsInf(s.HeartRate, 0) {
		return fmt.Errorf("%w: heart rate", ErrInvalidSample)
	}
	for k, v := range s.Fields {
		if k == "" || k == FieldName || k == FieldTeam {
			return fmt.Errorf("%w: field %q", ErrInvalidSample, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: field %q is not finite", ErrInvalidSample, k)
		}
	}
	return nil
}
