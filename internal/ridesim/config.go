// Package ridesim drives a running ridergrid service with synthetic
// telemetry and checks that live maxima end up in the comparison table.
package ridesim

import (
	"errors"
	"time"
)

// Defaults used by the command line tool.
const (
	DefaultRiders    = 200
	DefaultSnapshots = 60
	DefaultFirstID   = 900_000
	DefaultTimeout   = 10 * time.Second
	DefaultSettle    = 30 * time.Second
)

// ErrMismatch is returned when the table disagrees with what was sent.
var ErrMismatch = errors.New("tracked maxima do not match submitted telemetry")

// Config holds configuration for one simulation run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Riders    int           // Riders present in every snapshot
	Snapshots int           // Number of snapshots to push
	FirstID   int64         // Id of the first synthetic rider
	Workers   int           // Concurrent submitters
	Timeout   time.Duration // HTTP request timeout
	Settle    time.Duration // How long to wait for the workers to catch up
	Verbose   bool          // Log every failed request
}

// sample mirrors one rider of a telemetry push.
type sample struct {
	ID     int64              `json:"id"`
	Name   string             `json:"name"`
	Team   string             `json:"team"`
	HR     float64            `json:"hr"`
	Fields map[string]float64 `json:"fields"`
	TS     time.Time          `json:"ts"`
}

type snapshot struct {
	Riders []sample  `json:"riders"`
	TS     time.Time `json:"ts"`
}

type ingestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type cohortRequest struct {
	Sources []string `json:"sources"`
	Columns []string `json:"columns"`
}

type cohortRow struct {
	AthleteID int64          `json:"athlete_id"`
	Values    map[string]any `json:"values"`
}

type cohortResponse struct {
	Rows []cohortRow `json:"rows"`
}

// Stats holds run statistics.
type Stats struct {
	SnapshotsSubmitted int
	SnapshotsFailed    int
	SamplesAccepted    int
	SamplesDuplicate   int
	SamplesRejected    int
	RidersVerified     int
	RidersAboveSent    int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
