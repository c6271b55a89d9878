package riderdb

import "errors"

// Sentinel errors returned by the importer.
var (
	ErrNoCredentials      = errors.New("rider database credentials not set")
	ErrCredentialsExpired = errors.New("rider database credentials expired")
	ErrBatchFailed        = errors.New("rider database batch failed")
	ErrNoRiders           = errors.New("no rider ids to import")
)
