package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidField = errors.New("invalid field")
	ErrCorruptBlob  = errors.New("corrupt athlete blob")
	ErrPersist      = errors.New("persist athletes failed")
)
