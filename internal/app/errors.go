package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrUnknownSource  = errors.New("unknown source")
	ErrReservedSource = errors.New("source name is reserved")
	ErrNotStarted     = errors.New("service not started")
)
