package queue

import "errors"

// ErrQueueFull is returned by callers when Enqueue rejects a sample.
var ErrQueueFull = errors.New("telemetry queue full")
