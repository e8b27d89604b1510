package executor

import "errors"

var (
	ErrStopped   = errors.New("executor stopped")
	ErrQueueFull = errors.New("executor queue full")
	ErrNilRun    = errors.New("executor: task run is nil")
)
