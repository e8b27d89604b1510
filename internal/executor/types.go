package executor

import (
	"context"
	"time"
)

// Config controls the worker pool.
type Config struct {
	Workers        int           // worker goroutines; default 4
	QueueSize      int           // queue capacity; default 256
	HistorySize    int           // bounded run history; default 200
	DefaultTimeout time.Duration // per-run ceiling; 0 disables
}

// Task is a unit of work executed by the pool.
type Task struct {
	Label   string
	Timeout time.Duration // overrides Config.DefaultTimeout when > 0
	Run     func(ctx context.Context) error
}

// RunRecord is one entry of the bounded run history.
type RunRecord struct {
	Seq      uint64
	Label    string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Workers  int
	QueueLen int
	QueueCap int
	Dropped  uint64
	History  []RunRecord
}
