package journal

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the run journal.
//
// Driver values:
//   - "file": dependency-free append-only JSON Lines
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // prune records older than this; 0 keeps all
}

// Record is one fired-callback entry. Only completed runs are journaled;
// pending timers are never persisted.
type Record struct {
	At       time.Time     `json:"at"`
	Seq      uint64        `json:"seq"`
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Store is the minimal persistence API consumed by the journal writer.
type Store interface {
	AppendRun(ctx context.Context, r Record) error
	Close() error
}
