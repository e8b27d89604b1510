package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration.
//
// All durations are Go duration strings (e.g. "50ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Executor  ExecutorConfig   `json:"executor"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Journal   JournalConfig    `json:"journal,omitempty"`
	Schedules []ScheduleConfig `json:"schedules,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ExecutorConfig controls the callback worker pool.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - queue_size: 256
//   - history_size: 200
//   - default_timeout: "0s" (disabled)
type ExecutorConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// SchedulerConfig declares the wheel hierarchy, coarsest level first.
// The driver tick should equal the finest level's span.
type SchedulerConfig struct {
	Tick   string        `json:"tick,omitempty"`
	Levels []LevelConfig `json:"levels"`
}

type LevelConfig struct {
	Name    string `json:"name,omitempty"`
	Buckets int    `json:"buckets"`
	Span    string `json:"span"`
}

// JournalConfig controls run-journal persistence.
//
// Driver values: "sqlite", "file", or ""/"none" (disabled).
type JournalConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retention   string `json:"retention,omitempty"`    // prune records older than this
}

// ScheduleConfig names a recurring job registered at startup.
type ScheduleConfig struct {
	Name string `json:"name"`
	Spec string `json:"spec"`
}

// Validate checks cross-field consistency. Field-level duration parsing
// errors surface here too, with their config paths.
func (c *Config) Validate() error {
	if _, err := ParseDurationOrDefault("scheduler.tick", c.Scheduler.Tick, 50*time.Millisecond); err != nil {
		return err
	}
	tick, _ := ParseDurationOrDefault("scheduler.tick", c.Scheduler.Tick, 50*time.Millisecond)
	if tick < time.Millisecond {
		return fmt.Errorf("scheduler.tick: must be at least 1ms, got %v", tick)
	}

	for i, lvl := range c.Scheduler.Levels {
		path := fmt.Sprintf("scheduler.levels[%d]", i)
		if lvl.Buckets <= 0 {
			return fmt.Errorf("%s.buckets: must be positive", path)
		}
		span, err := ParseDurationField(path+".span", lvl.Span)
		if err != nil {
			return err
		}
		if span < time.Millisecond {
			return fmt.Errorf("%s.span: must be at least 1ms", path)
		}
	}

	if _, err := ParseDurationField("executor.default_timeout", c.Executor.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("journal.busy_timeout", c.Journal.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("journal.retention", c.Journal.Retention); err != nil {
		return err
	}

	seen := map[string]bool{}
	for i, sc := range c.Schedules {
		path := fmt.Sprintf("schedules[%d]", i)
		name := strings.TrimSpace(sc.Name)
		if name == "" {
			return fmt.Errorf("%s.name: required", path)
		}
		if seen[name] {
			return fmt.Errorf("%s.name: duplicate schedule %q", path, name)
		}
		seen[name] = true
		if _, err := ParseSchedule(sc.Spec); err != nil {
			return fmt.Errorf("%s.spec: %w", path, err)
		}
	}
	return nil
}
