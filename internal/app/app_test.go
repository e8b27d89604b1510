package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickwheel/internal/config"
)

func TestAppStartStop(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "runs.jsonl")
	cfgPath := filepath.Join(dir, "tickwheel.yaml")

	cfgYAML := fmt.Sprintf(`
logging:
  level: error
  console: true
executor:
  workers: 2
  queue_size: 32
scheduler:
  tick: 10ms
  levels:
    - name: decis
      buckets: 10
      span: 100ms
    - name: centis
      buckets: 10
      span: 10ms
journal:
  driver: file
  path: %s
schedules:
  - name: heartbeat
    spec: every:50ms
`, journalPath)
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(cfgPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let the heartbeat fire a few times and drain into the journal.
	time.Sleep(400 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f, err := os.Open(journalPath)
	if err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	if lines == 0 {
		t.Fatal("no runs journaled")
	}
}

func TestStartFailsWithBrokenConfig(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte("scheduler:\n  tick: 100us\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfgPath); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestStartFailsWithoutLevels(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "tickwheel.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: error\n  console: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := New(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err == nil {
		_ = a.Stop(context.Background())
		t.Fatal("Start succeeded with no wheel levels")
	}
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()
	ec := executorConfig(config.ExecutorConfig{Workers: 3, QueueSize: 9, HistorySize: 7, DefaultTimeout: "1s"})
	if ec.Workers != 3 || ec.QueueSize != 9 || ec.HistorySize != 7 || ec.DefaultTimeout != time.Second {
		t.Fatalf("executor mapping = %+v", ec)
	}
	jc := journalConfig(config.JournalConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "2s", Retention: "24h"})
	if jc.Driver != "sqlite" || jc.BusyTimeout != 2*time.Second || jc.Retention != 24*time.Hour {
		t.Fatalf("journal mapping = %+v", jc)
	}
}
