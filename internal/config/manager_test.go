package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
executor:
  workers: 2
  queue_size: 64
  history_size: 50
  default_timeout: 30s
scheduler:
  tick: 100ms
  levels:
    - name: seconds
      buckets: 10
      span: 1s
    - name: centis
      buckets: 10
      span: 100ms
journal:
  driver: file
  path: runs.jsonl
schedules:
  - name: heartbeat
    spec: 30s
  - name: nightly
    spec: "cron:0 3 * * *"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "tickwheel.yaml", sampleYAML))

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Executor.Workers != 2 || cfg.Executor.QueueSize != 64 {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if cfg.Scheduler.Tick != "100ms" || len(cfg.Scheduler.Levels) != 2 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Levels[0].Name != "seconds" || cfg.Scheduler.Levels[0].Buckets != 10 {
		t.Fatalf("level 0 = %+v", cfg.Scheduler.Levels[0])
	}
	if cfg.Journal.Driver != "file" {
		t.Fatalf("journal = %+v", cfg.Journal)
	}
	if len(cfg.Schedules) != 2 || cfg.Schedules[1].Spec != "cron:0 3 * * *" {
		t.Fatalf("schedules = %+v", cfg.Schedules)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "tickwheel.json", `{
		"logging": {"level": "info", "console": true},
		"executor": {"workers": 1},
		"scheduler": {"tick": "50ms", "levels": [{"buckets": 8, "span": "50ms"}]}
	}`))

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Levels[0].Buckets != 8 {
		t.Fatalf("levels = %+v", cfg.Scheduler.Levels)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "bad.yaml", "scheduler:\n  tick: 100ms\n  cadence: fast\n"))
	if _, err := m.Load(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestLoadValidates(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "tick too small",
			yaml:    "scheduler:\n  tick: 200us\n",
			wantErr: "scheduler.tick",
		},
		{
			name:    "level without buckets",
			yaml:    "scheduler:\n  levels:\n    - span: 1s\n",
			wantErr: "buckets",
		},
		{
			name:    "level bad span",
			yaml:    "scheduler:\n  levels:\n    - buckets: 10\n      span: fast\n",
			wantErr: "span",
		},
		{
			name:    "duplicate schedule names",
			yaml:    "schedules:\n  - name: a\n    spec: 10s\n  - name: a\n    spec: 20s\n",
			wantErr: "duplicate schedule",
		},
		{
			name:    "schedule without name",
			yaml:    "schedules:\n  - spec: 10s\n",
			wantErr: "name: required",
		},
		{
			name:    "schedule bad spec",
			yaml:    "schedules:\n  - name: a\n    spec: whenever\n",
			wantErr: "invalid schedule",
		},
		{
			name:    "negative executor timeout",
			yaml:    "executor:\n  default_timeout: -5s\n",
			wantErr: "executor.default_timeout",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, "cfg.yaml", tc.yaml))
			_, err := m.Load()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestReloadPublishesChangedConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "tickwheel.yaml", sampleYAML)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Identical content: hash short-circuits, nothing published.
	m.reload()
	select {
	case cfg := <-sub:
		t.Fatalf("unchanged config republished: %+v", cfg)
	default:
	}

	// A broken rewrite keeps the last good config committed.
	if err := os.WriteFile(path, []byte("scheduler: [nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload()
	if got := m.Get(); got == nil || got.Logging.Level != "debug" {
		t.Fatalf("last good config lost: %+v", got)
	}

	// A real change is committed and published.
	changed := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatal(err)
	}
	m.reload()
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "warn" {
			t.Fatalf("published level = %q, want warn", cfg.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("changed config never published")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatal("changed config not committed")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	sub := m.Subscribe(1)
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	m.Unsubscribe(sub) // idempotent
}
