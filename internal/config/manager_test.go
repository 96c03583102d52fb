package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "DEBUG", "console": true},
		"storage": {"driver": "memory"},
		"sweep": {"enabled": true, "every": "30s", "max_tasks": 10},
		"executor": {"max_retries": 5},
		"parser": {"timezone": "America/Chicago"},
		"panel": {"users": ["u1"], "admins": ["root"]}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Every != "30s" || cfg.Sweep.MaxTasks != 10 {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
	if cfg.Executor.MaxRetries != 5 {
		t.Fatalf("executor = %+v", cfg.Executor)
	}
	if len(cfg.Panel.Admins) != 1 || cfg.Panel.Admins[0] != "root" {
		t.Fatalf("panel = %+v", cfg.Panel)
	}

	if got := m.Get(); got == nil || got.Parser.Timezone != "America/Chicago" {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: INFO
  console: true
storage:
  driver: sqlite
  path: ./sentinel.db
  busy_timeout: 2s
sweep:
  enabled: true
  continue_on_error: false
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./sentinel.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Sweep.ContinueOnError == nil || *cfg.Sweep.ContinueOnError {
		t.Fatalf("continue_on_error = %v, want explicit false", cfg.Sweep.ContinueOnError)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"loging": {"level": "INFO"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging": {"level": "INFO"}} {"extra": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("sweep.every", "90s")
	if err != nil {
		t.Fatalf("ParseDurationField: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("d = %v, want 90s", d)
	}

	if _, err := ParseDurationField("sweep.every", "fast"); err == nil {
		t.Fatal("expected error for junk duration")
	}
	if _, err := ParseDurationField("sweep.every", "-1m"); err == nil {
		t.Fatal("expected error for negative duration")
	}

	// Empty falls through to the default.
	d, err = ParseDurationOrDefault("sweep.every", "", time.Minute)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault: %v", err)
	}
	if d != time.Minute {
		t.Fatalf("d = %v, want 1m", d)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Logging.Level = "DEBUG"
	newCfg.Sweep.Enabled = true
	newCfg.Panel.Admins = []string{"root"}

	sections, attrs := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"logging": true, "sweep": true, "panel": true}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q", s)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("expected structured attrs")
	}

	if sections, _ := SummarizeChange(newCfg, newCfg); len(sections) != 0 {
		t.Fatalf("identical configs reported sections %v", sections)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging": {"level": "INFO"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	cfg := &Config{}
	cfg.Logging.Level = "DEBUG"
	m.Commit(cfg)
	m.publish(cfg)

	select {
	case got := <-sub:
		if got.Logging.Level != "DEBUG" {
			t.Fatalf("published level = %q", got.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published config")
	}
}
