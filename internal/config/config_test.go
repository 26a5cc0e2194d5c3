package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "limlog.yaml", `
log_level: debug
filter:
  exclude: [AOPCADMD]
api:
  enabled: true
  addr: ":9999"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.API.Addr != ":9999" {
		t.Fatalf("values: %+v", cfg)
	}
	if cfg.Aggregate.OnMalformed != OnMalformedSkip {
		t.Fatalf("on_malformed default: %q", cfg.Aggregate.OnMalformed)
	}
	if cfg.Metadata.Source != MetadataNone || cfg.Metadata.CacheSize != 1024 {
		t.Fatalf("metadata defaults: %+v", cfg.Metadata)
	}
	if len(cfg.Filter.Exclude) != 1 || cfg.Filter.Exclude[0] != "AOPCADMD" {
		t.Fatalf("filter: %+v", cfg.Filter)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "limlog.json", `{"aggregate": {"on_malformed": "abort"}, "rejects": {"store_limit": 5}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Aggregate.OnMalformed != OnMalformedAbort || cfg.Rejects.StoreLimit != 5 {
		t.Fatalf("values: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"policy":       "aggregate:\n  on_malformed: ignore\n",
		"meta file":    "metadata:\n  source: file\n",
		"meta storage": "metadata:\n  source: storage\n",
		"driver":       "storage:\n  enabled: true\n  driver: mysql\n",
		"kafka":        "ingest:\n  kafka:\n    enabled: true\n",
		"tail":         "ingest:\n  file_tail:\n    enabled: true\n",
	}
	for name, content := range cases {
		path := writeConfig(t, "c.yaml", content)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Ingest.ChannelBuffer != 10000 {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestManagerUpdateAndReload(t *testing.T) {
	path := writeConfig(t, "limlog.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	next := *m.Get()
	next.Filter.Include = []string{"S1"}
	if err := m.Update(&next); err != nil {
		t.Fatalf("update: %v", err)
	}
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(cfg.Filter.Include) != 1 || cfg.Filter.Include[0] != "S1" {
		t.Fatalf("filter not persisted: %+v", cfg.Filter)
	}
	needs, err := m.NeedsReload()
	if err != nil || needs {
		t.Fatalf("needs reload right after reload: %v %v", needs, err)
	}
}

func TestManagerWatchPicksUpChanges(t *testing.T) {
	path := writeConfig(t, "limlog.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	later := time.Now().Add(2 * time.Second)
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Watch(ctx, 20*time.Millisecond, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}, nil)
	select {
	case c := <-reloaded:
		if c.LogLevel != "debug" {
			t.Fatalf("log level: %q", c.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("watch did not reload")
	}
}

func TestManagerUpdateRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "limlog.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	next := *m.Get()
	next.Aggregate.OnMalformed = "ignore"
	if err := m.Update(&next); err == nil {
		t.Fatalf("expected validation error")
	}
	if m.Get().Aggregate.OnMalformed != OnMalformedSkip {
		t.Fatalf("invalid config went live")
	}
}
