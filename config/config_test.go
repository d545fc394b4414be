package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ftahirops/ptop/engine"
	"github.com/ftahirops/ptop/model"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults", cfg)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
sampler:
  interval: 250ms
  full_scan_interval: 3s
view:
  top_k: 3
  topk_source: view
logs:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sampler.Interval != 250*time.Millisecond || cfg.Sampler.FullScanInterval != 3*time.Second {
		t.Fatalf("sampler = %+v", cfg.Sampler)
	}
	if cfg.Sampler.IncrementalLimit != engine.DefaultIncrementalLimit {
		t.Fatalf("unset field lost its default: %d", cfg.Sampler.IncrementalLimit)
	}
	mc := cfg.MonitorConfig()
	if mc.TopK != 3 || mc.TopKSource != engine.TopKSourceView || mc.HistoryCapacity != engine.DefaultHistoryCapacity {
		t.Fatalf("monitor config = %+v", mc)
	}
	if cfg.Logs.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Logs.Level)
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sampler: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg != Default() {
		t.Fatal("parse error did not fall back to defaults")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	want := Default()
	want.View.TopK = 8
	want.Sampler.Backoff = 3 * time.Second
	want.Prometheus.Enabled = true
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, want)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PTOP_INTERVAL", "1s")
	t.Setenv("PTOP_FULL_SCAN_INTERVAL", "bogus")
	t.Setenv("PTOP_TOP_K", "7")
	t.Setenv("PTOP_LOG_LEVEL", "warn")
	t.Setenv("PTOP_LOG_FILE", "/tmp/ptop-test.log")
	t.Setenv("PTOP_PROMETHEUS_ADDR", ":9999")

	cfg := Default()
	err := ApplyEnvOverrides(&cfg)
	if err == nil {
		t.Fatal("bad PTOP_FULL_SCAN_INTERVAL not reported")
	}
	if cfg.Sampler.Interval != time.Second {
		t.Errorf("interval = %v", cfg.Sampler.Interval)
	}
	if cfg.Sampler.FullScanInterval != engine.DefaultFullScanInterval {
		t.Errorf("bad value was applied: %v", cfg.Sampler.FullScanInterval)
	}
	if cfg.View.TopK != 7 || cfg.Logs.Level != "warn" || cfg.Logs.File != "/tmp/ptop-test.log" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Prometheus.Enabled || cfg.Prometheus.Addr != ":9999" {
		t.Errorf("prometheus = %+v", cfg.Prometheus)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		check   func(Config) bool
		wantErr bool
	}{
		{"defaults valid", func(*Config) {}, func(Config) bool { return true }, false},
		{"zero interval", func(c *Config) { c.Sampler.Interval = 0 },
			func(c Config) bool { return c.Sampler.Interval == engine.DefaultInterval }, true},
		{"full scan faster than tick", func(c *Config) { c.Sampler.Interval = 5 * time.Second; c.Sampler.FullScanInterval = time.Second },
			func(c Config) bool { return c.Sampler.FullScanInterval == 5*time.Second }, true},
		{"negative top k", func(c *Config) { c.View.TopK = -1 },
			func(c Config) bool { return c.View.TopK == engine.DefaultTopK }, true},
		{"unknown source", func(c *Config) { c.View.TopKSource = "everything" },
			func(c Config) bool { return c.View.TopKSource == "snapshot" }, true},
		{"unknown sort", func(c *Config) { c.View.Sort = "age" },
			func(c Config) bool { return c.View.Sort == "cpu" }, true},
		{"threshold off", func(c *Config) { c.View.HighUsageThreshold = 0 },
			func(c Config) bool { return c.View.HighUsageThreshold == 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.check(cfg) {
				t.Fatalf("unexpected config after Validate: %+v", cfg)
			}
		})
	}
}

func TestSortCriterion(t *testing.T) {
	cfg := Default()
	cfg.View.Sort = "mem"
	if got := cfg.SortCriterion(); got != (model.SortCriterion{Key: model.SortMemory, Descending: true}) {
		t.Fatalf("SortCriterion() = %v", got)
	}
}

func TestPathEnv(t *testing.T) {
	t.Setenv("PTOP_CONFIG", "/etc/ptop.yaml")
	if Path() != "/etc/ptop.yaml" {
		t.Fatalf("Path() = %q", Path())
	}
	t.Setenv("PTOP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if want := filepath.Join("/xdg", "ptop", "config.yaml"); Path() != want {
		t.Fatalf("Path() = %q, want %q", Path(), want)
	}
}
