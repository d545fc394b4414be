package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftahirops/ptop/engine"
	"github.com/ftahirops/ptop/model"
)

// Config holds user-configurable defaults and integrations.
type Config struct {
	Sampler    SamplerConfig    `yaml:"sampler"`
	View       ViewConfig       `yaml:"view"`
	Logs       LogConfig        `yaml:"logs"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

type SamplerConfig struct {
	Interval         time.Duration `yaml:"interval"`
	FullScanInterval time.Duration `yaml:"full_scan_interval"`
	IncrementalLimit int           `yaml:"incremental_limit"`
	Backoff          time.Duration `yaml:"backoff"`
}

type ViewConfig struct {
	RenderInterval     time.Duration `yaml:"render_interval"`
	TopK               int           `yaml:"top_k"`
	HistorySize        int           `yaml:"history_size"`
	DisplayLimit       int           `yaml:"display_limit"`
	TopKSource         string        `yaml:"topk_source"` // snapshot | view
	HighUsageThreshold float64       `yaml:"high_usage_threshold"`
	Sort               string        `yaml:"sort"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // TUI mode only; empty picks the state dir
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a config with sensible defaults.
func Default() Config {
	return Config{
		Sampler: SamplerConfig{
			Interval:         engine.DefaultInterval,
			FullScanInterval: engine.DefaultFullScanInterval,
			IncrementalLimit: engine.DefaultIncrementalLimit,
			Backoff:          2 * engine.DefaultInterval,
		},
		View: ViewConfig{
			RenderInterval:     250 * time.Millisecond,
			TopK:               engine.DefaultTopK,
			HistorySize:        engine.DefaultHistoryCapacity,
			DisplayLimit:       engine.DisplayLimit,
			TopKSource:         engine.TopKSourceSnapshot.String(),
			HighUsageThreshold: engine.DefaultHighUsageThreshold,
			Sort:               model.SortCPU.String(),
		},
		Logs: LogConfig{
			Level: "info",
		},
		Prometheus: PrometheusConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9101",
		},
	}
}

// Path returns $PTOP_CONFIG, or ~/.config/ptop/config.yaml (or XDG_CONFIG_HOME).
// Returns empty string if home directory cannot be determined.
func Path() string {
	if p := os.Getenv("PTOP_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "ptop", "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error. On a
// parse error the defaults are returned along with the error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ApplyEnvOverrides applies PTOP_* variables on top of cfg. Malformed values
// are left out and reported together in the returned error.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []error
	duration := func(name string, dst *time.Duration) {
		val := os.Getenv(name)
		if val == "" {
			return
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = d
	}

	duration("PTOP_INTERVAL", &cfg.Sampler.Interval)
	duration("PTOP_FULL_SCAN_INTERVAL", &cfg.Sampler.FullScanInterval)
	if val := os.Getenv("PTOP_TOP_K"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.View.TopK = n
		} else {
			errs = append(errs, fmt.Errorf("PTOP_TOP_K: %w", err))
		}
	}
	if val := os.Getenv("PTOP_LOG_LEVEL"); val != "" {
		cfg.Logs.Level = val
	}
	if val := os.Getenv("PTOP_LOG_FILE"); val != "" {
		cfg.Logs.File = val
	}
	if val := os.Getenv("PTOP_PROMETHEUS_ADDR"); val != "" {
		cfg.Prometheus.Addr = val
		cfg.Prometheus.Enabled = true
	}
	return errors.Join(errs...)
}

// Validate resets out-of-range values to their defaults and reports each one.
func (c *Config) Validate() error {
	d := Default()
	var errs []error
	fix := func(bad bool, field string, reset func()) {
		if bad {
			errs = append(errs, fmt.Errorf("%s out of range, using default", field))
			reset()
		}
	}

	fix(c.Sampler.Interval <= 0, "sampler.interval", func() { c.Sampler.Interval = d.Sampler.Interval })
	fix(c.Sampler.FullScanInterval < c.Sampler.Interval, "sampler.full_scan_interval", func() {
		c.Sampler.FullScanInterval = max(d.Sampler.FullScanInterval, c.Sampler.Interval)
	})
	fix(c.Sampler.IncrementalLimit <= 0, "sampler.incremental_limit", func() { c.Sampler.IncrementalLimit = d.Sampler.IncrementalLimit })
	fix(c.Sampler.Backoff <= 0, "sampler.backoff", func() { c.Sampler.Backoff = 2 * c.Sampler.Interval })
	fix(c.View.RenderInterval <= 0, "view.render_interval", func() { c.View.RenderInterval = d.View.RenderInterval })
	fix(c.View.TopK <= 0, "view.top_k", func() { c.View.TopK = d.View.TopK })
	fix(c.View.HistorySize <= 0, "view.history_size", func() { c.View.HistorySize = d.View.HistorySize })
	fix(c.View.DisplayLimit <= 0, "view.display_limit", func() { c.View.DisplayLimit = d.View.DisplayLimit })
	fix(c.View.HighUsageThreshold > 100, "view.high_usage_threshold", func() { c.View.HighUsageThreshold = d.View.HighUsageThreshold })
	if _, err := engine.ParseTopKSource(c.View.TopKSource); err != nil {
		fix(true, "view.topk_source", func() { c.View.TopKSource = d.View.TopKSource })
	}
	if _, err := model.ParseSortKey(c.View.Sort); err != nil {
		fix(true, "view.sort", func() { c.View.Sort = d.View.Sort })
	}
	if c.Prometheus.Enabled && c.Prometheus.Addr == "" {
		fix(true, "prometheus.addr", func() { c.Prometheus.Addr = d.Prometheus.Addr })
	}
	return errors.Join(errs...)
}

// SamplerConfig converts the sampler section for the engine.
func (c Config) SamplerConfig() engine.SamplerConfig {
	return engine.SamplerConfig{
		Interval:         c.Sampler.Interval,
		FullScanInterval: c.Sampler.FullScanInterval,
		IncrementalLimit: c.Sampler.IncrementalLimit,
		Backoff:          c.Sampler.Backoff,
	}
}

// MonitorConfig converts the view section for the engine. Call Validate first.
func (c Config) MonitorConfig() engine.MonitorConfig {
	src, _ := engine.ParseTopKSource(c.View.TopKSource)
	return engine.MonitorConfig{
		TopK:               c.View.TopK,
		HistoryCapacity:    c.View.HistorySize,
		TopKSource:         src,
		DisplayLimit:       c.View.DisplayLimit,
		HighUsageThreshold: c.View.HighUsageThreshold,
	}
}

// SortCriterion returns the initial sort, descending.
func (c Config) SortCriterion() model.SortCriterion {
	key, err := model.ParseSortKey(c.View.Sort)
	if err != nil {
		return model.DefaultSortCriterion()
	}
	return model.SortCriterion{Key: key, Descending: true}
}
