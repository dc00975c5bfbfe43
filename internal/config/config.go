// ============================================================================
// scancore Configuration - YAML Scan Configuration
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Declarative scan configuration, loaded once at startup and fed
//          into internal/scan.Engine, internal/metrics.Collector, and
//          internal/dedup.BloomDeduplicator. Grounded on the teacher's
//          internal/cli.Config + loadConfig (a YAML-tagged struct read
//          with gopkg.in/yaml.v3), retargeted from worker/WAL/snapshot
//          settings to scan/module settings.
//
// ============================================================================

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scancore/scancore/pkg/types"
)

// Config is the top-level scan configuration file shape.
type Config struct {
	Scan       ScanConfig                `yaml:"scan"`
	Dedup      DedupConfig               `yaml:"dedup"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Quiescence QuiescenceConfig          `yaml:"quiescence"`
	Modules    map[string]ModuleOverride `yaml:"modules"`
}

// ScanConfig carries the scan-wide settings the controller surfaces to
// every module (spec.md §4.D ScopeSearchDistance).
type ScanConfig struct {
	ScopeSearchDistance int `yaml:"scope_search_distance"`
}

// DedupConfig configures the sliding-window Bloom filter (internal/dedup).
type DedupConfig struct {
	Enabled       bool    `yaml:"enabled"`
	WindowSeconds int     `yaml:"window_seconds"`
	Capacity      uint    `yaml:"capacity"`
	FPRate        float64 `yaml:"fp_rate"`
}

// Window returns the configured dedup window as a time.Duration.
func (d DedupConfig) Window() time.Duration {
	return time.Duration(d.WindowSeconds) * time.Second
}

// MetricsConfig configures the Prometheus /metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// QuiescenceConfig tunes the engine's sample/resample quiescence poll
// (internal/scan.Engine's PollInterval/ResampleWindow).
type QuiescenceConfig struct {
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	ResampleWindowMs int `yaml:"resample_window_ms"`
}

func (q QuiescenceConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

func (q QuiescenceConfig) ResampleWindow() time.Duration {
	return time.Duration(q.ResampleWindowMs) * time.Millisecond
}

// ModuleOverride is a per-module configuration override, merged onto a
// module's code-declared types.ModuleConfig defaults by name. Zero values
// mean "leave the module's own default alone"; a module must declare its
// own sane defaults, config only narrows or widens them.
type ModuleOverride struct {
	MaxEventHandlers int            `yaml:"max_event_handlers"`
	BatchSize        int            `yaml:"batch_size"`
	BatchWait        float64        `yaml:"batch_wait"`
	QSize            int            `yaml:"qsize"`
	Priority         int            `yaml:"priority"`
	InScopeOnly      bool           `yaml:"in_scope_only"`
	TargetOnly       bool           `yaml:"target_only"`
	Options          map[string]any `yaml:"options"`
}

// Default returns a Config with pragmatic, non-zero defaults - returned
// as-is by Load for an empty path, and the base Load merges a file's
// sparse YAML on top of.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{ScopeSearchDistance: 4},
		Dedup: DedupConfig{
			Enabled:       true,
			WindowSeconds: 600,
			Capacity:      1_000_000,
			FPRate:        0.0001,
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090},
		Quiescence: QuiescenceConfig{
			PollIntervalMs:   20,
			ResampleWindowMs: 50,
		},
		Modules: map[string]ModuleOverride{},
	}
}

// Load reads and parses the YAML file at path on top of Default(). An
// empty path returns Default() unchanged; a path that cannot be read
// (including one that does not exist) is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyModule merges the named override (if any) onto base, returning the
// effective types.ModuleConfig the engine constructs the module with.
// Non-zero override fields win; zero-valued override fields leave base
// untouched, since 0 is never a meaningful explicit override for any of
// these fields.
func (c *Config) ApplyModule(name string, base types.ModuleConfig) types.ModuleConfig {
	override, ok := c.Modules[name]
	if !ok {
		return base
	}
	if override.MaxEventHandlers > 0 {
		base.MaxEventHandlers = override.MaxEventHandlers
	}
	if override.BatchSize > 0 {
		base.BatchSize = override.BatchSize
	}
	if override.BatchWait > 0 {
		base.BatchWait = override.BatchWait
	}
	if override.QSize > 0 {
		base.QSize = override.QSize
	}
	if override.Priority > 0 {
		base.Priority = types.ClampPriority(override.Priority)
	}
	if override.InScopeOnly {
		base.InScopeOnly = true
	}
	if override.TargetOnly {
		base.TargetOnly = true
	}
	if len(override.Options) > 0 {
		if base.Options == nil {
			base.Options = make(map[string]any, len(override.Options))
		}
		for k, v := range override.Options {
			base.Options[k] = v
		}
	}
	return base
}
