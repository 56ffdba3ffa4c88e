// loader.go — TOML loading for RuntimeConfig. Grounded on the teacher's
// cmd/gasoline-cmd/config/loader.go Load(): decode into an intermediate
// struct with optional (pointer) fields so "not set in the file" is
// distinguishable from a zero value, then layer it over Defaults().
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/warpfusion/warpfusion/internal/window"
)

// rawConfig mirrors the TOML document shape. Durations and enums are
// strings at this layer since TOML has no native duration/enum type;
// parseRuntimeConfig converts them.
type rawConfig struct {
	Listen          *string                      `toml:"listen"`
	RuleExecTimeout *string                      `toml:"rule_exec_timeout"`
	WindowDefaults  rawWindowDefaults            `toml:"window_defaults"`
	WindowOverrides map[string]rawWindowDefaults `toml:"window_overrides"`
	Vars            map[string]string            `toml:"vars"`
}

type rawWindowDefaults struct {
	WatermarkDelay  *string `toml:"watermark_delay"`
	AllowedLateness *string `toml:"allowed_lateness"`
	LatePolicy      *string `toml:"late_policy"`
	EvictInterval   *string `toml:"evict_interval"`
	MaxWindowBytes  *int64  `toml:"max_window_bytes"`
	MaxTotalBytes   *int64  `toml:"max_total_bytes"`
	EvictPolicy     *string `toml:"evict_policy"`
}

// Load reads and parses the TOML file at path, applying it over Defaults()
// and validating the result. A malformed or invariant-violating config is
// a fatal startup error; Load returns that error for the caller
// (cmd/warpfusion) to report and exit on.
func Load(path string) (RuntimeConfig, error) {
	var raw rawConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	cfg, err := parseRuntimeConfig(raw)
	if err != nil {
		return RuntimeConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

func parseRuntimeConfig(raw rawConfig) (RuntimeConfig, error) {
	cfg := Defaults()

	if raw.Listen != nil {
		cfg.Listen = *raw.Listen
	}
	if raw.RuleExecTimeout != nil {
		d, err := time.ParseDuration(*raw.RuleExecTimeout)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: rule_exec_timeout: %w", err)
		}
		cfg.RuleExecTimeout = d
	}

	defaults, err := applyRawWindowDefaults(cfg.WindowDefaults, raw.WindowDefaults, "window_defaults")
	if err != nil {
		return RuntimeConfig{}, err
	}
	cfg.WindowDefaults = defaults

	if len(raw.WindowOverrides) > 0 {
		cfg.WindowOverrides = make(map[string]WindowOverride, len(raw.WindowOverrides))
		for name, rawOv := range raw.WindowOverrides {
			ov, err := parseWindowOverride(rawOv, fmt.Sprintf("window_overrides.%s", name))
			if err != nil {
				return RuntimeConfig{}, err
			}
			cfg.WindowOverrides[name] = ov
		}
	}

	if len(raw.Vars) > 0 {
		cfg.Vars = raw.Vars
	}

	return cfg, nil
}

func applyRawWindowDefaults(base WindowDefaults, raw rawWindowDefaults, ctx string) (WindowDefaults, error) {
	if raw.WatermarkDelay != nil {
		d, err := time.ParseDuration(*raw.WatermarkDelay)
		if err != nil {
			return base, fmt.Errorf("config: %s.watermark_delay: %w", ctx, err)
		}
		base.WatermarkDelay = d
	}
	if raw.AllowedLateness != nil {
		d, err := time.ParseDuration(*raw.AllowedLateness)
		if err != nil {
			return base, fmt.Errorf("config: %s.allowed_lateness: %w", ctx, err)
		}
		base.AllowedLateness = d
	}
	if raw.LatePolicy != nil {
		p, err := parseLatePolicy(*raw.LatePolicy)
		if err != nil {
			return base, fmt.Errorf("config: %s.late_policy: %w", ctx, err)
		}
		base.LatePolicy = p
	}
	if raw.EvictInterval != nil {
		d, err := time.ParseDuration(*raw.EvictInterval)
		if err != nil {
			return base, fmt.Errorf("config: %s.evict_interval: %w", ctx, err)
		}
		base.EvictInterval = d
	}
	if raw.MaxWindowBytes != nil {
		base.MaxWindowBytes = *raw.MaxWindowBytes
	}
	if raw.MaxTotalBytes != nil {
		base.MaxTotalBytes = *raw.MaxTotalBytes
	}
	if raw.EvictPolicy != nil {
		p, err := parseEvictPolicy(*raw.EvictPolicy)
		if err != nil {
			return base, fmt.Errorf("config: %s.evict_policy: %w", ctx, err)
		}
		base.EvictPolicy = p
	}
	return base, nil
}

func parseWindowOverride(raw rawWindowDefaults, ctx string) (WindowOverride, error) {
	var ov WindowOverride
	if raw.WatermarkDelay != nil {
		d, err := time.ParseDuration(*raw.WatermarkDelay)
		if err != nil {
			return ov, fmt.Errorf("config: %s.watermark_delay: %w", ctx, err)
		}
		ov.WatermarkDelay = &d
	}
	if raw.AllowedLateness != nil {
		d, err := time.ParseDuration(*raw.AllowedLateness)
		if err != nil {
			return ov, fmt.Errorf("config: %s.allowed_lateness: %w", ctx, err)
		}
		ov.AllowedLateness = &d
	}
	if raw.LatePolicy != nil {
		p, err := parseLatePolicy(*raw.LatePolicy)
		if err != nil {
			return ov, fmt.Errorf("config: %s.late_policy: %w", ctx, err)
		}
		ov.LatePolicy = &p
	}
	if raw.EvictInterval != nil {
		d, err := time.ParseDuration(*raw.EvictInterval)
		if err != nil {
			return ov, fmt.Errorf("config: %s.evict_interval: %w", ctx, err)
		}
		ov.EvictInterval = &d
	}
	if raw.MaxWindowBytes != nil {
		ov.MaxWindowBytes = raw.MaxWindowBytes
	}
	if raw.MaxTotalBytes != nil {
		ov.MaxTotalBytes = raw.MaxTotalBytes
	}
	if raw.EvictPolicy != nil {
		p, err := parseEvictPolicy(*raw.EvictPolicy)
		if err != nil {
			return ov, fmt.Errorf("config: %s.evict_policy: %w", ctx, err)
		}
		ov.EvictPolicy = &p
	}
	return ov, nil
}

func parseLatePolicy(s string) (window.LatePolicy, error) {
	switch s {
	case "drop":
		return window.LateDrop, nil
	case "revise":
		return window.LateRevise, nil
	case "side_output":
		return window.LateSideOutput, nil
	default:
		return 0, fmt.Errorf("unrecognized late_policy %q (want drop, revise, or side_output)", s)
	}
}

func parseEvictPolicy(s string) (EvictPolicy, error) {
	switch s {
	case "time_first":
		return EvictTimeFirst, nil
	case "memory_first":
		return EvictMemoryFirst, nil
	default:
		return 0, fmt.Errorf("unrecognized evict_policy %q (want time_first or memory_first)", s)
	}
}
