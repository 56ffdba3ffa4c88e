// config.go — RuntimeConfig: the §6.4 runtime knob surface, loaded from
// TOML. Grounded on the teacher's cmd/gasoline-cmd/config/loader.go
// priority-cascade shape (Defaults() -> overlay -> Validate()),
// generalized here from a JSON file cascade to a single TOML document via
// BurntSushi/toml (the TOML-based runtime config choice itself is grounded
// on influxdata-kapacitor's go.mod/config, per SPEC_FULL.md's domain-stack
// section).
package config

import (
	"fmt"
	"time"

	"github.com/warpfusion/warpfusion/internal/window"
)

// WindowDefaults carries the knobs in §6.4's `window_defaults.*` rows.
type WindowDefaults struct {
	WatermarkDelay  time.Duration
	AllowedLateness time.Duration
	LatePolicy      window.LatePolicy
	EvictInterval   time.Duration
	MaxWindowBytes  int64
	MaxTotalBytes   int64
	EvictPolicy     EvictPolicy
}

// EvictPolicy mirrors window_defaults.evict_policy (`time_first` /
// `memory_first`).
type EvictPolicy uint8

const (
	EvictTimeFirst EvictPolicy = iota
	EvictMemoryFirst
)

// WindowOverride holds a per-window subset of WindowDefaults; a zero field
// means "inherit the default" (distinguished via pointers at the TOML
// layer, see rawConfig in loader.go).
type WindowOverride struct {
	WatermarkDelay  *time.Duration
	AllowedLateness *time.Duration
	LatePolicy      *window.LatePolicy
	EvictInterval   *time.Duration
	MaxWindowBytes  *int64
	MaxTotalBytes   *int64
	EvictPolicy     *EvictPolicy
}

// RuntimeConfig is the fully-resolved configuration surface of §6.4.
type RuntimeConfig struct {
	Listen          string
	RuleExecTimeout time.Duration
	WindowDefaults  WindowDefaults
	WindowOverrides map[string]WindowOverride
	Vars            map[string]string
}

// Defaults returns §6.4's documented defaults.
func Defaults() RuntimeConfig {
	return RuntimeConfig{
		Listen:          "tcp://127.0.0.1:9800",
		RuleExecTimeout: 30 * time.Second,
		WindowDefaults: WindowDefaults{
			WatermarkDelay:  5 * time.Second,
			AllowedLateness: 0,
			LatePolicy:      window.LateDrop,
			EvictInterval:   30 * time.Second,
			MaxWindowBytes:  256 << 20,
			MaxTotalBytes:   2 << 30,
			EvictPolicy:     EvictTimeFirst,
		},
		WindowOverrides: map[string]WindowOverride{},
		Vars:            map[string]string{},
	}
}

// ResolveWindowDef merges RuntimeConfig's defaults/overrides into a
// logical window.Def supplied by the external schema/compiler layer. base
// must already carry Name/Streams/TimeField/Over; the runtime-config
// fields are filled in here.
func (c RuntimeConfig) ResolveWindowDef(base window.Def) window.Def {
	d := c.WindowDefaults
	if ov, ok := c.WindowOverrides[base.Name]; ok {
		if ov.WatermarkDelay != nil {
			d.WatermarkDelay = *ov.WatermarkDelay
		}
		if ov.AllowedLateness != nil {
			d.AllowedLateness = *ov.AllowedLateness
		}
		if ov.LatePolicy != nil {
			d.LatePolicy = *ov.LatePolicy
		}
		if ov.MaxWindowBytes != nil {
			d.MaxWindowBytes = *ov.MaxWindowBytes
		}
		// EvictInterval/MaxTotalBytes/EvictPolicy are evictor-global knobs,
		// not per-window Def fields; per-window overrides of them are not
		// folded into window.Def, and internal/supervisor builds the
		// Evictor from WindowDefaults alone.
	}

	base.WatermarkDelay = d.WatermarkDelay
	base.AllowedLateness = d.AllowedLateness
	base.LatePolicy = d.LatePolicy
	base.MaxWindowBytes = d.MaxWindowBytes
	return base
}

// Validate checks the invariants that must be fatal at startup: a
// non-empty listen address, a positive rule_exec_timeout and
// evict_interval, non-negative delays and byte limits, and
// max_window_bytes <= max_total_bytes when both are set, for the defaults and for each
// window override merged over them. Unknown policy names are rejected
// earlier, while Load parses the file.
func (c RuntimeConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	if c.RuleExecTimeout <= 0 {
		return fmt.Errorf("config: rule_exec_timeout must be positive, got %s", c.RuleExecTimeout)
	}
	if err := c.WindowDefaults.validate("window_defaults"); err != nil {
		return err
	}
	for name, ov := range c.WindowOverrides {
		merged := c.WindowDefaults
		if ov.WatermarkDelay != nil {
			merged.WatermarkDelay = *ov.WatermarkDelay
		}
		if ov.AllowedLateness != nil {
			merged.AllowedLateness = *ov.AllowedLateness
		}
		if ov.MaxWindowBytes != nil {
			merged.MaxWindowBytes = *ov.MaxWindowBytes
		}
		if ov.MaxTotalBytes != nil {
			merged.MaxTotalBytes = *ov.MaxTotalBytes
		}
		if err := merged.validate(fmt.Sprintf("window_overrides[%s]", name)); err != nil {
			return err
		}
	}
	return nil
}

func (d WindowDefaults) validate(ctx string) error {
	if d.WatermarkDelay < 0 {
		return fmt.Errorf("config: %s.watermark_delay must be >= 0, got %s", ctx, d.WatermarkDelay)
	}
	if d.AllowedLateness < 0 {
		return fmt.Errorf("config: %s.allowed_lateness must be >= 0, got %s", ctx, d.AllowedLateness)
	}
	if d.EvictInterval <= 0 {
		return fmt.Errorf("config: %s.evict_interval must be positive, got %s", ctx, d.EvictInterval)
	}
	if d.MaxWindowBytes < 0 {
		return fmt.Errorf("config: %s.max_window_bytes must be >= 0, got %d", ctx, d.MaxWindowBytes)
	}
	if d.MaxTotalBytes < 0 {
		return fmt.Errorf("config: %s.max_total_bytes must be >= 0, got %d", ctx, d.MaxTotalBytes)
	}
	if d.MaxWindowBytes > 0 && d.MaxTotalBytes > 0 && d.MaxWindowBytes > d.MaxTotalBytes {
		return fmt.Errorf("config: %s.max_window_bytes (%d) must not exceed max_total_bytes (%d)", ctx, d.MaxWindowBytes, d.MaxTotalBytes)
	}
	return nil
}
