// Package config owns the hot-swappable tuning surface of the intent
// engine. The JSON schema matches the /api/params endpoint so the same
// document serves startup configuration and runtime updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Default tuning values. Dwell limits are the frame-count defaults
// (READY=5, COMMIT=3, IDLE=4) expressed in milliseconds at a nominal
// 33 ms frame interval, so behaviour is frame-rate independent.
const (
	DefaultConfHigh            = 0.60
	DefaultConfLow             = 0.40
	DefaultDwellReadyMs        = 165.0
	DefaultDwellCommitMs       = 99.0
	DefaultDwellIdleMs         = 132.0
	DefaultCoastTimeoutMs      = 500.0
	DefaultArbitrationPolicy   = "lock_on_sight"
	DefaultDropHoverEvents     = false
	DefaultTeleportThresholdSq = 0.0225
	DefaultOverscanScale       = 1.25
	DefaultBraceScale          = 1.0
	DefaultMildLeakRatio       = 2.0
	DefaultOpposingLeakRatio   = 2.0
	DefaultRetireAfterFrames   = 30
	DefaultRecordRawFrames     = false
)

// maxFileSize caps config file reads (1MB).
const maxFileSize = 1 * 1024 * 1024

// TuningConfig is the root tuning document. All fields are pointers so a
// partial JSON file only overrides what it names; the Get* methods supply
// defaults for the rest.
type TuningConfig struct {
	// Hysteresis thresholds
	ConfHigh *float64 `json:"conf_high,omitempty"`
	ConfLow  *float64 `json:"conf_low,omitempty"`

	// Dwell limits (milliseconds)
	DwellReadyMs  *float64 `json:"dwell_ready_ms,omitempty"`
	DwellCommitMs *float64 `json:"dwell_commit_ms,omitempty"`
	DwellIdleMs   *float64 `json:"dwell_idle_ms,omitempty"`

	// Coast subsystem
	CoastTimeoutMs *float64 `json:"coast_timeout_ms,omitempty"`

	// Leak ratios. Conceptually distinct (mild vs opposing) even though
	// they default to the same value; tune independently.
	MildLeakRatio     *float64 `json:"mild_leak_ratio,omitempty"`
	OpposingLeakRatio *float64 `json:"opposing_leak_ratio,omitempty"`

	// Arbitration
	ArbitrationPolicy *string `json:"arbitration_policy,omitempty"` // lock_on_sight | lock_on_commit
	DropHoverEvents   *bool   `json:"drop_hover_events,omitempty"`

	// Teleport guard
	TeleportThresholdSq *float64 `json:"teleport_threshold_sq,omitempty"`

	// Classifier
	OverscanScale *float64 `json:"overscan_scale,omitempty"`
	BraceScale    *float64 `json:"brace_scale,omitempty"`

	// Hand table lifecycle
	RetireAfterFrames *int `json:"retire_after_frames,omitempty"`

	// Session recorder
	RecordRawFrames *bool `json:"record_raw_frames,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field explicitly
// set to its default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ConfHigh:            ptrFloat64(DefaultConfHigh),
		ConfLow:             ptrFloat64(DefaultConfLow),
		DwellReadyMs:        ptrFloat64(DefaultDwellReadyMs),
		DwellCommitMs:       ptrFloat64(DefaultDwellCommitMs),
		DwellIdleMs:         ptrFloat64(DefaultDwellIdleMs),
		CoastTimeoutMs:      ptrFloat64(DefaultCoastTimeoutMs),
		MildLeakRatio:       ptrFloat64(DefaultMildLeakRatio),
		OpposingLeakRatio:   ptrFloat64(DefaultOpposingLeakRatio),
		ArbitrationPolicy:   ptrString(DefaultArbitrationPolicy),
		DropHoverEvents:     ptrBool(DefaultDropHoverEvents),
		TeleportThresholdSq: ptrFloat64(DefaultTeleportThresholdSq),
		OverscanScale:       ptrFloat64(DefaultOverscanScale),
		BraceScale:          ptrFloat64(DefaultBraceScale),
		RetireAfterFrames:   ptrInt(DefaultRetireAfterFrames),
		RecordRawFrames:     ptrBool(DefaultRecordRawFrames),
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate fails fast on out-of-range values. Invalid tuning is an
// operator error caught here, never on the frame path.
func (c *TuningConfig) Validate() error {
	high := c.GetConfHigh()
	low := c.GetConfLow()
	if low >= high {
		return fmt.Errorf("conf_low (%.2f) must be below conf_high (%.2f)", low, high)
	}
	if low < 0 || high > 1 {
		return fmt.Errorf("confidence thresholds must lie in [0,1], got low=%.2f high=%.2f", low, high)
	}
	if c.GetDwellReadyMs() <= 0 {
		return fmt.Errorf("dwell_ready_ms must be positive, got %.1f", c.GetDwellReadyMs())
	}
	if c.GetDwellCommitMs() <= 0 {
		return fmt.Errorf("dwell_commit_ms must be positive, got %.1f", c.GetDwellCommitMs())
	}
	if c.GetDwellIdleMs() <= 0 {
		return fmt.Errorf("dwell_idle_ms must be positive, got %.1f", c.GetDwellIdleMs())
	}
	if c.GetCoastTimeoutMs() <= 0 {
		return fmt.Errorf("coast_timeout_ms must be positive, got %.1f", c.GetCoastTimeoutMs())
	}
	if c.GetMildLeakRatio() < 0 || c.GetOpposingLeakRatio() < 0 {
		return fmt.Errorf("leak ratios must be non-negative, got mild=%.1f opposing=%.1f",
			c.GetMildLeakRatio(), c.GetOpposingLeakRatio())
	}
	switch c.GetArbitrationPolicy() {
	case "lock_on_sight", "lock_on_commit":
	default:
		return fmt.Errorf("unknown arbitration_policy %q", c.GetArbitrationPolicy())
	}
	if c.GetTeleportThresholdSq() <= 0 {
		return fmt.Errorf("teleport_threshold_sq must be positive, got %f", c.GetTeleportThresholdSq())
	}
	if c.GetOverscanScale() < 1 {
		return fmt.Errorf("overscan_scale must be >= 1, got %.2f", c.GetOverscanScale())
	}
	if c.GetBraceScale() <= 0 {
		return fmt.Errorf("brace_scale must be positive, got %.2f", c.GetBraceScale())
	}
	if c.GetRetireAfterFrames() < 1 {
		return fmt.Errorf("retire_after_frames must be >= 1, got %d", c.GetRetireAfterFrames())
	}
	return nil
}

// Merge overlays the set fields of other onto a copy of c. Unset fields
// in other leave c's values untouched, so a partial runtime update cannot
// clear tuning it does not mention.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	merged := *c
	if other == nil {
		return &merged
	}
	if other.ConfHigh != nil {
		merged.ConfHigh = other.ConfHigh
	}
	if other.ConfLow != nil {
		merged.ConfLow = other.ConfLow
	}
	if other.DwellReadyMs != nil {
		merged.DwellReadyMs = other.DwellReadyMs
	}
	if other.DwellCommitMs != nil {
		merged.DwellCommitMs = other.DwellCommitMs
	}
	if other.DwellIdleMs != nil {
		merged.DwellIdleMs = other.DwellIdleMs
	}
	if other.CoastTimeoutMs != nil {
		merged.CoastTimeoutMs = other.CoastTimeoutMs
	}
	if other.MildLeakRatio != nil {
		merged.MildLeakRatio = other.MildLeakRatio
	}
	if other.OpposingLeakRatio != nil {
		merged.OpposingLeakRatio = other.OpposingLeakRatio
	}
	if other.ArbitrationPolicy != nil {
		merged.ArbitrationPolicy = other.ArbitrationPolicy
	}
	if other.DropHoverEvents != nil {
		merged.DropHoverEvents = other.DropHoverEvents
	}
	if other.TeleportThresholdSq != nil {
		merged.TeleportThresholdSq = other.TeleportThresholdSq
	}
	if other.OverscanScale != nil {
		merged.OverscanScale = other.OverscanScale
	}
	if other.BraceScale != nil {
		merged.BraceScale = other.BraceScale
	}
	if other.RetireAfterFrames != nil {
		merged.RetireAfterFrames = other.RetireAfterFrames
	}
	if other.RecordRawFrames != nil {
		merged.RecordRawFrames = other.RecordRawFrames
	}
	return &merged
}

// Getter methods supplying defaults for unset fields.

func (c *TuningConfig) GetConfHigh() float64 {
	if c.ConfHigh != nil {
		return *c.ConfHigh
	}
	return DefaultConfHigh
}

func (c *TuningConfig) GetConfLow() float64 {
	if c.ConfLow != nil {
		return *c.ConfLow
	}
	return DefaultConfLow
}

func (c *TuningConfig) GetDwellReadyMs() float64 {
	if c.DwellReadyMs != nil {
		return *c.DwellReadyMs
	}
	return DefaultDwellReadyMs
}

func (c *TuningConfig) GetDwellCommitMs() float64 {
	if c.DwellCommitMs != nil {
		return *c.DwellCommitMs
	}
	return DefaultDwellCommitMs
}

func (c *TuningConfig) GetDwellIdleMs() float64 {
	if c.DwellIdleMs != nil {
		return *c.DwellIdleMs
	}
	return DefaultDwellIdleMs
}

func (c *TuningConfig) GetCoastTimeoutMs() float64 {
	if c.CoastTimeoutMs != nil {
		return *c.CoastTimeoutMs
	}
	return DefaultCoastTimeoutMs
}

func (c *TuningConfig) GetMildLeakRatio() float64 {
	if c.MildLeakRatio != nil {
		return *c.MildLeakRatio
	}
	return DefaultMildLeakRatio
}

func (c *TuningConfig) GetOpposingLeakRatio() float64 {
	if c.OpposingLeakRatio != nil {
		return *c.OpposingLeakRatio
	}
	return DefaultOpposingLeakRatio
}

func (c *TuningConfig) GetArbitrationPolicy() string {
	if c.ArbitrationPolicy != nil {
		return *c.ArbitrationPolicy
	}
	return DefaultArbitrationPolicy
}

func (c *TuningConfig) GetDropHoverEvents() bool {
	if c.DropHoverEvents != nil {
		return *c.DropHoverEvents
	}
	return DefaultDropHoverEvents
}

func (c *TuningConfig) GetTeleportThresholdSq() float64 {
	if c.TeleportThresholdSq != nil {
		return *c.TeleportThresholdSq
	}
	return DefaultTeleportThresholdSq
}

func (c *TuningConfig) GetOverscanScale() float64 {
	if c.OverscanScale != nil {
		return *c.OverscanScale
	}
	return DefaultOverscanScale
}

func (c *TuningConfig) GetBraceScale() float64 {
	if c.BraceScale != nil {
		return *c.BraceScale
	}
	return DefaultBraceScale
}

func (c *TuningConfig) GetRetireAfterFrames() int {
	if c.RetireAfterFrames != nil {
		return *c.RetireAfterFrames
	}
	return DefaultRetireAfterFrames
}

func (c *TuningConfig) GetRecordRawFrames() bool {
	if c.RecordRawFrames != nil {
		return *c.RecordRawFrames
	}
	return DefaultRecordRawFrames
}
