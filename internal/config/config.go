// Package config loads arbiter settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// Environment overrides, applied after the file.
const (
	EnvDB            = "ARBITER_DB"
	EnvRedisAddr     = "ARBITER_REDIS_ADDR"
	EnvGeneratorAddr = "ARBITER_GENERATOR_ADDR"
	EnvLogLevel      = "ARBITER_LOG_LEVEL"
	EnvAuditCapacity = "ARBITER_AUDIT_CAPACITY"
	EnvSibylRule     = "ARBITER_SIBYL_RULE"
	EnvEnabled       = "ARBITER_ENABLED"
)

// Config is the full runtime configuration.
type Config struct {
	// Enabled is the kill switch. When false the pipeline still classifies and audits
	// but never regenerates.
	Enabled bool `yaml:"enabled"`

	DB            string `yaml:"db"`
	RedisAddr     string `yaml:"redis_addr"` // when set, sessions live in Redis instead of SQLite
	GeneratorAddr string `yaml:"generator_addr"`

	Log       LogConfig       `yaml:"log"`
	Audit     AuditConfig     `yaml:"audit"`
	Gate      GateConfig      `yaml:"gate"`
	Voice     VoiceConfig     `yaml:"voice"`
	Signature SignatureConfig `yaml:"signature"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// AuditConfig sizes the in-memory audit ring and its SQLite mirror.
type AuditConfig struct {
	Capacity int  `yaml:"capacity"`
	Persist  bool `yaml:"persist"` // mirror entries into the audit_log table
}

// GateConfig sets the metrics boundary policy and the per-turn delta bound.
type GateConfig struct {
	Policy   string  `yaml:"policy"` // clamp | reject
	MaxDelta float64 `yaml:"max_delta"`
}

// VoiceConfig tunes voice arbitration. Preference keys are voice IDs or symbols.
type VoiceConfig struct {
	SibylRule   string             `yaml:"sibyl_rule"`
	Inertia     float64            `yaml:"inertia"`
	Preferences map[string]float64 `yaml:"preferences"`
}

// SignatureConfig controls when the ∆DΩΛ block is enforced.
type SignatureConfig struct {
	AlwaysEnforce bool `yaml:"always_enforce"`
}

// PipelineConfig bounds generation and the stored history.
type PipelineConfig struct {
	FallbackOnError bool          `yaml:"fallback_on_error"` // use the echo generator when the remote one fails
	MaxRetries      int           `yaml:"max_retries"`
	HistoryLimit    int           `yaml:"history_limit"`
	MaxBudget       time.Duration `yaml:"max_budget"` // upper bound on any playbook generation budget; 0 = none
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Enabled: true,
		DB:      "arbiter.db",
		Log:     LogConfig{Level: "info"},
		Audit:   AuditConfig{Capacity: 1000, Persist: true},
		Gate:    GateConfig{Policy: string(gate.PolicyClamp), MaxDelta: 0.15},
		Voice: VoiceConfig{
			SibylRule: string(voice.RuleEchoMirror),
			Inertia:   0.2,
		},
		Signature: SignatureConfig{AlwaysEnforce: true},
		Pipeline: PipelineConfig{
			FallbackOnError: true,
			MaxRetries:      2,
			HistoryLimit:    20,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An empty path
// or a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok {
		c.DB = v
	}
	if v, ok := lookup(EnvRedisAddr); ok {
		c.RedisAddr = v
	}
	if v, ok := lookup(EnvGeneratorAddr); ok {
		c.GeneratorAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvSibylRule); ok {
		c.Voice.SibylRule = v
	}
	if v, ok := lookup(EnvAuditCapacity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAuditCapacity, err)
		}
		c.Audit.Capacity = n
	}
	if v, ok := lookup(EnvEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEnabled, err)
		}
		c.Enabled = b
	}
	return nil
}

// Validate checks ranges and enum values.
func (c Config) Validate() error {
	var errs []error
	if c.Audit.Capacity < 1 {
		errs = append(errs, fmt.Errorf("audit.capacity must be >= 1, got %d", c.Audit.Capacity))
	}
	if _, err := gate.ParsePolicy(c.Gate.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.Gate.MaxDelta <= 0 || c.Gate.MaxDelta > 1 {
		errs = append(errs, fmt.Errorf("gate.max_delta must be in (0,1], got %g", c.Gate.MaxDelta))
	}
	if _, err := voice.ParseThresholdRule(c.Voice.SibylRule); err != nil {
		errs = append(errs, err)
	}
	if c.Voice.Inertia < 0 {
		errs = append(errs, fmt.Errorf("voice.inertia must be >= 0, got %g", c.Voice.Inertia))
	}
	for name, w := range c.Voice.Preferences {
		if _, err := voice.Parse(name); err != nil {
			errs = append(errs, fmt.Errorf("voice.preferences: %w", err))
		}
		if w < 0 {
			errs = append(errs, fmt.Errorf("voice.preferences.%s must be >= 0, got %g", name, w))
		}
	}
	if c.Pipeline.MaxRetries < 0 || c.Pipeline.MaxRetries > 2 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries must be in [0,2], got %d", c.Pipeline.MaxRetries))
	}
	if c.Pipeline.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("pipeline.history_limit must be >= 0, got %d", c.Pipeline.HistoryLimit))
	}
	if c.Pipeline.MaxBudget < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_budget must be >= 0, got %s", c.Pipeline.MaxBudget))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Preferences converts the configured weights to voice IDs. Unknown names are skipped;
// Validate reports them.
func (c Config) Preferences() map[voice.ID]float64 {
	if len(c.Voice.Preferences) == 0 {
		return nil
	}
	out := make(map[voice.ID]float64, len(c.Voice.Preferences))
	for name, w := range c.Voice.Preferences {
		id, err := voice.Parse(name)
		if err != nil {
			continue
		}
		out[id] = w
	}
	return out
}

// GatePolicy returns the parsed boundary policy; invalid values fall back to clamp.
func (c Config) GatePolicy() gate.Policy {
	p, err := gate.ParsePolicy(c.Gate.Policy)
	if err != nil {
		return gate.PolicyClamp
	}
	return p
}

// SibylRule returns the parsed Sibyl rule; invalid values fall back to echo_mirror.
func (c Config) SibylRule() voice.ThresholdRule {
	r, err := voice.ParseThresholdRule(c.Voice.SibylRule)
	if err != nil {
		return voice.RuleEchoMirror
	}
	return r
}
