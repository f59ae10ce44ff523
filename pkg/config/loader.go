package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/cdpbridge/pkg/cdp"
)

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadAndMerge(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAndMerge loads a YAML file and merges it into the config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values in the override leave
// the base untouched unless the key was present in the raw document.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}

	if override.Pool.Size != 0 {
		base.Pool.Size = override.Pool.Size
	}
	if override.Pool.AcquireTimeout != 0 {
		base.Pool.AcquireTimeout = override.Pool.AcquireTimeout
	}
	if override.Pool.DialTimeout != 0 {
		base.Pool.DialTimeout = override.Pool.DialTimeout
	}

	if override.Commands.Timeout != 0 {
		base.Commands.Timeout = override.Commands.Timeout
	}
	if override.Commands.ActivationTimeout != 0 {
		base.Commands.ActivationTimeout = override.Commands.ActivationTimeout
	}
	if fieldSet(raw, "commands", "rate_limit") {
		base.Commands.RateLimit = override.Commands.RateLimit
	}
	if fieldSet(raw, "commands", "burst") {
		base.Commands.Burst = override.Commands.Burst
	}

	if override.Domains.SweepInterval != 0 {
		base.Domains.SweepInterval = override.Domains.SweepInterval
	}
	if override.Domains.IdleTimeouts.Low != 0 {
		base.Domains.IdleTimeouts.Low = override.Domains.IdleTimeouts.Low
	}
	if override.Domains.IdleTimeouts.Medium != 0 {
		base.Domains.IdleTimeouts.Medium = override.Domains.IdleTimeouts.Medium
	}
	if override.Domains.IdleTimeouts.High != 0 {
		base.Domains.IdleTimeouts.High = override.Domains.IdleTimeouts.High
	}
	if len(override.Domains.Tiers) > 0 {
		if base.Domains.Tiers == nil {
			base.Domains.Tiers = make(map[string]cdp.RiskTier, len(override.Domains.Tiers))
		}
		for k, v := range override.Domains.Tiers {
			base.Domains.Tiers[k] = v
		}
	}

	if override.Events.BufferCapacity != 0 {
		base.Events.BufferCapacity = override.Events.BufferCapacity
	}

	if fieldSet(raw, "server", "enabled") {
		base.Server.Enabled = override.Server.Enabled
	}
	if override.Server.Bind != "" {
		base.Server.Bind = override.Server.Bind
	}

	if fieldSet(raw, "nats", "enabled") {
		base.NATS.Enabled = override.NATS.Enabled
	}
	if override.NATS.URL != "" {
		base.NATS.URL = override.NATS.URL
	}
	if override.NATS.SubjectPrefix != "" {
		base.NATS.SubjectPrefix = override.NATS.SubjectPrefix
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
}

// applyEnvOverrides layers CDPBRIDGE_* environment variables on top of the
// merged configuration. Only a handful of operationally useful knobs are
// exposed this way.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CDPBRIDGE_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("CDPBRIDGE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("CDPBRIDGE_COMMAND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Commands.Timeout = d
		}
	}
	if v := os.Getenv("CDPBRIDGE_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("CDPBRIDGE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("CDPBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func fieldSet(raw map[string]any, path ...string) bool {
	if len(path) == 0 || raw == nil {
		return false
	}
	current := any(raw)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return false
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		current = val
	}
	return true
}
