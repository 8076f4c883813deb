// Package config loads the VM's tunables: initial GC threshold, stack
// size, call-frame limit, and stress-GC mode. These live as named
// fields with fixed defaults, overridable by an optional `.vela.yaml`
// file. The CLI chooses the file (--config) but has no flag that
// overrides an individual tunable.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds every VM tunable the CLI can override. Zero-value fields
// left unset by a loaded file keep Default()'s values — see merge.
type Config struct {
	// FrameLimit bounds the number of nested call frames. Default 64.
	FrameLimit int `yaml:"frame_limit"`
	// StackSize bounds the value stack's total slot count. Default
	// FrameLimit*256.
	StackSize int `yaml:"stack_size"`
	// InitialGCThreshold is the byte count that triggers the first
	// collection; thereafter the threshold grows by gcHeapGrowFactor.
	InitialGCThreshold int `yaml:"initial_gc_threshold"`
	// StressGC forces a collection after every executed instruction,
	// whatever the byte count, trading performance for maximal GC-bug
	// surfacing in tests. It does not collect between the allocations of
	// a single instruction.
	StressGC bool `yaml:"stress_gc"`
}

// Default returns the VM's built-in tunables.
func Default() Config {
	return Config{
		FrameLimit:         64,
		StackSize:          64 * 256,
		InitialGCThreshold: 1024 * 1024,
		StressGC:           false,
	}
}

// Load reads a YAML config file at path and merges it over Default().
// A missing file is not an error — the caller gets Default() back
// unchanged, matching "no .vela.yaml present" being the common case.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	cfg.merge(override, data)
	return cfg, nil
}

// merge overlays any field override set explicitly in the raw YAML
// (present in a generic map decode) onto cfg, so an absent key keeps
// Default()'s value rather than clobbering it with override's zero value.
func (c *Config) merge(override Config, raw []byte) {
	var present map[string]interface{}
	if err := yaml.Unmarshal(raw, &present); err != nil {
		return
	}
	if _, ok := present["frame_limit"]; ok {
		c.FrameLimit = override.FrameLimit
	}
	if _, ok := present["stack_size"]; ok {
		c.StackSize = override.StackSize
	}
	if _, ok := present["initial_gc_threshold"]; ok {
		c.InitialGCThreshold = override.InitialGCThreshold
	}
	if _, ok := present["stress_gc"]; ok {
		c.StressGC = override.StressGC
	}
}
