package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Memory partition modes. Shared is the historical single racy region;
// per-lane gives every lane a private arena of the configured size.
const (
	MemoryShared  = "shared"
	MemoryPerLane = "per-lane"
)

// Config fixes the execution substrate shape for one session.
type Config struct {
	Lanes      int    `yaml:"lanes"`
	MemorySize int    `yaml:"memory_size"`
	MaxSteps   int    `yaml:"max_steps"`
	Memory     string `yaml:"memory"`

	// FaultOnUnknown turns unknown opcodes from silent no-ops into errors.
	FaultOnUnknown bool `yaml:"fault_on_unknown"`
}

func DefaultConfig() Config {
	return Config{
		Lanes:      1,
		MemorySize: 1 << 20,
		MaxSteps:   10_000,
		Memory:     MemoryShared,
	}
}

func (c Config) Check() error {
	if c.Lanes < 1 {
		return fmt.Errorf("need at least one lane, got %d", c.Lanes)
	}
	if c.MemorySize < 1 {
		return fmt.Errorf("invalid memory size: %d", c.MemorySize)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("invalid burst step budget: %d", c.MaxSteps)
	}
	if c.Memory != MemoryShared && c.Memory != MemoryPerLane {
		return fmt.Errorf("invalid memory partition mode: %q", c.Memory)
	}
	return nil
}

// LoadConfig reads a YAML session config, applying defaults for absent
// fields.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
