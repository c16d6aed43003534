package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Check())
}

func TestConfigCheck(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero lanes", func(c *Config) { c.Lanes = 0 }},
		{"negative memory", func(c *Config) { c.MemorySize = -1 }},
		{"zero step budget", func(c *Config) { c.MaxSteps = 0 }},
		{"bad partition mode", func(c *Config) { c.Memory = "banked" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Check())
		})
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lanes: 4\nmemory: per-lane\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Lanes)
	require.Equal(t, MemoryPerLane, cfg.Memory)
	require.Equal(t, DefaultConfig().MemorySize, cfg.MemorySize)
	require.Equal(t, DefaultConfig().MaxSteps, cfg.MaxSteps)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lanes: 0\n"), 0644))
	_, err := LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
