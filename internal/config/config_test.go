package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gqlgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, 500.0, cfg.Admission.MaxComplexity)
	require.Equal(t, 10, cfg.Admission.MaxDepth)
	require.Equal(t, 7, cfg.Admission.ScorerCutoff)
	require.Equal(t, 10*time.Second, cfg.Server.Timeout())
	require.Contains(t, cfg.Cache.PublicQueries, "checkUsername")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	path := writeConfig(t, `
admission:
  max_complexity: 250
  field_costs:
    heavyReport: 40
server:
  upstream: http://127.0.0.1:9000/graphql
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 250.0, cfg.Admission.MaxComplexity)
	require.Equal(t, 40.0, cfg.Admission.FieldCosts["heavyReport"])
	require.Equal(t, "http://127.0.0.1:9000/graphql", cfg.Server.Upstream)
	// Untouched keys keep their defaults.
	require.Equal(t, 10, cfg.Admission.MaxDepth)
	require.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "admission: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad path", func(c *Config) { c.Server.Path = "graphql" }},
		{"bad timeout", func(c *Config) { c.Server.TimeoutStr = "soon" }},
		{"zero max complexity", func(c *Config) { c.Admission.MaxComplexity = 0 }},
		{"zero max depth", func(c *Config) { c.Admission.MaxDepth = 0 }},
		{"cutoff above max depth", func(c *Config) { c.Admission.ScorerCutoff = 11 }},
		{"ceiling below max depth", func(c *Config) { c.Admission.DepthCeiling = 5 }},
		{"negative field cost", func(c *Config) { c.Admission.FieldCosts["x"] = -1 }},
		{"bad log level", func(c *Config) { c.Telemetry.LogLevel = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
