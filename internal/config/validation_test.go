package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProject(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644))

	cfg := Default()
	cfg.WorkDir = dir
	cfg.Root = dir
	cfg.Out = filepath.Join(t.TempDir(), ".jitserve")
	return cfg
}

func fields(issues []ValidationError) []string {
	var names []string
	for _, issue := range issues {
		names = append(names, issue.Field)
	}
	return names
}

func TestValidateConfigWithDetails(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(cfg *Config)
		errors   []string
		warnings []string
	}{
		{
			name:   "valid project",
			modify: func(cfg *Config) {},
		},
		{
			name:   "missing root",
			modify: func(cfg *Config) { cfg.Root = filepath.Join(cfg.WorkDir, "missing") },
			errors: []string{"root"},
		},
		{
			name:   "out equals root",
			modify: func(cfg *Config) { cfg.Out = cfg.Root },
			errors: []string{"out"},
		},
		{
			name:   "default out inside root",
			modify: func(cfg *Config) { cfg.Out = filepath.Join(cfg.Root, ".jitserve") },
		},
		{
			name:   "root inside out",
			modify: func(cfg *Config) { cfg.Out = filepath.Dir(cfg.Root) },
			errors: []string{"out"},
		},
		{
			name:     "no package manifest",
			modify:   func(cfg *Config) { _ = os.Remove(cfg.ManifestPath()) },
			warnings: []string{"cwd"},
		},
		{
			name:   "port out of range",
			modify: func(cfg *Config) { cfg.Server.Port = 70000 },
			errors: []string{"server.port"},
		},
		{
			name:     "privileged port",
			modify:   func(cfg *Config) { cfg.Server.Port = 80 },
			warnings: []string{"server.port"},
		},
		{
			name:   "host with shell characters",
			modify: func(cfg *Config) { cfg.Server.Host = "localhost; rm -rf /" },
			errors: []string{"server.host"},
		},
		{
			name:     "all interfaces",
			modify:   func(cfg *Config) { cfg.Server.Host = "0.0.0.0" },
			warnings: []string{"server.host"},
		},
		{
			name:   "negative debounce",
			modify: func(cfg *Config) { cfg.Watch.Debounce = -time.Millisecond },
			errors: []string{"watch.debounce"},
		},
		{
			name:     "tiny debounce",
			modify:   func(cfg *Config) { cfg.Watch.Debounce = time.Millisecond },
			warnings: []string{"watch.debounce"},
		},
		{
			name:   "bad ignore glob",
			modify: func(cfg *Config) { cfg.Watch.Ignore = []string{"[abc"} },
			errors: []string{"watch.ignore"},
		},
		{
			name:   "alias escaping root",
			modify: func(cfg *Config) { cfg.Aliases = map[string]string{"@": "../elsewhere"} },
			errors: []string{"aliases.@"},
		},
		{
			name:     "alias to missing directory",
			modify:   func(cfg *Config) { cfg.Aliases = map[string]string{"~": "lib"} },
			warnings: []string{"aliases.~"},
		},
		{
			name:   "alias to existing directory",
			modify: func(cfg *Config) { cfg.Aliases = map[string]string{"@": "src"} },
		},
		{
			name:   "unknown log level",
			modify: func(cfg *Config) { cfg.Log.Level = "verbose" },
			errors: []string{"log.level"},
		},
		{
			name:     "unknown log format",
			modify:   func(cfg *Config) { cfg.Log.Format = "logfmt" },
			warnings: []string{"log.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validProject(t)
			tt.modify(cfg)

			result := ValidateConfigWithDetails(cfg)
			assert.ElementsMatch(t, tt.errors, fields(result.Errors))
			assert.ElementsMatch(t, tt.warnings, fields(result.Warnings))
			assert.Equal(t, len(tt.errors) == 0, result.Valid)
		})
	}
}

func TestValidationResultString(t *testing.T) {
	cfg := validProject(t)
	cfg.Server.Port = -1
	cfg.Server.Host = "0.0.0.0"

	result := ValidateConfigWithDetails(cfg)
	require.True(t, result.HasErrors())
	require.True(t, result.HasWarnings())

	out := result.String()
	assert.Contains(t, out, "Errors:\n  - server.port: port -1 is not in valid range 0-65535")
	assert.Contains(t, out, "hint: Port 0 allows system to assign an available port")
	assert.Contains(t, out, "Warnings:\n  - server.host: server is reachable from other machines")

	assert.Equal(t, "validation error in server.port: port -1 is not in valid range 0-65535", result.Errors[0].Error())
}

func TestValidateHostname(t *testing.T) {
	for _, host := range []string{"localhost", "127.0.0.1", "::1", "dev.example.com", "my-box"} {
		assert.NoError(t, validateHostname(host), host)
	}
	for _, host := range []string{"a;b", "$(whoami)", "-leading", "under_score", "trailing-.com"} {
		assert.Error(t, validateHostname(host), host)
	}
}

func TestValidateAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644))

	cfg := &Config{WorkDir: dir, Server: ServerConfig{Port: 3000}}
	result, err := Validate(cfg)
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, filepath.Join(dir, ".jitserve"), cfg.Out)
}
