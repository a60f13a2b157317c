package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/jitserve/internal/config"
	"github.com/conneroisu/jitserve/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldDir) })
}

func TestConfigInitWritesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	viper.Reset()
	t.Cleanup(viper.Reset)

	configOutput = ".jitserve.yml"
	configForce = false

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, runConfigInit(cmd, nil))
	assert.Contains(t, out.String(), ".jitserve.yml")
	assert.FileExists(t, filepath.Join(dir, ".jitserve.yml"))

	err := runConfigInit(cmd, nil)
	require.Error(t, err, "existing files are kept without --force")

	configForce = true
	require.NoError(t, runConfigInit(cmd, nil))
	configForce = false

	viper.SetConfigFile(filepath.Join(dir, ".jitserve.yml"))
	require.NoError(t, viper.ReadInConfig())
	cfg, err := config.Load()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, cfg.Root)
	assert.Equal(t, filepath.Join(wd, ".jitserve"), cfg.Out)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.LiveReload)
	assert.Equal(t, config.DefaultDebounce, cfg.Watch.Debounce)
	assert.Contains(t, cfg.Watch.Ignore, "*.swp")
}

func TestWriteConfig(t *testing.T) {
	cfg := config.Default()

	var yamlOut bytes.Buffer
	require.NoError(t, writeConfig(&yamlOut, cfg, "yaml"))
	assert.Contains(t, yamlOut.String(), "port: 8080")

	var jsonOut bytes.Buffer
	require.NoError(t, writeConfig(&jsonOut, cfg, "json"))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))

	assert.Error(t, writeConfig(&bytes.Buffer{}, cfg, "toml"))
}

func TestWriteVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeVersion(&out, "text", true, false))
	assert.Equal(t, version.GetShortVersion()+"\n", out.String())

	out.Reset()
	require.NoError(t, writeVersion(&out, "text", false, false))
	assert.Contains(t, out.String(), "jitserve ")
	assert.Contains(t, out.String(), "Platform: ")

	out.Reset()
	require.NoError(t, writeVersion(&out, "text", false, true))
	assert.Contains(t, out.String(), "Build type: ")

	out.Reset()
	require.NoError(t, writeVersion(&out, "json", false, false))
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.GetVersion(), info.Version)

	out.Reset()
	require.NoError(t, writeVersion(&out, "yaml", false, false))
	assert.Contains(t, out.String(), "go_version:")

	assert.Error(t, writeVersion(&out, "xml", false, false))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
	assert.True(t, names["config"])

	for _, flag := range []string{"port", "host", "out", "dist", "sourcemap", "profile", "live-reload", "watch", "debounce"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(flag), flag)
	}
}

func TestReportValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0o644))

	var out bytes.Buffer
	require.NoError(t, reportValidation(&out, &config.Config{WorkDir: dir}))
	assert.Equal(t, "Configuration is valid\n", out.String())

	out.Reset()
	err := reportValidation(&out, &config.Config{WorkDir: dir, Server: config.ServerConfig{Port: 99999}})
	require.Error(t, err)
	assert.Contains(t, out.String(), "server.port")

	out.Reset()
	require.NoError(t, reportValidation(&out, &config.Config{WorkDir: dir, Server: config.ServerConfig{Port: 80}}))
	assert.Contains(t, out.String(), "Warnings:")
}
