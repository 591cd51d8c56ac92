package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ilfuzz/internal/config"
)

func TestDefaultConfigFailsValidateWithoutTarget(t *testing.T) {
	cfg := config.DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary_path")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1<<16, cfg.Target.NumEdges)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Target.BinaryPath = "/usr/local/bin/jsshell"
	cfg.Corpus.MaxSize = 42

	path := filepath.Join(t.TempDir(), "ilfuzz.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/jsshell", loaded.Target.BinaryPath)
	assert.Equal(t, 42, loaded.Corpus.MaxSize)
	require.NoError(t, loaded.Validate())
}

func TestValidateRejectsMutationRange(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Target.BinaryPath = "/bin/true"
	cfg.Engine.MinMutationsPerSample = 5
	cfg.Engine.MaxMutationsPerSample = 2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutations_per_sample")
}

func TestEnvOverrideTargetBinary(t *testing.T) {
	t.Setenv("ILFUZZ_TARGET", "/opt/js/engine")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/js/engine", cfg.Target.BinaryPath)
}
