package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMineConfigAppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := LoadMineConfig("", MineConfig{OutputDir: "/out", CacheDB: "cache.db"})
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency(), cfg.Concurrency)
	assert.Equal(t, DefaultLimits(), cfg.Limits)
}

func TestLoadMineConfigOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: /from-file\ncache_db: file-cache.db\nmin_stars: 50\n"), 0o644))

	cfg, err := LoadMineConfig(path, MineConfig{OutputDir: "/from-flag", CacheDB: "flag-cache.db"})
	require.NoError(t, err)
	assert.Equal(t, "/from-flag", cfg.OutputDir)
	assert.Equal(t, "flag-cache.db", cfg.CacheDB)
	assert.Equal(t, 50, cfg.MinStars, "fields the overrides left zero still come from the file")
}

func TestLoadMineConfigRejectsMissingOutputDir(t *testing.T) {
	_, err := LoadMineConfig("", MineConfig{CacheDB: "cache.db"})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadMineConfigRejectsUnknownDifficulty(t *testing.T) {
	_, err := LoadMineConfig("", MineConfig{OutputDir: "/out", CacheDB: "cache.db", Difficulty: []string{"impossible"}})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadMineConfigMissingFile(t *testing.T) {
	_, err := LoadMineConfig("/nonexistent/mine.yaml", MineConfig{OutputDir: "/out", CacheDB: "cache.db"})
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadHarnessConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadHarnessConfig("", HarnessConfig{
		InputDir: "/in",
		AgentDir: ".",
		AgentCmd: []string{"aider", "--yes"},
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.AgentTimeout)
	assert.Equal(t, 5*time.Minute, cfg.TestTimeout)
	assert.Equal(t, 4, cfg.Parallel)
	assert.Empty(t, cfg.DockerImage, "empty docker_image defers to each task's own base image")
}

func TestLoadHarnessConfigRejectsMissingAgentCmd(t *testing.T) {
	_, err := LoadHarnessConfig("", HarnessConfig{InputDir: "/in", AgentDir: "."})
	assert.ErrorIs(t, err, ErrValidationFailed)
}
