package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T, tmpDir string) {
	t.Helper()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, ".local", "share"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmpDir, ".local", "state"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmpDir, ".cache"))
	t.Setenv("PERMLEARN_CONFIG", "")
	t.Setenv("PERMLEARN_CONFIG_CONTENT", "")
	t.Setenv("PERMLEARN_DATA_DIR", "")
	t.Setenv("PERMLEARN_LOG_LEVEL", "")
	t.Setenv("PERMLEARN_CATALOG", "")
}

func TestLoadProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	projectConfig := `{
		"log_level": "debug",
		"data_dir": "/var/lib/permlearn",
		"tiers": {
			"SAFE": {"min_occurrences": 3, "confidence_threshold": 0.4}
		},
		"weights": {
			"base": 0.5,
			"session_norm": 4
		}
	}`

	configPath := filepath.Join(tmpDir, "permlearn.json")
	require.NoError(t, os.WriteFile(configPath, []byte(projectConfig), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/lib/permlearn", cfg.DataDir)
	assert.Equal(t, 3, cfg.Tiers["SAFE"].MinOccurrences)
	assert.Equal(t, 0.4, cfg.Tiers["SAFE"].ConfidenceThreshold)
	require.NotNil(t, cfg.Weights)
	assert.Equal(t, 0.5, cfg.Weights.Base)
	assert.Equal(t, float64(4), cfg.Weights.SessionNorm)
}

func TestJSONCComments(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	jsoncConfig := `{
		// rotation threshold for the approvals log
		"rotate_size_bytes": 1048576,
		"backup_retention": 5 // keep five backups
	}`

	configPath := filepath.Join(tmpDir, "permlearn.jsonc")
	require.NoError(t, os.WriteFile(configPath, []byte(jsoncConfig), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), cfg.RotateSizeBytes)
	assert.Equal(t, 5, cfg.BackupRetention)
}

func TestEnvInterpolation(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)
	t.Setenv("TEST_PERMLEARN_DIR", "/srv/permlearn-data")

	config := `{
		"data_dir": "{env:TEST_PERMLEARN_DIR}"
	}`

	configPath := filepath.Join(tmpDir, "permlearn.json")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/srv/permlearn-data", cfg.DataDir)
}

func TestGlobalThenProjectPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	globalDir := filepath.Join(tmpDir, ".config", "permlearn")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	globalConfig := `{"log_level": "warn", "backup_retention": 3}`
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "permlearn.json"), []byte(globalConfig), 0644))

	projectDir := filepath.Join(tmpDir, "project")
	require.NoError(t, os.MkdirAll(projectDir, 0755))
	projectConfig := `{"log_level": "debug"}`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "permlearn.json"), []byte(projectConfig), 0644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)

	// Project overrides global for conflicting fields; global survives otherwise.
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.BackupRetention)
}

func TestInlineConfigContent(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)
	t.Setenv("PERMLEARN_CONFIG_CONTENT", `{"min_feedback_count": 5}`)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MinFeedbackCount)
}

func TestEnvOverridesWinOverFiles(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	config := `{"log_level": "info", "data_dir": "/from-file"}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "permlearn.json"), []byte(config), 0644))

	t.Setenv("PERMLEARN_DATA_DIR", "/from-env")
	t.Setenv("PERMLEARN_LOG_LEVEL", "error")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, "/from-env", cfg.DataDir)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestResolveDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	cfg := &Config{DataDir: "/explicit"}
	assert.Equal(t, "/explicit", cfg.ResolveDataDir())

	cfg = &Config{}
	assert.Equal(t, GetPaths().Data, cfg.ResolveDataDir())
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	cfg := &Config{
		LogLevel:        "debug",
		BackupRetention: 7,
		Tiers: map[string]TierConfig{
			"RISKY": {MinOccurrences: 6, WindowDays: 30, ConfidenceThreshold: 0.8},
		},
	}

	path := filepath.Join(tmpDir, "nested", "permlearn.json")
	require.NoError(t, Save(cfg, path))

	loaded := &Config{Tiers: make(map[string]TierConfig)}
	require.NoError(t, loadConfigFile(path, loaded, filepath.Dir(path)))

	assert.Equal(t, "debug", loaded.LogLevel)
	assert.Equal(t, 7, loaded.BackupRetention)
	assert.Equal(t, 6, loaded.Tiers["RISKY"].MinOccurrences)
}

func TestPathsLayout(t *testing.T) {
	tmpDir := t.TempDir()
	isolateEnv(t, tmpDir)

	paths := GetPaths()

	assert.Equal(t, filepath.Join(tmpDir, ".config", "permlearn"), paths.Config)
	assert.Equal(t, filepath.Join(tmpDir, ".local", "share", "permlearn"), paths.Data)
	assert.Equal(t, filepath.Join(paths.Data, "approvals.jsonl"), paths.ApprovalsLogPath())
	assert.Equal(t, filepath.Join(paths.Data, "settings.json"), paths.SettingsPath())
	assert.Equal(t, filepath.Join(paths.State, "thresholds.json"), paths.ThresholdsPath())
	assert.Equal(t, filepath.Join(paths.State, "backups"), paths.BackupsDir())

	require.NoError(t, paths.EnsurePaths())
	for _, dir := range []string{paths.Data, paths.Config, paths.Cache, paths.State} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
