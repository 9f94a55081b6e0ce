// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for permlearn data.
type Paths struct {
	Data   string // ~/.local/share/permlearn
	Config string // ~/.config/permlearn
	Cache  string // ~/.cache/permlearn
	State  string // ~/.local/state/permlearn
}

// GetPaths returns the standard paths for permlearn data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "permlearn"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "permlearn"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "permlearn"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "permlearn"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// ApprovalsLogPath returns the path of the active approvals log.
func (p *Paths) ApprovalsLogPath() string {
	return filepath.Join(p.Data, "approvals.jsonl")
}

// SettingsPath returns the path of the learned-rules settings document.
func (p *Paths) SettingsPath() string {
	return filepath.Join(p.Data, "settings.json")
}

// BackupsDir returns the directory holding rule store backups.
func (p *Paths) BackupsDir() string {
	return filepath.Join(p.State, "backups")
}

// FeedbackLogPath returns the path of the feedback log.
func (p *Paths) FeedbackLogPath() string {
	return filepath.Join(p.Data, "feedback.jsonl")
}

// ThresholdsPath returns the path of the persisted tier thresholds.
func (p *Paths) ThresholdsPath() string {
	return filepath.Join(p.State, "thresholds.json")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "permlearn.json")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".permlearn", "permlearn.json")
}
