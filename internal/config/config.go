package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config is the engine configuration document.
type Config struct {
	Schema   string `json:"$schema,omitempty"`
	DataDir  string `json:"data_dir,omitempty"`
	LogLevel string `json:"log_level,omitempty"`

	// CatalogFile points at an optional YAML overlay that adds or
	// overrides pattern categories.
	CatalogFile string `json:"catalog_file,omitempty"`

	Weights          *WeightsConfig        `json:"weights,omitempty"`
	CrossScope       *CrossScopeConfig     `json:"cross_scope,omitempty"`
	Tiers            map[string]TierConfig `json:"tiers,omitempty"`
	Retention        *RetentionConfig      `json:"retention,omitempty"`
	Trigger          *TriggerConfig        `json:"trigger,omitempty"`
	Server           *ServerConfig         `json:"server,omitempty"`
	MaxRuleExamples  int                   `json:"max_rule_examples,omitempty"`
	BackupRetention  int                   `json:"backup_retention,omitempty"`
	RotateSizeBytes  int64                 `json:"rotate_size_bytes,omitempty"`
	FeedbackWindow   int                   `json:"feedback_window_days,omitempty"`
	MinFeedbackCount int                   `json:"min_feedback_count,omitempty"`
}

// WeightsConfig overrides individual confidence signal weights.
// Zero-valued fields inherit the built-in defaults.
type WeightsConfig struct {
	Base           float64 `json:"base,omitempty"`
	SessionCap     float64 `json:"session_cap,omitempty"`
	SessionNorm    float64 `json:"session_norm,omitempty"`
	ScopeFull      float64 `json:"scope_full,omitempty"`
	ScopePartial   float64 `json:"scope_partial,omitempty"`
	ScopeMinimal   float64 `json:"scope_minimal,omitempty"`
	ConsistencyCap float64 `json:"consistency_cap,omitempty"`
	RecencyBonus   float64 `json:"recency_bonus,omitempty"`
	RecencyWindow  int     `json:"recency_window,omitempty"`
}

// CrossScopeConfig tunes the cross-scope generalizer.
type CrossScopeConfig struct {
	Weights   *WeightsConfig `json:"weights,omitempty"`
	Boost     float64        `json:"boost,omitempty"`
	MinScopes int            `json:"min_scopes,omitempty"`
}

// TierConfig seeds the initial detection parameters for one tier.
// Keys in Config.Tiers are tier names: SAFE, MODERATE, RISKY, CROSS_SCOPE.
type TierConfig struct {
	MinOccurrences      int     `json:"min_occurrences,omitempty"`
	WindowDays          int     `json:"window_days,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
}

// RetentionConfig controls log pruning defaults.
type RetentionConfig struct {
	ApprovalDays int `json:"approval_days,omitempty"`
	FeedbackDays int `json:"feedback_days,omitempty"`
}

// TriggerConfig controls the watch loop.
type TriggerConfig struct {
	DebounceMS  int `json:"debounce_ms,omitempty"`
	EventBudget int `json:"event_budget,omitempty"`
}

// ServerConfig controls the HTTP decision surface.
type ServerConfig struct {
	Port       int  `json:"port,omitempty"`
	EnableCORS bool `json:"enable_cors,omitempty"`
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/permlearn/)
// 2. Project config (.permlearn/ or permlearn.json in the directory)
// 3. PERMLEARN_CONFIG file
// 4. PERMLEARN_CONFIG_CONTENT inline JSON
// 5. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{
		Tiers: make(map[string]TierConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. XDG global config (~/.config/permlearn/)
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "permlearn.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "permlearn.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".permlearn")
		loadOnce(filepath.Join(directory, "permlearn.json"), directory)
		loadOnce(filepath.Join(directory, "permlearn.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "permlearn.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "permlearn.jsonc"), projectConfigDir)
	}

	// 3. PERMLEARN_CONFIG file override
	if configPath := os.Getenv("PERMLEARN_CONFIG"); configPath != "" {
		configDir := filepath.Dir(configPath)
		loadOnce(configPath, configDir)
	}

	// 4. PERMLEARN_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("PERMLEARN_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments using tidwall/jsonc
	data = jsonc.ToJSON(data)

	// Apply interpolation
	data = interpolate(data, baseDir)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	// Handle {env:VAR_NAME} placeholders
	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	// Handle {file:path} placeholders
	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		// Resolve path
		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string
		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.CatalogFile != "" {
		target.CatalogFile = source.CatalogFile
	}
	if source.MaxRuleExamples != 0 {
		target.MaxRuleExamples = source.MaxRuleExamples
	}
	if source.BackupRetention != 0 {
		target.BackupRetention = source.BackupRetention
	}
	if source.RotateSizeBytes != 0 {
		target.RotateSizeBytes = source.RotateSizeBytes
	}
	if source.FeedbackWindow != 0 {
		target.FeedbackWindow = source.FeedbackWindow
	}
	if source.MinFeedbackCount != 0 {
		target.MinFeedbackCount = source.MinFeedbackCount
	}

	if source.Weights != nil {
		target.Weights = source.Weights
	}
	if source.CrossScope != nil {
		target.CrossScope = source.CrossScope
	}
	if source.Retention != nil {
		target.Retention = source.Retention
	}
	if source.Trigger != nil {
		target.Trigger = source.Trigger
	}
	if source.Server != nil {
		target.Server = source.Server
	}

	// Merge tier seeds
	if source.Tiers != nil {
		if target.Tiers == nil {
			target.Tiers = make(map[string]TierConfig)
		}
		for k, v := range source.Tiers {
			target.Tiers[k] = v
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *Config) {
	if dataDir := os.Getenv("PERMLEARN_DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}
	if level := os.Getenv("PERMLEARN_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if catalog := os.Getenv("PERMLEARN_CATALOG"); catalog != "" {
		config.CatalogFile = catalog
	}
}

// ResolveDataDir returns the directory holding the engine's files,
// in priority order: explicit config, then the XDG data path.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return GetPaths().Data
}

// Save saves the configuration to a file.
func Save(config *Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
