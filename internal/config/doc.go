// Package config provides configuration loading, merging, and path management
// for permlearn.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Global config (~/.config/permlearn/ - XDG compatible)
//  2. Project config (permlearn.json/permlearn.jsonc and
//     .permlearn/permlearn.json in the working directory)
//  3. PERMLEARN_CONFIG file
//  4. PERMLEARN_CONFIG_CONTENT inline JSON
//  5. Environment variables
//
// Later sources override earlier ones; environment variables have the highest
// precedence.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - permlearn.json - Standard JSON configuration
//   - permlearn.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two kinds of placeholder:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (escaped for JSON)
//
// File paths in {file:path} placeholders may be absolute, relative to the
// config file's directory, or ~/-prefixed.
//
// # What is configurable
//
// The document tunes the learning engine without code changes: initial tier
// parameters (Tiers), confidence signal weights (Weights, CrossScope), log
// rotation size, backup retention, retention windows for pruning, the
// trigger debounce, and the optional category catalog overlay (CatalogFile).
// Zero-valued fields always fall back to built-in defaults.
//
// # Path Management
//
// The Paths type follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/permlearn (approvals log, settings, feedback log)
//   - Config: ~/.config/permlearn
//   - Cache: ~/.cache/permlearn
//   - State: ~/.local/state/permlearn (thresholds, backups)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - PERMLEARN_DATA_DIR - Override the data directory
//   - PERMLEARN_LOG_LEVEL - Override the log level
//   - PERMLEARN_CATALOG - Path to a category overlay YAML
//   - PERMLEARN_CONFIG - Path to a specific config file
//   - PERMLEARN_CONFIG_CONTENT - Inline JSON configuration
package config
