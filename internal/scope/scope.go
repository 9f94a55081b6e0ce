// Package scope resolves directories to canonical approval scopes. Two
// approvals recorded anywhere inside one repository should share a scope,
// so the resolver walks up to the repository root before settling on the
// directory itself.
package scope

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// cache stores resolved scopes by directory to avoid repeated git calls.
var (
	cacheMu sync.RWMutex
	cache   = make(map[string]string)
)

// Resolve returns the scope for a directory: the git worktree root when
// the directory sits inside a repository, otherwise the directory itself.
func Resolve(directory string) (string, error) {
	directory, err := filepath.Abs(directory)
	if err != nil {
		return "", err
	}

	cacheMu.RLock()
	if scope, ok := cache[directory]; ok {
		cacheMu.RUnlock()
		return scope, nil
	}
	cacheMu.RUnlock()

	scope := directory
	if root := repoRoot(directory); root != "" {
		scope = root
	}

	cacheMu.Lock()
	cache[directory] = scope
	cacheMu.Unlock()
	return scope, nil
}

// repoRoot finds the repository root above a directory, or "" when the
// directory is not under version control. git itself is the authority
// when available; the walked-to .git location is the fallback.
func repoRoot(directory string) string {
	fallback := findGitContainer(directory)
	if fallback == "" {
		return ""
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = directory
	if output, err := cmd.Output(); err == nil {
		if top := strings.TrimSpace(string(output)); top != "" {
			return top
		}
	}
	return fallback
}

// findGitContainer walks up from the given directory looking for the one
// holding a .git entry. Worktrees and submodules carry a .git file rather
// than a directory; both count.
func findGitContainer(start string) string {
	current := start
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached filesystem root
			return ""
		}
		current = parent
	}
}

// ClearCache clears the resolution cache. Useful for testing.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[string]string)
}
