package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/storage"
)

// CreateBackup copies the settings document into the backups directory and
// prunes old copies. Returns the backup path, or "" when there is nothing
// to back up yet.
func (s *Store) CreateBackup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackupLocked()
}

func (s *Store) createBackupLocked() (string, error) {
	if _, err := os.Stat(s.cfg.SettingsPath); os.IsNotExist(err) {
		return "", nil
	}

	name := fmt.Sprintf("settings-%s-%s.json",
		time.Now().UTC().Format("20060102T150405Z"), ulid.Make().String())
	dst := filepath.Join(s.cfg.BackupsDir, name)

	if err := storage.CopyFile(s.cfg.SettingsPath, dst); err != nil {
		return "", err
	}
	s.pruneBackupsLocked()
	return dst, nil
}

// pruneBackupsLocked removes the oldest backups beyond the retention count.
// The timestamp-ulid naming makes lexical order chronological.
func (s *Store) pruneBackupsLocked() {
	names, err := backupNames(s.cfg.BackupsDir)
	if err != nil || len(names) <= s.cfg.KeepBackups {
		return
	}
	for _, name := range names[:len(names)-s.cfg.KeepBackups] {
		path := filepath.Join(s.cfg.BackupsDir, name)
		if err := os.Remove(path); err != nil {
			logging.Warn().Err(err).Str("backup", path).Msg("failed to prune backup")
		}
	}
}

func backupNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "settings-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Backups lists backup paths, newest first.
func (s *Store) Backups() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := backupNames(s.cfg.BackupsDir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		paths = append(paths, filepath.Join(s.cfg.BackupsDir, names[i]))
	}
	return paths, nil
}

// DiffLatestBackup returns a unified diff from the newest backup to the
// live settings document, plus added and removed line counts. An empty diff
// means the document has not changed since the backup.
func (s *Store) DiffLatestBackup() (string, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := backupNames(s.cfg.BackupsDir)
	if err != nil {
		return "", 0, 0, err
	}
	if len(names) == 0 {
		return "", 0, 0, storage.ErrNotFound
	}
	backupPath := filepath.Join(s.cfg.BackupsDir, names[len(names)-1])

	before, err := os.ReadFile(backupPath)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to read backup: %w", err)
	}
	after, err := os.ReadFile(s.cfg.SettingsPath)
	if err != nil && !os.IsNotExist(err) {
		return "", 0, 0, fmt.Errorf("failed to read settings: %w", err)
	}

	diffText, added, removed := buildDiff(string(before), string(after))
	if diffText == "" {
		return "", added, removed, nil
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", backupPath))
	builder.WriteString(fmt.Sprintf("+++ %s\n", s.cfg.SettingsPath))
	builder.WriteString(diffText)
	return builder.String(), added, removed, nil
}

func buildDiff(before, after string) (string, int, int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	added, removed := 0, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	return dmp.PatchToText(patches), added, removed
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
