// Package approval implements the append-only approval event log: the raw
// material every detection run mines. Records are JSONL, one object per
// line; the active log rotates into gzip archives once it reaches the size
// threshold.
package approval

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/event"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
)

// DefaultRotateSize is the active log size that triggers rotation.
const DefaultRotateSize = 10 * 1024 * 1024

// ErrEmptyRule is returned when an event without rule text is appended.
var ErrEmptyRule = errors.New("approval event has empty rule text")

// Event is one recorded permission approval. Events are immutable once
// written; only Prune ever removes them.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	RuleText  string         `json:"rule_text"`
	SessionID string         `json:"session_id,omitempty"`
	ScopeID   string         `json:"scope_id,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Config configures a Store.
type Config struct {
	// Path is the active log file, conventionally approvals.jsonl.
	Path string
	// RotateSize is the rotation threshold in bytes.
	// Defaults to DefaultRotateSize.
	RotateSize int64
}

// Store is the append-only event store. All methods are safe for concurrent
// use; the log file is the single source of truth between processes.
type Store struct {
	mu         sync.Mutex
	path       string
	rotateSize int64
}

// NewStore creates a store for the given log file. The file is created on
// first append.
func NewStore(cfg Config) *Store {
	if cfg.RotateSize <= 0 {
		cfg.RotateSize = DefaultRotateSize
	}
	return &Store{path: cfg.Path, rotateSize: cfg.RotateSize}
}

// Path returns the active log file path.
func (s *Store) Path() string {
	return s.path
}

// Append adds one event to the active log. The rotation check runs before
// the write, so the active log exceeds the threshold by at most one record.
// A zero timestamp is filled with the current time.
func (s *Store) Append(ev Event) error {
	if strings.TrimSpace(ev.RuleText) == "" {
		return ErrEmptyRule
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode approval event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil && info.Size() >= s.rotateSize {
		if err := s.rotateLocked(info.Size()); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open approval log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append approval event: %w", err)
	}
	return f.Sync()
}

// rotateLocked renames the active log to a timestamped archive and
// compresses it. A failed compression keeps the plain archive; records are
// never lost to rotation.
func (s *Store) rotateLocked(size int64) error {
	archive := s.archiveName(time.Now().UTC())
	if err := os.Rename(s.path, archive); err != nil {
		return fmt.Errorf("failed to rotate approval log: %w", err)
	}

	compressed := archive + ".gz"
	if err := gzipFile(archive, compressed); err != nil {
		logging.Warn().Err(err).Str("archive", archive).
			Msg("log rotated but compression failed, keeping plain archive")
		event.Publish(event.Event{
			Type: event.LogRotated,
			Data: event.LogRotatedData{Archive: archive, Size: size},
		})
		return nil
	}
	if err := os.Remove(archive); err != nil {
		logging.Warn().Err(err).Str("archive", archive).
			Msg("failed to remove plain archive after compression")
	}

	logging.Info().Str("archive", compressed).Int64("size", size).
		Msg("rotated approval log")
	event.Publish(event.Event{
		Type: event.LogRotated,
		Data: event.LogRotatedData{Archive: compressed, Size: size},
	})
	return nil
}

// archiveName builds a collision-free archive path for the rotation moment.
func (s *Store) archiveName(now time.Time) string {
	base := strings.TrimSuffix(s.path, ".jsonl")
	stamp := now.Format("20060102T150405Z")
	name := fmt.Sprintf("%s-%s.jsonl", base, stamp)
	for i := 1; exists(name) || exists(name+".gz"); i++ {
		name = fmt.Sprintf("%s-%s-%d.jsonl", base, stamp, i)
	}
	return name
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Query returns events from the active log, newest first. windowDays limits
// results to the trailing window (zero or negative means no time filter) and
// a non-empty scope filters on ScopeID. Malformed lines are skipped with a
// warning, never fatal.
func (s *Store) Query(windowDays int, scope string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if windowDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -windowDays)
	}

	filtered := events[:0]
	for _, ev := range events {
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			continue
		}
		if scope != "" && ev.ScopeID != scope {
			continue
		}
		filtered = append(filtered, ev)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})
	return filtered, nil
}

// Count returns the number of valid records in the active log.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// Size returns the active log size in bytes.
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *Store) readLocked() ([]Event, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open approval log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			logging.Warn().Int("line", lineNo).Err(err).
				Msg("skipping malformed approval record")
			continue
		}
		if ev.Timestamp.IsZero() || strings.TrimSpace(ev.RuleText) == "" {
			logging.Warn().Int("line", lineNo).
				Msg("skipping approval record with missing fields")
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read approval log: %w", err)
	}
	return events, nil
}

// Prune removes records older than the retention window by rewriting the
// active log through a temp file and an atomic rename. It returns the number
// of records removed. Archives are not touched.
func (s *Store) Prune(olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %d", olderThanDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.readLocked()
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	kept := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
	}
	removed := len(events) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmpPath := s.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp log: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, ev := range kept {
		data, err := json.Marshal(ev)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("failed to encode approval event: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("failed to write temp log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to flush temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp log: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to replace approval log: %w", err)
	}

	logging.Info().Int("removed", removed).Int("kept", len(kept)).
		Msg("pruned approval log")
	return removed, nil
}

// Archive describes one rotated log segment.
type Archive struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Archives lists rotated segments next to the active log, oldest first.
func (s *Store) Archives() ([]Archive, error) {
	base := strings.TrimSuffix(filepath.Base(s.path), ".jsonl")
	pattern := filepath.Join(filepath.Dir(s.path), base+"-*.jsonl*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}

	archives := make([]Archive, 0, len(matches))
	for _, m := range matches {
		if m == s.path || strings.HasSuffix(m, ".tmp") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		archives = append(archives, Archive{Path: m, Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Path < archives[j].Path
	})
	return archives, nil
}
