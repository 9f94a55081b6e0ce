// Package feedback closes the learning loop. The tracker records what the
// user did with each suggestion; the learner turns those outcomes into
// bounded adjustments of the per-tier detection thresholds.
package feedback

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
)

// Record is one feedback event for a suggestion. Records are append-only;
// a later record for the same suggestion supersedes earlier ones.
type Record struct {
	ID           string    `json:"id"`
	Component    string    `json:"component"`
	SuggestionID string    `json:"suggestion_id"`
	Confidence   float64   `json:"confidence"`
	Accepted     bool      `json:"accepted"`
	Reverted     *bool     `json:"reverted,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Stats summarizes the collapsed decisions for one component. Each
// suggestion counts once, at its latest record.
type Stats struct {
	Component         string  `json:"component"`
	Decisions         int     `json:"decisions"`
	Accepted          int     `json:"accepted"`
	Rejected          int     `json:"rejected"`
	Reverted          int     `json:"reverted"`
	AcceptanceRate    float64 `json:"acceptance_rate"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// Tracker is the append-only feedback log.
type Tracker struct {
	mu   sync.Mutex
	path string
}

// NewTracker creates a tracker over the given JSONL file.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// Path returns the feedback log path.
func (t *Tracker) Path() string {
	return t.path
}

// Record appends one feedback record. A zero ID or timestamp is filled in.
func (t *Tracker) Record(rec Record) error {
	if strings.TrimSpace(rec.SuggestionID) == "" {
		return fmt.Errorf("feedback record has no suggestion ID")
	}
	if strings.TrimSpace(rec.Component) == "" {
		return fmt.Errorf("feedback record has no component")
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode feedback record: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("failed to create feedback directory: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open feedback log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append feedback record: %w", err)
	}
	return f.Sync()
}

// Records returns feedback from the trailing window, oldest first. Zero or
// negative days means everything. Malformed lines are skipped with a
// warning.
func (t *Tracker) Records(days int) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readLocked(days)
}

func (t *Tracker) readLocked(days int) ([]Record, error) {
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback log: %w", err)
	}
	defer f.Close()

	var cutoff time.Time
	if days > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -days)
	}

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logging.Warn().Int("line", lineNo).Err(err).
				Msg("skipping malformed feedback record")
			continue
		}
		if rec.SuggestionID == "" || rec.Timestamp.IsZero() {
			logging.Warn().Int("line", lineNo).
				Msg("skipping feedback record with missing fields")
			continue
		}
		if !cutoff.IsZero() && rec.Timestamp.Before(cutoff) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback log: %w", err)
	}
	return records, nil
}

// Prune removes records older than the retention window by rewriting the
// log through a temp file and an atomic rename. It returns the number of
// records removed.
func (t *Tracker) Prune(olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("retention window must be positive, got %d", olderThanDays)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := t.readLocked(0)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, rec)
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	tmpPath := t.path + ".tmp"
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp log: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, rec := range kept {
		data, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return 0, fmt.Errorf("failed to encode feedback record: %w", err)
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
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to replace feedback log: %w", err)
	}

	logging.Info().Int("removed", removed).Int("kept", len(kept)).
		Msg("pruned feedback log")
	return removed, nil
}

// decisions collapses records to the latest one per suggestion.
func decisions(records []Record, component string) []Record {
	latest := make(map[string]Record)
	var order []string
	for _, rec := range records {
		if component != "" && rec.Component != component {
			continue
		}
		if _, ok := latest[rec.SuggestionID]; !ok {
			order = append(order, rec.SuggestionID)
		}
		latest[rec.SuggestionID] = rec
	}

	out := make([]Record, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}

// ComponentStats computes the collapsed decision statistics for one
// component over the trailing window.
func (t *Tracker) ComponentStats(component string, days int) (*Stats, error) {
	records, err := t.Records(days)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Component: component}
	for _, rec := range decisions(records, component) {
		stats.Decisions++
		if rec.Accepted {
			stats.Accepted++
			if rec.Reverted != nil && *rec.Reverted {
				stats.Reverted++
			}
		} else {
			stats.Rejected++
		}
	}
	if stats.Decisions > 0 {
		stats.AcceptanceRate = float64(stats.Accepted) / float64(stats.Decisions)
	}
	if stats.Accepted > 0 {
		stats.FalsePositiveRate = float64(stats.Reverted) / float64(stats.Accepted)
	}
	return stats, nil
}

// AcceptanceRate returns the accepted share of decisions for a component,
// with the decision count.
func (t *Tracker) AcceptanceRate(component string, days int) (float64, int, error) {
	stats, err := t.ComponentStats(component, days)
	if err != nil {
		return 0, 0, err
	}
	return stats.AcceptanceRate, stats.Decisions, nil
}

// FalsePositiveRate returns the reverted share of accepted decisions for a
// component, with the accepted count.
func (t *Tracker) FalsePositiveRate(component string, days int) (float64, int, error) {
	stats, err := t.ComponentStats(component, days)
	if err != nil {
		return 0, 0, err
	}
	return stats.FalsePositiveRate, stats.Accepted, nil
}

// RejectedFingerprints returns the suggestion IDs whose latest decision in
// the window is a rejection. The detector suppresses these.
func (t *Tracker) RejectedFingerprints(days int) (map[string]bool, error) {
	records, err := t.Records(days)
	if err != nil {
		return nil, err
	}

	rejected := make(map[string]bool)
	for _, rec := range decisions(records, "") {
		if !rec.Accepted {
			rejected[rec.SuggestionID] = true
		}
	}
	return rejected, nil
}
