// Package rules owns the settings document holding the learned allow-list.
// The store is the single writer of that file: every mutation validates its
// input, backs the document up first, and lands through an atomic replace
// under a file lock. Fields in the document that the store does not manage
// are preserved byte for byte.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/oklog/ulid/v2"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/logging"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/permission"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/storage"
)

// DefaultKeepBackups is how many settings backups are retained.
const DefaultKeepBackups = 10

// Skip reasons recorded in AddResult.
const (
	SkipAlreadyPresent = "already present"
	SkipCovered        = "covered by existing rule"
	SkipDuplicate      = "duplicate in batch"
)

// Provenance records where a learned rule came from.
type Provenance struct {
	Source  string    `json:"source"`
	Tier    string    `json:"tier"`
	AddedAt time.Time `json:"added_at"`
}

// Batch records one successful Add as a unit, for audit and status output.
type Batch struct {
	ID      string    `json:"id"`
	Source  string    `json:"source"`
	Tier    string    `json:"tier"`
	AddedAt time.Time `json:"added_at"`
	Rules   []string  `json:"rules"`
}

// SkippedRule explains why a candidate was not added. Nearest names the
// most similar existing rule when one is relevant to the reason.
type SkippedRule struct {
	Rule    string `json:"rule"`
	Reason  string `json:"reason"`
	Nearest string `json:"nearest,omitempty"`
}

// AddResult reports the outcome of one Add call. Partial success is the
// normal case: some candidates land, others are skipped with reasons.
type AddResult struct {
	BatchID string        `json:"batch_id,omitempty"`
	Added   []string      `json:"added"`
	Skipped []SkippedRule `json:"skipped"`
	Backup  string        `json:"backup,omitempty"`
}

// Snapshot is a read-only view of the managed state.
type Snapshot struct {
	Rules      []string              `json:"rules"`
	Provenance map[string]Provenance `json:"provenance"`
	Batches    []Batch               `json:"batches"`
}

// Config configures a Store.
type Config struct {
	// SettingsPath is the settings document, conventionally settings.json.
	SettingsPath string
	// BackupsDir receives timestamped copies before each mutation.
	BackupsDir string
	// KeepBackups bounds the retained backups. Defaults to
	// DefaultKeepBackups.
	KeepBackups int
}

// Store manages the allow-list inside the settings document.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	lock *storage.FileLock
}

// NewStore creates a store over the given settings document.
func NewStore(cfg Config) *Store {
	if cfg.KeepBackups <= 0 {
		cfg.KeepBackups = DefaultKeepBackups
	}
	return &Store{cfg: cfg, lock: storage.NewFileLock(cfg.SettingsPath)}
}

// Path returns the settings document path.
func (s *Store) Path() string {
	return s.cfg.SettingsPath
}

// document is the parsed settings file. extra and permExtra carry the
// fields this store does not manage, so rewrites never drop them.
type document struct {
	allow     []string
	prov      map[string]Provenance
	batches   []Batch
	permExtra map[string]json.RawMessage
	extra     map[string]json.RawMessage
}

type learnedSection struct {
	Provenance map[string]Provenance `json:"provenance,omitempty"`
	Batches    []Batch               `json:"batches,omitempty"`
}

func emptyDocument() *document {
	return &document{
		prov:      make(map[string]Provenance),
		permExtra: make(map[string]json.RawMessage),
		extra:     make(map[string]json.RawMessage),
	}
}

// loadLocked parses the settings document. A file that cannot be parsed is
// copied aside and replaced with an empty valid document; learning
// continues rather than wedging on a corrupt file.
func (s *Store) loadLocked() (*document, error) {
	data, err := os.ReadFile(s.cfg.SettingsPath)
	if os.IsNotExist(err) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	doc, err := parseDocument(data)
	if err != nil {
		return s.recoverCorruptedLocked(err)
	}
	return doc, nil
}

func parseDocument(data []byte) (*document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, err
	}

	doc := emptyDocument()
	for key, raw := range top {
		switch key {
		case "permissions":
			var perm map[string]json.RawMessage
			if err := json.Unmarshal(raw, &perm); err != nil {
				return nil, fmt.Errorf("permissions section: %w", err)
			}
			for pk, praw := range perm {
				if pk == "allow" {
					if err := json.Unmarshal(praw, &doc.allow); err != nil {
						return nil, fmt.Errorf("permissions.allow: %w", err)
					}
					continue
				}
				doc.permExtra[pk] = praw
			}
		case "learned":
			var learned learnedSection
			if err := json.Unmarshal(raw, &learned); err != nil {
				return nil, fmt.Errorf("learned section: %w", err)
			}
			if learned.Provenance != nil {
				doc.prov = learned.Provenance
			}
			doc.batches = learned.Batches
		default:
			doc.extra[key] = raw
		}
	}
	return doc, nil
}

// recoverCorruptedLocked sets the unreadable file aside and resets the
// document so the next write produces a valid one.
func (s *Store) recoverCorruptedLocked(cause error) (*document, error) {
	aside := fmt.Sprintf("%s.corrupted-%s", s.cfg.SettingsPath,
		time.Now().UTC().Format("20060102T150405Z"))
	if err := storage.CopyFile(s.cfg.SettingsPath, aside); err != nil {
		return nil, fmt.Errorf("failed to set corrupted settings aside: %w", err)
	}

	logging.Error().Err(cause).Str("saved_as", aside).
		Msg("settings file is corrupted, resetting to an empty document")

	doc := emptyDocument()
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) saveLocked(doc *document) error {
	top := make(map[string]json.RawMessage, len(doc.extra)+2)
	for k, v := range doc.extra {
		top[k] = v
	}

	perm := make(map[string]json.RawMessage, len(doc.permExtra)+1)
	for k, v := range doc.permExtra {
		perm[k] = v
	}
	allow := doc.allow
	if allow == nil {
		allow = []string{}
	}
	allowRaw, err := json.Marshal(allow)
	if err != nil {
		return fmt.Errorf("failed to marshal allow list: %w", err)
	}
	perm["allow"] = allowRaw

	permRaw, err := json.Marshal(perm)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}
	top["permissions"] = permRaw

	if len(doc.prov) > 0 || len(doc.batches) > 0 {
		learnedRaw, err := json.Marshal(learnedSection{Provenance: doc.prov, Batches: doc.batches})
		if err != nil {
			return fmt.Errorf("failed to marshal learned section: %w", err)
		}
		top["learned"] = learnedRaw
	}

	return storage.WriteJSONAtomic(s.cfg.SettingsPath, top)
}

// Rules returns the current allow-list.
func (s *Store) Rules() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), doc.allow...), nil
}

// Snapshot returns the managed state for reporting.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Rules:      append([]string(nil), doc.allow...),
		Provenance: make(map[string]Provenance, len(doc.prov)),
		Batches:    append([]Batch(nil), doc.batches...),
	}
	for k, v := range doc.prov {
		snap.Provenance[k] = v
	}
	return snap, nil
}

// IsCovered reports whether an existing rule already allows the candidate.
// This is the single source of truth for "already learned".
func (s *Store) IsCovered(candidate string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	return permission.CoveredBy(candidate, doc.allow) != "", nil
}

// Add validates the candidates, backs up the settings document, and appends
// every candidate not already covered. Skipped candidates are reported with
// reasons; a batch where everything is skipped is a success that writes
// nothing.
func (s *Store) Add(candidates []string, source, tier string) (*AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	res := &AddResult{Added: []string{}}
	seen := make(map[string]bool, len(candidates))
	var toAdd []string

	for _, cand := range candidates {
		cand = strings.TrimSpace(cand)
		if err := permission.ValidateRule(cand); err != nil {
			res.Skipped = append(res.Skipped, SkippedRule{
				Rule:   cand,
				Reason: permission.InvalidReason(err),
			})
			continue
		}
		if seen[cand] {
			res.Skipped = append(res.Skipped, SkippedRule{
				Rule:    cand,
				Reason:  SkipDuplicate,
				Nearest: cand,
			})
			continue
		}
		seen[cand] = true

		if cover := nearestCover(cand, doc.allow); cover != "" {
			reason := SkipCovered
			if cover == cand {
				reason = SkipAlreadyPresent
			}
			res.Skipped = append(res.Skipped, SkippedRule{Rule: cand, Reason: reason, Nearest: cover})
			continue
		}
		if cover := nearestCover(cand, toAdd); cover != "" {
			res.Skipped = append(res.Skipped, SkippedRule{Rule: cand, Reason: SkipCovered, Nearest: cover})
			continue
		}
		toAdd = append(toAdd, cand)
	}

	if len(toAdd) == 0 {
		return res, nil
	}

	backup, err := s.createBackupLocked()
	if err != nil {
		return nil, fmt.Errorf("refusing to modify settings without a backup: %w", err)
	}
	res.Backup = backup

	now := time.Now().UTC()
	batch := Batch{
		ID:      ulid.Make().String(),
		Source:  source,
		Tier:    tier,
		AddedAt: now,
		Rules:   toAdd,
	}
	doc.allow = append(doc.allow, toAdd...)
	for _, rule := range toAdd {
		doc.prov[rule] = Provenance{Source: source, Tier: tier, AddedAt: now}
	}
	doc.batches = append(doc.batches, batch)

	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}

	res.BatchID = batch.ID
	res.Added = toAdd
	logging.Info().Str("batch", batch.ID).Str("source", source).
		Int("added", len(toAdd)).Int("skipped", len(res.Skipped)).
		Msg("learned permission rules")
	return res, nil
}

// nearestCover returns the covering rule most similar to the candidate, so
// skip messages point at the narrowest relevant rule rather than whichever
// broad wildcard happened to match first.
func nearestCover(candidate string, rules []string) string {
	var best string
	bestDist := -1
	for _, rule := range rules {
		if !permission.Covers(rule, candidate) {
			continue
		}
		d := levenshtein.ComputeDistance(rule, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = rule, d
		}
	}
	return best
}
