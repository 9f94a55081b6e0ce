package approval

import (
	"bufio"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(Config{Path: filepath.Join(t.TempDir(), "approvals.jsonl")})
}

func mustAppend(t *testing.T, s *Store, ev Event) {
	t.Helper()
	if err := s.Append(ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mustAppend(t, s, Event{Timestamp: now.Add(-2 * time.Hour), RuleText: "Bash(git status:*)", ScopeID: "proj-a", SessionID: "s1"})
	mustAppend(t, s, Event{Timestamp: now.Add(-1 * time.Hour), RuleText: "Bash(git log:*)", ScopeID: "proj-b", SessionID: "s2"})
	mustAppend(t, s, Event{Timestamp: now, RuleText: "Read(/tmp/x)", ScopeID: "proj-a", SessionID: "s3"})

	events, err := s.Query(0, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].RuleText != "Read(/tmp/x)" {
		t.Errorf("expected newest event first, got %q", events[0].RuleText)
	}
	if events[2].RuleText != "Bash(git status:*)" {
		t.Errorf("expected oldest event last, got %q", events[2].RuleText)
	}
}

func TestAppendRejectsEmptyRule(t *testing.T) {
	s := newTestStore(t)

	if err := s.Append(Event{RuleText: ""}); !errors.Is(err, ErrEmptyRule) {
		t.Errorf("expected ErrEmptyRule, got %v", err)
	}
	if err := s.Append(Event{RuleText: "   "}); !errors.Is(err, ErrEmptyRule) {
		t.Errorf("expected ErrEmptyRule for whitespace rule, got %v", err)
	}

	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("rejected append should not create the log file")
	}
}

func TestAppendFillsTimestamp(t *testing.T) {
	s := newTestStore(t)
	before := time.Now().UTC()

	mustAppend(t, s, Event{RuleText: "Bash(ls:*)"})

	events, err := s.Query(0, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Timestamp.Before(before) {
		t.Errorf("expected timestamp to be filled, got %v", events[0].Timestamp)
	}
}

func TestQueryWindowFilter(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mustAppend(t, s, Event{Timestamp: now.AddDate(0, 0, -30), RuleText: "Bash(git status:*)"})
	mustAppend(t, s, Event{Timestamp: now.AddDate(0, 0, -3), RuleText: "Bash(git log:*)"})
	mustAppend(t, s, Event{Timestamp: now, RuleText: "Bash(git diff:*)"})

	events, err := s.Query(7, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events within 7 days, got %d", len(events))
	}
	for _, ev := range events {
		if ev.RuleText == "Bash(git status:*)" {
			t.Error("event outside the window should be filtered")
		}
	}
}

func TestQueryScopeFilter(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mustAppend(t, s, Event{Timestamp: now, RuleText: "Bash(git status:*)", ScopeID: "proj-a"})
	mustAppend(t, s, Event{Timestamp: now, RuleText: "Bash(git status:*)", ScopeID: "proj-b"})
	mustAppend(t, s, Event{Timestamp: now, RuleText: "Bash(git log:*)", ScopeID: "proj-a"})

	events, err := s.Query(0, "proj-a")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for proj-a, got %d", len(events))
	}
	for _, ev := range events {
		if ev.ScopeID != "proj-a" {
			t.Errorf("unexpected scope %q in filtered results", ev.ScopeID)
		}
	}
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	lines := []string{
		`{"timestamp":"` + now + `","rule_text":"Bash(git status:*)"}`,
		`{not json at all`,
		`{"timestamp":"` + now + `","rule_text":""}`,
		`{"rule_text":"Bash(ls:*)"}`,
		``,
		`{"timestamp":"` + now + `","rule_text":"Read(/tmp/x)"}`,
	}
	if err := os.WriteFile(s.Path(), []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	events, err := s.Query(0, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(events))
	}
}

func TestQueryMissingFile(t *testing.T) {
	s := newTestStore(t)

	events, err := s.Query(0, "")
	if err != nil {
		t.Fatalf("Query on missing file should not error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestRotation(t *testing.T) {
	event.Reset()
	defer event.Reset()

	rotated := make(chan event.Event, 1)
	unsub := event.Subscribe(event.LogRotated, func(ev event.Event) {
		select {
		case rotated <- ev:
		default:
		}
	})
	defer unsub()

	dir := t.TempDir()
	s := NewStore(Config{Path: filepath.Join(dir, "approvals.jsonl"), RotateSize: 200})
	now := time.Now().UTC()

	// Each record is around 100 bytes, so the 200 byte threshold forces a
	// rotation partway through the appends.
	for i := 0; i < 4; i++ {
		mustAppend(t, s, Event{Timestamp: now, RuleText: "Bash(git status:*)", ScopeID: "proj-a"})
	}

	select {
	case ev := <-rotated:
		data, ok := ev.Data.(event.LogRotatedData)
		if !ok {
			t.Fatalf("unexpected event data type %T", ev.Data)
		}
		if !strings.HasSuffix(data.Archive, ".jsonl.gz") {
			t.Errorf("expected compressed archive, got %q", data.Archive)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rotation event")
	}

	archives, err := s.Archives()
	if err != nil {
		t.Fatalf("Archives failed: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("expected 1 archive, got %d", len(archives))
	}

	// The active log holds only records appended after the rotation.
	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count == 0 || count >= 4 {
		t.Errorf("expected a partially drained active log, got %d records", count)
	}

	// No record may be lost: archive lines plus active lines must equal
	// the number of appends.
	archived := gzipLineCount(t, archives[0].Path)
	if archived+count != 4 {
		t.Errorf("expected 4 records across archive and active log, got %d+%d", archived, count)
	}
}

func gzipLineCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	defer gz.Close()

	count := 0
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to scan archive: %v", err)
	}
	return count
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	mustAppend(t, s, Event{Timestamp: now.AddDate(0, 0, -100), RuleText: "Bash(git status:*)"})
	mustAppend(t, s, Event{Timestamp: now.AddDate(0, 0, -50), RuleText: "Bash(git log:*)"})
	mustAppend(t, s, Event{Timestamp: now.AddDate(0, 0, -5), RuleText: "Bash(git diff:*)"})
	mustAppend(t, s, Event{Timestamp: now, RuleText: "Read(/tmp/x)"})

	removed, err := s.Prune(30)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 records removed, got %d", removed)
	}

	events, err := s.Query(0, "")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 records after prune, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Timestamp.Before(now.AddDate(0, 0, -30)) {
			t.Errorf("pruned log still contains old record %q", ev.RuleText)
		}
	}

	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after prune")
	}
}

func TestPruneNothingToRemove(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, Event{Timestamp: time.Now().UTC(), RuleText: "Bash(ls:*)"})

	removed, err := s.Prune(30)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing removed, got %d", removed)
	}
}

func TestPruneInvalidWindow(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Prune(0); err == nil {
		t.Error("expected error for zero retention window")
	}
	if _, err := s.Prune(-1); err == nil {
		t.Error("expected error for negative retention window")
	}
}

func TestArchivesEmpty(t *testing.T) {
	s := newTestStore(t)
	archives, err := s.Archives()
	if err != nil {
		t.Fatalf("Archives failed: %v", err)
	}
	if len(archives) != 0 {
		t.Errorf("expected no archives, got %d", len(archives))
	}
}

func TestCountAndSize(t *testing.T) {
	s := newTestStore(t)

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 records, got %d", count)
	}
	size, err := s.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 0 {
		t.Errorf("expected empty log, got %d bytes", size)
	}

	mustAppend(t, s, Event{Timestamp: time.Now().UTC(), RuleText: "Bash(ls:*)"})
	mustAppend(t, s, Event{Timestamp: time.Now().UTC(), RuleText: "Bash(pwd)"})

	count, err = s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records, got %d", count)
	}
	size, err = s.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size == 0 {
		t.Error("expected non-empty log")
	}
}
