package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/valpere/paperdigest/internal/errs"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := Open(Options{
		Path:          filepath.Join(t.TempDir(), "data", "progress.json"),
		BackupCount:   DefaultBackupCount,
		RetentionDays: DefaultRetentionDays,
		Now:           clock.Now,
	})
	return l, clock
}

func reopen(t *testing.T, l *Ledger, clock *fakeClock) *Ledger {
	t.Helper()
	return Open(Options{
		Path:          l.Path(),
		BackupCount:   l.backupCount,
		RetentionDays: int(l.retention / (24 * time.Hour)),
		Now:           clock.Now,
	})
}

func TestOpen_MissingFile(t *testing.T) {
	l, _ := newTestLedger(t)

	if l.Len() != 0 {
		t.Errorf("expected empty ledger, got %d journals", l.Len())
	}
	if _, err := os.Stat(filepath.Dir(l.Path())); err != nil {
		t.Errorf("expected ledger directory to be created: %v", err)
	}
}

func TestIsProcessed_Absent(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddProcessed("Medical Physics", "a1")

	if l.IsProcessed("Physica Medica", "a1") {
		t.Error("absent journal must not report processed")
	}
	if l.IsProcessed("Medical Physics", "a2") {
		t.Error("absent id must not report processed")
	}
	if !l.IsProcessed("Medical Physics", "a1") {
		t.Error("expected a1 to be processed")
	}
}

func TestAddProcessed_Idempotent(t *testing.T) {
	l, clock := newTestLedger(t)

	l.AddProcessed("X", "p1")
	first, _ := l.Journal("X")

	clock.Advance(time.Hour)
	l.AddProcessed("X", "p1")
	second, _ := l.Journal("X")

	if !slices.Equal(second.ProcessedIDs, []string{"p1"}) {
		t.Errorf("expected [p1], got %v", second.ProcessedIDs)
	}
	if !second.LastProcessed.After(first.LastProcessed.Time) {
		t.Error("expected last_processed to be refreshed on re-add")
	}
	if !second.LastSuccess.Equal(second.LastProcessed.Time) {
		t.Error("expected last_success to match last_processed")
	}
}

func TestAddProcessed_CreatesZeroedRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	l.RecordFailure("Y")

	p, ok := l.Journal("Y")
	if !ok {
		t.Fatal("expected journal to be created")
	}
	if p.ErrorCount != 1 {
		t.Errorf("expected error_count=1, got %d", p.ErrorCount)
	}
	if !p.LastProcessed.IsZero() || !p.LastSuccess.IsZero() {
		t.Error("expected null timestamps on a journal that was never processed")
	}
	if len(p.ProcessedIDs) != 0 {
		t.Errorf("expected no ids, got %v", p.ProcessedIDs)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	l, clock := newTestLedger(t)
	l.AddProcessed("Medical Physics", "b")
	l.AddProcessed("Medical Physics", "a")
	l.AddProcessed("Medical Physics", "c")
	l.AddProcessed("Radiation Oncology", "r1")
	l.RecordFailure("Radiation Oncology")

	if err := l.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := reopen(t, l, clock)
	if !slices.Equal(loaded.Journals(), l.Journals()) {
		t.Fatalf("expected journals %v, got %v", l.Journals(), loaded.Journals())
	}
	for _, name := range l.Journals() {
		want, _ := l.Journal(name)
		got, _ := loaded.Journal(name)
		if !slices.Equal(got.ProcessedIDs, want.ProcessedIDs) {
			t.Errorf("%s: expected ids %v, got %v", name, want.ProcessedIDs, got.ProcessedIDs)
		}
		if !got.LastProcessed.Equal(want.LastProcessed.Time) {
			t.Errorf("%s: expected last_processed %v, got %v", name, want.LastProcessed, got.LastProcessed)
		}
		if got.ErrorCount != want.ErrorCount {
			t.Errorf("%s: expected error_count %d, got %d", name, want.ErrorCount, got.ErrorCount)
		}
	}
	if !loaded.IsProcessed("Medical Physics", "c") {
		t.Error("expected membership index to be rebuilt after load")
	}
}

func TestSave_FileFormat(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddProcessed("J", "id-1")
	l.RecordFailure("K")
	if err := l.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("ledger is not a JSON object: %v", err)
	}
	for _, field := range []string{"last_processed", "last_success", "processed_ids", "error_count"} {
		if _, ok := raw["J"][field]; !ok {
			t.Errorf("missing field %q", field)
		}
	}
	if raw["K"]["last_processed"] != nil {
		t.Errorf("expected null last_processed, got %v", raw["K"]["last_processed"])
	}
}

func TestSave_InterruptedWriteKeepsLiveFile(t *testing.T) {
	l, clock := newTestLedger(t)
	l.AddProcessed("X", "a1")
	if err := l.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	before, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	l.AddProcessed("X", "a2")
	l.writeTemp = func(f *os.File, data []byte) error {
		f.Write(data[:len(data)/2])
		return errors.New("disk full")
	}
	clock.Advance(time.Second)

	err = l.Save()
	if err == nil {
		t.Fatal("expected Save to report the failure")
	}
	if !errs.Is(err, errs.KindPersistent) {
		t.Errorf("expected persistent error, got %v", err)
	}

	after, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(after) != string(before) {
		t.Error("live file changed after an interrupted save")
	}
	if _, err := os.Stat(l.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected temporary file to be removed")
	}

	loaded := reopen(t, l, clock)
	if !loaded.IsProcessed("X", "a1") || loaded.IsProcessed("X", "a2") {
		t.Error("expected the previously saved state after reload")
	}
	if !l.IsProcessed("X", "a2") {
		t.Error("in-memory state must survive a failed save")
	}
}

func TestSave_RotatesBackups(t *testing.T) {
	l, clock := newTestLedger(t)
	l.backupCount = 2

	for i := 0; i < 5; i++ {
		l.AddProcessed("X", fmt.Sprintf("p%d", i))
		if err := l.Save(); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
		clock.Advance(time.Minute)
	}

	backups, err := l.Backups()
	if err != nil {
		t.Fatalf("Backups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d: %v", len(backups), backups)
	}
	if backups[0] <= backups[1] {
		t.Errorf("expected newest first, got %v", backups)
	}

	// The newest backup holds the state written by the fourth save.
	data, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	journals, err := decode(data)
	if err != nil {
		t.Fatalf("decode backup: %v", err)
	}
	if got := journals["X"].ProcessedIDs; len(got) != 4 {
		t.Errorf("expected 4 ids in newest backup, got %v", got)
	}
}

func TestSave_NoBackupOnFirstWrite(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddProcessed("X", "a")
	if err := l.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	backups, _ := l.Backups()
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %v", backups)
	}
}

func TestLoad_RecoversNewestValidBackup(t *testing.T) {
	l, clock := newTestLedger(t)

	l.AddProcessed("X", "old")
	l.Save()
	clock.Advance(time.Minute)
	l.AddProcessed("X", "mid")
	l.Save()
	clock.Advance(time.Minute)
	l.AddProcessed("X", "new")
	l.Save()

	backups, _ := l.Backups()
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %v", backups)
	}
	want, err := os.ReadFile(backups[0])
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}

	if err := os.WriteFile(l.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	loaded := reopen(t, l, clock)
	expected, _ := decode(want)
	got, _ := loaded.Journal("X")
	if !slices.Equal(got.ProcessedIDs, expected["X"].ProcessedIDs) {
		t.Errorf("expected ids %v from newest backup, got %v", expected["X"].ProcessedIDs, got.ProcessedIDs)
	}
	if loaded.IsProcessed("X", "new") {
		t.Error("state newer than the backup must not appear")
	}
}

func TestLoad_SkipsCorruptBackups(t *testing.T) {
	l, clock := newTestLedger(t)
	dir := filepath.Dir(l.Path())

	good := `{"X": {"last_processed": null, "last_success": null, "processed_ids": ["g1"], "error_count": 0}}`
	os.WriteFile(l.Path()+".20260101000000.bak", []byte(good), 0644)
	os.WriteFile(l.Path()+".20260102000000.bak", []byte("garbage"), 0644)
	os.WriteFile(l.Path()+".tmp", []byte("garbage"), 0644)
	os.WriteFile(l.Path(), []byte("garbage"), 0644)
	os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte(good), 0644)

	loaded := reopen(t, l, clock)
	if !loaded.IsProcessed("X", "g1") {
		t.Error("expected recovery from the older valid backup")
	}
}

func TestLoad_NoUsableBackup(t *testing.T) {
	l, clock := newTestLedger(t)
	os.WriteFile(l.Path(), []byte("[]"), 0644)

	loaded := reopen(t, l, clock)
	if loaded.Len() != 0 {
		t.Errorf("expected empty ledger, got %v", loaded.Journals())
	}
}

func TestLoad_NaiveTimestamps(t *testing.T) {
	l, clock := newTestLedger(t)
	legacy := `{
  "Medical Physics": {
    "last_processed": "2026-02-20T10:11:12.123456",
    "last_success": "garbled",
    "processed_ids": ["x"],
    "error_count": 2
  }
}`
	os.WriteFile(l.Path(), []byte(legacy), 0644)

	loaded := reopen(t, l, clock)
	p, ok := loaded.Journal("Medical Physics")
	if !ok {
		t.Fatal("expected journal to load")
	}
	if p.LastProcessed.Year() != 2026 || p.LastProcessed.Month() != time.February || p.LastProcessed.Day() != 20 {
		t.Errorf("unexpected last_processed %v", p.LastProcessed)
	}
	if !p.LastSuccess.IsZero() {
		t.Errorf("expected unreadable timestamp to load as null, got %v", p.LastSuccess)
	}
	if p.ErrorCount != 2 {
		t.Errorf("expected error_count=2, got %d", p.ErrorCount)
	}
}

func TestCleanup_TrimKeepsNewest(t *testing.T) {
	l, _ := newTestLedger(t)
	for i := 0; i < 600; i++ {
		l.AddProcessed("X", fmt.Sprintf("id-%03d", i))
	}

	stats := l.Cleanup()

	p, _ := l.Journal("X")
	if len(p.ProcessedIDs) != MaxProcessedIDs {
		t.Fatalf("expected %d ids, got %d", MaxProcessedIDs, len(p.ProcessedIDs))
	}
	for i, id := range p.ProcessedIDs {
		if want := fmt.Sprintf("id-%03d", i+100); id != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, id)
		}
	}
	if l.IsProcessed("X", "id-099") {
		t.Error("trimmed id must no longer be processed")
	}
	if stats.TrimmedIDs != 100 || !slices.Equal(stats.Trimmed, []string{"X"}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCleanup_EvictsStaleJournals(t *testing.T) {
	l, clock := newTestLedger(t)
	now := clock.Now()

	clock.t = now.Add(-91 * 24 * time.Hour)
	l.AddProcessed("stale", "s1")
	clock.t = now.Add(-89 * 24 * time.Hour)
	l.AddProcessed("fresh", "f1")
	clock.t = now
	l.RecordFailure("never")

	stats := l.Cleanup()

	if _, ok := l.Journal("stale"); ok {
		t.Error("expected journal idle for 91 days to be evicted")
	}
	if _, ok := l.Journal("fresh"); !ok {
		t.Error("expected journal idle for 89 days to remain")
	}
	if _, ok := l.Journal("never"); !ok {
		t.Error("journal without last_processed must never be evicted")
	}
	if !slices.Equal(stats.Evicted, []string{"stale"}) {
		t.Errorf("unexpected evicted list %v", stats.Evicted)
	}
}

func TestCleanup_ZeroRetentionDisablesEviction(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	l := Open(Options{Path: filepath.Join(t.TempDir(), "p.json"), Now: clock.Now})
	l.AddProcessed("X", "a")
	clock.Advance(1000 * 24 * time.Hour)

	l.Cleanup()
	if l.Len() != 1 {
		t.Error("expected no eviction with retention disabled")
	}
}

func TestRemove(t *testing.T) {
	l, _ := newTestLedger(t)
	l.AddProcessed("X", "a")

	if !l.Remove("X") {
		t.Error("expected Remove to report an existing journal")
	}
	if l.Remove("X") {
		t.Error("expected second Remove to report nothing removed")
	}
	if l.IsProcessed("X", "a") {
		t.Error("removed journal must not report processed ids")
	}
}
