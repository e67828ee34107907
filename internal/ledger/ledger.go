// Package ledger keeps the durable record of which papers have already been
// reported, per journal.
//
// The ledger is loaded once at the start of a run, mutated in memory while
// journals are processed and flushed once at the end. Saving goes through a
// temporary file and an atomic rename, with the previous live file copied to
// a timestamped backup first, so the live file is always either the old or
// the new complete version. Loading falls back to the newest readable backup
// when the live file is corrupt.
//
// A Ledger is owned by a single goroutine and does no locking.
package ledger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	// MaxProcessedIDs is the per-journal high-water mark applied by Cleanup.
	MaxProcessedIDs = 500

	DefaultBackupCount   = 5
	DefaultRetentionDays = 90
)

// JournalProgress is the persisted record for one journal.
type JournalProgress struct {
	LastProcessed Timestamp `json:"last_processed"`
	LastSuccess   Timestamp `json:"last_success"`
	ProcessedIDs  []string  `json:"processed_ids"`
	ErrorCount    int       `json:"error_count"`

	index map[string]struct{}
}

func (p *JournalProgress) has(id string) bool {
	if p.index == nil {
		p.reindex()
	}
	_, ok := p.index[id]
	return ok
}

func (p *JournalProgress) reindex() {
	p.index = make(map[string]struct{}, len(p.ProcessedIDs))
	for _, id := range p.ProcessedIDs {
		p.index[id] = struct{}{}
	}
}

// snapshot returns a copy that shares nothing with p.
func (p *JournalProgress) snapshot() JournalProgress {
	return JournalProgress{
		LastProcessed: p.LastProcessed,
		LastSuccess:   p.LastSuccess,
		ProcessedIDs:  slices.Clone(p.ProcessedIDs),
		ErrorCount:    p.ErrorCount,
	}
}

// Options configures a Ledger.
type Options struct {
	Path string
	// BackupCount is the number of timestamped backups kept next to Path.
	// Zero keeps none.
	BackupCount int
	// RetentionDays evicts journals idle for longer than this. Zero disables
	// eviction.
	RetentionDays int

	Logger *slog.Logger
	Now    func() time.Time
}

// CleanupStats reports what Cleanup changed.
type CleanupStats struct {
	Trimmed    []string
	TrimmedIDs int
	Evicted    []string
}

// Ledger maps journal names to their progress records.
type Ledger struct {
	path        string
	backupCount int
	retention   time.Duration
	logger      *slog.Logger
	now         func() time.Time

	journals map[string]*JournalProgress

	// writeTemp writes the serialized ledger into the temporary file.
	// Replaced in tests to simulate a failure mid-write.
	writeTemp func(f *os.File, data []byte) error
}

// Open creates the ledger directory if needed and loads the ledger from disk.
func Open(opts Options) *Ledger {
	l := &Ledger{
		path:        opts.Path,
		backupCount: opts.BackupCount,
		retention:   time.Duration(opts.RetentionDays) * 24 * time.Hour,
		logger:      opts.Logger,
		now:         opts.Now,
		journals:    make(map[string]*JournalProgress),
		writeTemp:   writeAndSync,
	}
	if l.backupCount < 0 {
		l.backupCount = 0
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l.logger = l.logger.With("component", "ledger")
	if l.now == nil {
		l.now = time.Now
	}

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			l.logger.Error("failed to create ledger directory", "dir", dir, "error", err)
		}
	}

	l.Load()
	return l
}

// Path returns the live ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// IsProcessed reports whether id has been recorded for journal.
func (l *Ledger) IsProcessed(journal, id string) bool {
	p, ok := l.journals[journal]
	if !ok {
		return false
	}
	return p.has(id)
}

// AddProcessed records id for journal. Re-adding a known id leaves the id
// list untouched but still refreshes the journal timestamps.
func (l *Ledger) AddProcessed(journal, id string) {
	p := l.record(journal)
	if !p.has(id) {
		p.ProcessedIDs = append(p.ProcessedIDs, id)
		p.index[id] = struct{}{}
	}
	now := l.now()
	p.LastProcessed = Timestamp{now}
	p.LastSuccess = Timestamp{now}
}

// RecordFailure bumps the advisory error counter of journal.
func (l *Ledger) RecordFailure(journal string) {
	l.record(journal).ErrorCount++
}

func (l *Ledger) record(journal string) *JournalProgress {
	p, ok := l.journals[journal]
	if !ok {
		p = &JournalProgress{ProcessedIDs: []string{}}
		l.journals[journal] = p
	}
	if p.index == nil {
		p.reindex()
	}
	return p
}

// Cleanup trims oversized journals to their newest MaxProcessedIDs ids and
// then evicts journals whose last activity is older than the retention
// window. Journals that were never processed are never evicted.
func (l *Ledger) Cleanup() CleanupStats {
	var stats CleanupStats

	for _, name := range l.Journals() {
		p := l.journals[name]
		if n := len(p.ProcessedIDs); n > MaxProcessedIDs {
			dropped := n - MaxProcessedIDs
			p.ProcessedIDs = slices.Clone(p.ProcessedIDs[dropped:])
			p.reindex()
			stats.Trimmed = append(stats.Trimmed, name)
			stats.TrimmedIDs += dropped
		}
	}

	if l.retention > 0 {
		cutoff := l.now().Add(-l.retention)
		for _, name := range l.Journals() {
			p := l.journals[name]
			if p.LastProcessed.IsZero() || !p.LastProcessed.Before(cutoff) {
				continue
			}
			l.logger.Info("removing stale journal progress", "journal", name, "last_processed", p.LastProcessed.Time)
			delete(l.journals, name)
			stats.Evicted = append(stats.Evicted, name)
		}
	}

	return stats
}

// Journals returns the journal names in sorted order.
func (l *Ledger) Journals() []string {
	names := make([]string, 0, len(l.journals))
	for name := range l.journals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Journal returns a copy of the record for name.
func (l *Ledger) Journal(name string) (JournalProgress, bool) {
	p, ok := l.journals[name]
	if !ok {
		return JournalProgress{}, false
	}
	return p.snapshot(), true
}

// Remove drops every record of journal. It reports whether one existed.
func (l *Ledger) Remove(journal string) bool {
	if _, ok := l.journals[journal]; !ok {
		return false
	}
	delete(l.journals, journal)
	return true
}

// Len returns the number of journals tracked.
func (l *Ledger) Len() int {
	return len(l.journals)
}
