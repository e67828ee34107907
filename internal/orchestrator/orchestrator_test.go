package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/errs"
	"github.com/valpere/paperdigest/internal/feed"
	"github.com/valpere/paperdigest/internal/ledger"
	"github.com/valpere/paperdigest/internal/retry"
	"github.com/valpere/paperdigest/internal/store"
	"github.com/valpere/paperdigest/internal/translator"
)

type mockSource struct {
	items   map[string][]*gofeed.Item
	failing map[string]bool
	papers  atomic.Int32
}

func (m *mockSource) Entries(ctx context.Context, j internal.Journal) ([]*gofeed.Item, error) {
	if m.failing[j.Name] {
		return nil, errors.New("feed unavailable")
	}
	return m.items[j.Name], nil
}

func (m *mockSource) Paper(ctx context.Context, j internal.Journal, item *gofeed.Item) internal.Paper {
	m.papers.Add(1)
	return internal.Paper{
		ID:       feed.EntryID(item),
		Journal:  j.Name,
		Title:    item.Title,
		Link:     item.Link,
		Abstract: item.Description,
	}
}

func entry(id, abstract string) *gofeed.Item {
	return &gofeed.Item{GUID: id, Title: "Paper " + id, Link: "https://example.org/" + id, Description: abstract}
}

type mockBackend struct {
	name      string
	model     string
	response  string
	err       error
	onCall    func()
	callCount atomic.Int32
}

func (m *mockBackend) Name() string  { return m.name }
func (m *mockBackend) Model() string { return m.model }

func (m *mockBackend) Summarize(ctx context.Context, req translator.Request) (string, error) {
	m.callCount.Add(1)
	if m.onCall != nil {
		m.onCall()
		return "", errs.Transient("summarize", ctx.Err())
	}
	return m.response, m.err
}

type mockSummarizer struct {
	backend  *mockBackend
	status   translator.Status
	titles   []string
	warmups  atomic.Int32
	releases atomic.Int32
}

func newMockSummarizer() *mockSummarizer {
	return &mockSummarizer{backend: &mockBackend{name: "ollama", model: "gemma3"}, status: translator.StatusOK}
}

func (m *mockSummarizer) Translate(ctx context.Context, title, abstract string) translator.Result {
	m.titles = append(m.titles, title)
	summary := "요약: " + title
	if m.status == translator.StatusFallback {
		summary = translator.FallbackSummary(abstract)
	}
	return translator.Result{
		EnglishAbstract: abstract,
		KoreanSummary:   summary,
		Status:          m.status,
		Backend:         m.backend.Name(),
		Model:           m.backend.Model(),
		Attempts:        1,
	}
}

func (m *mockSummarizer) Backend() translator.Backend { return m.backend }
func (m *mockSummarizer) Warmup(ctx context.Context)  { m.warmups.Add(1) }
func (m *mockSummarizer) Release(ctx context.Context) { m.releases.Add(1) }

type recordingWriter struct {
	events  []string
	started bool
	ended   bool
	failAdd bool
}

func (w *recordingWriter) Start() error {
	w.started = true
	return nil
}

func (w *recordingWriter) StartJournal(name string) error {
	w.events = append(w.events, "journal:"+name)
	return nil
}

func (w *recordingWriter) AddPaper(p internal.Paper, r translator.Result) error {
	if w.failAdd {
		return errors.New("disk full")
	}
	w.events = append(w.events, "paper:"+p.ID+":"+string(r.Status))
	return nil
}

func (w *recordingWriter) EndJournal() error {
	w.events = append(w.events, "end")
	return nil
}

func (w *recordingWriter) End() error {
	w.ended = true
	return nil
}

func (w *recordingWriter) Path() string { return "output/papers_summary_20260302.html" }

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.Open(ledger.Options{
		Path:          filepath.Join(t.TempDir(), "progress.json"),
		BackupCount:   ledger.DefaultBackupCount,
		RetentionDays: ledger.DefaultRetentionDays,
	})
}

func reopen(l *ledger.Ledger) *ledger.Ledger {
	return ledger.Open(ledger.Options{Path: l.Path(), BackupCount: ledger.DefaultBackupCount})
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRun_SkipsProcessedEntries(t *testing.T) {
	l := newTestLedger(t)
	l.AddProcessed("X", "a1")
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	source := &mockSource{items: map[string][]*gofeed.Item{
		"X": {entry("a1", "first abstract"), entry("a2", "second abstract")},
	}}
	summarizer := newMockSummarizer()
	w := &recordingWriter{}

	o := New(source, summarizer, l, OrchestratorConfig{Format: "html"})
	sum, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}}, w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !slices.Equal(summarizer.titles, []string{"Paper a2"}) {
		t.Errorf("expected only a2 to be translated, got %v", summarizer.titles)
	}
	if sum.Processed != 1 || sum.Skipped != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if !w.started || !w.ended || !slices.Equal(w.events, []string{"journal:X", "paper:a2:ok", "end"}) {
		t.Errorf("unexpected report events %v", w.events)
	}
	if sum.ReportPath != w.Path() {
		t.Errorf("expected report path %q, got %q", w.Path(), sum.ReportPath)
	}

	p, ok := reopen(l).Journal("X")
	if !ok || !slices.Equal(p.ProcessedIDs, []string{"a1", "a2"}) {
		t.Errorf("expected persisted ids [a1 a2], got %v", p.ProcessedIDs)
	}
}

func TestRun_Force(t *testing.T) {
	l := newTestLedger(t)
	l.AddProcessed("X", "a1")

	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "abstract")}}}
	summarizer := newMockSummarizer()

	o := New(source, summarizer, l, OrchestratorConfig{Force: true})
	sum, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}}, &recordingWriter{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || len(summarizer.titles) != 1 {
		t.Errorf("expected forced reprocessing, got %+v", sum)
	}
	p, _ := l.Journal("X")
	if !slices.Equal(p.ProcessedIDs, []string{"a1"}) {
		t.Errorf("expected id to stay unique, got %v", p.ProcessedIDs)
	}
}

func TestRun_FallbackRecordsFailure(t *testing.T) {
	l := newTestLedger(t)
	backend := &mockBackend{name: "ollama", model: "gemma3", err: errors.New("connection refused")}
	svc := translator.NewService(backend, retry.New(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond}, nil), nil)

	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "We report dose escalation.")}}}
	w := &recordingWriter{}

	sum, err := New(source, svc, l, OrchestratorConfig{}).Run(context.Background(), []internal.Journal{{Name: "X"}}, w)
	if err != nil {
		t.Fatal(err)
	}

	if got := backend.callCount.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	if sum.Fallbacks != 1 || sum.Processed != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if !slices.Contains(w.events, "paper:a1:fallback") {
		t.Errorf("expected fallback entry in report, got %v", w.events)
	}
	p, _ := l.Journal("X")
	if p.ErrorCount != 1 || !slices.Equal(p.ProcessedIDs, []string{"a1"}) {
		t.Errorf("expected error count 1 and a1 processed, got %+v", p)
	}
}

func TestRun_NoAbstractIsNotMarked(t *testing.T) {
	l := newTestLedger(t)
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", ""), entry("a2", "abstract")}}}
	summarizer := newMockSummarizer()

	sum, err := New(source, summarizer, l, OrchestratorConfig{}).Run(context.Background(), []internal.Journal{{Name: "X"}}, &recordingWriter{})
	if err != nil {
		t.Fatal(err)
	}
	if sum.NoAbstract != 1 || sum.Processed != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if l.IsProcessed("X", "a1") {
		t.Error("paper without abstract must not be marked processed")
	}
}

func TestRun_FeedErrorLeavesJournalEmpty(t *testing.T) {
	l := newTestLedger(t)
	source := &mockSource{
		items:   map[string][]*gofeed.Item{"B": {entry("b1", "abstract")}},
		failing: map[string]bool{"A": true},
	}
	w := &recordingWriter{}

	sum, err := New(source, newMockSummarizer(), l, OrchestratorConfig{}).
		Run(context.Background(), []internal.Journal{{Name: "A"}, {Name: "B"}}, w)
	if err != nil {
		t.Fatal(err)
	}
	if sum.FeedErrors != 1 || sum.Processed != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	want := []string{"journal:A", "end", "journal:B", "paper:b1:ok", "end"}
	if !slices.Equal(w.events, want) {
		t.Errorf("expected %v, got %v", want, w.events)
	}
}

func TestRun_DryRun(t *testing.T) {
	l := newTestLedger(t)
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "abstract")}}}
	summarizer := newMockSummarizer()

	o := New(source, summarizer, l, OrchestratorConfig{DryRun: true, Preload: true})
	sum, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(summarizer.titles) != 0 {
		t.Errorf("dry run must not call the translator, got %v", summarizer.titles)
	}
	if summarizer.warmups.Load() != 0 {
		t.Error("dry run must not preload the model")
	}
	if sum.Processed != 1 || sum.ReportPath != "" {
		t.Errorf("unexpected summary %+v", sum)
	}
	if _, ok := reopen(l).Journal("X"); ok {
		t.Error("dry run must not save the ledger")
	}
}

func TestRun_RequiresWriter(t *testing.T) {
	o := New(&mockSource{}, newMockSummarizer(), newTestLedger(t), OrchestratorConfig{})
	if _, err := o.Run(context.Background(), nil, nil); err == nil {
		t.Error("expected error without report writer")
	}
}

func TestRun_RequestDelayBetweenFetches(t *testing.T) {
	l := newTestLedger(t)
	l.AddProcessed("X", "a2")
	source := &mockSource{items: map[string][]*gofeed.Item{
		"X": {entry("a1", "x"), entry("a2", "x"), entry("a3", "x")},
		"Y": {entry("b1", "x")},
	}}

	var delays []time.Duration
	o := New(source, newMockSummarizer(), l, OrchestratorConfig{RequestDelay: time.Second})
	o.sleep = noSleep(&delays)

	if _, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}, {Name: "Y"}}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	// three fetches (a1, a3, b1), a delay before each but the first
	if len(delays) != 2 || delays[0] != time.Second {
		t.Errorf("expected 2 delays of 1s, got %v", delays)
	}
	if got := source.papers.Load(); got != 3 {
		t.Errorf("expected 3 page fetches, got %d", got)
	}
}

func TestRun_CancelStopsAndSaves(t *testing.T) {
	l := newTestLedger(t)
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "x"), entry("a2", "x")}}}

	ctx, cancel := context.WithCancel(context.Background())
	o := New(source, newMockSummarizer(), l, OrchestratorConfig{})
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	w := &recordingWriter{}
	sum, err := o.Run(ctx, []internal.Journal{{Name: "X"}}, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Processed != 1 || !w.ended {
		t.Errorf("expected partial run with finished report, got %+v", sum)
	}
	p, ok := reopen(l).Journal("X")
	if !ok || !slices.Equal(p.ProcessedIDs, []string{"a1"}) {
		t.Errorf("expected progress of the partial run to be saved, got %v", p.ProcessedIDs)
	}
}

func TestRun_CancelDuringSummaryLeavesPaperUnmarked(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	backend := &mockBackend{name: "ollama", model: "gemma3", onCall: cancel}
	svc := translator.NewService(backend, retry.New(retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond}, nil), nil)

	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "x"), entry("a2", "x")}}}
	w := &recordingWriter{}

	sum, err := New(source, svc, l, OrchestratorConfig{}).Run(ctx, []internal.Journal{{Name: "X"}}, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Processed != 0 || sum.Fallbacks != 0 {
		t.Errorf("expected the interrupted paper to be neither processed nor a fallback, got %+v", sum)
	}
	if !slices.Equal(w.events, []string{"journal:X"}) || !w.ended {
		t.Errorf("expected no paper in the report, got %v", w.events)
	}
	p, _ := reopen(l).Journal("X")
	if len(p.ProcessedIDs) != 0 || p.ErrorCount != 0 {
		t.Errorf("expected a1 to stay unprocessed without an error, got %+v", p)
	}
}

func TestRun_ReportFailureLeavesPaperUnmarked(t *testing.T) {
	l := newTestLedger(t)
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "x")}}}

	sum, err := New(source, newMockSummarizer(), l, OrchestratorConfig{}).
		Run(context.Background(), []internal.Journal{{Name: "X"}}, &recordingWriter{failAdd: true})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 0 || l.IsProcessed("X", "a1") {
		t.Errorf("expected paper to stay unmarked, got %+v", sum)
	}
}

func TestRun_Preload(t *testing.T) {
	summarizer := newMockSummarizer()
	o := New(&mockSource{}, summarizer, newTestLedger(t), OrchestratorConfig{Preload: true})
	if _, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	if summarizer.warmups.Load() != 1 || summarizer.releases.Load() != 1 {
		t.Errorf("expected one warmup and one release, got %d/%d", summarizer.warmups.Load(), summarizer.releases.Load())
	}
}

func TestRun_Keywords(t *testing.T) {
	var got []string
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "VMAT dose planning")}}}
	w := &keywordWriter{recordingWriter: &recordingWriter{}, keywords: &got}

	o := New(source, newMockSummarizer(), newTestLedger(t), OrchestratorConfig{}).
		WithKeywords(feed.NewKeywordMatcher(config.KeywordsConfig{Enabled: true, MaxCount: 5}))
	if _, err := o.Run(context.Background(), []internal.Journal{{Name: "X"}}, w); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []string{"dose", "VMAT"}) {
		t.Errorf("expected keywords [dose VMAT], got %v", got)
	}
}

type keywordWriter struct {
	*recordingWriter
	keywords *[]string
}

func (w *keywordWriter) AddPaper(p internal.Paper, r translator.Result) error {
	*w.keywords = p.Keywords
	return w.recordingWriter.AddPaper(p, r)
}

func TestRun_UsesCache(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "shared abstract")}}}
	summarizer := newMockSummarizer()
	journals := []internal.Journal{{Name: "X"}}

	first, err := New(source, summarizer, newTestLedger(t), OrchestratorConfig{Format: "html"}).
		WithStore(db).Run(context.Background(), journals, &recordingWriter{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(source, summarizer, newTestLedger(t), OrchestratorConfig{Format: "html"}).
		WithStore(db).Run(context.Background(), journals, &recordingWriter{})
	if err != nil {
		t.Fatal(err)
	}

	if len(summarizer.titles) != 1 {
		t.Errorf("expected one translation, got %d", len(summarizer.titles))
	}
	if first.Cached != 0 || second.Cached != 1 {
		t.Errorf("expected second run to hit the cache, got %d/%d", first.Cached, second.Cached)
	}

	runs, err := db.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.Status != store.RunCompleted || r.Counts.Processed != 1 {
			t.Errorf("unexpected run %+v", r)
		}
	}
}

func TestRun_FallbackIsNotCached(t *testing.T) {
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	summarizer := newMockSummarizer()
	summarizer.status = translator.StatusFallback
	source := &mockSource{items: map[string][]*gofeed.Item{"X": {entry("a1", "abstract")}}}

	if _, err := New(source, summarizer, newTestLedger(t), OrchestratorConfig{}).
		WithStore(db).Run(context.Background(), []internal.Journal{{Name: "X"}}, &recordingWriter{}); err != nil {
		t.Fatal(err)
	}
	stats, _ := db.Stats(context.Background())
	if stats.TotalEntries != 0 {
		t.Errorf("expected fallback summaries to stay out of the cache, got %d", stats.TotalEntries)
	}
}
