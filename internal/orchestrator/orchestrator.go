// Package orchestrator drives one digest run: feeds in, summaries through the
// translation service, report out, progress recorded in the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/valpere/paperdigest/internal"
	"github.com/valpere/paperdigest/internal/feed"
	"github.com/valpere/paperdigest/internal/ledger"
	"github.com/valpere/paperdigest/internal/report"
	"github.com/valpere/paperdigest/internal/store"
	"github.com/valpere/paperdigest/internal/translator"
)

// DryRunSummary replaces the summary of every paper in a dry run.
const DryRunSummary = "(dry-run)"

// Source yields the entries of a journal feed and builds papers from them.
type Source interface {
	Entries(ctx context.Context, j internal.Journal) ([]*gofeed.Item, error)
	Paper(ctx context.Context, j internal.Journal, item *gofeed.Item) internal.Paper
}

type Summarizer interface {
	Translate(ctx context.Context, title, abstract string) translator.Result
	Backend() translator.Backend
}

// preloader is the optional model lifecycle of a Summarizer.
type preloader interface {
	Warmup(ctx context.Context)
	Release(ctx context.Context)
}

type Ledger interface {
	IsProcessed(journal, id string) bool
	AddProcessed(journal, id string)
	RecordFailure(journal string)
	Cleanup() ledger.CleanupStats
	Save() error
}

// Store caches summaries and records runs.
type Store interface {
	GetCachedSummary(ctx context.Context, abstract, backend, model string) (string, bool, error)
	SaveSummary(ctx context.Context, abstract, backend, model, title, summary string) error
	StartRun(ctx context.Context, format string, dryRun bool) (string, error)
	FinishRun(ctx context.Context, id, reportPath string, counts store.RunCounts, runErr error) error
}

type OrchestratorConfig struct {
	RequestDelay time.Duration
	Force        bool
	DryRun       bool
	Format       string
	// Preload warms the model up before the first paper and releases it
	// after the run.
	Preload bool
}

// Summary reports what a run did.
type Summary struct {
	RunID      string
	Journals   int
	Processed  int
	Skipped    int
	NoAbstract int
	Fallbacks  int
	Cached     int
	FeedErrors int
	ReportPath string
	Cleanup    ledger.CleanupStats
	Duration   time.Duration
}

func (s *Summary) counts() store.RunCounts {
	return store.RunCounts{
		Processed:  s.Processed,
		Skipped:    s.Skipped,
		NoAbstract: s.NoAbstract,
		Fallbacks:  s.Fallbacks,
		Cached:     s.Cached,
		FeedErrors: s.FeedErrors,
	}
}

type Orchestrator struct {
	source     Source
	summarizer Summarizer
	ledger     Ledger
	config     OrchestratorConfig

	store    Store
	keywords *feed.KeywordMatcher
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func New(source Source, summarizer Summarizer, progress Ledger, config OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		source:     source,
		summarizer: summarizer,
		ledger:     progress,
		config:     config,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:      sleepCtx,
	}
}

// WithStore enables the summary cache and run history.
func (o *Orchestrator) WithStore(s Store) *Orchestrator {
	o.store = s
	return o
}

func (o *Orchestrator) WithKeywords(k *feed.KeywordMatcher) *Orchestrator {
	o.keywords = k
	return o
}

func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger.With("component", "orchestrator")
	return o
}

// Run processes journals in order and writes the report through w. w may be
// nil in a dry run. A failing paper or feed never aborts the run; only a
// report that cannot be started or finished, or a cancelled ctx, is
// returned as an error. Progress is cleaned up and saved in every case
// except a dry run.
func (o *Orchestrator) Run(ctx context.Context, journals []internal.Journal, w report.Writer) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Journals: len(journals)}

	if !o.config.DryRun && w == nil {
		return nil, errors.New("report writer is required outside dry-run")
	}
	if o.config.DryRun {
		w = nil
	}

	sum.RunID = o.startRun(ctx)
	log := o.logger.With("run_id", sum.RunID)
	log.Info("run started", "journals", len(journals), "dry_run", o.config.DryRun, "force", o.config.Force)

	if w != nil {
		if err := w.Start(); err != nil {
			o.finishRun(ctx, sum, err)
			return sum, fmt.Errorf("start report: %w", err)
		}
		sum.ReportPath = w.Path()
	}

	if p, ok := o.summarizer.(preloader); ok && o.config.Preload && !o.config.DryRun {
		p.Warmup(ctx)
		defer p.Release(context.WithoutCancel(ctx))
	}

	runErr := o.processJournals(ctx, log, journals, w, sum)

	sum.Cleanup = o.ledger.Cleanup()
	if !o.config.DryRun {
		if err := o.ledger.Save(); err != nil {
			log.Error("failed to save progress", "error", err)
		}
	}

	if w != nil {
		if err := w.End(); err != nil && runErr == nil {
			runErr = fmt.Errorf("finish report: %w", err)
		}
	}

	sum.Duration = time.Since(start)
	o.finishRun(ctx, sum, runErr)
	log.Info("run finished",
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"no_abstract", sum.NoAbstract,
		"fallbacks", sum.Fallbacks,
		"cached", sum.Cached,
		"feed_errors", sum.FeedErrors,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum, runErr
}

func (o *Orchestrator) processJournals(ctx context.Context, log *slog.Logger, journals []internal.Journal, w report.Writer, sum *Summary) error {
	fetched := 0
	for _, j := range journals {
		if err := ctx.Err(); err != nil {
			return err
		}
		jlog := log.With("journal", j.Name)

		if w != nil {
			if err := w.StartJournal(j.Name); err != nil {
				jlog.Error("failed to write journal section", "error", err)
			}
		}

		items, err := o.source.Entries(ctx, j)
		if err != nil {
			jlog.Error("failed to fetch feed", "url", j.URL, "error", err)
			sum.FeedErrors++
		}
		jlog.Info("feed fetched", "entries", len(items))

		for _, item := range items {
			id := feed.EntryID(item)
			if id == "" {
				jlog.Warn("entry has neither guid nor link, skipping", "title", item.Title)
				continue
			}
			if !o.config.Force && o.ledger.IsProcessed(j.Name, id) {
				sum.Skipped++
				continue
			}

			if fetched > 0 {
				if err := o.sleep(ctx, o.config.RequestDelay); err != nil {
					return err
				}
			}
			fetched++

			o.processPaper(ctx, jlog, j, item, w, sum)
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if w != nil {
			if err := w.EndJournal(); err != nil {
				jlog.Error("failed to close journal section", "error", err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) processPaper(ctx context.Context, log *slog.Logger, j internal.Journal, item *gofeed.Item, w report.Writer, sum *Summary) {
	paper := o.source.Paper(ctx, j, item)
	plog := log.With("paper_id", paper.ID)

	if paper.Abstract == "" {
		plog.Warn("no abstract found, skipping", "title", paper.Title)
		sum.NoAbstract++
		return
	}
	if o.keywords != nil {
		paper.Keywords = o.keywords.Match(paper.Title, paper.Abstract)
	}

	var result translator.Result
	switch {
	case o.config.DryRun:
		result = translator.Result{
			EnglishAbstract: paper.Abstract,
			KoreanSummary:   DryRunSummary,
			Status:          translator.StatusOK,
		}
	default:
		result = o.summarize(ctx, plog, paper, sum)
		if ctx.Err() != nil {
			// interrupted mid-request: the result is not the paper's summary
			plog.Info("run cancelled, paper left for the next run")
			return
		}
	}

	if result.Fallback() {
		sum.Fallbacks++
		o.ledger.RecordFailure(j.Name)
	}

	if w != nil {
		if err := w.AddPaper(paper, result); err != nil {
			// leave it unmarked so the next run writes it again
			plog.Error("failed to write paper to report", "error", err)
			return
		}
	}

	o.ledger.AddProcessed(j.Name, paper.ID)
	sum.Processed++
	plog.Info("paper processed", "title", paper.Title, "status", result.Status, "attempts", result.Attempts)
}

// summarize consults the cache before calling the translation service and
// caches successful results.
func (o *Orchestrator) summarize(ctx context.Context, log *slog.Logger, paper internal.Paper, sum *Summary) translator.Result {
	backend := o.summarizer.Backend()

	if o.store != nil {
		summary, found, err := o.store.GetCachedSummary(ctx, paper.Abstract, backend.Name(), backend.Model())
		if err != nil {
			log.Warn("cache lookup failed", "error", err)
		}
		if found {
			sum.Cached++
			return translator.Result{
				EnglishAbstract: paper.Abstract,
				KoreanSummary:   summary,
				Status:          translator.StatusOK,
				Backend:         backend.Name(),
				Model:           backend.Model(),
			}
		}
	}

	result := o.summarizer.Translate(ctx, paper.Title, paper.Abstract)

	if o.store != nil && result.Status == translator.StatusOK {
		if err := o.store.SaveSummary(ctx, paper.Abstract, result.Backend, result.Model, paper.Title, result.KoreanSummary); err != nil {
			log.Warn("failed to cache summary", "error", err)
		}
	}
	return result
}

func (o *Orchestrator) startRun(ctx context.Context) string {
	if o.store != nil {
		id, err := o.store.StartRun(ctx, o.config.Format, o.config.DryRun)
		if err == nil {
			return id
		}
		o.logger.Warn("failed to record run start", "error", err)
	}
	return uuid.NewString()
}

func (o *Orchestrator) finishRun(ctx context.Context, sum *Summary, runErr error) {
	if o.store == nil {
		return
	}
	if err := o.store.FinishRun(context.WithoutCancel(ctx), sum.RunID, sum.ReportPath, sum.counts(), runErr); err != nil {
		o.logger.Warn("failed to record run result", "run_id", sum.RunID, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
