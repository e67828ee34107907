/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/feed"
	"github.com/valpere/paperdigest/internal/orchestrator"
	"github.com/valpere/paperdigest/internal/report"
	"github.com/valpere/paperdigest/internal/translator"
)

type runOptions struct {
	format   string
	journals []string
	force    bool
	dryRun   bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Summarize new papers from the configured journals",
	Long: `Fetch every configured journal feed, summarize the papers that are not in
the progress ledger yet and write the report to the output directory.

Flags:
  --format     html, md or json (default from config)
  --journals   only these journals (comma-separated names from the list file)
  --force      summarize papers again even if already processed
  --dry-run    fetch and extract only: no LLM calls, no report, ledger not saved`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sum, err := runDigest(ctx, a, runOpts)
		if sum != nil {
			printSummary(sum, runOpts.dryRun)
		}
		return err
	},
}

// runDigest performs one complete run with the app configuration.
func runDigest(ctx context.Context, a *app, opts runOptions) (*orchestrator.Summary, error) {
	format := opts.format
	if format == "" {
		format = a.cfg.OutputFormat
	}
	if err := config.ValidateFormat(format); err != nil {
		return nil, err
	}

	all, err := feed.LoadJournals(a.cfg.Journals.ListFile, a.logger)
	if err != nil {
		return nil, err
	}
	journals, unknown := feed.Select(all, opts.journals)
	for _, name := range unknown {
		a.logger.Warn("unknown journal requested", "journal", name)
	}
	if len(journals) == 0 {
		return nil, fmt.Errorf("no journals to process")
	}

	svc, err := translator.New(ctx, a.cfg.Translator, a.logger)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	if !opts.dryRun {
		// an unreachable backend is logged; its papers fall back
		_ = svc.Check(ctx)
	}

	o := orchestrator.New(feed.NewFetcher(a.cfg.Journals, a.logger), svc, a.openLedger(), orchestrator.OrchestratorConfig{
		RequestDelay: a.cfg.Journals.RequestDelay,
		Force:        opts.force,
		DryRun:       opts.dryRun,
		Format:       format,
		Preload:      a.cfg.Translator.Provider == "ollama" && a.cfg.Translator.Ollama.Preload,
	}).
		WithKeywords(feed.NewKeywordMatcher(a.cfg.Keywords)).
		WithLogger(a.logger)

	if a.cfg.Cache.Enabled {
		db, err := a.openStore()
		if err != nil {
			a.logger.Warn("summary cache unavailable, continuing without it", "error", err)
		} else {
			defer db.Close()
			o.WithStore(db)
		}
	}

	var w report.Writer
	if !opts.dryRun {
		if w, err = report.New(format, a.cfg.OutputDir, time.Now()); err != nil {
			return nil, err
		}
	}

	return o.Run(ctx, journals, w)
}

func printSummary(sum *orchestrator.Summary, dryRun bool) {
	fmt.Printf("Run %s finished in %s\n", sum.RunID, sum.Duration.Round(time.Second))
	fmt.Printf("Journals:      %d\n", sum.Journals)
	fmt.Printf("Processed:     %d\n", sum.Processed)
	fmt.Printf("Skipped:       %d\n", sum.Skipped)
	fmt.Printf("No abstract:   %d\n", sum.NoAbstract)
	fmt.Printf("Fallbacks:     %d\n", sum.Fallbacks)
	fmt.Printf("From cache:    %d\n", sum.Cached)
	fmt.Printf("Feed errors:   %d\n", sum.FeedErrors)
	if n := len(sum.Cleanup.Evicted); n > 0 {
		fmt.Printf("Evicted:       %s\n", strings.Join(sum.Cleanup.Evicted, ", "))
	}
	switch {
	case dryRun:
		fmt.Println("Dry run: no report written, progress not saved")
	case sum.ReportPath != "":
		fmt.Printf("Report:        %s\n", sum.ReportPath)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOpts.format, "format", "f", "", "Report format: html, md, json (default from config)")
	runCmd.Flags().StringSliceVarP(&runOpts.journals, "journals", "j", nil, "Journals to process (comma-separated names; default: all)")
	runCmd.Flags().BoolVar(&runOpts.force, "force", false, "Process papers even if already in the progress ledger")
	runCmd.Flags().BoolVar(&runOpts.dryRun, "dry-run", false, "Fetch and extract only, without summaries or report")
}
