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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/paperdigest/internal/ledger"
)

var progressShowAll bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and manage the progress ledger",
	Long:  `List, inspect, reset and clean up the per-journal record of processed papers.`,
}

var progressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journals in the progress ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		l := a.openLedger()
		names := l.Journals()
		if len(names) == 0 {
			fmt.Println("No journals in the progress ledger.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOURNAL\tPAPERS\tERRORS\tLAST PROCESSED\tLAST SUCCESS")
		for _, name := range names {
			p, _ := l.Journal(name)
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				name, len(p.ProcessedIDs), p.ErrorCount,
				formatTimestamp(p.LastProcessed), formatTimestamp(p.LastSuccess))
		}
		return w.Flush()
	},
}

var progressShowCmd = &cobra.Command{
	Use:   "show <journal>",
	Short: "Show the progress record of one journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p, ok := a.openLedger().Journal(args[0])
		if !ok {
			return fmt.Errorf("journal not in progress ledger: %s", args[0])
		}

		fmt.Printf("Journal:         %s\n", args[0])
		fmt.Printf("Last processed:  %s\n", formatTimestamp(p.LastProcessed))
		fmt.Printf("Last success:    %s\n", formatTimestamp(p.LastSuccess))
		fmt.Printf("Error count:     %d\n", p.ErrorCount)
		fmt.Printf("Processed papers: %d\n", len(p.ProcessedIDs))

		ids := p.ProcessedIDs
		const tail = 20
		if !progressShowAll && len(ids) > tail {
			fmt.Printf("(showing the newest %d, use --all for every id)\n", tail)
			ids = ids[len(ids)-tail:]
		}
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <journal>",
	Short: "Forget every processed paper of a journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		l := a.openLedger()
		if !l.Remove(args[0]) {
			return fmt.Errorf("journal not in progress ledger: %s", args[0])
		}
		if err := l.Save(); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		fmt.Printf("Reset progress of %s\n", args[0])
		return nil
	},
}

var progressCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Trim oversized journals and evict stale ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		l := a.openLedger()
		stats := l.Cleanup()
		if err := l.Save(); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}

		fmt.Printf("Trimmed journals: %d (%d ids dropped, keeping the newest %d each)\n",
			len(stats.Trimmed), stats.TrimmedIDs, ledger.MaxProcessedIDs)
		fmt.Printf("Evicted journals: %d\n", len(stats.Evicted))
		for _, name := range stats.Evicted {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func formatTimestamp(t ledger.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(progressCmd)

	progressShowCmd.Flags().BoolVar(&progressShowAll, "all", false, "Print every processed id")

	progressCmd.AddCommand(progressListCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
	progressCmd.AddCommand(progressCleanupCmd)
}
