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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/paperdigest/internal/markdown"
	"github.com/valpere/paperdigest/internal/store"
)

var (
	cacheDBPath string
	cacheLimit  int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the summary cache and run history",
	Long:  `List, inspect, and clear the SQLite summary cache, and show past runs.`,
}

// openCacheDB opens --db when given, otherwise the configured database.
func openCacheDB() (*store.Store, error) {
	path := cacheDBPath
	if path == "" {
		a, err := loadApp()
		if err != nil {
			return nil, err
		}
		a.Close()
		path = a.cfg.Cache.DBPath
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCacheDB()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListSummaries(context.Background(), cacheLimit)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in the summary cache.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBACKEND\tMODEL\tUSED\tLAST USED\tTITLE\tSUMMARY")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				e.ID, e.Backend, e.Model,
				e.UsageCount, e.LastUsed.Local().Format("2006-01-02 15:04"),
				markdown.Preview(e.Title, 40), markdown.Preview(e.Summary, 60))
		}
		return w.Flush()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCacheDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total entries:   %d\n", stats.TotalEntries)
		fmt.Printf("Total usage:     %d\n", stats.TotalUsage)
		fmt.Printf("Backend/models:  %d\n", stats.Backends)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a cached summary by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCacheDB()
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := db.DeleteSummary(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		if !deleted {
			return fmt.Errorf("no cache entry with id %s", args[0])
		}
		fmt.Printf("Deleted entry: %s\n", args[0])
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCacheDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearSummaries(context.Background())
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from the summary cache.\n", n)
		return nil
	},
}

var cacheRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openCacheDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), cacheLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tSTATUS\tFORMAT\tPROCESSED\tSKIPPED\tFALLBACKS\tCACHED\tREPORT")
		for _, r := range runs {
			duration := "-"
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			}
			status := r.Status
			if r.DryRun {
				status += " (dry-run)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), duration, status, r.Format,
				r.Counts.Processed, r.Counts.Skipped, r.Counts.Fallbacks, r.Counts.Cached, r.ReportPath)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheDBPath, "db", "", "Database path (default from config)")
	cacheCmd.PersistentFlags().IntVarP(&cacheLimit, "limit", "n", 0, "Show at most this many rows (list, runs)")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheRunsCmd)
}
