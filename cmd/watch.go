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
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	watchCron string
	watchNow  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the digest periodically on a cron schedule",
	Long: `Keep running and start a digest run on every tick of the cron schedule
(standard five-field syntax, default from schedule.cron in the config).
A run that is still going when the next tick fires makes that tick skip.

Stops on SIGINT or SIGTERM after the current run finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		spec := watchCron
		if spec == "" {
			spec = a.cfg.Schedule.Cron
		}
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger := a.logger.With("component", "watch")
		cl := cronLogger{logger: logger}
		c := cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		)

		id, err := c.AddFunc(spec, func() {
			logger.Info("scheduled run starting")
			sum, err := runDigest(ctx, a, runOptions{})
			if err != nil {
				logger.Error("scheduled run failed", "error", err)
				return
			}
			logger.Info("scheduled run finished", "run_id", sum.RunID, "processed", sum.Processed, "report", sum.ReportPath)
		})
		if err != nil {
			return fmt.Errorf("failed to add cron job: %w", err)
		}

		c.Start()
		logger.Info("watching", "cron", spec, "next_run", schedule.Next(time.Now()))

		var immediate sync.WaitGroup
		if watchNow {
			immediate.Add(1)
			go func() {
				defer immediate.Done()
				c.Entry(id).WrappedJob.Run()
			}()
		}

		<-ctx.Done()
		logger.Info("shutting down, waiting for the current run")
		<-c.Stop().Done()
		immediate.Wait()
		return nil
	},
}

// cronLogger routes cron's own messages into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Cron schedule (default from config)")
	watchCmd.Flags().BoolVar(&watchNow, "now", false, "Start a run immediately as well")
}
