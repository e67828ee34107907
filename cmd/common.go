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
	"io"
	"log/slog"
	"os"

	"github.com/valpere/paperdigest/internal/config"
	"github.com/valpere/paperdigest/internal/ledger"
	"github.com/valpere/paperdigest/internal/logging"
	"github.com/valpere/paperdigest/internal/store"
)

// app holds what every command needs: the loaded config and the logger.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
}

// loadApp reads the configuration and sets up logging. The --log-level flag
// overrides the configured level.
func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, closer, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		// stay usable without a writable log directory
		fmt.Fprintf(os.Stderr, "Warning: %v, logging to stdout only\n", err)
		logger, closer = logging.New(os.Stdout, cfg.LogLevel), nil
	}
	if cfg.File != "" {
		logger.Debug("configuration loaded", "file", cfg.File)
	}

	return &app{cfg: cfg, logger: logger, logCloser: closer}, nil
}

func (a *app) Close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) openLedger() *ledger.Ledger {
	return ledger.Open(ledger.Options{
		Path:          a.cfg.Progress.FilePath,
		BackupCount:   a.cfg.Progress.BackupCount,
		RetentionDays: a.cfg.Progress.RetentionDays,
		Logger:        a.logger,
	})
}

// openStore opens the summary cache database.
func (a *app) openStore() (*store.Store, error) {
	db, err := store.New(a.cfg.Cache.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
