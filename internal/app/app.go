// Package app is the application layer between the CLI and the importer.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the store lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"wxr-go/internal/config"
	"wxr-go/internal/database"
	"wxr-go/internal/fetch"
	"wxr-go/internal/importer"
	"wxr-go/internal/mediastore"
	"wxr-go/internal/wxr"
)

// App wires config, content store, media store, and fetcher together for one
// CLI invocation. The caller must call Close when done.
type App struct {
	cfg     *config.Config
	store   importer.ContentStore
	clock   importer.Clock
	logger  importer.Logger
	op      *ImportOperation
	logFile *os.File
	dryRun  bool
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (e.g. "Import", "ListRuns"). When
// dryRun is set, a throwaway in-memory store replaces the configured one and
// no run record is written.
func NewApp(cfg *config.Config, operation string, dryRun bool) (*App, error) {
	dbCfg := cfg.Database
	if dryRun {
		dbCfg = config.DatabaseConfig{Type: "memory"}
	}

	store, err := database.NewStoreFromConfig(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("creating content store: %w", err)
	}

	runID := uuid.New().String()
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		clock:   importer.RealClock{},
		logger:  &slogAdapter{l: logger},
		op:      NewImportOperation(operation, ""),
		logFile: logFile,
		dryRun:  dryRun,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// OptionsFromConfig translates the import section of the config into run
// options. CLI flags override individual fields afterwards.
func OptionsFromConfig(cfg config.ImportConfig) importer.Options {
	return importer.Options{
		PrefillPosts:          cfg.PrefillPosts,
		PrefillComments:       cfg.PrefillComments,
		PrefillTerms:          cfg.PrefillTerms,
		FetchAttachments:      cfg.FetchAttachments,
		UpdateAttachmentGUIDs: cfg.UpdateAttachmentGUIDs,
		AggressiveURLSearch:   cfg.AggressiveURLSearch,
		DefaultAuthor:         cfg.DefaultAuthor,
		MaxDeferredPasses:     cfg.MaxDeferredPasses,
	}
}

// persistOperation saves the import operation to the database, giving it an
// auto-increment ID. This should only be called for store-mutating commands.
func (a *App) persistOperation() error {
	if a.dryRun || a.op.Persisted() {
		return nil
	}
	id, err := a.store.CreateImportRun(a.op.Operation, a.op.Parameters, a.clock.Now())
	if err != nil {
		return fmt.Errorf("persisting import run: %w", err)
	}
	a.op.ID = id
	return nil
}

// Import replays the export document at sourcePath into the content store
// using the given options, and returns the run's statistics.
func (a *App) Import(ctx context.Context, sourcePath string, opts importer.Options) (*importer.Stats, error) {
	a.op.Parameters = sourcePath
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	var media importer.MediaStore
	var fetcher importer.Fetcher
	if opts.FetchAttachments {
		var err error
		media, err = a.mediaStore()
		if err != nil {
			a.op.Status = "error"
			return nil, err
		}
		if err := media.ValidateSetup(); err != nil {
			a.op.Status = "error"
			return nil, fmt.Errorf("validating media store: %w", err)
		}
		fetcher = fetch.NewHTTPFetcher(
			time.Duration(a.cfg.Fetch.TimeoutSeconds)*time.Second,
			a.cfg.Fetch.MaxSizeBytes,
			a.cfg.Fetch.MaxRetries,
		)
	}

	r, err := wxr.Open(sourcePath)
	if err != nil {
		a.op.Status = "error"
		return nil, err
	}
	defer r.Close()

	im := importer.New(a.store, media, fetcher, a.logger, a.clock, opts, importer.Hooks{})
	stats, err := im.Run(ctx, r)
	if err != nil {
		a.op.Status = "error"
		return stats, err
	}
	return stats, nil
}

// mediaStore builds the configured media backend. Dry runs always use the
// in-memory backend so nothing is written.
func (a *App) mediaStore() (importer.MediaStore, error) {
	mediaCfg := a.cfg.Media
	if a.dryRun {
		mediaCfg = config.MediaConfig{Type: "memory", BaseURL: mediaCfg.BaseURL}
	}
	media, err := mediastore.NewStoreFromConfig(mediaCfg)
	if err != nil {
		return nil, fmt.Errorf("creating media store: %w", err)
	}
	return media, nil
}

// Inspect summarizes the export document at sourcePath without touching the
// content store.
func (a *App) Inspect(sourcePath string) (*wxr.Summary, error) {
	return wxr.Inspect(sourcePath)
}

// Runs returns the most recent import runs.
func (a *App) Runs(limit int) ([]importer.ImportRun, error) {
	return a.store.ListImportRuns(limit)
}

// Close finalizes the run record (if one was persisted) and closes all
// resources.
func (a *App) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishImportRun(a.op.ID, a.op.Status, a.clock.Now()); err != nil {
			firstErr = fmt.Errorf("finishing import run: %w", err)
		}
	}

	if err := a.store.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing content store: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
