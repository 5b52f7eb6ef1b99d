// Command sercha-rag is a semantic retrieval pipeline for local documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// bootstrap wires the retrieval pipeline from the config at configPath.
func bootstrap(ctx context.Context, configPath string) (rt *cli.Runtime, err error) {
	cfgStore, err := file.NewConfigStore(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	settings := cfgStore.Settings()

	if err := logger.Init(settings.Log.Level, settings.Log.Format); err != nil {
		return nil, err
	}
	logger.Debug("config loaded from %s", cfgStore.Path())

	var closers []func() error
	defer func() {
		if err != nil {
			_ = closeAll(closers)
		}
	}()

	embedder := services.NewEmbeddingManager(services.EmbeddingManagerConfig{
		Default:           string(settings.Embedding.Backend),
		MaxConcurrent:     settings.Embedding.MaxConcurrent,
		BatchSize:         settings.Embedding.BatchSize,
		RequestsPerSecond: settings.Embedding.RequestsPerSecond,
		Timeout:           settings.Embedding.Timeout.Std(),
	}, ai.EmbeddingLoaders(&settings))
	closers = append(closers, embedder.Close)

	// The memory index keeps nothing on disk, so neither does job history.
	var (
		db    *sqlite.Store
		tasks driven.SchedulerStore = memory.NewSchedulerStore()
	)
	if settings.Index.Backend != domain.IndexMemory {
		db, err = sqlite.NewStore(settings.Index.SQLite.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		closers = append(closers, db.Close)
		tasks = db.SchedulerStore()
	}

	index, err := storage.CreateVectorIndex(ctx, &settings.Index, db)
	if err != nil {
		return nil, fmt.Errorf("creating %s index: %w", settings.Index.Backend, err)
	}
	// Closed before the database it may share.
	closers = append([]func() error{index.Close}, closers...)

	chunker, err := postprocessors.NewDefaultPipeline(settings.Chunking)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	pipeline := services.NewPipeline(embedder, index, chunker, settings.Retrieval)
	pipeline.SetIndexBackend(string(settings.Index.Backend))

	scheduler := services.NewScheduler(tasks)
	if err := scheduler.Add(settings.Scheduler.HealthCron, services.NewHealthProbeJob(pipeline, embedder)); err != nil {
		return nil, err
	}
	if dirs := settings.Scheduler.WatchDirs; len(dirs) > 0 {
		if err := scheduler.Add(settings.Scheduler.ReindexCron, services.NewReindexJob(pipeline, dirs)); err != nil {
			return nil, err
		}
	}

	return &cli.Runtime{
		Retrieval: pipeline,
		Scheduler: scheduler,
		Tasks:     tasks,
		Settings:  settings,
		Close: func() error {
			return closeAll(closers)
		},
	}, nil
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
