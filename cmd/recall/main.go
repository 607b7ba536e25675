// Command recall runs the memory graph daemon: an HTTP surface over the
// entity-fact store, a periodic relevance decay scheduler, and SQLite
// snapshot persistence across restarts.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"dev.helix.recall/internal/background"
	"dev.helix.recall/internal/config"
	"dev.helix.recall/internal/memory"
	"dev.helix.recall/internal/observability/metrics"
	"dev.helix.recall/internal/persistence"
	"dev.helix.recall/internal/routing"
	"dev.helix.recall/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Recall daemon exited")
	}
}

func run() error {
	cfg := config.Load()
	logger := buildLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	graph := memory.NewGraph(memory.Config{MaxInteractions: cfg.Memory.MaxInteractions}, logger)

	var store *persistence.SnapshotStore
	if cfg.Storage.Enabled {
		var err error
		store, err = persistence.Open(ctx, persistence.SnapshotConfig{
			Path:     cfg.Storage.Path,
			InMemory: cfg.Storage.InMemory,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer store.Close()

		snapshot, err := store.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if len(snapshot.Entities) > 0 || len(snapshot.Facts) > 0 || len(snapshot.Interactions) > 0 {
			if err := graph.Restore(ctx, snapshot); err != nil {
				return fmt.Errorf("failed to restore snapshot: %w", err)
			}
			logger.WithFields(logrus.Fields{
				"entities":     len(snapshot.Entities),
				"facts":        len(snapshot.Facts),
				"interactions": len(snapshot.Interactions),
				"taken_at":     snapshot.TakenAt,
			}).Info("Restored memory graph from snapshot")
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
		if stats, err := graph.Stats(ctx); err == nil {
			collector.SetGraphSize(stats.Entities, stats.Facts)
		}
	}

	var scheduler *background.Scheduler
	if cfg.Decay.Enabled {
		scheduler = background.NewScheduler(graph, &background.SchedulerConfig{
			Interval:   cfg.Decay.Interval,
			RunOnStart: cfg.Decay.RunOnStart,
		}, logger, collector)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start decay scheduler: %w", err)
		}
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithGinMode(cfg.Server.GinMode),
	}
	if collector != nil {
		opts = append(opts, server.WithCollector(collector))
	}
	srv := server.New(graph, routing.NewRouter(nil, logger), opts...)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(cfg.Server.Addr())
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	if scheduler != nil {
		scheduler.Stop()
	}

	if store != nil {
		if saveErr := saveFinalSnapshot(graph, store, logger); saveErr != nil && err == nil {
			err = saveErr
		}
	}

	return err
}

// saveFinalSnapshot exports the graph and writes it through the snapshot
// store so the next start can restore it.
func saveFinalSnapshot(graph *memory.Graph, store *persistence.SnapshotStore, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	snapshot, err := graph.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to take final snapshot: %w", err)
	}
	if err := store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save final snapshot: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"entities":     len(snapshot.Entities),
		"facts":        len(snapshot.Facts),
		"interactions": len(snapshot.Interactions),
	}).Info("Saved final snapshot")
	return nil
}

func buildLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
