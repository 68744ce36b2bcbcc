package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chronicler/mediastore/cmd/sync-worker/worker"
	"github.com/chronicler/mediastore/common/bootstrap"
	"github.com/chronicler/mediastore/common/db"
	"github.com/chronicler/mediastore/common/models"
	"github.com/chronicler/mediastore/common/objstore"
	"github.com/chronicler/mediastore/common/repository"
	"github.com/chronicler/mediastore/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bootstrap service components; the worker never reads the metadata cache
	components, err := bootstrap.Setup(ctx, "sync-worker",
		bootstrap.WithoutCache(),
		bootstrap.WithDBInitHook(func(database *db.DB) error {
			return repository.Migrate(ctx, database)
		}),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup service: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	components.Logger.Info("sync-worker starting")

	mediaRepo := repository.NewMediaRepository(components.DB)
	boxRepo := repository.NewBoxRepository(components.DB)
	pool := objstore.NewPool(components.Logger)

	// Without Redis there is a single process, so the sweep needs no election
	var locks worker.Locker
	if components.Redis != nil {
		locks = components.Redis
	}

	syncWorker := worker.NewSyncWorker(
		components.Config.Sync,
		components.Queue,
		mediaRepo,
		boxRepo,
		poolAdapter{pool},
		locks,
		components.Logger,
	)

	// Start worker in goroutine
	errChan := make(chan error, 2)
	go func() {
		if err := syncWorker.Start(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("sync worker error: %w", err)
		}
	}()

	// Health endpoint for orchestration probes
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", server.HealthHandler())
		healthSrv := server.New("sync-worker", components.Config.Service.Port, mux, components.Logger)
		if err := healthSrv.Start(); err != nil {
			errChan <- fmt.Errorf("health server error: %w", err)
		}
	}()

	components.Logger.Info("sync-worker started successfully")

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		components.Logger.Error("worker failed", "error", err)
		os.Exit(1)
	case sig := <-sigChan:
		components.Logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}

	components.Logger.Info("sync-worker shutting down gracefully")
}

// poolAdapter narrows the concrete pool to the worker's ClientPool
type poolAdapter struct {
	pool *objstore.Pool
}

func (a poolAdapter) Client(box *models.StorageBox) (worker.BoxClient, error) {
	return a.pool.Client(box)
}
