package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunelab/dune/internal/component"
	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/internal/db"
	"github.com/dunelab/dune/internal/db/repository"
	"github.com/dunelab/dune/internal/service/ingest"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/tracer"
)

// Result ingestor daemon: drains graded results off the queue and
// finalizes submission rows.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger.Init(cfg.SERVICE_NAME)

	if cfg.TRACE_URL != "" {
		shutdownTracer, err := tracer.Init(ctx, cfg.SERVICE_NAME, cfg.TRACE_URL)
		if err != nil {
			log.Fatalf("error initialising trace: %v", err)
		}
		defer shutdownTracer(context.Background())
	}

	pgCfg, err := config.GetPostgresConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	dbClient, err := db.New(ctx, pgCfg)
	if err != nil {
		log.Fatalf("database initialization error: %v", err)
	}
	defer dbClient.Close()

	cacheClient, err := component.GetCache(ctx, cfg.CACHE_TYPE)
	if err != nil {
		log.Fatalf("cache initialization error: %v", err)
	}
	defer cacheClient.ShutDown()

	queueClient, err := component.GetQueue()
	if err != nil {
		log.Fatalf("queue initialization error: %v", err)
	}
	defer queueClient.Shutdown()

	ingestor := ingest.NewIngestor(repository.NewSubmissionRepository(dbClient), cacheClient)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ingestor.Run(logger.WithContext(ctx, logger.Log), queueClient)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("trying to shutdown worker gracefully...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("ingestor error: %v", err)
		}
	}

	logger.Log.Info().Msg("worker shutdown gracefully")
}
