package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dunelab/dune/internal/auth"
	"github.com/dunelab/dune/internal/component"
	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/internal/db"
	"github.com/dunelab/dune/internal/db/repository"
	"github.com/dunelab/dune/internal/dispatch"
	"github.com/dunelab/dune/internal/service/logger"
	"github.com/dunelab/dune/internal/service/submission"
	"github.com/dunelab/dune/internal/tracer"
	"github.com/dunelab/dune/internal/web"
)

func main() {
	ctx := context.Background()

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
		defer shutdownTracer(ctx)
	}

	pgCfg, err := config.GetPostgresConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	dbClient, err := db.New(ctx, pgCfg)
	if err != nil {
		log.Fatalf("database initialization error: %v", err)
	}

	cacheClient, err := component.GetCache(ctx, cfg.CACHE_TYPE)
	if err != nil {
		log.Fatalf("cache initialization error: %v", err)
	}

	queueClient, err := component.GetQueue()
	if err != nil {
		log.Fatalf("queue initialization error: %v", err)
	}

	archive, err := component.GetStorage(cfg.ARCHIVE_CODE)
	if err != nil {
		log.Fatalf("storage initialization error: %v", err)
	}

	authCfg, err := config.GetAuthConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	userRepo := repository.NewUserRepository(dbClient)
	authService := auth.NewService(userRepo, authCfg)

	submissionService := submission.NewService(
		repository.NewSubmissionRepository(dbClient),
		dispatch.NewDispatcher(queueClient),
		cacheClient,
		archive,
	)

	server := web.NewServer(submissionService, authService, repository.NewBenchmarkRepository(dbClient), userRepo)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           server.Router(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Println("HTTP server started on :8080")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("trying to shutdown server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}

	var wg sync.WaitGroup
	shutdown := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	shutdown(dbClient.Close)
	shutdown(cacheClient.ShutDown)
	shutdown(queueClient.Shutdown)
	if archive != nil {
		shutdown(archive.ShutDown)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Log.Info().Msg("server shutdown gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Info().Msg("server graceful shutdown timed out")
	}
}
