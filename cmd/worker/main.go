// Package main is the entry point for the larder background worker.
// It drains the notification outbox and serves operational health endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"larder/internal/config"
	"larder/internal/infrastructure/http/handlers"
	"larder/internal/infrastructure/storage/postgres"
	"larder/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDev(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting larder worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DB.DSN)
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns
	poolCfg.MaxConnLifetime = cfg.DB.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.DB.ConnMaxIdleTime

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	relay := postgres.NewOutboxRelay(pool.Unwrap(), cfg.Worker.OutboxBatchSize, postgres.LogOutboxHandler{})
	worker := NewWorker(relay, pool, cfg.Worker, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	healthSrv := newHealthServer(cfg.Worker.HealthAddr, pool, cfg.App.IsDev())
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("health server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("health server shutdown failed", "error", err)
	}

	wg.Wait()
	log.Info("worker stopped")
}

func newHealthServer(addr string, pool *postgres.Pool, dev bool) *http.Server {
	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	handlers.NewHealthHandler(pool).Register(router)

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Worker polls the notification outbox and periodically reports pool health.
type Worker struct {
	relay *postgres.OutboxRelay
	pool  *postgres.Pool
	cfg   config.WorkerConfig
	log   *logger.Logger
}

// NewWorker creates a new worker.
func NewWorker(relay *postgres.OutboxRelay, pool *postgres.Pool, cfg config.WorkerConfig, log *logger.Logger) *Worker {
	return &Worker{
		relay: relay,
		pool:  pool,
		cfg:   cfg,
		log:   log.WithComponent("worker"),
	}
}

// Run processes the outbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(w.cfg.PoolStatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			delivered, err := w.relay.ProcessBatch(ctx)
			if err != nil {
				w.log.Errorw("outbox batch failed", "error", err)
				continue
			}
			if delivered > 0 {
				w.log.Infow("delivered notifications", "count", delivered)
			}

		case <-statsTicker.C:
			w.pool.LogStats(ctx)
		}
	}
}
