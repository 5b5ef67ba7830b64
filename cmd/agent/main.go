package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/worklink/offline-sync/internal/api"
	"github.com/worklink/offline-sync/internal/app"
	"github.com/worklink/offline-sync/internal/config"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- subsystem assembly ----
	a, err := app.New(cfg, app.Options{}, logger)
	if err != nil {
		logger.Fatal("failed to assemble offline-sync subsystem", zap.Error(err))
	}
	defer a.Close() //nolint:errcheck

	// Context for all background loops; cancelled on shutdown signal.
	runCtx, cancelLoops := context.WithCancel(context.Background())
	defer cancelLoops()
	a.Start(runCtx)

	// ---- status/admin HTTP server ----
	router := api.NewRouter(a.Scheduler, a.Store, a.Monitor, a.Lifecycle, a.Install, a.Registry, logger)
	srv := &http.Server{
		Addr:         "127.0.0.1:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("status server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("status server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown error", zap.Error(err))
	}

	// 2. Signal all background loops to stop.
	cancelLoops()

	// 3. Wait for in-flight replay work to finish; queued records persist
	//    and the next start resumes from the store.
	a.Wait()

	logger.Info("agent stopped cleanly")
}
