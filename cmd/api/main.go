package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/leadqual-platform/cmd/mainconfig"
	"github.com/wolfman30/leadqual-platform/internal/app/bootstrap"
	"github.com/wolfman30/leadqual-platform/pkg/logging"
)

func main() {
	cfg := mainconfig.LoadConfig()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadqual API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	// With the in-process queue the API also consumes its own jobs.
	workerCtx, stopWorker := context.WithCancel(ctx)
	if app.Pipeline.InProcess {
		app.Pipeline.Worker.Start(workerCtx)
	}

	srv := newServer(":"+cfg.Port, app.Router)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	stopWorker()
	if app.Pipeline.InProcess {
		app.Pipeline.Worker.Wait()
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
