// Command stanchatd runs the conversational memory engine behind an HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stanchat/convomem-go/pkg/core"
	"github.com/stanchat/convomem-go/pkg/httpapi"
	"github.com/stanchat/convomem-go/pkg/observability"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	engine, err := core.NewEngine(cfg,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			logger.Warn("engine close", zap.Error(cerr))
		}
	}()

	api := httpapi.NewServer(engine, logger, httpapi.Options{
		StaticDir: cfg.Server.StaticDir,
	})

	srv := &http.Server{
		Addr:    cfg.Server.BindAddr,
		Handler: api,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Server.BindAddr),
			zap.String("chat_store", cfg.ChatStore.Provider),
			zap.String("vector_store", cfg.VectorStore.Provider),
			zap.String("llm", cfg.LLM.Provider))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
