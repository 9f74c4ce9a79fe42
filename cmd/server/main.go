// Command server runs llmrelay as a standalone HTTP gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quayside/llmrelay"
	"github.com/quayside/llmrelay/internal/config"
	"github.com/quayside/llmrelay/internal/observability"
	"github.com/quayside/llmrelay/pkg/provider"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	manager, err := config.NewManager(*configPath, slog.Default())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer manager.Close()
	cfg := manager.Get()

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      observability.ParseLevel(cfg.Logging.Level),
		Output:     os.Stdout,
		JSONFormat: cfg.Logging.Format != "text",
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	client, err := buildClient(cfg, logger, tp)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	clients := newClientHolder(client)

	reloader := newClientReloader(logger, clients, func(updated *config.Config) (*llmrelay.Client, error) {
		return buildClient(updated, logger, tp)
	})
	if err := manager.Watch(ctx); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	manager.OnChange(reloader.Reload)

	handler := newHandler(clients, cfg, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildClient(cfg *config.Config, logger *slog.Logger, tp *observability.TracerProvider) (*llmrelay.Client, error) {
	opts := []llmrelay.Option{
		llmrelay.WithLogger(logger),
		llmrelay.WithCacheCapacity(cfg.Dispatch.CacheCapacity),
		llmrelay.WithMaxConcurrency(cfg.Dispatch.MaxConcurrency),
		llmrelay.WithRetry(cfg.Dispatch.MaxRetries, cfg.Dispatch.BackoffUnit),
		llmrelay.WithMaxPoolSize(cfg.Dispatch.MaxPoolSize),
	}
	if cfg.Batch.Enabled {
		opts = append(opts, llmrelay.WithBatching(cfg.Batch.Size, cfg.Batch.Timeout))
	}
	if cfg.Tracing.Enabled {
		opts = append(opts, llmrelay.WithTracer(tp.Tracer()))
	}

	for _, pc := range cfg.Providers {
		instances := pc.PoolSize
		if instances <= 0 {
			instances = 1
		}
		for i := 0; i < instances; i++ {
			opts = append(opts, llmrelay.WithProvider(provider.Config{
				Kind:    pc.Kind,
				APIKey:  pc.APIKey,
				BaseURL: pc.BaseURL,
				Model:   pc.Model,
				Timeout: pc.Timeout,
				Headers: pc.Headers,
			}))
		}
	}

	return llmrelay.New(opts...)
}
