package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/connexus-ai/discovery-engine/internal/cache"
	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/embedder"
	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/handler"
	appmiddleware "github.com/connexus-ai/discovery-engine/internal/middleware"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
	"github.com/connexus-ai/discovery-engine/internal/router"
	"github.com/connexus-ai/discovery-engine/internal/tenantrouter"
)

const Version = "0.1.0"
const userLockShards = 64

func newRootCmd() (*cobra.Command, *string, *config.CLIOverrides) {
	var configPath string
	var overrides config.CLIOverrides

	cmd := &cobra.Command{
		Use:     "discovery-engine-server",
		Short:   "Multi-tenant semantic recommendation and search engine",
		Version: Version,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the TOML configuration file")
	config.RegisterFlags(cmd.Flags(), &overrides)

	return cmd, &configPath, &overrides
}

func setupLogging(cfg config.LoggingConfig) error {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	out := os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("setupLogging: open %s: %w", cfg.File, err)
		}
		out = f
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

func buildDependencies(ctx context.Context, cfg *config.Config, registry *prometheus.Registry) (*handler.Dependencies, error) {
	pool, err := pgstore.NewPool(ctx, cfg.Storage.Postgres.URL, cfg.Storage.Postgres.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("buildDependencies: %w", err)
	}
	if err := pgstore.EnsureManagementSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("buildDependencies: %w", err)
	}

	esFactory, err := esindex.NewFactory(esindex.Config{
		Addresses:            []string{cfg.Storage.Elastic.URL},
		Username:             cfg.Storage.Elastic.Username,
		Password:             cfg.Storage.Elastic.Password,
		Dimensions:           cfg.Embedder.Dimensions,
		MaxIndexedProperties: cfg.Ingestion.MaxIndexedProperties,
	})
	if err != nil {
		return nil, fmt.Errorf("buildDependencies: %w", err)
	}

	tenants := tenantrouter.New(pool, esFactory, cfg.Storage.Elastic.IndexPrefix, cfg.Tenants.EnableLegacyTenant, "legacy")

	embed, err := embedder.NewTextEmbeddingClient(ctx, cfg.Embedder.ProjectID, "global", cfg.Embedder.ModelPath, nil)
	if err != nil {
		return nil, fmt.Errorf("buildDependencies: %w", err)
	}
	summarizer := embedder.NewTextSummarizerClient(cfg.Embedder.ProjectID, cfg.Embedder.ModelPath, nil)

	engine := coi.New(cfg.CoI)
	resultCache := cache.New(5*time.Minute, "", "", 0)
	metrics := appmiddleware.NewMetrics(registry)

	extractor := embedder.ParagraphExtractor{}

	return handler.NewDependencies(tenants, embed, summarizer, extractor, engine, cfg, resultCache, metrics, userLockShards), nil
}

func run() error {
	cmd, configPath, overrides := newRootCmd()
	cmd.RunE = func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(*configPath, *overrides)
		if err != nil {
			return err
		}

		if overrides.PrintConfig {
			fmt.Printf("%+v\n", cfg)
			return nil
		}

		if err := setupLogging(cfg.Logging); err != nil {
			return err
		}

		registry := prometheus.NewRegistry()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		deps, err := buildDependencies(ctx, cfg, registry)
		cancel()
		if err != nil {
			return err
		}

		rateLimiter := appmiddleware.NewRateLimiter(appmiddleware.RateLimiterConfig{MaxRequests: 600, Window: time.Minute})
		defer rateLimiter.Stop()

		mux := router.New(deps, registry, rateLimiter, cfg.Net.MaxBodySize)

		srv := &http.Server{
			Addr:              cfg.Net.BindTo,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
			ReadTimeout:       cfg.Net.ClientRequestTimeout,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if !cfg.Net.KeepAlive {
			srv.SetKeepAlivesEnabled(false)
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("server starting", "version", Version, "bind_to", cfg.Net.BindTo)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			slog.Info("received signal, shutting down gracefully", "signal", sig.String())
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		slog.Info("server stopped")
		return nil
	}
	return cmd.Execute()
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
