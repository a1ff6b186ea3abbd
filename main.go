package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melkeydev/mcp-tables/catalog"
	"github.com/melkeydev/mcp-tables/config"
	"github.com/melkeydev/mcp-tables/databases"
	"github.com/melkeydev/mcp-tables/handlers"
	"github.com/melkeydev/mcp-tables/mcp"
	"github.com/melkeydev/mcp-tables/metrics"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (.yaml or .toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("config error", "error", err)
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	cat, err := catalog.FromConfig(cfg.Catalog)
	if err != nil {
		logger.Error("catalog error", "error", err)
		return err
	}

	connector, err := databases.NewConnector(cfg.Database)
	if err != nil {
		logger.Error("failed to create connector", "error", err)
		return err
	}
	defer connector.Close()
	logger.Info("connected", "database", cfg.Database.DBType, "tables", cat.Len())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *metrics.Recorder
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		recorder = metrics.New(reg)
		go serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
	}

	dispatcher := handlers.NewDispatcher(cat, connector,
		handlers.WithLimits(handlers.Limits{
			DefaultLimit:  cfg.Limits.DefaultLimit,
			MaxLimit:      cfg.Limits.MaxLimit,
			ResourceLimit: cfg.Limits.ResourceLimit,
			SampleSize:    cfg.Limits.SampleSize,
			Timeout:       cfg.Limits.QueryTimeout,
		}),
		handlers.WithLogger(logger),
		handlers.WithMetrics(recorder),
	)

	s := mcp.NewServer(dispatcher, mcp.ServerInfo{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	})

	if err := mcp.Serve(ctx, s, cfg.Server, logger); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}

// newLogger writes to stderr: stdout belongs to the stdio transport.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// serveMetrics exposes /metrics on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
