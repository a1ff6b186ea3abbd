package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/melkeydev/mcp-tables/config"
)

// Serve runs s on the transport named in cfg until the transport ends or
// ctx is cancelled.
func Serve(ctx context.Context, s *server.MCPServer, cfg config.ServerConfig, logger *slog.Logger) error {
	switch cfg.Transport {
	case "", "stdio":
		stdio := server.NewStdioServer(s)
		stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

		logger.Info("serving on stdio")
		err := stdio.Listen(ctx, routeLines(os.Stdin), os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	case "sse":
		httpSrv := &http.Server{Addr: cfg.Addr}
		opts := []server.SSEOption{server.WithHTTPServer(httpSrv)}
		if cfg.BaseURL != "" {
			opts = append(opts, server.WithBaseURL(cfg.BaseURL))
		}
		sse := server.NewSSEServer(s, opts...)
		httpSrv.Handler = routeRequests(sse)

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving on sse", "addr", cfg.Addr)
			errCh <- sse.Start(cfg.Addr)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sse.Shutdown(shutdownCtx)
		}

	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}
