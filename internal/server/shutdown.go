package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rfm-dashboard/internal/config"
)

const hookTimeout = 10 * time.Second

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// GracefulServer drains in-flight requests before running shutdown hooks.
// Hooks run after the listener closes, most recently registered first.
type GracefulServer struct {
	server *http.Server
	logger *slog.Logger
	config config.ServerConfig
	hooks  []shutdownHook
	mu     sync.Mutex
}

func NewGracefulServer(server *http.Server, logger *slog.Logger, cfg config.ServerConfig) *GracefulServer {
	return &GracefulServer{
		server: server,
		logger: logger,
		config: cfg,
	}
}

func (gs *GracefulServer) RegisterShutdownHook(name string, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, shutdownHook{name: name, fn: fn})
}

// ListenAndServe serves until SIGINT or SIGTERM, then shuts down.
func (gs *GracefulServer) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", gs.server.Addr, err)
	}
	return gs.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	serverErrors := make(chan error, 1)

	go func() {
		gs.logger.Info("starting server",
			"addr", ln.Addr().String(),
			"read_timeout", gs.config.ReadTimeout,
			"write_timeout", gs.config.WriteTimeout,
		)
		serverErrors <- gs.server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		gs.logger.Info("shutdown signal received", "cause", context.Cause(ctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.config.ShutdownTimeout)
		defer cancel()

		return gs.shutdown(shutdownCtx)
	}
}

func (gs *GracefulServer) shutdown(ctx context.Context) error {
	gs.logger.Info("starting graceful shutdown", "timeout", gs.config.ShutdownTimeout)

	var errs []error
	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Error("HTTP server shutdown failed", "error", err)
		errs = append(errs, fmt.Errorf("HTTP server shutdown failed: %w", err))
	} else {
		gs.logger.Info("HTTP server stopped gracefully")
	}

	gs.mu.Lock()
	hooks := make([]shutdownHook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		if err := ctx.Err(); err != nil {
			gs.logger.Warn("shutdown timeout exceeded, skipping hooks", "next_hook", hook.name)
			errs = append(errs, err)
			break
		}

		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		gs.logger.Debug("executing shutdown hook", "hook", hook.name)
		if err := hook.fn(hookCtx); err != nil {
			gs.logger.Error("shutdown hook failed", "hook", hook.name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %s failed: %w", hook.name, err))
		}
		cancel()
	}

	gs.logger.Info("graceful shutdown completed")
	return errors.Join(errs...)
}
