// Package service runs an HTTP handler until its context is cancelled.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Start serves handler on host:port in the background. The returned context is
// cancelled once the server has stopped: either ctx ended and every in-flight request
// finished (or the shutdown timeout passed), or the server failed to serve. In the
// second case context.Cause reports the serve error.
func Start(ctx context.Context, host, port string, handler http.Handler, logger *zap.Logger) context.Context {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return startService(ctx, srv, logger.Named("service"))
}

func startService(ctx context.Context, srv *http.Server, logger *zap.Logger) context.Context {
	done, cancel := context.WithCancelCause(context.Background())
	served := make(chan error, 1)

	go func() {
		logger.Info("service started", zap.String("addr", srv.Addr))
		served <- srv.ListenAndServe()
	}()

	go func() {
		select {
		case err := <-served:
			logger.Error("service stopped", zap.Error(err))
			cancel(err)
			return
		case <-ctx.Done():
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		// Shutdown returns once active connections are idle; ListenAndServe returns earlier.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("service stopped", zap.Error(err))
		}
		logger.Info("service shut down")
		cancel(nil)
	}()

	return done
}
