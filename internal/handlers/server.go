package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

const ShutdownTimeout = 10 * time.Second

// Run serves handler on listen until ctx is cancelled, then drains in-flight
// requests.
func Run(ctx context.Context, listen string, handler http.Handler) error {
	log := logr.FromContextOrDiscard(ctx)
	baseCtx := context.WithoutCancel(ctx)

	server := http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		BaseContext: func(l net.Listener) context.Context {
			return baseCtx
		},
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(baseCtx, ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	eg.Go(func() error {
		log.Info("server listening", "http", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return eg.Wait()
}
