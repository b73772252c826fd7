package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// The await endpoint holds requests open, so the server sets no write timeout.
const (
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
	idleTimeout            = 2 * time.Minute
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and documentation job workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.loadConfig(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
			if err != nil {
				app.cleanup()
				return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.Port, err)
			}
			return app.serve(cmd.Context(), ln)
		},
	}
}

// serve runs the HTTP server on ln until ctx is canceled or the server
// fails, then stops accepting requests and drains running jobs within the
// configured shutdown timeout.
func (app *application) serve(ctx context.Context, ln net.Listener) error {
	router, err := app.setupRouter()
	if err != nil {
		_ = ln.Close()
		app.cleanup()
		return fmt.Errorf("failed to set up router: %w", err)
	}

	app.start(ctx)

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			app.logger.Error("server failed", "error", err)
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	timeout := app.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := app.shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("job runner shutdown: %w", err))
	}

	app.logger.Info("server shutdown completed")
	return runErr
}
