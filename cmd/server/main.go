// Package main implements the docgen server and command-line tool. The
// serve command runs the HTTP API and job workers, generate documents one
// repository and waits for the result, and migrate manages the database
// schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/docgen-api/internal/config"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

// Exit codes returned by the process.
const (
	exitOK        = 0
	exitError     = 1
	exitJobFailed = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes the command line and maps the outcome to an exit code.
func run(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return exitError
	}
	return exitOK
}

// exitCodeError carries a specific exit code without printing an error.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docgen",
		Short:         "Generate structured documentation for source repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"Path to a YAML config file (default ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override server.log_level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newGenerateCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// loadConfig loads configuration and sets up the process logger writing
// to logOut.
func (o *rootOptions) loadConfig(logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		if _, ok := logger.ParseLevel(o.logLevel); !ok {
			return nil, nil, fmt.Errorf("invalid log level %q", o.logLevel)
		}
		cfg.Server.LogLevel = o.logLevel
	}

	log, err := logger.SetupTo(cfg.Server, logOut)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"backends", len(cfg.LLM.Backends))
	if cfg.Database.URL != "" {
		log.Debug("database configuration", "url", maskDatabaseURL(cfg.Database.URL))
	}
	return cfg, log, nil
}
