package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/service"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	output  string
	timeout time.Duration
}

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate <repository>",
		Short: "Document one repository and wait for the result",
		Long: `Run a single documentation job in-process and print the resulting document
as JSON.

The repository is a local directory (a plain path or file://) or an S3
prefix (s3://bucket/prefix). Partial results are printed even when the job
fails; the exit status is then 2.`,
		Example: `  docgen generate ./services/payments
  docgen generate s3://source-snapshots/acme/billing --output billing.json --timeout 30m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return app.generate(cmd.Context(), args[0], g, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&g.output, "output", "o", "", "Write the document to this file instead of stdout")
	cmd.Flags().DurationVar(&g.timeout, "timeout", 0, "Give up waiting after this long (0 waits indefinitely)")
	return cmd
}

// generate submits one job, waits for it and writes the document.
func (app *application) generate(ctx context.Context, repository string, opts *generateOptions, stdout io.Writer) (err error) {
	repositoryID := normalizeRepositoryArg(repository)

	app.start(ctx)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()
		if shutdownErr := app.shutdown(drainCtx); shutdownErr != nil && err == nil {
			err = fmt.Errorf("job runner shutdown: %w", shutdownErr)
		}
	}()

	job, err := app.docService.SubmitJob(ctx, repositoryID)
	if err != nil {
		return err
	}
	app.logger.Info("waiting for documentation job",
		"job_id", job.JobID,
		"repository_id", job.RepositoryID,
		"unit_count", job.UnitCount)

	awaitCtx := ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	doc, awaitErr := app.docService.AwaitCompletion(awaitCtx, repositoryID, job.JobID)
	if awaitErr != nil && !errors.Is(awaitErr, service.ErrJobFailed) {
		return fmt.Errorf("waiting for job: %w", awaitErr)
	}

	if err := writeDocument(doc, opts.output, stdout); err != nil {
		return err
	}

	if status, statusErr := app.docService.GetStatus(ctx, repositoryID, false); statusErr == nil {
		app.logger.Info("documentation job finished",
			"repository_id", repositoryID,
			"overall_status", status.OverallStatus,
			"units_completed", status.Units.Completed,
			"units_failed", status.Units.Failed)
	}

	if errors.Is(awaitErr, service.ErrJobFailed) {
		return &exitCodeError{code: exitJobFailed}
	}
	return nil
}

// normalizeRepositoryArg turns relative local paths into absolute ones so
// the repository ID is stable across working directories.
func normalizeRepositoryArg(arg string) string {
	if strings.Contains(arg, "://") {
		return arg
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return abs
	}
	return arg
}

func writeDocument(doc *domain.Document, path string, stdout io.Writer) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}
