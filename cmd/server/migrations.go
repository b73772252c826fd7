package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/phrazzld/docgen-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <" + strings.Join(postgres.MigrationCommands, "|") + ">",
		Short: "Manage the database schema",
		Long: `Run a schema migration command against the configured postgres database.

The migrations are embedded in the binary. "up" applies all pending
migrations, "down" rolls back the latest one, "reset" rolls back all of
them, and "status" and "version" report the current state.`,
		Args:      validateMigrateArgs,
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate requires database.driver=postgres, got %q", cfg.Database.Driver)
			}

			db, err := openDatabase(cmd.Context(), cfg.Database, log)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					log.Error("error closing database connection", "error", cerr)
				}
			}()

			return postgres.Migrate(cmd.Context(), db, args[0], log)
		},
	}
}

func validateMigrateArgs(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one migration command (%s)", strings.Join(postgres.MigrationCommands, ", "))
	}
	if !slices.Contains(postgres.MigrationCommands, args[0]) {
		return fmt.Errorf("unknown migration command %q (expected one of %s)",
			args[0], strings.Join(postgres.MigrationCommands, ", "))
	}
	return nil
}
