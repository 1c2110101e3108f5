package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/migrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var dir string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new SQL migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := migrate.Create(dir, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	create.Flags().StringVar(&dir, "dir", migrate.SourceDir, "directory to write the migration into")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the embedded migrations for naming and goose markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate.Validate(migrate.Embedded()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return nil
		},
	}

	cmd.AddCommand(
		create,
		validate,
		migrationCmd("up", "Apply every pending migration", cobra.NoArgs, func(ctx context.Context, m *migrate.Migrator, _ []string) (any, error) {
			return nil, m.Up(ctx)
		}),
		migrationCmd("down", "Roll back the newest migration", cobra.NoArgs, func(ctx context.Context, m *migrate.Migrator, _ []string) (any, error) {
			return nil, m.Down(ctx)
		}),
		migrationCmd("to <version>", "Move the schema to an exact version", cobra.ExactArgs(1), func(ctx context.Context, m *migrate.Migrator, args []string) (any, error) {
			target, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || target < 0 {
				return nil, fmt.Errorf("version must be a YYYYMMDDHHMMSS number, got %q", args[0])
			}
			return nil, m.To(ctx, target)
		}),
		migrationCmd("status", "List migrations and whether they are applied", cobra.NoArgs, func(ctx context.Context, m *migrate.Migrator, _ []string) (any, error) {
			return m.Status(ctx)
		}),
	)
	return cmd
}

type migrationFunc func(ctx context.Context, m *migrate.Migrator, args []string) (any, error)

// migrationCmd opens the configured database, runs fn and prints whatever it returns.
func migrationCmd(use, short string, args cobra.PositionalArgs, fn migrationFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			client, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return err
			}
			defer client.Close()

			sqlDB, err := client.SQL()
			if err != nil {
				return err
			}
			m, err := migrate.New(sqlDB, migrate.DialectFor(cfg.DB), migrate.Embedded(), logg)
			if err != nil {
				return err
			}
			out, err := fn(logg.WithField(ctx, "command", cmd.Name()), m, argv)
			if err != nil {
				return err
			}
			if out == nil {
				version, err := m.Version(ctx)
				if err != nil {
					return err
				}
				out = map[string]int64{"version": version}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
