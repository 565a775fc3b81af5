package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/internal/database"
)

func newMigrateCmd() *cobra.Command {
	dsn := os.Getenv("DATABASE_URL")

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "database-url", dsn, "PostgreSQL connection URL (default $DATABASE_URL)")

	withDB := func(fn func(db *sql.DB) error) error {
		if dsn == "" {
			return fmt.Errorf("no database URL: set DATABASE_URL or --database-url")
		}
		db, err := database.Open(context.Background(), dsn, database.DefaultPoolConfig())
		if err != nil {
			return err
		}
		defer db.Close()
		return fn(db)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sql.DB) error {
				if err := database.Migrate(db); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Revert migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid steps %q", args[0])
				}
				steps = n
			}
			return withDB(func(db *sql.DB) error {
				if err := database.Rollback(db, steps); err != nil {
					return err
				}
				return printVersion(cmd, db)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *sql.DB) error { return printVersion(cmd, db) })
		},
	})

	return cmd
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, dirty, err := database.Version(db)
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", v, suffix)
	return nil
}
