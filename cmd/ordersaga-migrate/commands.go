package main

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/akriventsev/ordersaga/framework/migrations"
	billingmigrations "github.com/akriventsev/ordersaga/internal/billing/migrations"
	"github.com/akriventsev/ordersaga/internal/config"
	"github.com/akriventsev/ordersaga/internal/container"
	notificationmigrations "github.com/akriventsev/ordersaga/internal/notification/migrations"
	ordermigrations "github.com/akriventsev/ordersaga/internal/order/migrations"
)

// schemas встроенные миграции каждого сервиса
var schemas = map[string]fs.FS{
	"order":        ordermigrations.FS,
	"billing":      billingmigrations.FS,
	"notification": notificationmigrations.FS,
}

type options struct {
	service     string
	databaseURL string
	configFile  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "ordersaga-migrate",
		Short:         "Database migrations for order, billing and notification services",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.service, "service", "s", "order", "Service schema: order, billing or notification")
	rootCmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Database connection string (default from service config)")
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to YAML config file")

	rootCmd.AddCommand(upCmd(opts))
	rootCmd.AddCommand(downCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(versionCmd(opts))
	rootCmd.AddCommand(createCmd(opts))
	return rootCmd
}

func upCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up [N]",
		Short: "Apply all pending migrations (or N migrations)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepsArg(args, 0)
			if err != nil {
				return err
			}
			return withMigrator(cmd.Context(), opts, func(m *migrations.Migrator) error {
				if err := m.UpBy(cmd.Context(), steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: migrations applied\n", opts.service)
				return nil
			})
		},
	}
}

func downCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "down [N]",
		Short: "Rollback N migrations (default: 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := stepsArg(args, 1)
			if err != nil {
				return err
			}
			return withMigrator(cmd.Context(), opts, func(m *migrations.Migrator) error {
				if err := m.Down(cmd.Context(), steps); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: rolled back %d migration(s)\n", opts.service, steps)
				return nil
			})
		},
	}
}

func statusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(m *migrations.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd, statuses)
				return nil
			})
		},
	}
}

func versionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), opts, func(m *migrations.Migrator) error {
				version, err := m.Version(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d\n", opts.service, version)
				return nil
			})
		},
	}
}

func createCmd(opts *options) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new SQL migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := schemaFor(opts.service); err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join("internal", opts.service, "migrations")
			}
			path, err := migrations.CreateMigration(dir, args[0], time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Migrations directory (default internal/<service>/migrations)")
	return cmd
}

func schemaFor(service string) (fs.FS, error) {
	schema, ok := schemas[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q: expected order, billing or notification", service)
	}
	return schema, nil
}

func stepsArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of migrations %q", args[0])
	}
	return n, nil
}

func databaseURL(opts *options) (string, error) {
	if opts.databaseURL != "" {
		return opts.databaseURL, nil
	}
	cfg, err := config.Load(opts.service+"-service", opts.configFile)
	if err != nil {
		return "", err
	}
	return cfg.Database.URL, nil
}

// withMigrator открывает пул к базе сервиса и передает мигратор в fn
func withMigrator(ctx context.Context, opts *options, fn func(m *migrations.Migrator) error) error {
	schema, err := schemaFor(opts.service)
	if err != nil {
		return err
	}
	url, err := databaseURL(opts)
	if err != nil {
		return err
	}

	pool, err := container.OpenDatabase(ctx, config.DatabaseConfig{URL: url, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	db := container.SQLDB(pool)
	defer db.Close()
	return fn(migrations.NewMigrator(db, schema, "."))
}

func printStatus(cmd *cobra.Command, statuses []migrations.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %-8s %s\n", "VERSION", "APPLIED", "NAME")
	for _, s := range statuses {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		fmt.Fprintf(out, "%-16d %-8s %s\n", s.Version, applied, s.Name)
	}
}
