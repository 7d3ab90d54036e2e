// Command citasctl runs operational tasks against the citas database and API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eecmx/citas/libs/config"
	"github.com/eecmx/citas/libs/db"
	"github.com/eecmx/citas/libs/runtime"
	"github.com/eecmx/citas/services/citas-service/internal/admin"
	"github.com/eecmx/citas/services/citas-service/internal/booking"
	"github.com/eecmx/citas/services/citas-service/migrations"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "citasctl",
		Short:         "Operational tasks for the citas service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(migrateCmd(), seedAdminCmd(), hashPasswordCmd(), smokeCmd())
	return cmd
}

func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func migrateCmd() *cobra.Command {
	var (
		databaseURL string
		down        int
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		Long: `Apply every pending migration, or roll back with --down N.

Examples:
  citasctl migrate
  citasctl migrate --down 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			if down > 0 {
				if err := db.MigrateDown(migrations.FS, migrations.Dir, databaseURL, down); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", down)
				return nil
			}
			version, err := db.Migrate(migrations.FS, migrations.Dir, databaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", config.String("DATABASE_URL", ""), "Postgres connection URL")
	cmd.Flags().IntVar(&down, "down", 0, "Number of migrations to roll back")
	return cmd
}

func seedAdminCmd() *cobra.Command {
	var databaseURL, username, password string
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the administrator account if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			ctx, cancel := signalContext(30 * time.Second)
			defer cancel()

			pool, err := db.Open(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := runtime.NewLogger("citasctl")
			created, err := admin.Seed(ctx, admin.NewUserRepository(pool), username, password, logger)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "user %q already exists\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", config.String("DATABASE_URL", ""), "Postgres connection URL")
	cmd.Flags().StringVar(&username, "username", config.String("ADMIN_USERNAME", admin.DefaultUsername), "Administrator username")
	cmd.Flags().StringVar(&password, "password", config.String("ADMIN_PASSWORD", ""), "Administrator password")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := admin.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func smokeCmd() *cobra.Command {
	var (
		opts    smokeOptions
		zone    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Book, complete and delete an appointment against a running server",
		Long: `Log in as the administrator, then book an appointment two hours ahead,
mark it COMPLETADA, delete it and check that it is gone.

Examples:
  citasctl smoke --base-url http://localhost:8080 --password secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := booking.LoadLocation(zone)
			if err != nil {
				return err
			}
			opts.Location = loc
			opts.Out = cmd.OutOrStdout()

			ctx, cancel := signalContext(timeout)
			defer cancel()
			return runSmoke(ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", config.String("BASE_URL", "http://localhost:8080"), "citas-service base url")
	cmd.Flags().StringVar(&opts.Username, "username", config.String("ADMIN_USERNAME", admin.DefaultUsername), "Administrator username")
	cmd.Flags().StringVar(&opts.Password, "password", config.String("ADMIN_PASSWORD", ""), "Administrator password")
	cmd.Flags().StringVar(&opts.Correo, "correo", "smoke@example.com", "Customer email used for the booking")
	cmd.Flags().StringVar(&zone, "timezone", config.String("REFERENCE_TIMEZONE", booking.DefaultZone), "Reference timezone of the server")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	return cmd
}
