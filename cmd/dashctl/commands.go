package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dashboards/internal/app"
	"dashboards/internal/config"
	"dashboards/internal/repository/postgres"
	"dashboards/internal/service/friendlyurl"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:          "dashctl",
		Short:        "Operator tasks for the dashboards service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_FILE", configPath)
			}
			return nil
		},
	}

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Run the audit consumer against the change feed until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runAudit,
	}

	repairCmd = &cobra.Command{
		Use:   "repair-forks",
		Short: "Copy widgets missing from forked drafts",
		Args:  cobra.NoArgs,
		RunE:  runRepairForks,
	}

	slugCmd = &cobra.Command{
		Use:   "slug [name]",
		Short: "Print the friendly URL derived from a dashboard name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSlug,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Manage the Postgres schema",
	}
	schemaApplyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Create the items table and indexes if missing",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runSchema(cmd, false) },
	}
	schemaDropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Drop the items table for the configured prefix",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return runSchema(cmd, true) },
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides CONFIG_FILE)")

	schemaDropCmd.Flags().Bool("yes", false, "confirm dropping the table")
	schemaCmd.AddCommand(schemaApplyCmd, schemaDropCmd)

	rootCmd.AddCommand(auditCmd, repairCmd, slugCmd, schemaCmd)
}

// setup loads configuration and the logger shared by every subcommand
func setup() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog, err := config.NewLogger(cfg, "dashctl")
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, closeLog, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func closeApp(a *app.App, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.FeedDriver != "redis" {
		return errors.New("audit consumer needs FEED_DRIVER=redis; the memory feed only lives inside the server")
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	consumer, err := a.OpenConsumer(ctx)
	if err != nil {
		return err
	}
	return consumer.Run(ctx)
}

func runRepairForks(cmd *cobra.Command, args []string) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	if cfg.FeedDriver != "redis" {
		logger.Warn("memory change feed: repaired widgets will not reach the audit trail")
	}

	copied, err := a.Dashboards.RepairForks(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "copied %d widgets\n", copied)
	return err
}

func runSlug(cmd *cobra.Command, args []string) error {
	slug := friendlyurl.Generate(args[0])
	if err := friendlyurl.Validate(slug); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), slug)
	return nil
}

func runSchema(cmd *cobra.Command, drop bool) error {
	cfg, logger, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.StoreDriver != "postgres" {
		return fmt.Errorf("schema commands need STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}
	if drop {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return errors.New("refusing to drop without --yes")
		}
	}

	ctx, stop := signalContext()
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if drop {
		if err := postgres.DropSchema(ctx, pool, tables); err != nil {
			return err
		}
		logger.Info("schema dropped", "table_prefix", cfg.TablePrefix)
		return nil
	}
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		return err
	}
	logger.Info("schema applied", "table_prefix", cfg.TablePrefix)
	return nil
}
