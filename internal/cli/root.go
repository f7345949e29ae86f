// Package cli implements the gridquery command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gabisonia/go-gridquery/gridquery"
	"github.com/gabisonia/go-gridquery/internal/config"
	"github.com/spf13/cobra"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// app carries state resolved once per invocation by the root command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		backend    string
		dsn        string
		collection string
		dataFile   string
	)
	a := &app{stdout: stdout}

	rootCmd := &cobra.Command{
		Use:           "gridquery",
		Short:         "Run grid queries against document collections",
		Long:          "Run filtered, sorted, paged and grouped grid queries against memory, PostgreSQL, SQL Server or MongoDB collections.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Precedence: flag > env > config file > default.
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("dsn") {
				cfg.DSN = dsn
			}
			if cmd.Flags().Changed("collection") {
				cfg.Collection = collection
			}
			if cmd.Flags().Changed("data") {
				cfg.DataFile = dataFile
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Backend: memory, postgres, mssql or mongo")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Connection string for the database backends")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "Collection (table) name")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data", "", "JSON array of documents for the memory backend")

	rootCmd.AddCommand(newQueryCmd(a))
	rootCmd.AddCommand(newFetchCmd(a))

	return rootCmd
}

// withService opens the configured collection, builds a query service over
// it and runs fn.
func (a *app) withService(ctx context.Context, fn func(*gridquery.Service) error) error {
	coll, closeFn, err := openCollection(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := gridquery.DefaultOptions()
	opts.MaxConcurrency = a.cfg.MaxConcurrency
	opts.ReviveDates = a.cfg.ReviveDates
	opts.Logger = a.logger

	svc, err := gridquery.NewService(coll, opts)
	if err != nil {
		return err
	}
	return fn(svc)
}
