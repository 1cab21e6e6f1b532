// Package main provides a CLI tool for copying fishnet data from SQLite to MySQL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/datastore"
)

// Version information (can be set via ldflags during build)
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dbexport",
	Short: "Export fishnet data from SQLite to MySQL",
	Long: `Copy user profiles, the fish catalog and saved collections from a SQLite
database into the MySQL database configured in config.yaml.

Rows keep their primary keys, so collections still point at the same users and
fish. Rows that already exist in the target are skipped, which makes the export
safe to repeat.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runExport,
}

var cfg Config

func init() {
	rootCmd.Flags().String("config", "", "Path to config.yaml")
	rootCmd.Flags().StringVar(&cfg.SQLitePath, "sqlite-path", "", "Source SQLite database (defaults to output.sqlite.path)")
	rootCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 500, "Number of records per batch")
	rootCmd.Flags().BoolVar(&cfg.Clean, "clean", false, "Delete target rows before copying")
	rootCmd.Flags().BoolVar(&cfg.SkipVerify, "skip-verify", false, "Skip post-export verification")
	rootCmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose output")

	if err := viper.BindPFlag("config", rootCmd.Flags().Lookup("config")); err != nil {
		panic(err)
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	settings, err := conf.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Apply(settings); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	out := cmd.OutOrStdout()
	if cfg.Verbose {
		fmt.Fprintf(out, "Source: %s\n", cfg.SQLitePath)
		fmt.Fprintf(out, "Target: %s\n", cfg.SanitizedTarget())
		fmt.Fprintf(out, "Batch size: %d\n", cfg.BatchSize)
	}

	source, err := openStore(settings, func(s *conf.Settings) {
		s.Output.MySQL.Enabled = false
		s.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: cfg.SQLitePath}
	})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer source.Close()

	target, err := openStore(settings, func(s *conf.Settings) {
		s.Output.SQLite.Enabled = false
		s.Output.MySQL = cfg.MySQL
	})
	if err != nil {
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}
	defer target.Close()

	migrator, err := NewMigrator(cfg, source, target, out)
	if err != nil {
		return err
	}

	stats, err := migrator.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	stats.Print(out)

	if !cfg.SkipVerify {
		fmt.Fprintln(out, "\n--- Verification ---")
		if err := NewVerifier(migrator.sourceDB, migrator.targetDB, out).Verify(); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintln(out, "Verification passed!")
	}
	return nil
}

// openStore opens a datastore for a copy of settings changed by edit. Open
// also creates the schema, so the target never needs a separate migration.
func openStore(settings *conf.Settings, edit func(*conf.Settings)) (datastore.Interface, error) {
	s := *settings
	edit(&s)

	store, err := datastore.New(&s)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}
