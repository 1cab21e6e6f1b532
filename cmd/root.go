package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fishnet-go/cmd/identify"
	"github.com/tphakala/fishnet-go/cmd/migrate"
	"github.com/tphakala/fishnet-go/cmd/serve"
	"github.com/tphakala/fishnet-go/cmd/version"
	"github.com/tphakala/fishnet-go/internal/buildinfo"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/telemetry"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Subcommands share one
// Settings value that is filled in before any of them runs.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := &conf.Settings{}

	rootCmd := &cobra.Command{
		Use:           "fishnet",
		Short:         "Fishnet-Go fish recognition service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	versionCmd := version.Command(build)
	rootCmd.AddCommand(
		serve.Command(settings, build),
		identify.Command(settings),
		migrate.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(settings, build)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush(telemetryFlushTimeout)
		return logger.Global().Flush()
	}

	return rootCmd
}

// initialize loads the configuration and sets up logging and telemetry.
func initialize(settings *conf.Settings, build *buildinfo.Context) error {
	loaded, err := conf.Load()
	if err != nil {
		return err
	}
	*settings = *loaded
	settings.Version = build.Version()

	if settings.Debug {
		settings.Main.Log.DefaultLevel = "debug"
		if settings.Main.Log.Console != nil {
			settings.Main.Log.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Main.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger.SetGlobal(central)

	if err := telemetry.InitSentry(settings); err != nil {
		central.Module("main").Warn("sentry telemetry unavailable", logger.Error(err))
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command) error {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the config file")
	flags.BoolP("debug", "d", false, "Enable debug output")

	for _, key := range []string{"config", "debug"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", key, err)
		}
	}
	return nil
}
