package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fishnet-go/internal/api"
	"github.com/tphakala/fishnet-go/internal/app"
	"github.com/tphakala/fishnet-go/internal/buildinfo"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Command creates the command that runs the HTTP API.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recognition API server",
		Long:  "Load the detection and classification models and serve the recognition and database API over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", "", "Address to listen on")
	cmd.Flags().StringP("port", "p", "", "Port to listen on")
	cmd.Flags().String("media", "", "Directory for uploaded and annotated images")

	bindings := map[string]string{
		"host":  "webserver.host",
		"port":  "webserver.port",
		"media": "media.root",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("serve")
	log.Info("starting fishnet-go",
		logger.String("version", build.Version()),
		logger.String("build_date", build.BuildDate()))

	application, err := app.New(ctx, settings, app.WithLogger(logger.Global().Module("app")))
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Error("error during shutdown", logger.Error(err))
		}
	}()

	server := api.New(api.Dependencies{
		Settings:   settings,
		Recognizer: application.Recognition,
		Store:      application.Store,
		DB:         application.DB,
		Metrics:    application.Metrics,
		Build:      build,
		Models: map[string]string{
			"detector":   application.Detector.Name(),
			"classifier": application.Classifier.Name(),
		},
		Logger: logger.Global().Module("api"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	timeout := settings.WebServer.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
