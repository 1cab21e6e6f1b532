package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tphakala/fishnet-go/internal/app"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/recognition"
)

type options struct {
	username     string
	detectOnly   bool
	preDetection bool
}

// Command creates the command that runs recognition on a local image.
func Command(settings *conf.Settings) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "identify [image]",
		Short: "Identify the fish species in an image file",
		Long: "Run the recognition pipeline on a local image and print the result as JSON. " +
			"The image is stored under the media root like an uploaded one.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := run(cmd.Context(), settings, args[0], opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Status != recognition.StatusSuccess {
				return fmt.Errorf("recognition failed: %s", resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "cli", "Media directory owner for the stored image")
	cmd.Flags().BoolVar(&opts.detectOnly, "detect", false, "Only run the detector and write an annotated copy")
	cmd.Flags().BoolVar(&opts.preDetection, "pre-detection", false, "Require a detected fish before classifying")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, path string, opts options) (recognition.Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return recognition.Response{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return recognition.Response{}, err
	}

	log := logger.Global().Module("identify")
	application, err := app.New(ctx, settings,
		app.WithLogger(logger.Global().Module("app")),
		app.WithoutDatabase())
	if err != nil {
		return recognition.Response{}, err
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Warn("error releasing models", logger.Error(err))
		}
	}()

	req := recognition.Request{
		RequestID: uuid.NewString(),
		Username:  opts.username,
		Filename:  filepath.Base(path),
		Body:      f,
		Size:      info.Size(),
	}
	if opts.preDetection {
		req.PreDetection = "true"
	}

	if opts.detectOnly {
		return application.Recognition.Detect(ctx, req), nil
	}
	return application.Recognition.Identify(ctx, req), nil
}
