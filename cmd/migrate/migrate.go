package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/datastore"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// Command creates the command that prepares the database schema and seeds
// the fish catalog.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and seed the fish catalog",
		Long:  "Create or update the database tables and insert the fish catalog when the fish table is empty.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Global().Module("migrate")

			store, err := datastore.New(settings,
				datastore.WithLogger(logger.Global().Module("datastore")),
				datastore.WithFishCacheTTL(settings.Cache.FishTTL))
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn("failed to close database", logger.Error(err))
				}
			}()

			seeded, err := store.SeedFishCatalog(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("database ready",
				logger.String("dialect", store.Dialect()),
				logger.Int("seeded", seeded))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date, %d fish added\n", store.Dialect(), seeded)
			return err
		},
	}
}
