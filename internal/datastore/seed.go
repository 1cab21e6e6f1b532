package datastore

import (
	"context"
	_ "embed"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm/clause"

	"github.com/tphakala/fishnet-go/internal/logger"
)

//go:embed fish_catalog.yaml
var fishCatalogYAML []byte

type fishCatalog struct {
	Fish []Fish `yaml:"fish"`
}

// FishCatalog returns the embedded species catalog in classifier label order.
func FishCatalog() ([]Fish, error) {
	var catalog fishCatalog
	if err := yaml.Unmarshal(fishCatalogYAML, &catalog); err != nil {
		return nil, validationError("embedded fish catalog is malformed: "+err.Error(), "fish_catalog")
	}
	return catalog.Fish, nil
}

// SeedFishCatalog fills an empty fish table from the embedded catalog and
// returns the number of rows inserted. A table that already has rows is
// left untouched.
func (ds *DataStore) SeedFishCatalog(ctx context.Context) (int, error) {
	var count int64
	start := time.Now()
	err := ds.DB.WithContext(ctx).Model(&Fish{}).Count(&count).Error
	ds.observe("db_query", tableFish, start, err)
	if err != nil {
		return 0, dbError(err, "count_fish", tableFish)
	}
	if count > 0 {
		return 0, nil
	}

	catalog, err := FishCatalog()
	if err != nil {
		return 0, err
	}

	start = time.Now()
	err = ds.DB.WithContext(ctx).Omit(clause.Associations).Create(&catalog).Error
	ds.observe("db_insert", tableFish, start, err)
	if err != nil {
		return 0, dbError(err, "seed_fish", tableFish)
	}
	ds.fishCache.Flush()

	ds.log.Info("fish catalog seeded", logger.Int("species", len(catalog)))
	return len(catalog), nil
}
