package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/fishnet-go/internal/errors"
)

const (
	tableFish       = "fish"
	maxSearchResult = 50
)

// GetFishByLocalName returns the catalog entry for a species. Results are
// cached for the configured TTL.
func (ds *DataStore) GetFishByLocalName(ctx context.Context, localName string) (*Fish, error) {
	localName = strings.TrimSpace(localName)
	if localName == "" {
		return nil, validationError("local_name is required", "local_name")
	}

	key := "fish:" + localName
	if cached, ok := ds.fishCache.Get(key); ok {
		ds.metrics.RecordCacheLookup(true)
		fish := cached.(Fish)
		return &fish, nil
	}
	ds.metrics.RecordCacheLookup(false)

	var fish Fish
	start := time.Now()
	err := ds.DB.WithContext(ctx).Where("local_name = ?", localName).First(&fish).Error
	ds.observe("db_query", tableFish, start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_fish", tableFish)
		}
		return nil, dbError(err, "get_fish", tableFish)
	}

	ds.fishCache.SetDefault(key, fish)
	return &fish, nil
}

// SearchFish returns species whose local, English or scientific name
// contains query, ignoring case.
func (ds *DataStore) SearchFish(ctx context.Context, query string) ([]Fish, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, validationError("search query is required", "q")
	}
	pattern := "%" + query + "%"

	var fish []Fish
	start := time.Now()
	err := ds.DB.WithContext(ctx).
		Where("LOWER(local_name) LIKE ? OR LOWER(english_name) LIKE ? OR LOWER(scientific_name) LIKE ?",
			pattern, pattern, pattern).
		Order("local_name").
		Limit(maxSearchResult).
		Find(&fish).Error
	ds.observe("db_query", tableFish, start, err)
	if err != nil {
		return nil, dbError(err, "search_fish", tableFish)
	}
	return fish, nil
}
