package datastore

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

const (
	tableCollections = "fish_collections"

	// DefaultRecentLimit and MaxRecentLimit bound RecentCaptures.
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// CreateFishCollection records a capture for an existing user and species.
func (ds *DataStore) CreateFishCollection(ctx context.Context, c NewCollection) (*FishCollection, error) {
	if c.ConfidenceScore != nil && (*c.ConfidenceScore < 0 || *c.ConfidenceScore > 1) {
		return nil, validationError("confidence_score must be between 0 and 1", "confidence_score")
	}
	user, err := ds.GetUserProfile(ctx, c.Username)
	if err != nil {
		return nil, err
	}
	fish, err := ds.GetFishByLocalName(ctx, c.LocalName)
	if err != nil {
		return nil, err
	}

	collection := &FishCollection{
		UserID:           user.ID,
		FishID:           fish.ID,
		CapturedLocation: strings.TrimSpace(c.CapturedLocation),
		ImagePath:        c.ImagePath,
		ConfidenceScore:  c.ConfidenceScore,
	}

	start := time.Now()
	err = ds.DB.WithContext(ctx).Omit(clause.Associations).Create(collection).Error
	ds.observe("db_insert", tableCollections, start, err)
	if err != nil {
		return nil, dbError(err, "create_collection", tableCollections)
	}
	collection.Fish = *fish

	ds.log.Debug("fish collection created",
		logger.String("username", user.Username),
		logger.String("local_name", fish.LocalName),
		logger.Int64("id", int64(collection.ID)))
	return collection, nil
}

// RecentCaptures returns the user's newest captures first. limit is
// clamped to [1, MaxRecentLimit]; zero means DefaultRecentLimit.
func (ds *DataStore) RecentCaptures(ctx context.Context, username string, limit int) ([]FishCollection, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	return ds.userCollections(ctx, username, "recent_captures", func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
}

// ListCollections returns all of the user's captures, newest first.
func (ds *DataStore) ListCollections(ctx context.Context, username string) ([]FishCollection, error) {
	return ds.userCollections(ctx, username, "list_collections", nil)
}

func (ds *DataStore) userCollections(ctx context.Context, username, op string, scope func(*gorm.DB) *gorm.DB) ([]FishCollection, error) {
	user, err := ds.GetUserProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	tx := ds.DB.WithContext(ctx).
		Preload("Fish").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Order("id DESC")
	if scope != nil {
		tx = scope(tx)
	}

	var collections []FishCollection
	start := time.Now()
	err = tx.Find(&collections).Error
	ds.observe("db_query", tableCollections, start, err)
	if err != nil {
		return nil, dbError(err, op, tableCollections)
	}
	return collections, nil
}

// UpdateFishCollection changes the location or species of a capture the
// user owns.
func (ds *DataStore) UpdateFishCollection(ctx context.Context, id uint, username string, update CollectionUpdate) (*FishCollection, error) {
	collection, err := ds.ownedCollection(ctx, id, username)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if update.CapturedLocation != nil {
		fields["captured_location"] = strings.TrimSpace(*update.CapturedLocation)
	}
	if update.LocalName != nil {
		fish, err := ds.GetFishByLocalName(ctx, *update.LocalName)
		if err != nil {
			return nil, err
		}
		fields["fish_id"] = fish.ID
	}
	if len(fields) == 0 {
		return nil, validationError("nothing to update", "captured_location")
	}

	start := time.Now()
	err = ds.DB.WithContext(ctx).Model(collection).Omit(clause.Associations).Updates(fields).Error
	ds.observe("db_update", tableCollections, start, err)
	if err != nil {
		return nil, dbError(err, "update_collection", tableCollections)
	}

	var updated FishCollection
	if err := ds.DB.WithContext(ctx).Preload("Fish").First(&updated, collection.ID).Error; err != nil {
		return nil, dbError(err, "update_collection", tableCollections)
	}
	return &updated, nil
}

// DeleteFishCollection removes a capture the user owns.
func (ds *DataStore) DeleteFishCollection(ctx context.Context, id uint, username string) error {
	collection, err := ds.ownedCollection(ctx, id, username)
	if err != nil {
		return err
	}

	start := time.Now()
	err = ds.DB.WithContext(ctx).Delete(&FishCollection{}, collection.ID).Error
	ds.observe("db_delete", tableCollections, start, err)
	if err != nil {
		return dbError(err, "delete_collection", tableCollections)
	}
	return nil
}

func (ds *DataStore) ownedCollection(ctx context.Context, id uint, username string) (*FishCollection, error) {
	user, err := ds.GetUserProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	var collection FishCollection
	start := time.Now()
	err = ds.DB.WithContext(ctx).First(&collection, id).Error
	ds.observe("db_query", tableCollections, start, err)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("get_collection", tableCollections)
		}
		return nil, dbError(err, "get_collection", tableCollections)
	}
	if collection.UserID != user.ID {
		// other users' captures read as not found
		return nil, errors.New(ErrNotOwner).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("table", tableCollections).
			Build()
	}
	return &collection, nil
}
