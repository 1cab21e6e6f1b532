// Package datastore persists users, the fish catalog and users' capture
// collections with gorm on SQLite or MySQL.
package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// DefaultSlowQueryThreshold is the duration after which a query is logged as slow.
const DefaultSlowQueryThreshold = 500 * time.Millisecond

// Interface abstracts the underlying database implementation.
type Interface interface {
	Open() error
	Close() error
	Ping(ctx context.Context) error
	Dialect() string

	SeedFishCatalog(ctx context.Context) (int, error)

	CreateUserProfile(ctx context.Context, user NewUser) (*UserProfile, error)
	GetUserProfile(ctx context.Context, username string) (*UserProfile, error)

	GetFishByLocalName(ctx context.Context, localName string) (*Fish, error)
	SearchFish(ctx context.Context, query string) ([]Fish, error)

	CreateFishCollection(ctx context.Context, c NewCollection) (*FishCollection, error)
	RecentCaptures(ctx context.Context, username string, limit int) ([]FishCollection, error)
	ListCollections(ctx context.Context, username string) ([]FishCollection, error)
	UpdateFishCollection(ctx context.Context, id uint, username string, update CollectionUpdate) (*FishCollection, error)
	DeleteFishCollection(ctx context.Context, id uint, username string) error
}

// Metrics is the subset of datastore metrics recorded by the store.
type Metrics interface {
	RecordDbOperation(operation, table, status string, seconds float64)
	RecordDbOperationError(operation, table, errorType string)
	RecordCacheLookup(hit bool)
}

// DataStore implements the queries shared by every dialect.
type DataStore struct {
	DB *gorm.DB

	fishCache *cache.Cache
	metrics   Metrics
	log       logger.Logger
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithMetrics records query metrics.
func WithMetrics(m Metrics) Option {
	return func(ds *DataStore) {
		if m != nil {
			ds.metrics = m
		}
	}
}

// WithLogger sets the logger; the store logs under the "datastore" module.
func WithLogger(l logger.Logger) Option {
	return func(ds *DataStore) {
		if l != nil {
			ds.log = l
		}
	}
}

// WithFishCacheTTL sets how long catalog lookups stay cached.
func WithFishCacheTTL(ttl time.Duration) Option {
	return func(ds *DataStore) {
		if ttl > 0 {
			ds.fishCache = cache.New(ttl, 2*ttl)
		}
	}
}

func newDataStore(opts ...Option) DataStore {
	ds := DataStore{
		fishCache: cache.New(10*time.Minute, 20*time.Minute),
		metrics:   noopMetrics{},
		log:       logger.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(&ds)
	}
	ds.log = ds.log.Module("datastore")
	return ds
}

// New returns the store selected by settings. Open must be called before use.
func New(settings *conf.Settings, opts ...Option) (Interface, error) {
	if cfg := settings.Output.SQLite; cfg.Enabled {
		return &SQLiteStore{DataStore: newDataStore(opts...), Path: cfg.Path}, nil
	}
	if cfg := settings.Output.MySQL; cfg.Enabled {
		return &MySQLStore{DataStore: newDataStore(opts...), Config: cfg}, nil
	}
	return nil, fmt.Errorf("no database output is enabled")
}

func (ds *DataStore) gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(ds.log, DefaultSlowQueryThreshold),
	}
}

// migrate creates or updates the schema.
func (ds *DataStore) migrate() error {
	if err := ds.DB.AutoMigrate(&UserProfile{}, &Fish{}, &FishCollection{}); err != nil {
		return dbError(err, "auto_migrate", "all")
	}
	return nil
}

// Close releases the connection pool.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "")
	}
	ds.fishCache.Flush()
	return nil
}

// Ping checks that the database answers.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Dialect names the SQL dialect in use.
func (ds *DataStore) Dialect() string {
	if ds.DB == nil {
		return ""
	}
	return ds.DB.Dialector.Name()
}

// observe records the outcome of one query.
func (ds *DataStore) observe(operation, table string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		ds.metrics.RecordDbOperationError(operation, table, errorType(err))
	}
	ds.metrics.RecordDbOperation(operation, table, status, time.Since(start).Seconds())
}

func errorType(err error) string {
	switch {
	case isUniqueViolation(err):
		return "unique_violation"
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "query"
}

type noopMetrics struct{}

func (noopMetrics) RecordDbOperation(operation, table, status string, seconds float64) {}
func (noopMetrics) RecordDbOperationError(operation, table, errorType string)          {}
func (noopMetrics) RecordCacheLookup(hit bool)                                         {}
