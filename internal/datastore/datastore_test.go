package datastore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/errors"
)

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
	failures   []string
	hits       int
	misses     int
}

func (m *recordingMetrics) RecordDbOperation(operation, table, status string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation+":"+table+":"+status)
}

func (m *recordingMetrics) RecordDbOperationError(operation, table, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errorType)
}

func (m *recordingMetrics) RecordCacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func setupTestDB(t *testing.T) (*SQLiteStore, *recordingMetrics) {
	t.Helper()

	metrics := &recordingMetrics{}
	store := &SQLiteStore{
		DataStore: newDataStore(WithMetrics(metrics), WithFishCacheTTL(time.Minute)),
		Path:      filepath.Join(t.TempDir(), "fishnet.db"),
	}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	n, err := store.SeedFishCatalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, n)
	return store, metrics
}

func createUser(t *testing.T, store Interface, username string) *UserProfile {
	t.Helper()
	user, err := store.CreateUserProfile(context.Background(), NewUser{
		Username: username,
		Password: "s3cret",
		Fullname: "Test User",
		Email:    username + "@example.com",
	})
	require.NoError(t, err)
	return user
}

func score(v float64) *float64 { return &v }

func TestNewSelectsBackend(t *testing.T) {
	settings := &conf.Settings{}
	settings.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: "x.db"}
	store, err := New(settings)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)

	settings.Output.SQLite.Enabled = false
	settings.Output.MySQL = conf.MySQLSettings{Enabled: true, Host: "db", Port: "3306"}
	store, err = New(settings)
	require.NoError(t, err)
	assert.IsType(t, &MySQLStore{}, store)

	settings.Output.MySQL.Enabled = false
	_, err = New(settings)
	assert.Error(t, err)
}

func TestMySQLDSN(t *testing.T) {
	store := &MySQLStore{Config: conf.MySQLSettings{
		Username: "fishnet",
		Password: "pw",
		Database: "fishnet",
		Host:     "db.local",
		Port:     "3307",
	}}
	dsn := store.DSN()
	assert.Contains(t, dsn, "fishnet:pw@tcp(db.local:3307)/fishnet")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	store := &SQLiteStore{DataStore: newDataStore()}
	err := store.Open()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSeedFishCatalogIsIdempotent(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	n, err := store.SeedFishCatalog(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var count int64
	require.NoError(t, store.DB.Model(&Fish{}).Count(&count).Error)
	assert.Equal(t, int64(15), count)

	assert.Equal(t, "sqlite", store.Dialect())
	assert.NoError(t, store.Ping(ctx))
}

func TestFishCatalogOrder(t *testing.T) {
	catalog, err := FishCatalog()
	require.NoError(t, err)
	require.Len(t, catalog, 15)
	assert.Equal(t, "Bawal Emas", catalog[0].LocalName)
	assert.Equal(t, "Siakap", catalog[12].LocalName)
	assert.Equal(t, "Lates calcarifer", catalog[12].ScientificName)
	assert.Equal(t, "Tilapia Merah", catalog[14].LocalName)
}

func TestCreateUserProfile(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	user := createUser(t, store, "ali")
	assert.NotZero(t, user.ID)
	assert.NotEqual(t, "s3cret", user.Password)
	assert.True(t, user.CheckPassword("s3cret"))
	assert.False(t, user.CheckPassword("wrong"))

	got, err := store.GetUserProfile(ctx, "ali")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "ali@example.com", got.Email)

	_, err = store.CreateUserProfile(ctx, NewUser{Username: "ali", Password: "other"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateUser)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	_, err = store.GetUserProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateUserProfileValidation(t *testing.T) {
	store, _ := setupTestDB(t)

	tests := []struct {
		name string
		user NewUser
	}{
		{"missing username", NewUser{Password: "x"}},
		{"blank username", NewUser{Username: "  ", Password: "x"}},
		{"missing password", NewUser{Username: "ali"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateUserProfile(context.Background(), tt.user)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestGetFishByLocalNameUsesCache(t *testing.T) {
	store, metrics := setupTestDB(t)
	ctx := context.Background()

	fish, err := store.GetFishByLocalName(ctx, "Kembong")
	require.NoError(t, err)
	assert.Equal(t, "Indian mackerel", fish.EnglishName)

	fish, err = store.GetFishByLocalName(ctx, "Kembong")
	require.NoError(t, err)
	assert.Equal(t, "Rastrelliger kanagurta", fish.ScientificName)

	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.hits)

	_, err = store.GetFishByLocalName(ctx, "Jerung")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, metrics.failures, "not_found")

	_, err = store.GetFishByLocalName(ctx, "")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSearchFish(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  []string
	}{
		{"siakap", []string{"Siakap"}},
		{"SNAPPER", []string{"Jenahak", "Merah"}},
		{"lutjanus", []string{"Jenahak", "Merah"}},
		{"scad", []string{"Cencaru", "Selar Kuning"}},
		{"shark", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			fish, err := store.SearchFish(ctx, tt.query)
			require.NoError(t, err)
			var names []string
			for _, f := range fish {
				names = append(names, f.LocalName)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	_, err := store.SearchFish(ctx, "  ")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestFishCollectionLifecycle(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	createUser(t, store, "ali")

	created, err := store.CreateFishCollection(ctx, NewCollection{
		Username:         "ali",
		LocalName:        "Siakap",
		CapturedLocation: "Kuala Selangor",
		ImagePath:        "media/ali/input_images/catch.jpg",
		ConfidenceScore:  score(0.93),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Siakap", created.Fish.LocalName)

	location := "Port Dickson"
	species := "Kembong"
	updated, err := store.UpdateFishCollection(ctx, created.ID, "ali", CollectionUpdate{
		CapturedLocation: &location,
		LocalName:        &species,
	})
	require.NoError(t, err)
	assert.Equal(t, "Port Dickson", updated.CapturedLocation)
	assert.Equal(t, "Kembong", updated.Fish.LocalName)
	assert.Equal(t, "media/ali/input_images/catch.jpg", updated.ImagePath)
	require.NotNil(t, updated.ConfidenceScore)
	assert.InDelta(t, 0.93, *updated.ConfidenceScore, 1e-9)

	_, err = store.UpdateFishCollection(ctx, created.ID, "ali", CollectionUpdate{})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	require.NoError(t, store.DeleteFishCollection(ctx, created.ID, "ali"))
	collections, err := store.ListCollections(ctx, "ali")
	require.NoError(t, err)
	assert.Empty(t, collections)

	err = store.DeleteFishCollection(ctx, created.ID, "ali")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFishCollectionValidation(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	createUser(t, store, "ali")

	_, err := store.CreateFishCollection(ctx, NewCollection{Username: "nobody", LocalName: "Siakap"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Jerung"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Siakap", ConfidenceScore: score(1.5)})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	created, err := store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Siakap"})
	require.NoError(t, err)
	assert.Nil(t, created.ConfidenceScore)
}

func TestRecentCapturesOrderAndLimit(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	createUser(t, store, "ali")
	createUser(t, store, "bob")

	species := []string{"Siakap", "Kembong", "Kerisi", "Tamok"}
	for _, name := range species {
		_, err := store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: name})
		require.NoError(t, err)
	}
	_, err := store.CreateFishCollection(ctx, NewCollection{Username: "bob", LocalName: "Merah"})
	require.NoError(t, err)

	recent, err := store.RecentCaptures(ctx, "ali", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Tamok", recent[0].Fish.LocalName)
	assert.Equal(t, "Kerisi", recent[1].Fish.LocalName)

	recent, err = store.RecentCaptures(ctx, "ali", 0)
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	all, err := store.ListCollections(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Merah", all[0].Fish.LocalName)

	_, err = store.RecentCaptures(ctx, "nobody", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollectionOwnership(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	createUser(t, store, "ali")
	createUser(t, store, "bob")

	created, err := store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Siakap"})
	require.NoError(t, err)

	location := "elsewhere"
	_, err = store.UpdateFishCollection(ctx, created.ID, "bob", CollectionUpdate{CapturedLocation: &location})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.True(t, errors.IsNotFound(err))

	err = store.DeleteFishCollection(ctx, created.ID, "bob")
	assert.ErrorIs(t, err, ErrNotOwner)

	collections, err := store.ListCollections(ctx, "ali")
	require.NoError(t, err)
	assert.Len(t, collections, 1)
}

func TestDeletingUserCascades(t *testing.T) {
	store, _ := setupTestDB(t)
	ctx := context.Background()
	user := createUser(t, store, "ali")

	_, err := store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Siakap"})
	require.NoError(t, err)

	require.NoError(t, store.DB.Delete(&UserProfile{}, user.ID).Error)

	var count int64
	require.NoError(t, store.DB.Model(&FishCollection{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMetricsRecorded(t *testing.T) {
	store, metrics := setupTestDB(t)
	createUser(t, store, "ali")

	assert.Contains(t, metrics.operations, "db_insert:fish:success")
	assert.Contains(t, metrics.operations, "db_insert:user_profiles:success")
}
