package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/datastore"
)

func openSQLite(t *testing.T, path string) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: path}

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func populatedSource(t *testing.T) datastore.Interface {
	t.Helper()
	ctx := context.Background()
	source := openSQLite(t, filepath.Join(t.TempDir(), "source.db"))

	_, err := source.SeedFishCatalog(ctx)
	require.NoError(t, err)
	for _, name := range []string{"ali", "siti"} {
		_, err := source.CreateUserProfile(ctx, datastore.NewUser{Username: name, Password: "pw-" + name})
		require.NoError(t, err)
	}
	score := 0.91
	for _, fish := range []string{"Siakap", "Kembong", "Tamok"} {
		_, err := source.CreateFishCollection(ctx, datastore.NewCollection{
			Username:        "ali",
			LocalName:       fish,
			ImagePath:       "media/ali/input_images/" + fish + ".jpg",
			ConfidenceScore: &score,
		})
		require.NoError(t, err)
	}
	return source
}

func TestMigratorCopiesAllTables(t *testing.T) {
	ctx := context.Background()
	source := populatedSource(t)
	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))

	var out bytes.Buffer
	m, err := NewMigrator(Config{BatchSize: 2}, source, target, &out)
	require.NoError(t, err)

	stats, err := m.Run(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Tables, 3)
	assert.Equal(t, "user_profiles", stats.Tables[0].Name)
	assert.Equal(t, int64(2), stats.Tables[0].Migrated)
	assert.Equal(t, int64(15), stats.Tables[1].Migrated)
	assert.Equal(t, int64(3), stats.Tables[2].Migrated)

	require.NoError(t, NewVerifier(m.sourceDB, m.targetDB, &out).Verify())

	captures, err := target.ListCollections(ctx, "ali")
	require.NoError(t, err)
	require.Len(t, captures, 3)
	assert.Equal(t, "Tamok", captures[0].Fish.LocalName)

	user, err := target.GetUserProfile(ctx, "siti")
	require.NoError(t, err)
	assert.True(t, user.CheckPassword("pw-siti"))

	stats.Print(&out)
	assert.Contains(t, out.String(), "TOTAL")
}

func TestMigratorIsRepeatable(t *testing.T) {
	ctx := context.Background()
	source := populatedSource(t)
	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))

	m, err := NewMigrator(Config{BatchSize: 100}, source, target, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = m.Run(ctx)
	require.NoError(t, err)

	stats, err := m.Run(ctx)
	require.NoError(t, err)
	for _, table := range stats.Tables {
		assert.Zero(t, table.Migrated, table.Name)
		assert.Zero(t, table.Errors, table.Name)
	}
	assert.Equal(t, int64(15), stats.Tables[1].Skipped)
}

func TestMigratorClean(t *testing.T) {
	ctx := context.Background()
	source := populatedSource(t)
	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))

	m, err := NewMigrator(Config{BatchSize: 100}, source, target, &bytes.Buffer{})
	require.NoError(t, err)
	_, err = m.Run(ctx)
	require.NoError(t, err)

	m.cfg.Clean = true
	stats, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Tables[2].Migrated)
}

func TestVerifierDetectsMissingRows(t *testing.T) {
	source := populatedSource(t)
	target := openSQLite(t, filepath.Join(t.TempDir(), "target.db"))

	m, err := NewMigrator(Config{}, source, target, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Error(t, NewVerifier(m.sourceDB, m.targetDB, &bytes.Buffer{}).Verify())
}

func TestConfigValidate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "fishnet.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	settings := &conf.Settings{}
	settings.Output.SQLite.Path = dbPath
	settings.Output.MySQL = conf.MySQLSettings{Host: "db", Database: "fishnet", Username: "fish", Password: "secret"}

	cfg := Config{BatchSize: 500}
	require.NoError(t, cfg.Apply(settings))
	assert.Equal(t, dbPath, cfg.SQLitePath)
	assert.Equal(t, "3306", cfg.MySQL.Port)
	assert.Equal(t, "fish:****@tcp(db:3306)/fishnet", cfg.SanitizedTarget())
	assert.NotContains(t, cfg.SanitizedTarget(), "secret")

	bad := Config{BatchSize: maxBatchSize + 1}
	assert.Error(t, bad.Apply(settings))

	missing := Config{SQLitePath: filepath.Join(t.TempDir(), "nope.db"), BatchSize: 10}
	assert.Error(t, missing.Apply(settings))
}
