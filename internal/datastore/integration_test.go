//go:build integration

package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/fishnet-go/internal/conf"
)

func TestMySQLStoreIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("fishnet"),
		tcmysql.WithUsername("fishnet"),
		tcmysql.WithPassword("fishnet"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store := &MySQLStore{
		DataStore: newDataStore(),
		Config: conf.MySQLSettings{
			Enabled:  true,
			Username: "fishnet",
			Password: "fishnet",
			Database: "fishnet",
			Host:     host,
			Port:     port.Port(),
		},
	}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	assert.Equal(t, "mysql", store.Dialect())

	n, err := store.SeedFishCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	_, err = store.CreateUserProfile(ctx, NewUser{Username: "ali", Password: "pw"})
	require.NoError(t, err)
	_, err = store.CreateUserProfile(ctx, NewUser{Username: "ali", Password: "pw"})
	assert.ErrorIs(t, err, ErrDuplicateUser)

	created, err := store.CreateFishCollection(ctx, NewCollection{Username: "ali", LocalName: "Senangin"})
	require.NoError(t, err)

	fish, err := store.SearchFish(ctx, "threadfin")
	require.NoError(t, err)
	assert.Len(t, fish, 2)

	require.NoError(t, store.DeleteFishCollection(ctx, created.ID, "ali"))
}
