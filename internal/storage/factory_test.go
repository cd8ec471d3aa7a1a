package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/optsched/pkg/config"
	"github.com/LENAX/optsched/pkg/storage"
	"github.com/LENAX/optsched/pkg/storage/sqlstore"
)

func TestNewDatabaseFactory_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.OptSched.Storage.Database.DSN = ":memory:"

	factory, err := NewDatabaseFactoryFromConfig(cfg)
	require.NoError(t, err)
	defer factory.Close()

	runs, err := factory.RunRepository().ListRuns(context.Background(), storage.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewDatabaseFactory_Unsupported(t *testing.T) {
	_, err := NewDatabaseFactory("oracle", "x", sqlstore.PoolConfig{})
	assert.Error(t, err)
}
