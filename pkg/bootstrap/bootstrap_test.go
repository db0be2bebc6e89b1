package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "claims",
	})
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/claims?sslmode=disable", dsn)

	dsn = PostgresDSN(config.PostgresConfig{Host: "db", Port: 5433, User: "app", DBName: "claims", SSLMode: "require"})
	assert.Contains(t, dsn, "sslmode=require")
}

func TestConnectWithNothingConfigured(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	dbs, err := dc.Connect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, dbs.Postgres)
	assert.Nil(t, dbs.Redis)
	assert.Nil(t, dbs.Mongo)
	assert.Nil(t, dbs.MongoDatabase(config.MongoDBConfig{Database: constants.DefaultMongoDBName}))
	assert.NoError(t, dc.ShutdownDatabases(context.Background(), dbs))
}

func TestShutdownWithoutResources(t *testing.T) {
	base := NewBase(&config.Config{}, logger.NopLogger())

	called := false
	err := base.Shutdown(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
