//go:build integration

package target

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/logger"
	"claimant-consumer/pkg/migrations"
)

const containerStartupTimeout = 60 * time.Second

func startPostgres(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()

	container, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("claimant"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartupTimeout),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", conn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	require.NoError(t, migrations.MigratePostgres(ctx, db, logger.NopLogger()))
	return db
}

func withTimestamp(p domain.Processed[domain.TransformationResult], ts string) domain.Processed[domain.TransformationResult] {
	p.Value.Extract.Timestamp = ts
	return p
}

func TestPostgresTargetAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t, ctx)
	target := NewPostgresTarget(db, tables)

	require.NoError(t, target.Upsert(ctx, "db.core.claimant", []domain.Processed[domain.TransformationResult]{
		upsert("c1", 10, `{"citizen_id":"c1","nino":"v2"}`),
		upsert("c2", 11, `{"citizen_id":"c2"}`),
	}))

	// an older change for c1 must not overwrite the newer row
	stale := withTimestamp(upsert("c1", 12, `{"citizen_id":"c1","nino":"v1"}`), "2018-01-01T00:00:00.000+0000")
	require.NoError(t, target.Upsert(ctx, "db.core.claimant", []domain.Processed[domain.TransformationResult]{stale}))

	var nino string
	var offset int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT data->>'nino', kafka_offset FROM claimant WHERE natural_id = $1`, "c1").Scan(&nino, &offset))
	assert.Equal(t, "v2", nino)
	assert.EqualValues(t, 10, offset)

	// redelivery of the same batch is harmless
	require.NoError(t, target.Upsert(ctx, "db.core.claimant", []domain.Processed[domain.TransformationResult]{
		upsert("c2", 11, `{"citizen_id":"c2"}`),
	}))

	require.NoError(t, target.Delete(ctx, "db.core.claimant", []domain.DeleteRequest{deletion("c1"), deletion("missing")}))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM claimant`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestMongoTargetAgainstDatabase(t *testing.T) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:6",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").WithStartupTimeout(containerStartupTimeout),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	db := client.Database("claimant")
	require.NoError(t, migrations.EnsureMongoCollections(ctx, db, []string{"claimant"}))
	// a second run finds the indexes in place
	require.NoError(t, migrations.EnsureMongoCollections(ctx, db, []string{"claimant"}))

	target := NewMongoTarget(db, tables)
	require.NoError(t, target.Upsert(ctx, "db.core.claimant", []domain.Processed[domain.TransformationResult]{
		upsert("c1", 1, `{"citizen_id":"c1"}`),
		upsert("c2", 2, `{"citizen_id":"c2"}`),
	}))
	require.NoError(t, target.Upsert(ctx, "db.core.claimant", []domain.Processed[domain.TransformationResult]{
		upsert("c1", 1, `{"citizen_id":"c1"}`),
	}))

	n, err := db.Collection("claimant").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	require.NoError(t, target.Delete(ctx, "db.core.claimant", []domain.DeleteRequest{deletion("c1")}))
	n, err = db.Collection("claimant").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestRedisStreamTargetAgainstServer(t *testing.T) {
	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opt, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opt)
	t.Cleanup(func() { client.Close() })

	target := NewRedisStreamTarget(client, "cdc:failures")
	require.NoError(t, target.Send(ctx, []domain.Failure{failure(1), failure(2)}))

	entries, err := client.XRange(ctx, "cdc:failures", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2", entries[1].Values["offset"])
}
