package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/multierr"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
)

// Databases are the open connections. Each one is nil when not configured.
type Databases struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Client
}

// MongoDatabase returns the configured database handle, or nil.
func (d *Databases) MongoDatabase(cfg config.MongoDBConfig) *mongo.Database {
	if d.Mongo == nil {
		return nil
	}
	name := cfg.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return d.Mongo.Database(name)
}

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Connect opens every configured store. On failure the ones already open
// are closed again.
func (dc *DatabaseConnector) Connect(ctx context.Context) (*Databases, error) {
	dbs := &Databases{}
	var err error

	if dbs.Postgres, err = dc.InitPostgreSQL(ctx); err != nil {
		return nil, err
	}
	if dbs.Redis, err = dc.InitRedis(ctx); err != nil {
		return nil, multierr.Append(err, dc.ShutdownDatabases(ctx, dbs))
	}
	if dbs.Mongo, err = dc.InitMongoDB(ctx); err != nil {
		return nil, multierr.Append(err, dc.ShutdownDatabases(ctx, dbs))
	}
	return dbs, nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	if cfg.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	cfg := dc.Config.Database.Postgres
	if cfg.Host == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", PostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	uri := dc.Config.Database.MongoDB.URI
	if uri == "" {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected successfully")
	return client, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, dbs *Databases) error {
	if dbs == nil {
		return nil
	}

	var errs error
	if dbs.Redis != nil {
		if err := dbs.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if dbs.Postgres != nil {
		if err := dbs.Postgres.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	if dbs.Mongo != nil {
		if err := dbs.Mongo.Disconnect(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}
	return errs
}

// PostgresDSN builds a lib/pq connection URL. Credentials are escaped.
func PostgresDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
