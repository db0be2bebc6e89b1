package target

import (
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
)

// Resources are the connections a target may need. Unused ones may be nil.
type Resources struct {
	Postgres *sql.DB
	Mongo    *mongo.Database
	Redis    *redis.Client
}

func NewSuccessTarget(cfg *config.Config, res Resources) (SuccessTarget, error) {
	tables := TablesFromConfig(cfg.Topics)

	switch cfg.Target.Success.Type {
	case constants.SuccessTargetPostgres:
		if res.Postgres == nil {
			return nil, fmt.Errorf("postgres success target needs a postgres connection")
		}
		return InstrumentSuccess(NewPostgresTarget(res.Postgres, tables), postgresTargetName), nil
	case constants.SuccessTargetMongoDB:
		if res.Mongo == nil {
			return nil, fmt.Errorf("mongodb success target needs a mongodb connection")
		}
		return InstrumentSuccess(NewMongoTarget(res.Mongo, tables), mongoTargetName), nil
	default:
		return nil, fmt.Errorf("unknown success target type: %s", cfg.Target.Success.Type)
	}
}

// NewFailureTarget returns the configured failure target. The returned close
// function releases what the target owns and is never nil.
func NewFailureTarget(cfg *config.Config, res Resources, log logger.Logger) (FailureTarget, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Target.Failure.Type {
	case constants.FailureTargetKafka:
		t := NewKafkaDLQTarget(cfg.Broker.Kafka)
		return InstrumentFailure(t, kafkaTargetName), t.Close, nil
	case constants.FailureTargetRedis:
		if res.Redis == nil {
			return nil, noop, fmt.Errorf("redis failure target needs a redis connection")
		}
		stream := cfg.Target.Failure.RedisStream
		if stream == "" {
			stream = constants.DefaultRedisStream
		}
		return InstrumentFailure(NewRedisStreamTarget(res.Redis, stream), redisTargetName), noop, nil
	case constants.FailureTargetLog, "":
		return InstrumentFailure(NewLogFailureTarget(log), constants.FailureTargetLog), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown failure target type: %s", cfg.Target.Failure.Type)
	}
}
