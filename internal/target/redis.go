package target

import (
	"context"

	"github.com/redis/go-redis/v9"

	"claimant-consumer/internal/domain"
)

const redisTargetName = "redis"

// StreamAdder is the part of the go-redis client the stream target uses.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamTarget appends one stream entry per failed record.
type RedisStreamTarget struct {
	client StreamAdder
	stream string
}

func NewRedisStreamTarget(client StreamAdder, stream string) *RedisStreamTarget {
	return &RedisStreamTarget{client: client, stream: stream}
}

func (t *RedisStreamTarget) Send(ctx context.Context, failures []domain.Failure) error {
	for _, f := range failures {
		d := describe(f)
		err := t.client.XAdd(ctx, &redis.XAddArgs{
			Stream: t.stream,
			Values: map[string]interface{}{
				"topic":     d.Topic,
				"partition": d.Partition,
				"offset":    d.Offset,
				"code":      d.Code,
				"reason":    d.Reason,
				"key":       f.Record.Key,
				"value":     f.Record.Value,
			},
		}).Err()
		if err != nil {
			return unavailable(redisTargetName, "xadd", err)
		}
	}
	return nil
}
