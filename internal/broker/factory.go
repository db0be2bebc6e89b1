package broker

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/logger"
)

// NewConsumer returns a consumer group member subscribed to every topic
// matching cfg.TopicRegex, with offsets committed only by Commit.
func NewConsumer(cfg config.KafkaConfig, log logger.Logger) (*FranzConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("no kafka consumer group configured")
	}

	regex := cfg.TopicRegex
	if regex == "" {
		regex = constants.DefaultTopicRegex
	}
	refresh := cfg.SubscriptionRefreshInterval
	if refresh <= 0 {
		refresh = constants.DefaultSubscriptionRefreshInterval
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeRegex(),
		kgo.ConsumeTopics(regex),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.MetadataMaxAge(refresh),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			log.Infow("partitions assigned", "partitions", assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			log.Infow("partitions revoked", "partitions", revoked)
		}),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return newFranzConsumer(client, cfg, refresh, log), nil
}
