package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/multierr"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/logger"
)

// FranzConsumer implements Consumer on a franz-go group client. Rebalances
// are held back while a polled batch is in flight and released by the next
// Poll or by Close.
type FranzConsumer struct {
	client *kgo.Client
	admin  *kadm.Client
	logger logger.Logger

	groupID     string
	pollTimeout time.Duration
	maxRecords  int

	refreshEvery time.Duration
	lastRefresh  time.Time
	topics       map[string]bool

	closeOnce sync.Once
}

func newFranzConsumer(client *kgo.Client, cfg config.KafkaConfig, refresh time.Duration, log logger.Logger) *FranzConsumer {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = constants.DefaultPollTimeout
	}
	maxRecords := cfg.MaxPollRecords
	if maxRecords <= 0 {
		maxRecords = constants.DefaultMaxPollRecords
	}

	return &FranzConsumer{
		client:       client,
		admin:        kadm.NewClient(client),
		logger:       log,
		groupID:      cfg.GroupID,
		pollTimeout:  pollTimeout,
		maxRecords:   maxRecords,
		refreshEvery: refresh,
		topics:       make(map[string]bool),
	}
}

// Ping checks that at least one broker answers.
func (c *FranzConsumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c *FranzConsumer) EnsureSubscription(ctx context.Context) error {
	if !c.lastRefresh.IsZero() && time.Since(c.lastRefresh) < c.refreshEvery {
		return nil
	}
	c.lastRefresh = time.Now()
	c.client.ForceMetadataRefresh()

	for _, topic := range c.client.GetConsumeTopics() {
		if c.topics[topic] {
			continue
		}
		c.topics[topic] = true
		c.logger.InfowCtx(ctx, "subscribed to topic", "subscribed_topic", topic)
	}
	return nil
}

func (c *FranzConsumer) Poll(ctx context.Context) (Batch, error) {
	c.client.AllowRebalance()

	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	fetches := c.client.PollRecords(pollCtx, c.maxRecords)
	if fetches.IsClientClosed() {
		return nil, ErrClosed
	}

	var errs error
	fetches.EachError(func(topic string, partition int32, err error) {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		case kerr.IsRetriable(err):
			c.logger.WarnwCtx(ctx, "retriable fetch error",
				"error", err,
				"fetch_topic", topic,
				"fetch_partition", partition,
			)
		default:
			errs = multierr.Append(errs, fmt.Errorf("fetch %s/%d: %w", topic, partition, err))
		}
	})
	if errs != nil {
		return nil, errs
	}

	batch := make(Batch)
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		for _, r := range p.Records {
			batch.Add(toSourceRecord(r))
		}
	})
	return batch, nil
}

func toSourceRecord(r *kgo.Record) domain.SourceRecord {
	var headers map[string][]byte
	if len(r.Headers) > 0 {
		headers = make(map[string][]byte, len(r.Headers))
		for _, h := range r.Headers {
			headers[h.Key] = h.Value
		}
	}
	return domain.SourceRecord{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
		Headers:   headers,
	}
}

func (c *FranzConsumer) Commit(ctx context.Context, offsets map[domain.TopicPartition]int64) error {
	if len(offsets) == 0 {
		return nil
	}

	uncommitted := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if uncommitted[tp.Topic] == nil {
			uncommitted[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		uncommitted[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: offset}
	}

	errCh := make(chan error, 1)
	c.client.CommitOffsetsSync(ctx, uncommitted, func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			errCh <- err
			return
		}
		var errs error
		for _, t := range resp.Topics {
			for _, p := range t.Partitions {
				if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("commit %s/%d: %w", t.Topic, p.Partition, err))
				}
			}
		}
		errCh <- errs
	})
	return <-errCh
}

// Committed asks the group coordinator first and falls back to the offsets
// this client committed or was assigned with.
func (c *FranzConsumer) Committed(ctx context.Context, tp domain.TopicPartition) (int64, bool, error) {
	resps, fetchErr := c.admin.FetchOffsets(ctx, c.groupID)
	if fetchErr == nil {
		if r, ok := resps.Lookup(tp.Topic, tp.Partition); ok && r.Err == nil && r.At >= 0 {
			return r.At, true, nil
		}
	}

	if eo, ok := c.client.CommittedOffsets()[tp.Topic][tp.Partition]; ok && eo.Offset >= 0 {
		return eo.Offset, true, nil
	}

	if fetchErr != nil {
		return 0, false, fmt.Errorf("failed to fetch committed offsets: %w", fetchErr)
	}
	return 0, false, nil
}

func (c *FranzConsumer) Seek(tp domain.TopicPartition, offset int64) {
	c.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
		tp.Topic: {tp.Partition: {Epoch: -1, Offset: offset}},
	})
}

// Close may be called more than once.
func (c *FranzConsumer) Close() error {
	c.closeOnce.Do(func() {
		c.client.AllowRebalance()
		c.client.Close()
	})
	return nil
}
