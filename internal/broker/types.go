package broker

import (
	"context"
	"errors"
	"sort"

	"claimant-consumer/internal/domain"
)

// ErrClosed is returned by Poll once the consumer has been closed.
var ErrClosed = errors.New("broker: consumer closed")

// Consumer is the broker side of the consume loop. It is owned by a single
// goroutine; none of its methods are safe for concurrent use.
type Consumer interface {
	// EnsureSubscription picks up topics that started matching the
	// subscription pattern since the last call.
	EnsureSubscription(ctx context.Context) error
	// Poll waits at most the configured poll timeout for records.
	Poll(ctx context.Context) (Batch, error)
	// Commit stores the next offset to consume for each partition.
	Commit(ctx context.Context, offsets map[domain.TopicPartition]int64) error
	// Committed returns the last committed offset of a partition; ok is false
	// when the group never committed it.
	Committed(ctx context.Context, tp domain.TopicPartition) (offset int64, ok bool, err error)
	// Seek moves the fetch position of a partition.
	Seek(tp domain.TopicPartition, offset int64)
	Close() error
}

// Batch holds the records of one poll, grouped by partition in offset order.
type Batch map[domain.TopicPartition][]domain.SourceRecord

func (b Batch) Len() int {
	n := 0
	for _, records := range b {
		n += len(records)
	}
	return n
}

// Partitions returns the partitions of the batch sorted by topic then partition.
func (b Batch) Partitions() []domain.TopicPartition {
	tps := make([]domain.TopicPartition, 0, len(b))
	for tp := range b {
		tps = append(tps, tp)
	}
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})
	return tps
}

// Add appends a record to its partition.
func (b Batch) Add(rec domain.SourceRecord) {
	tp := rec.TopicPartition()
	b[tp] = append(b[tp], rec)
}
