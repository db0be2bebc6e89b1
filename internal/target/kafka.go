package target

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/domain"
	"claimant-consumer/pkg/tracing"
)

const kafkaTargetName = "kafka"

// MessageWriter is the part of *kafka.Writer the DLQ target uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDLQTarget republishes failed records, key and value untouched, to the
// dead letter topic. The failure is described in headers.
type KafkaDLQTarget struct {
	writer MessageWriter
	topic  string
}

func NewKafkaDLQTarget(cfg config.KafkaConfig) *KafkaDLQTarget {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newKafkaDLQTarget(w, cfg.DLQTopic)
}

func newKafkaDLQTarget(w MessageWriter, topic string) *KafkaDLQTarget {
	return &KafkaDLQTarget{writer: w, topic: topic}
}

func (t *KafkaDLQTarget) Send(ctx context.Context, failures []domain.Failure) error {
	if len(failures) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(failures))
	for _, f := range failures {
		d := describe(f)
		headers := []kafka.Header{
			{Key: constants.HeaderSourceTopic, Value: []byte(d.Topic)},
			{Key: constants.HeaderSourcePartition, Value: []byte(d.Partition)},
			{Key: constants.HeaderSourceOffset, Value: []byte(d.Offset)},
			{Key: constants.HeaderFailureCode, Value: []byte(d.Code)},
			{Key: constants.HeaderFailureReason, Value: []byte(d.Reason)},
		}
		msgs = append(msgs, kafka.Message{
			Topic:   t.topic,
			Key:     f.Record.Key,
			Value:   f.Record.Value,
			Headers: tracing.InjectTraceContext(ctx, headers),
			Time:    time.Now(),
		})
	}

	if err := t.writer.WriteMessages(ctx, msgs...); err != nil {
		return unavailable(kafkaTargetName, "write", err)
	}
	return nil
}

func (t *KafkaDLQTarget) Close() error {
	return t.writer.Close()
}
