// Package target delivers pipeline output: transformed records and deletes to
// the success target, failed records to the failure target.
package target

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/domain"
	apperrors "claimant-consumer/pkg/errors"
)

// SuccessTarget receives the records of one source topic at a time.
// Implementations must be idempotent: a batch is resent after a rollback.
type SuccessTarget interface {
	Upsert(ctx context.Context, topic string, records []domain.Processed[domain.TransformationResult]) error
	Delete(ctx context.Context, topic string, requests []domain.DeleteRequest) error
}

// FailureTarget receives records that could not be processed.
type FailureTarget interface {
	Send(ctx context.Context, failures []domain.Failure) error
}

// Tables maps a source topic to its table or collection.
type Tables map[string]string

// TablesFromConfig uses the configured table of each topic, or the last
// segment of the topic name when none is set.
func TablesFromConfig(topics []config.TopicConfig) Tables {
	t := make(Tables, len(topics))
	for _, tc := range topics {
		t[tc.Name] = tc.TableName()
	}
	return t
}

func (t Tables) lookup(topic string) (string, error) {
	name, ok := t[topic]
	if !ok || name == "" {
		return "", apperrors.ErrValidation.WithMessage("no table configured for topic '%s'", topic)
	}
	return name, nil
}

// failureFields is the description of a failure shared by every failure target.
type failureFields struct {
	Topic     string
	Partition string
	Offset    string
	Code      string
	Reason    string
}

func describe(f domain.Failure) failureFields {
	code := apperrors.Code(f.Cause)
	if code == "" {
		code = apperrors.ErrInternal.Code
	}
	reason := ""
	if f.Cause != nil {
		reason = f.Cause.Error()
	}
	return failureFields{
		Topic:     f.Record.Topic,
		Partition: strconv.FormatInt(int64(f.Record.Partition), 10),
		Offset:    strconv.FormatInt(f.Record.Offset, 10),
		Code:      code,
		Reason:    reason,
	}
}

// sourceTime is the change timestamp of an extract, or the epoch fallback.
func sourceTime(e domain.Extract) time.Time {
	if t, err := e.Time(); err == nil {
		return t.UTC()
	}
	t, _ := time.Parse(domain.TimestampLayout, domain.EpochTimestamp)
	return t.UTC()
}

func unavailable(target, op string, err error) error {
	return apperrors.ErrTargetUnavailable.WithCause(fmt.Errorf("%s %s: %w", target, op, err))
}
