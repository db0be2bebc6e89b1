package target

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"claimant-consumer/internal/domain"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/tracing"
)

const tracerName = "claimant-consumer/target"

type instrumentedSuccess struct {
	next SuccessTarget
	name string
}

// InstrumentSuccess records latency, outcome and a span for every call.
func InstrumentSuccess(next SuccessTarget, name string) SuccessTarget {
	return &instrumentedSuccess{next: next, name: name}
}

func (t *instrumentedSuccess) Upsert(ctx context.Context, topic string, records []domain.Processed[domain.TransformationResult]) error {
	return observe(ctx, t.name, "upsert", topic, len(records), func(ctx context.Context) error {
		return t.next.Upsert(ctx, topic, records)
	})
}

func (t *instrumentedSuccess) Delete(ctx context.Context, topic string, requests []domain.DeleteRequest) error {
	return observe(ctx, t.name, "delete", topic, len(requests), func(ctx context.Context) error {
		return t.next.Delete(ctx, topic, requests)
	})
}

type instrumentedFailure struct {
	next FailureTarget
	name string
}

func InstrumentFailure(next FailureTarget, name string) FailureTarget {
	return &instrumentedFailure{next: next, name: name}
}

func (t *instrumentedFailure) Send(ctx context.Context, failures []domain.Failure) error {
	return observe(ctx, t.name, "send", "", len(failures), func(ctx context.Context) error {
		return t.next.Send(ctx, failures)
	})
}

func observe(ctx context.Context, name, op, topic string, n int, fn func(context.Context) error) error {
	ctx, span := tracing.GetTracer(tracerName).Start(ctx, "target."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("target.name", name),
		attribute.String("messaging.source.name", topic),
		attribute.Int("target.records", n),
	)

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveTargetSend(name, op, metrics.Status(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
