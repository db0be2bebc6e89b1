// Package orchestrator runs the poll, process, deliver and commit cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"claimant-consumer/internal/broker"
	"claimant-consumer/internal/config"
	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/processor"
	"claimant-consumer/internal/target"
	apperrors "claimant-consumer/pkg/errors"
	"claimant-consumer/pkg/logging"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/tracing"
)

// Pipeline turns the records of one partition into deliverable results.
type Pipeline interface {
	Run(ctx context.Context, records []domain.SourceRecord) (processor.Result, error)
}

type Orchestrator struct {
	consumer broker.Consumer
	pipeline Pipeline
	success  target.SuccessTarget
	failure  target.FailureTarget
	logger   logger.Logger

	maxConcurrent int
	state         atomic.Int32
	brokerErr     atomic.Pointer[error]
}

func New(
	consumer broker.Consumer,
	pipeline Pipeline,
	success target.SuccessTarget,
	failure target.FailureTarget,
	cfg config.OrchestratorConfig,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		consumer:      consumer,
		pipeline:      pipeline,
		success:       success,
		failure:       failure,
		logger:        log,
		maxConcurrent: cfg.MaxConcurrentPartitions,
	}
}

// State is safe to call from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Ping reports the outcome of the loop's latest broker call. It never talks
// to the broker itself, so health checks stay off the client.
func (o *Orchestrator) Ping(context.Context) error {
	if err := o.brokerErr.Load(); err != nil {
		return *err
	}
	return nil
}

func (o *Orchestrator) observeBroker(err error) {
	if err == nil {
		o.brokerErr.Store(nil)
		return
	}
	o.brokerErr.Store(&err)
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	metrics.SetOrchestratorState(int(s))
}

// Run consumes until ctx is cancelled or a poll fails for good. A batch that
// is in flight when ctx is cancelled is completed, committed or rolled back
// before Run returns. The consumer is closed on return.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	o.setState(StateRunning)
	o.logger.InfowCtx(ctx, "consumer loop started")

	defer func() {
		err = multierr.Append(err, o.consumer.Close())
		o.setState(StateStopped)
		o.logger.InfowCtx(ctx, "consumer loop stopped")
	}()

	for {
		if ctx.Err() != nil {
			o.setState(StateStopping)
			return nil
		}

		if err := o.consumer.EnsureSubscription(ctx); err != nil {
			o.observeBroker(fmt.Errorf("refresh subscription: %w", err))
			o.logger.WarnwCtx(ctx, "failed to refresh subscription", "error", err)
		}

		batch, err := o.consumer.Poll(ctx)
		if err != nil {
			o.setState(StateStopping)
			if ctx.Err() != nil || errors.Is(err, broker.ErrClosed) {
				return nil
			}
			o.observeBroker(fmt.Errorf("poll: %w", err))
			metrics.ObservePoll("error", 0)
			o.logger.ErrorwCtx(ctx, "poll failed, stopping", "error", err)
			return fmt.Errorf("poll: %w", err)
		}

		o.observeBroker(nil)
		n := batch.Len()
		metrics.ObservePoll("success", n)
		if n == 0 {
			continue
		}

		o.processBatch(context.WithoutCancel(ctx), batch)
	}
}

type partitionResult struct {
	tp    domain.TopicPartition
	first int64
	next  int64
	err   error
}

// processBatch fans partitions out and waits for all of them. Commits and
// seeks happen afterwards on the calling goroutine.
func (o *Orchestrator) processBatch(ctx context.Context, batch broker.Batch) {
	ctx = logging.WithBatchID(ctx, uuid.NewString())
	tps := batch.Partitions()
	o.logger.InfowCtx(ctx, "fetched records", "size", batch.Len(), "partitions", len(tps))

	results := make([]partitionResult, len(tps))
	g := new(errgroup.Group)
	if o.maxConcurrent > 0 {
		g.SetLimit(o.maxConcurrent)
	}
	for i, tp := range tps {
		g.Go(func() error {
			results[i] = o.processPartition(ctx, tp, batch[tp])
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		pctx := logging.WithPartition(ctx, res.tp.Topic, res.tp.Partition)
		if res.err == nil {
			res.err = o.commit(pctx, res.tp, res.next)
		}
		if res.err != nil {
			o.rollback(pctx, res.tp, res.first, res.err)
		}
	}
}

func (o *Orchestrator) processPartition(ctx context.Context, tp domain.TopicPartition, records []domain.SourceRecord) (res partitionResult) {
	res = partitionResult{tp: tp, first: records[0].Offset}
	ctx = logging.WithPartition(ctx, tp.Topic, tp.Partition)
	ctx, span := tracing.StartConsumerSpan(ctx, "partition.batch", records[0].Headers,
		trace.WithAttributes(
			attribute.String("messaging.source.name", tp.Topic),
			attribute.Int("messaging.kafka.partition", int(tp.Partition)),
			attribute.Int("messaging.batch.message_count", len(records)),
		))
	if sc := span.SpanContext(); sc.IsValid() {
		ctx = logging.WithTraceID(ctx, sc.TraceID().String())
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.err = apperrors.RecoverPanic(r)
		}
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		span.End()
		metrics.ObservePartitionBatch(tp.Topic, metrics.Status(res.err), time.Since(start))
	}()

	out, err := o.pipeline.Run(ctx, records)
	if err != nil {
		res.err = fmt.Errorf("processing: %w", err)
		return res
	}

	if err := o.deliver(ctx, out); err != nil {
		res.err = err
		return res
	}

	o.record(ctx, out)
	res.next = nextOffset(records)
	return res
}

// deliver sends upserts, then deletes, then failures. The pipeline leaves at
// most one action per natural id, so the group order cannot reorder writes to
// the same row. Any error aborts the partition batch.
func (o *Orchestrator) deliver(ctx context.Context, out processor.Result) error {
	for _, g := range groupByTopic(out.Upserts, func(p domain.Processed[domain.TransformationResult]) string { return p.Record.Topic }) {
		if err := o.success.Upsert(ctx, g.topic, g.items); err != nil {
			return fmt.Errorf("upsert %s: %w", g.topic, err)
		}
	}
	for _, g := range groupByTopic(out.Deletes, func(d domain.DeleteRequest) string { return d.Record.Topic }) {
		if err := o.success.Delete(ctx, g.topic, g.items); err != nil {
			return fmt.Errorf("delete %s: %w", g.topic, err)
		}
	}
	if len(out.Failures) > 0 {
		if err := o.failure.Send(ctx, out.Failures); err != nil {
			return fmt.Errorf("send failures: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, out processor.Result) {
	for _, f := range out.Failures {
		code := apperrors.Code(f.Cause)
		o.logger.ErrorwCtx(ctx, "record failed",
			"offset", f.Record.Offset,
			"code", code,
			"error", f.Cause,
		)
		metrics.IncRecords(f.Record.Topic, metrics.OutcomeFailed, 1)
		metrics.IncRecordFailure(f.Record.Topic, code)
	}
	for _, u := range out.Upserts {
		metrics.IncRecords(u.Record.Topic, metrics.OutcomeUpserted, 1)
	}
	for _, d := range out.Deletes {
		metrics.IncRecords(d.Record.Topic, metrics.OutcomeDeleted, 1)
	}
	for _, s := range out.Suppressed {
		metrics.IncRecords(s.Topic, metrics.OutcomeSuppressed, 1)
	}
	for _, s := range out.Superseded {
		metrics.IncRecords(s.Topic, metrics.OutcomeSuperseded, 1)
	}
}

func (o *Orchestrator) commit(ctx context.Context, tp domain.TopicPartition, offset int64) error {
	if err := o.consumer.Commit(ctx, map[domain.TopicPartition]int64{tp: offset}); err != nil {
		err = fmt.Errorf("commit: %w", err)
		o.observeBroker(err)
		return err
	}
	o.observeBroker(nil)
	metrics.ObserveCommit(tp.Topic, tp.Partition, offset)
	o.logger.InfowCtx(ctx, "processed batch, committed offset", "offset", offset)
	return nil
}

// rollback moves the partition back to its last committed offset, or to the
// start of the failed batch when the group has never committed it.
func (o *Orchestrator) rollback(ctx context.Context, tp domain.TopicPartition, first int64, cause error) {
	offset, ok, err := o.consumer.Committed(ctx, tp)
	if err != nil {
		o.observeBroker(fmt.Errorf("committed offset lookup: %w", err))
		o.logger.WarnwCtx(ctx, "failed to look up committed offset", "error", err)
	}
	if err != nil || !ok {
		offset = first
	}

	o.consumer.Seek(tp, offset)
	metrics.IncRollback(tp.Topic)
	o.logger.ErrorwCtx(ctx, "batch failed, not committing offset, resetting position to last commit",
		"error", cause,
		"reset_offset", offset,
	)
}

func nextOffset(records []domain.SourceRecord) int64 {
	last := records[0].Offset
	for _, r := range records[1:] {
		last = max(last, r.Offset)
	}
	return last + 1
}

type topicGroup[T any] struct {
	topic string
	items []T
}

// groupByTopic keeps first-seen topic order and the order within a topic.
func groupByTopic[T any](items []T, topicOf func(T) string) []topicGroup[T] {
	var groups []topicGroup[T]
	index := make(map[string]int)
	for _, it := range items {
		topic := topicOf(it)
		i, ok := index[topic]
		if !ok {
			i = len(groups)
			index[topic] = i
			groups = append(groups, topicGroup[T]{topic: topic})
		}
		groups[i].items = append(groups[i].items, it)
	}
	return groups
}
