package processor

import (
	"context"

	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/keyservice"
)

// RecordDecoder is the first stage of the pipeline.
type RecordDecoder interface {
	Process(ctx context.Context, rec domain.SourceRecord) domain.Outcome[domain.Extract]
}

// Result is everything a partition batch produced, ready for delivery.
type Result struct {
	Deletes    []domain.DeleteRequest
	Upserts    []domain.Processed[domain.TransformationResult]
	Suppressed []domain.SourceRecord
	// Superseded holds deletes and upserts overtaken by a later action on the
	// same natural id within the batch.
	Superseded []domain.SourceRecord
	Failures   []domain.Failure
}

// Pipeline runs every stage over the records of one partition, in order.
type Pipeline struct {
	decoder  RecordDecoder
	deletes  *DeleteProcessor
	compound *CompoundProcessor
}

func NewPipeline(decoder RecordDecoder, deletes *DeleteProcessor, compound *CompoundProcessor) *Pipeline {
	return &Pipeline{decoder: decoder, deletes: deletes, compound: compound}
}

// Run processes records sequentially. Record level problems end up in
// Result.Failures. An error is returned only when the key service is
// unreachable, since every later record would fail the same way.
func (p *Pipeline) Run(ctx context.Context, records []domain.SourceRecord) (Result, error) {
	var res Result

	extracts := make([]domain.Processed[domain.Extract], 0, len(records))
	for _, rec := range records {
		out := p.decoder.Process(ctx, rec)
		if !out.OK() {
			if keyservice.IsUnavailable(out.Failure.Cause) {
				return Result{}, out.Failure
			}
			res.Failures = append(res.Failures, *out.Failure)
			continue
		}
		extracts = append(extracts, out.Processed)
	}

	deletes, upserts := SplitActions(extracts)

	for _, e := range deletes {
		out := p.deletes.Process(e)
		if !out.OK() {
			res.Failures = append(res.Failures, *out.Failure)
			continue
		}
		res.Deletes = append(res.Deletes, out.Value)
	}

	for _, e := range upserts {
		out := p.compound.Process(ctx, e)
		switch {
		case !out.OK():
			if keyservice.IsUnavailable(out.Failure.Cause) {
				return Result{}, out.Failure
			}
			res.Failures = append(res.Failures, *out.Failure)
		case out.Value.PassThrough:
			res.Upserts = append(res.Upserts, domain.Processed[domain.TransformationResult]{
				Record: out.Record,
				Value:  out.Value.TransformationResult,
			})
		default:
			res.Suppressed = append(res.Suppressed, out.Record)
		}
	}

	res.keepLatest()
	return res, nil
}

type rowKey struct {
	topic string
	id    string
}

// keepLatest leaves one action per natural id, the one with the highest
// offset, so upserts and deletes can be sent as separate groups and still
// end in the state of the last record.
func (r *Result) keepLatest() {
	latest := make(map[rowKey]int64, len(r.Deletes)+len(r.Upserts))
	see := func(k rowKey, offset int64) {
		if cur, ok := latest[k]; !ok || offset > cur {
			latest[k] = offset
		}
	}
	for _, d := range r.Deletes {
		see(rowKey{d.Record.Topic, d.ID}, d.Record.Offset)
	}
	for _, u := range r.Upserts {
		see(rowKey{u.Record.Topic, u.Value.Extract.ID}, u.Record.Offset)
	}

	deletes := r.Deletes[:0]
	for _, d := range r.Deletes {
		if latest[rowKey{d.Record.Topic, d.ID}] != d.Record.Offset {
			r.Superseded = append(r.Superseded, d.Record)
			continue
		}
		deletes = append(deletes, d)
	}
	r.Deletes = deletes

	upserts := r.Upserts[:0]
	for _, u := range r.Upserts {
		if latest[rowKey{u.Record.Topic, u.Value.Extract.ID}] != u.Record.Offset {
			r.Superseded = append(r.Superseded, u.Record)
			continue
		}
		upserts = append(upserts, u)
	}
	r.Upserts = upserts
}
