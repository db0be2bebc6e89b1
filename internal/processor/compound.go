package processor

import (
	"context"

	"claimant-consumer/internal/domain"
)

// CompoundProcessor transforms then filters one insert or update.
type CompoundProcessor struct {
	transform *TransformProcessor
	filter    *FilterProcessor
}

func NewCompoundProcessor(transform *TransformProcessor, filter *FilterProcessor) *CompoundProcessor {
	return &CompoundProcessor{transform: transform, filter: filter}
}

func (p *CompoundProcessor) Process(ctx context.Context, in domain.Processed[domain.Extract]) domain.Outcome[domain.FilterResult] {
	transformed := p.transform.Process(ctx, in)
	if !transformed.OK() {
		return domain.Failed[domain.FilterResult](in.Record, transformed.Failure.Cause)
	}
	return p.filter.Process(ctx, transformed.Processed)
}
