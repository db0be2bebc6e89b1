package processor

import (
	"context"

	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/filtering"
	"claimant-consumer/internal/logger"
)

type FilterProcessor struct {
	policies *filtering.Registry
	logger   logger.Logger
}

func NewFilterProcessor(policies *filtering.Registry, log logger.Logger) *FilterProcessor {
	return &FilterProcessor{policies: policies, logger: log}
}

// Process never fails. Suppressed records come back with PassThrough unset.
func (p *FilterProcessor) Process(ctx context.Context, in domain.Processed[domain.TransformationResult]) domain.Outcome[domain.FilterResult] {
	d := p.policies.Admit(ctx, in.Record.Topic, in.Value)
	if !d.Pass {
		p.logger.InfowCtx(ctx, "record suppressed",
			"record_topic", in.Record.Topic,
			"offset", in.Record.Offset,
			"reason", d.Reason,
		)
	}

	return domain.Succeeded(in.Record, domain.FilterResult{
		TransformationResult: in.Value,
		PassThrough:          d.Pass,
	})
}
