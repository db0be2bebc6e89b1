package processor

import (
	"context"
	"strings"

	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/keyservice"
	"claimant-consumer/internal/transformer"
	apperrors "claimant-consumer/pkg/errors"
)

type TransformProcessor struct {
	registry *transformer.Registry
}

func NewTransformProcessor(registry *transformer.Registry) *TransformProcessor {
	return &TransformProcessor{registry: registry}
}

func (p *TransformProcessor) Process(ctx context.Context, in domain.Processed[domain.Extract]) domain.Outcome[domain.TransformationResult] {
	topic := in.Record.Topic

	t, ok := p.registry.Lookup(topic)
	if !ok {
		return domain.Failed[domain.TransformationResult](in.Record,
			apperrors.ErrNoTransformerConfigured.WithMessage("No transformer configured for '%s'.", topic))
	}

	if strings.TrimSpace(in.Value.ID) == "" {
		return domain.Failed[domain.TransformationResult](in.Record,
			apperrors.ErrMissingIdentifier.WithMessage("record for '%s' has no natural identifier", topic))
	}

	transformed, err := t.Transform(ctx, in.Value.Plaintext)
	if err != nil {
		if keyservice.IsUnavailable(err) {
			return domain.Failed[domain.TransformationResult](in.Record, err)
		}
		return domain.Failed[domain.TransformationResult](in.Record, apperrors.ErrTransformation.WithCause(err))
	}

	return domain.Succeeded(in.Record, domain.TransformationResult{
		Extract:     in.Value,
		Transformed: transformed,
	})
}
