package processor

import (
	"strings"

	"github.com/tidwall/gjson"

	"claimant-consumer/internal/decoder"
	"claimant-consumer/internal/domain"
	apperrors "claimant-consumer/pkg/errors"
)

// DeleteProcessor resolves the natural identifier of a delete.
type DeleteProcessor struct {
	idFields map[string]string
}

// NewDeleteProcessor takes the topic to message._id field mapping.
func NewDeleteProcessor(idFields map[string]string) *DeleteProcessor {
	return &DeleteProcessor{idFields: idFields}
}

func (p *DeleteProcessor) Process(in domain.Processed[domain.Extract]) domain.Outcome[domain.DeleteRequest] {
	field, ok := p.idFields[in.Record.Topic]
	if !ok || field == "" {
		return domain.Failed[domain.DeleteRequest](in.Record,
			apperrors.ErrMissingIdentifier.WithMessage("no identifier field configured for '%s'", in.Record.Topic))
	}

	id := decoder.NaturalID(gjson.GetBytes(in.Value.Document, "message"), field)
	if strings.TrimSpace(id) == "" {
		return domain.Failed[domain.DeleteRequest](in.Record,
			apperrors.ErrMissingIdentifier.WithMessage("message._id.%s is absent", field))
	}

	return domain.Succeeded(in.Record, domain.DeleteRequest{Record: in.Record, ID: id})
}
