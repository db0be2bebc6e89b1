package target

import (
	"context"

	"claimant-consumer/internal/domain"
	"claimant-consumer/internal/logger"
)

// LogFailureTarget only records failures in the log.
type LogFailureTarget struct {
	logger logger.Logger
}

func NewLogFailureTarget(log logger.Logger) *LogFailureTarget {
	return &LogFailureTarget{logger: log}
}

func (t *LogFailureTarget) Send(ctx context.Context, failures []domain.Failure) error {
	for _, f := range failures {
		d := describe(f)
		t.logger.ErrorwCtx(ctx, "record failed",
			"record_topic", d.Topic,
			"record_partition", f.Record.Partition,
			"offset", f.Record.Offset,
			"code", d.Code,
			"error", d.Reason,
		)
	}
	return nil
}
