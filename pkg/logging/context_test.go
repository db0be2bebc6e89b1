package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, GetLogFields(context.Background()))
	})

	t.Run("batch and partition", func(t *testing.T) {
		ctx := WithBatchID(context.Background(), "b-1")
		ctx = WithPartition(ctx, "db.core.claimant", 3)

		fields := GetLogFields(ctx)
		assert.Equal(t, []interface{}{
			"batch_id", "b-1",
			"topic", "db.core.claimant",
			"partition", int32(3),
		}, fields)
	})

	t.Run("trace and service", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "abc")
		ctx = WithServiceName(ctx, "claimant-consumer")

		fields := GetLogFields(ctx)
		assert.Equal(t, []interface{}{"trace_id", "abc", "service_name", "claimant-consumer"}, fields)
	})
}

func TestEarlyLogFatalExits(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	l := &EarlyLog{out: &buf, exit: func(c int) { code = c }}

	l.Fatal("config %s missing", "x.yaml")

	assert.Equal(t, 1, code)
	assert.Equal(t, "FATAL: config x.yaml missing\n", buf.String())
}
