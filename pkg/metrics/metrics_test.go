package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() { Register(reg) })
	assert.Panics(t, func() { Register(reg) })
}

func TestIncRecords(t *testing.T) {
	before := testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics.test", OutcomeUpserted))

	IncRecords("metrics.test", OutcomeUpserted, 3)
	IncRecords("metrics.test", OutcomeUpserted, 0)

	assert.Equal(t, before+3, testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics.test", OutcomeUpserted)))
}

func TestObserveCommit(t *testing.T) {
	ObserveCommit("metrics.commit", 4, 101)

	assert.Equal(t, float64(101), testutil.ToFloat64(CommittedOffset.WithLabelValues("metrics.commit", "4")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(PartitionCommitsTotal.WithLabelValues("metrics.commit")), float64(1))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", Status(nil))
	assert.Equal(t, "error", Status(errors.New("x")))
}
