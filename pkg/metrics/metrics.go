package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Record outcomes.
const (
	OutcomeUpserted   = "upserted"
	OutcomeDeleted    = "deleted"
	OutcomeSuppressed = "suppressed"
	OutcomeSuperseded = "superseded"
	OutcomeFailed     = "failed"
)

var (
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_records_total",
			Help: "Records processed, by source topic and outcome (count)",
		},
		[]string{"topic", "outcome"},
	)

	RecordFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_record_failures_total",
			Help: "Records routed to the failure target, by failure code (count)",
		},
		[]string{"topic", "code"},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_polls_total",
			Help: "Poll cycles, by result (count)",
		},
		[]string{"result"},
	)

	PollBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cdc_poll_batch_size",
			Help:    "Records returned by one poll",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	PartitionCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_partition_commits_total",
			Help: "Partition offset commits (count)",
		},
		[]string{"topic"},
	)

	PartitionRollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdc_partition_rollbacks_total",
			Help: "Partitions rolled back to their last committed offset (count)",
		},
		[]string{"topic"},
	)

	CommittedOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cdc_committed_offset",
			Help: "Last committed offset per partition",
		},
		[]string{"topic", "partition"},
	)

	PartitionBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdc_partition_batch_duration_ms",
			Help:    "Time to process and deliver one partition batch in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"topic", "result"},
	)

	OrchestratorState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cdc_orchestrator_state",
			Help: "Orchestrator state (0=created, 1=running, 2=stopping, 3=stopped)",
		},
	)

	KeyServiceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_service_requests_total",
			Help: "Key service calls, by operation and status (count)",
		},
		[]string{"operation", "status"},
	)

	KeyServiceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "key_service_duration_ms",
			Help:    "Key service call duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"operation"},
	)

	KeyCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_cache_lookups_total",
			Help: "Resolved data key cache lookups (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	TargetSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "target_sends_total",
			Help: "Target calls, by target, operation and status (count)",
		},
		[]string{"target", "operation", "status"},
	)

	TargetSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "target_send_duration_ms",
			Help:    "Target call duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"target", "operation"},
	)

	OpsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_requests_total",
			Help: "Operations server requests, by rate limit decision (count)",
		},
		[]string{"decision"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RecordsTotal,
		RecordFailuresTotal,
		PollsTotal,
		PollBatchSize,
		PartitionCommitsTotal,
		PartitionRollbacksTotal,
		CommittedOffset,
		PartitionBatchDuration,
		OrchestratorState,
		KeyServiceRequestsTotal,
		KeyServiceDuration,
		KeyCacheLookupsTotal,
		RetryAttemptsTotal,
		TargetSendsTotal,
		TargetSendDuration,
		OpsRequestsTotal,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(collectors()...)
}

func IncRecords(topic, outcome string, n int) {
	if n == 0 {
		return
	}
	RecordsTotal.WithLabelValues(topic, outcome).Add(float64(n))
}

func IncRecordFailure(topic, code string) {
	RecordFailuresTotal.WithLabelValues(topic, code).Inc()
}

func ObservePoll(result string, records int) {
	PollsTotal.WithLabelValues(result).Inc()
	PollBatchSize.Observe(float64(records))
}

func ObserveCommit(topic string, partition int32, offset int64) {
	PartitionCommitsTotal.WithLabelValues(topic).Inc()
	CommittedOffset.WithLabelValues(topic, strconv.Itoa(int(partition))).Set(float64(offset))
}

func IncRollback(topic string) {
	PartitionRollbacksTotal.WithLabelValues(topic).Inc()
}

func ObservePartitionBatch(topic, result string, duration time.Duration) {
	PartitionBatchDuration.WithLabelValues(topic, result).Observe(float64(duration.Milliseconds()))
}

func SetOrchestratorState(state int) {
	OrchestratorState.Set(float64(state))
}

func ObserveKeyService(operation, status string, duration time.Duration) {
	KeyServiceRequestsTotal.WithLabelValues(operation, status).Inc()
	KeyServiceDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncKeyCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	KeyCacheLookupsTotal.WithLabelValues(result).Inc()
}

func IncRetryAttempt(operation string) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

func ObserveTargetSend(target, operation, status string, duration time.Duration) {
	TargetSendsTotal.WithLabelValues(target, operation, status).Inc()
	TargetSendDuration.WithLabelValues(target, operation).Observe(float64(duration.Milliseconds()))
}

func IncOpsRequest(allowed bool) {
	decision := "limited"
	if allowed {
		decision = "allowed"
	}
	OpsRequestsTotal.WithLabelValues(decision).Inc()
}

// Status maps an error to the status label used across counters.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
