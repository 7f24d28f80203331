package observability

import (
	"time"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	appendsTotal      *prometheus.CounterVec
	idempotentReplays *prometheus.CounterVec
	conflictRetries   *prometheus.CounterVec
	verifyFailures    *prometheus.CounterVec
	auditPublishFails prometheus.Counter
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of ledger operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		appendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_appends_total",
				Help: "Total entries appended, by ledger.",
			},
			[]string{"ledger"},
		),
		idempotentReplays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_idempotent_replays_total",
				Help: "Total appends answered from an existing dedupe key.",
			},
			[]string{"ledger"},
		),
		conflictRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_conflict_retries_total",
				Help: "Total chain-head write conflicts that were retried.",
			},
			[]string{"ledger"},
		),
		verifyFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_verify_failures_total",
				Help: "Total chain verifications that found an invalid entry.",
			},
			[]string{"kind"},
		),
		auditPublishFails: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_audit_publish_failures_total",
				Help: "Total audit events that could not be published.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrAppend increments the append counter for one ledger.
func (m *Metrics) IncrAppend(ledger string) {
	m.appendsTotal.WithLabelValues(ledger).Inc()
}

// IncrIdempotentReplay counts an append answered without a write.
func (m *Metrics) IncrIdempotentReplay(ledger string) {
	m.idempotentReplays.WithLabelValues(ledger).Inc()
}

// IncrConflictRetry counts a chain-head conflict that triggered a retry.
func (m *Metrics) IncrConflictRetry(ledger string) {
	m.conflictRetries.WithLabelValues(ledger).Inc()
}

// IncrVerifyFailure counts a verification that found tampering.
func (m *Metrics) IncrVerifyFailure(kind string) {
	m.verifyFailures.WithLabelValues(kind).Inc()
}

// IncrAuditPublishFailure counts a failed audit event publish.
func (m *Metrics) IncrAuditPublishFailure() {
	m.auditPublishFails.Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetOpsSnapshot returns a snapshot of ledger counters for the
// GET /v1/ops/snapshot endpoint.
func (m *Metrics) GetOpsSnapshot() *domain.OpsSnapshot {
	journalAppends := getCounterValue(m.appendsTotal, "journal")
	categoryAppends := getCounterValue(m.appendsTotal, "category")
	transfers := getCounterValue(m.appendsTotal, "designated_transfer")
	replays := getCounterValue(m.idempotentReplays, "journal")
	conflicts := getCounterValue(m.conflictRetries, "journal") +
		getCounterValue(m.conflictRetries, "category")
	verifyFailures := getCounterValue(m.verifyFailures, "journal") +
		getCounterValue(m.verifyFailures, "category")

	replayRate := float64(0)
	if journalAppends+replays > 0 {
		replayRate = replays / (journalAppends + replays)
	}

	return &domain.OpsSnapshot{
		JournalAppends:       int64(journalAppends),
		CategoryAppends:      int64(categoryAppends),
		DesignatedTransfers:  int64(transfers),
		IdempotentReplays:    int64(replays),
		ConflictRetries:      int64(conflicts),
		VerifyFailures:       int64(verifyFailures),
		AuditPublishFailures: int64(getSingleCounterValue(m.auditPublishFails)),
		ReplayRate:           replayRate,
		Period:               "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getSingleCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
