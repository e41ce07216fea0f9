package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcopysurge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adcopysurge_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	CreditsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcopysurge_credits_consumed_total",
			Help: "Credits deducted from accounts, by operation kind",
		},
		[]string{"kind"},
	)

	CreditsRefundedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcopysurge_credits_refunded_total",
			Help: "Credits returned to accounts, by operation kind",
		},
		[]string{"kind"},
	)

	DeductRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_deduct_rejections_total",
			Help: "Deduct attempts rejected for insufficient credits",
		},
	)

	LedgerRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_ledger_retries_total",
			Help: "Ledger operations retried after a transient database conflict",
		},
	)

	LedgerLockTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_ledger_lock_timeouts_total",
			Help: "Ledger operations abandoned after exhausting lock retries",
		},
	)

	InvariantViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_ledger_invariant_violations_total",
			Help: "Detected ledger invariant violations (negative balance, drift)",
		},
	)

	MonthlyResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_monthly_resets_total",
			Help: "Monthly allowance resets applied",
		},
	)

	RefundFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_refund_failures_total",
			Help: "Compensating refunds that failed and need manual reconciliation",
		},
	)

	BalanceCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_balance_cache_hits_total",
			Help: "Balance reads served from cache",
		},
	)

	BalanceCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "adcopysurge_balance_cache_misses_total",
			Help: "Balance reads that fell through to the database",
		},
	)

	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcopysurge_analyses_total",
			Help: "Analysis runs, by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcopysurge_emails_sent_total",
			Help: "Total number of emails sent",
		},
		[]string{"type", "status"},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adcopysurge_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordConsume(kind string, credits int64) {
	CreditsConsumedTotal.WithLabelValues(kind).Add(float64(credits))
}

func RecordRefund(kind string, credits int64) {
	CreditsRefundedTotal.WithLabelValues(kind).Add(float64(credits))
}

func RecordDeductRejection() {
	DeductRejectionsTotal.Inc()
}

func RecordLedgerRetry() {
	LedgerRetriesTotal.Inc()
}

func RecordLockTimeout() {
	LedgerLockTimeoutsTotal.Inc()
}

func RecordInvariantViolation() {
	InvariantViolationsTotal.Inc()
}

func RecordMonthlyReset() {
	MonthlyResetsTotal.Inc()
}

func RecordRefundFailure() {
	RefundFailuresTotal.Inc()
}

func RecordCacheHit() {
	BalanceCacheHitsTotal.Inc()
}

func RecordCacheMiss() {
	BalanceCacheMissesTotal.Inc()
}

func RecordAnalysis(kind, status string) {
	AnalysesTotal.WithLabelValues(kind, status).Inc()
}

func RecordEmail(emailType, status string) {
	EmailsSentTotal.WithLabelValues(emailType, status).Inc()
}
