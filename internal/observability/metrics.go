package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce                 sync.Once
	httpDurationHistogram        *prometheus.HistogramVec
	conservationViolationCounter prometheus.Counter
	idempotencyCounter           *prometheus.CounterVec
	rewardIssuedCounter          *prometheus.CounterVec
	withdrawalTransitionCounter  *prometheus.CounterVec
	workerRunCounter             *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		conservationViolationCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_conservation_violations_total",
			Help: "Number of sweeps where ledger totals failed to balance",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		rewardIssuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_issued_total",
			Help: "Reward credits issued by type",
		}, []string{"type"})

		withdrawalTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal state transitions by resulting status",
		}, []string{"status"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			conservationViolationCounter,
			idempotencyCounter,
			rewardIssuedCounter,
			withdrawalTransitionCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementConservationViolation() {
	if conservationViolationCounter == nil {
		return
	}
	conservationViolationCounter.Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementRewardIssued(rewardType string) {
	if rewardIssuedCounter == nil {
		return
	}
	rewardIssuedCounter.WithLabelValues(rewardType).Inc()
}

func IncrementWithdrawalTransition(status string) {
	if withdrawalTransitionCounter == nil {
		return
	}
	withdrawalTransitionCounter.WithLabelValues(status).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
