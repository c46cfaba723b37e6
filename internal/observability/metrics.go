package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	TransactionCredit = "credit"
	TransactionDebit  = "debit"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is a
// no-op so tests can pass handlers a bare zero dependency.
type Metrics struct {
	registry          *prometheus.Registry
	requestDuration   *prometheus.HistogramVec
	transactionsTotal *prometheus.CounterVec
	insufficientTotal prometheus.Counter
	grantsTotal       prometheus.Counter
	grantFailures     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
		transactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Committed ledger transactions by kind.",
			},
			[]string{"kind"},
		),
		insufficientTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_insufficient_balance_total",
				Help: "Debits rejected for insufficient balance.",
			},
		),
		grantsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_allocation_grants_total",
				Help: "Credits granted by allocation runs.",
			},
		),
		grantFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_allocation_failures_total",
				Help: "Allocation grants that failed and were skipped over.",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	fn := func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		m.requestDuration.
			WithLabelValues(r.Method, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	}
	return http.HandlerFunc(fn)
}

func (m *Metrics) CountTransaction(kind string) {
	if m == nil {
		return
	}
	m.transactionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) CountInsufficientBalance() {
	if m == nil {
		return
	}
	m.insufficientTotal.Inc()
}

func (m *Metrics) CountAllocationRun(granted, failed int) {
	if m == nil {
		return
	}
	m.grantsTotal.Add(float64(granted))
	m.grantFailures.Add(float64(failed))
}
