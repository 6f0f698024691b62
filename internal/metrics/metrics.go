// Package metrics holds the Prometheus collectors for contract invocations,
// ledger progress, event delivery, archiving, and the HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"distributor/pkg/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "distributor_build_info",
			Help: "Build information of the distributor host",
		},
		[]string{"version", "commit", "date"},
	)

	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_invocations_total",
			Help: "Total number of contract invocations",
		},
		[]string{"function", "status"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distributor_invocation_duration_seconds",
			Help:    "Duration of contract invocations, including commit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~0.8s
		},
		[]string{"function"},
	)

	ContractErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_contract_errors_total",
			Help: "Total number of coded contract errors returned by invocations",
		},
		[]string{"function", "code", "name"},
	)

	LedgerHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_ledger_height",
			Help: "Current ledger sequence number",
		},
	)

	ExpiringEntriesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributor_expiring_entries_swept_total",
			Help: "Total number of expiring-tier entries dropped at ledger close",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_events_published_total",
			Help: "Total number of contract events published by committed invocations",
		},
		[]string{"topic"},
	)

	SinkDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_sink_deliveries_total",
			Help: "Total number of event batch deliveries per sink",
		},
		[]string{"sink", "status"},
	)

	ArchiveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_archive_writes_total",
			Help: "Total number of blobs written to the archive",
		},
		[]string{"kind", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "distributor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "distributor_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "distributor_http_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		},
	)
)

// Invocation outcome labels.
const (
	StatusOK            = "ok"
	StatusContractError = "contract_error"
	StatusRuleViolation = "rule_violation"
	StatusError         = "error"
)

func statusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	if _, ok := domain.AsContractError(err); ok {
		return StatusContractError
	}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		return StatusRuleViolation
	}
	return StatusError
}

// RecordInvocation records the outcome and latency of one contract invocation.
func RecordInvocation(function string, duration time.Duration, err error) {
	InvocationsTotal.WithLabelValues(function, statusOf(err)).Inc()
	InvocationDuration.WithLabelValues(function).Observe(duration.Seconds())
	if ce, ok := domain.AsContractError(err); ok {
		ContractErrorsTotal.WithLabelValues(function, strconv.FormatUint(uint64(ce.Code), 10), ce.Name).Inc()
	}
}

// RecordLedgerClose records the height reached and the entries swept.
func RecordLedgerClose(closed domain.LedgerClose) {
	LedgerHeight.Set(float64(closed.Height))
	ExpiringEntriesSwept.Add(float64(closed.Swept))
}

// RecordEvents counts published events by topic.
func RecordEvents(events []domain.Event) {
	for _, e := range events {
		EventsPublishedTotal.WithLabelValues(e.Topic).Inc()
	}
}

// RecordSinkDelivery records one sink delivery attempt.
func RecordSinkDelivery(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SinkDeliveriesTotal.WithLabelValues(sink, status).Inc()
}

// RecordArchiveWrite records one archive blob write.
func RecordArchiveWrite(kind string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ArchiveWritesTotal.WithLabelValues(kind, status).Inc()
}

// Middleware records request counts and latency keyed by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
