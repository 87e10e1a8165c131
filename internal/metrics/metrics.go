// Package metrics holds the Prometheus collectors shared by the gateway and
// the bot. Observers are no-ops until Init has been called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "acs_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	actionRequests *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec

	deviceSessions *prometheus.CounterVec

	vouchersProvisioned *prometheus.CounterVec

	pollFetches *prometheus.CounterVec
	pollUpdates *prometheus.CounterVec
	pollCursor  prometheus.Gauge
)

// Init registers the collectors on the default registry.
func Init() {
	registerOnce.Do(func() {
		actionRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "action_requests_total",
				Help: "Dispatched actions by action and result",
			},
			[]string{"action", "result"},
		)
		actionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "action_latency_seconds",
				Help:    "Action latency in seconds, session setup included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		)
		deviceSessions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_sessions_total",
				Help: "Router sessions opened by result",
			},
			[]string{"result"},
		)
		vouchersProvisioned = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "vouchers_provisioned_total",
				Help: "Voucher codes by provisioning outcome",
			},
			[]string{"outcome"},
		)
		pollFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_fetch_total",
				Help: "getUpdates calls by result",
			},
			[]string{"result"},
		)
		pollUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_updates_total",
				Help: "Inbound chat updates by kind and outcome",
			},
			[]string{"kind", "outcome"},
		)
		pollCursor = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "poll_cursor",
				Help: "Next update offset requested from the chat provider",
			},
		)

		prometheus.MustRegister(
			actionRequests,
			actionLatency,
			deviceSessions,
			vouchersProvisioned,
			pollFetches,
			pollUpdates,
			pollCursor,
		)
	})
}

// ObserveAction records one dispatched action.
func ObserveAction(action string, success bool, duration time.Duration) {
	if actionRequests != nil {
		actionRequests.WithLabelValues(action, result(success)).Inc()
	}
	if actionLatency != nil {
		actionLatency.WithLabelValues(action).Observe(duration.Seconds())
	}
}

// IncDeviceSession records one session open attempt.
func IncDeviceSession(success bool) {
	if deviceSessions != nil {
		deviceSessions.WithLabelValues(result(success)).Inc()
	}
}

// IncVoucher records the outcome of one generated code.
func IncVoucher(outcome string) {
	if vouchersProvisioned != nil {
		vouchersProvisioned.WithLabelValues(outcome).Inc()
	}
}

// IncPollFetch records one getUpdates call.
func IncPollFetch(success bool) {
	if pollFetches != nil {
		pollFetches.WithLabelValues(result(success)).Inc()
	}
}

// IncPollUpdate records the handling of one inbound update.
func IncPollUpdate(kind, outcome string) {
	if pollUpdates != nil {
		pollUpdates.WithLabelValues(kind, outcome).Inc()
	}
}

// SetPollCursor publishes the current cursor.
func SetPollCursor(offset int64) {
	if pollCursor != nil {
		pollCursor.Set(float64(offset))
	}
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultError
}
