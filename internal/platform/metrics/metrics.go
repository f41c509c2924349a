package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded by the channel registry.
const (
	DeliveryDelivered    = "delivered"
	DeliverySendFailed   = "send_failed"
	DeliveryNoSubscriber = "no_subscriber"
)

// Push outcomes recorded by the dispatcher.
const (
	PushSent        = "sent"
	PushFailed      = "failed"
	PushQueueFull   = "queue_full"
	PushCircuitOpen = "circuit_open"
)

// Metrics holds all Prometheus metrics for the application. All methods are
// safe on a nil receiver so components can run without instrumentation.
type Metrics struct {
	TransactionsInitiated prometheus.Counter
	TransactionsResolved  *prometheus.CounterVec
	Deliveries            *prometheus.CounterVec
	BindingReplacements   prometheus.Counter
	Bindings              prometheus.Gauge
	ActiveSubscribers     prometheus.Gauge
	PushDispatches        *prometheus.CounterVec
	PushDuration          prometheus.Histogram
	PushQueueDepth        prometheus.Gauge
	Enrollments           prometheus.Counter
	HTTPLatency           *prometheus.HistogramVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransactionsInitiated: f.NewCounter(prometheus.CounterOpts{
			Name: "pushgate_transactions_initiated_total",
			Help: "Total number of login transactions created",
		}),
		TransactionsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushgate_transactions_resolved_total",
			Help: "Total number of login transactions resolved, by status",
		}, []string{"status"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushgate_result_deliveries_total",
			Help: "Resolution results handed to subscriber channels, by outcome",
		}, []string{"outcome"}),
		BindingReplacements: f.NewCounter(prometheus.CounterOpts{
			Name: "pushgate_binding_replacements_total",
			Help: "Subscriber bindings superseded by a newer subscriber for the same transaction",
		}),
		Bindings: f.NewGauge(prometheus.GaugeOpts{
			Name: "pushgate_subscriber_bindings",
			Help: "Current number of transaction to subscriber bindings",
		}),
		ActiveSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "pushgate_active_subscriber_sessions",
			Help: "Current number of open subscriber sessions",
		}),
		PushDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pushgate_push_dispatches_total",
			Help: "Push notification dispatch attempts, by outcome",
		}, []string{"outcome"}),
		PushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pushgate_push_send_duration_seconds",
			Help:    "Latency of push sender calls",
			Buckets: prometheus.DefBuckets,
		}),
		PushQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pushgate_push_queue_depth",
			Help: "Push messages waiting for a dispatcher worker",
		}),
		Enrollments: f.NewCounter(prometheus.CounterOpts{
			Name: "pushgate_enrollments_total",
			Help: "Total number of approving devices enrolled",
		}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pushgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) IncTransactionsInitiated() {
	if m == nil {
		return
	}
	m.TransactionsInitiated.Inc()
}

func (m *Metrics) IncTransactionsResolved(status string) {
	if m == nil {
		return
	}
	m.TransactionsResolved.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncBindingReplacements() {
	if m == nil {
		return
	}
	m.BindingReplacements.Inc()
}

func (m *Metrics) SetBindings(n int) {
	if m == nil {
		return
	}
	m.Bindings.Set(float64(n))
}

func (m *Metrics) AddActiveSubscribers(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSubscribers.Add(delta)
}

func (m *Metrics) IncPushDispatch(outcome string) {
	if m == nil {
		return
	}
	m.PushDispatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePushDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PushDuration.Observe(seconds)
}

func (m *Metrics) SetPushQueueDepth(n int) {
	if m == nil {
		return
	}
	m.PushQueueDepth.Set(float64(n))
}

func (m *Metrics) IncEnrollments() {
	if m == nil {
		return
	}
	m.Enrollments.Inc()
}

func (m *Metrics) ObserveHTTPLatency(route, method string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(route, method).Observe(seconds)
}
