// Package metrics holds the Prometheus collectors for billing, customer
// propagation, analytics and the HTTP layer.
//
// All recording methods are safe on a nil *Metrics, so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kasirbill"

type Metrics struct {
	registry *prometheus.Registry

	billsCreated        prometheus.Counter
	billFailures        *prometheus.CounterVec
	billItems           prometheus.Counter
	stockOversold       prometheus.Counter
	snapshotPropagation prometheus.Counter
	analyticsQueries    *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		billsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_created_total",
			Help:      "Bills committed.",
		}),
		billFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_failures_total",
			Help:      "Bill creations rolled back, by reason.",
		}, []string{"reason"}),
		billItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_items_total",
			Help:      "Bill line items committed.",
		}),
		stockOversold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_oversold_total",
			Help:      "Stock decrements that left a product below zero.",
		}),
		snapshotPropagation: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_propagations_total",
			Help:      "Bills whose customer snapshot was rewritten after an identity change.",
		}),
		analyticsQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_queries_total",
			Help:      "Analytics queries by type and outcome.",
		}, []string{"type", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.billsCreated,
		m.billFailures,
		m.billItems,
		m.stockOversold,
		m.snapshotPropagation,
		m.analyticsQueries,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BillCreated(items int) {
	if m == nil {
		return
	}
	m.billsCreated.Inc()
	m.billItems.Add(float64(items))
}

func (m *Metrics) BillFailed(reason string) {
	if m == nil {
		return
	}
	m.billFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) StockOversold() {
	if m == nil {
		return
	}
	m.stockOversold.Inc()
}

func (m *Metrics) SnapshotsPropagated(bills int64) {
	if m == nil || bills <= 0 {
		return
	}
	m.snapshotPropagation.Add(float64(bills))
}

func (m *Metrics) AnalyticsQuery(analyticsType string, outcome string) {
	if m == nil {
		return
	}
	m.analyticsQueries.WithLabelValues(analyticsType, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
