// Package metrics exposes Prometheus collectors for scans, cycle events,
// the price source and the HTTP surface.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rsi-cycle-tracker/cycle"
)

// Metrics holds all collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	ScansTotal     *prometheus.CounterVec // labels: outcome
	ScanDuration   prometheus.Histogram
	ScanSymbols    prometheus.Gauge
	SymbolErrors   prometheus.Counter
	AutoCloses     *prometheus.CounterVec // labels: trigger
	CycleEvents    *prometheus.CounterVec // labels: type
	BreakerState   prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	HTTPRequests   *prometheus.CounterVec // labels: method, route, status
	HTTPDuration   *prometheus.HistogramVec
	StreamClients  prometheus.Gauge
	WebhookFailure prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsitracker_scans_total",
			Help: "Scanner runs by outcome",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsitracker_scan_duration_seconds",
			Help:    "Scanner run latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ScanSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsitracker_scan_symbols",
			Help: "Symbols evaluated by the last scan",
		}),
		SymbolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsitracker_scan_symbol_errors_total",
			Help: "Scanner rows reported with an error",
		}),
		AutoCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsitracker_auto_closes_total",
			Help: "Cycles closed automatically by the scanner",
		}, []string{"trigger"}),
		CycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsitracker_cycle_events_total",
			Help: "Committed cycle events by type",
		}, []string{"type"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsitracker_price_source_breaker_state",
			Help: "Price source circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsitracker_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rsitracker_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsitracker_stream_clients",
			Help: "Connected SSE and WebSocket clients",
		}),
		WebhookFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsitracker_webhook_failures_total",
			Help: "Webhook deliveries that failed",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.ScanSymbols,
		m.SymbolErrors,
		m.AutoCloses,
		m.CycleEvents,
		m.BreakerState,
		m.HTTPRequests,
		m.HTTPDuration,
		m.StreamClients,
		m.WebhookFailure,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveScan records one scanner run.
func (m *Metrics) ObserveScan(d time.Duration, symbols, rowErrors int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(d.Seconds())
	if err == nil {
		m.ScanSymbols.Set(float64(symbols))
		m.SymbolErrors.Add(float64(rowErrors))
	}
}

// ObserveAutoClose counts an automatic close.
func (m *Metrics) ObserveAutoClose(trigger cycle.CloseTrigger) {
	if m == nil {
		return
	}
	m.AutoCloses.WithLabelValues(string(trigger)).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetBreakerState records the price source breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// StreamConnected adjusts the connected client gauge by delta.
func (m *Metrics) StreamConnected(delta int) {
	if m == nil {
		return
	}
	m.StreamClients.Add(float64(delta))
}

// WebhookFailed counts a failed webhook delivery.
func (m *Metrics) WebhookFailed() {
	if m == nil {
		return
	}
	m.WebhookFailure.Inc()
}

// Publish implements cycle.EventSink by counting events.
func (m *Metrics) Publish(_ context.Context, ev cycle.Event) {
	if m == nil {
		return
	}
	m.CycleEvents.WithLabelValues(string(ev.Type)).Inc()
}
