// Package metrics exposes Prometheus metrics for transport calls, record
// building and validation diagnostics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

const namespace = "sheetjson"

// Outcome label values.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics holds the collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	transportCalls   *prometheus.CounterVec
	transportLatency *prometheus.HistogramVec
	diagnostics      *prometheus.CounterVec
	records          *prometheus.CounterVec
}

// New creates the collectors in a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_calls_total",
			Help:      "Transport calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		transportLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transport_call_duration_seconds",
			Help:      "Latency of transport calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Validation diagnostics by kind.",
		}, []string{"kind"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_built_total",
			Help:      "Records built per table.",
		}, []string{"table"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transportCalls,
		m.transportLatency,
		m.diagnostics,
		m.records,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRecords counts n records built for table.
func (m *Metrics) ObserveRecords(table string, n int) {
	if n > 0 {
		m.records.WithLabelValues(table).Add(float64(n))
	}
}

// RegisterLimiter exports the limiter's slot usage as gauges.
func (m *Metrics) RegisterLimiter(l *core.FetchLimiter) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_slots_active",
			Help:      "Transport calls currently holding a slot.",
		}, func() float64 { return float64(l.Status().Active) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetch_slots_available",
			Help:      "Free transport slots.",
		}, func() float64 { return float64(l.Status().Available) }),
	)
}

// Reporter counts diagnostics by kind.
func (m *Metrics) Reporter() core.Reporter {
	return core.ReporterFunc(func(_ context.Context, d core.Diagnostic) {
		m.diagnostics.WithLabelValues(string(d.Kind)).Inc()
	})
}

// InstrumentTransport wraps t so every call is counted and timed.
func (m *Metrics) InstrumentTransport(t core.Transport) core.Transport {
	return &instrumented{next: t, m: m}
}

type instrumented struct {
	next core.Transport
	m    *Metrics
}

func (i *instrumented) Metadata(ctx context.Context, spreadsheetID string) (core.Metadata, error) {
	start := time.Now()
	md, err := i.next.Metadata(ctx, spreadsheetID)
	i.observe("metadata", start, err)
	return md, err
}

func (i *instrumented) Values(ctx context.Context, spreadsheetID string, rng core.Range) (core.Grid, error) {
	start := time.Now()
	g, err := i.next.Values(ctx, spreadsheetID, rng)
	i.observe("values", start, err)
	return g, err
}

func (i *instrumented) BatchValues(ctx context.Context, spreadsheetID string, ranges []core.Range) ([]core.Grid, error) {
	start := time.Now()
	gs, err := i.next.BatchValues(ctx, spreadsheetID, ranges)
	i.observe("batch_values", start, err)
	return gs, err
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	i.m.transportCalls.WithLabelValues(op, outcome).Inc()
	i.m.transportLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
