package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsClient is the metrics-recording contract shared by repositories,
// the context engine cache, and the delegation worker.
type MetricsClient interface {
	RecordCounter(name string, value float64, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	StartTimer(name string, labels map[string]string) func()
	Close() error
}

// PrometheusMetrics is the production MetricsClient.
type PrometheusMetrics struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates an empty registry shared by every component;
// each counter, gauge and histogram is registered on its first use. The
// namespace argument is not applied to metric names.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	m := &PrometheusMetrics{
		registry:   reg,
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
	return m
}

func (m *PrometheusMetrics) counter(name string, labels map[string]string) *prometheus.CounterVec {
	c, ok := m.counters[name]
	if !ok {
		labelNames := labelKeys(labels)
		c = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames)
		_ = m.registry.Register(c)
		m.counters[name] = c
	}
	return c
}

func (m *PrometheusMetrics) gauge(name string, labels map[string]string) *prometheus.GaugeVec {
	g, ok := m.gauges[name]
	if !ok {
		g = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(labels))
		_ = m.registry.Register(g)
		m.gauges[name] = g
	}
	return g
}

func (m *PrometheusMetrics) histogram(name string, labels map[string]string) *prometheus.HistogramVec {
	h, ok := m.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelKeys(labels))
		_ = m.registry.Register(h)
		m.histograms[name] = h
	}
	return h
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}

func (m *PrometheusMetrics) RecordCounter(name string, value float64, labels map[string]string) {
	m.counter(name, labels).With(labels).Add(value)
}

func (m *PrometheusMetrics) RecordGauge(name string, value float64, labels map[string]string) {
	m.gauge(name, labels).With(labels).Set(value)
}

func (m *PrometheusMetrics) RecordHistogram(name string, value float64, labels map[string]string) {
	m.histogram(name, labels).With(labels).Observe(value)
}

func (m *PrometheusMetrics) StartTimer(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		m.RecordHistogram(name+"_seconds", time.Since(start).Seconds(), labels)
	}
}

func (m *PrometheusMetrics) Close() error { return nil }

// Registry exposes the underlying prometheus.Registry for an HTTP /metrics handler.
func (m *PrometheusMetrics) Registry() *prometheus.Registry { return m.registry }

// NoopMetrics discards all recordings; used in tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordCounter(string, float64, map[string]string)   {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)     {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string) {}
func (NoopMetrics) StartTimer(string, map[string]string) func()        { return func() {} }
func (NoopMetrics) Close() error                                       { return nil }
