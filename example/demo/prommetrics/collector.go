// Package prommetrics implements the lending metrics contract on Prometheus,
// so the demo service can expose engine metrics on /metrics without pulling
// Prometheus into the core.
package prommetrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pkleindienst/library-lending-go/lending"
)

// Collector implements lending.MetricsCollector backed by a Prometheus
// registry. Instruments are created lazily per metric name; the label set of
// the first observation fixes the vector's label names, matching how the
// engine emits each metric with a stable label shape.
type Collector struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewCollector creates a collector registering its instruments with the given
// registerer.
func NewCollector(registerer prometheus.Registerer) *Collector {
	return &Collector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// RecordDuration records an operation duration in seconds.
func (c *Collector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	histogram, exists := c.histograms[metric]
	if !exists {
		histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metric + "_seconds",
			Help:    "Duration of " + metric,
			Buckets: prometheus.DefBuckets,
		}, labelNames(labels))

		if err := c.registerer.Register(histogram); err != nil {
			c.mu.Unlock()
			return
		}

		c.histograms[metric] = histogram
	}
	c.mu.Unlock()

	histogram.With(labels).Observe(duration.Seconds())
}

// IncrementCounter increments a counter by one.
func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	counter, exists := c.counters[metric]
	if !exists {
		counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metric + "_total",
			Help: "Count of " + metric,
		}, labelNames(labels))

		if err := c.registerer.Register(counter); err != nil {
			c.mu.Unlock()
			return
		}

		c.counters[metric] = counter
	}
	c.mu.Unlock()

	counter.With(labels).Inc()
}

// RecordValue records a current value.
func (c *Collector) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	gauge, exists := c.gauges[metric]
	if !exists {
		gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metric,
			Help: "Current value of " + metric,
		}, labelNames(labels))

		if err := c.registerer.Register(gauge); err != nil {
			c.mu.Unlock()
			return
		}

		c.gauges[metric] = gauge
	}
	c.mu.Unlock()

	gauge.With(labels).Set(value)
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

var _ lending.MetricsCollector = (*Collector)(nil)
