package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter exports cache metrics to a Prometheus registry.
//
// Stats counters are cumulative on the cache side, so the exporter keeps the
// last exported snapshot and feeds Prometheus the delta. Exporting the raw
// totals through Add would double-count on every reporting tick.
type PrometheusExporter struct {
	config   *Config
	registry prometheus.Registerer

	hitsTotal          *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	operationsTotal    *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec

	keysCount        *prometheus.GaugeVec
	inFlightRequests *prometheus.GaugeVec
	hitRate          *prometheus.GaugeVec

	// last exported snapshot, per cache name
	prevMu sync.Mutex
	prev   map[string]statsSnapshot

	// lazily created custom instruments
	mu               sync.Mutex
	customCounters   map[string]*prometheus.CounterVec
	customHistograms map[string]*prometheus.HistogramVec
	customGauges     map[string]*prometheus.GaugeVec
}

type statsSnapshot struct {
	hits          int64
	misses        int64
	evictions     int64
	invalidations int64
}

// PrometheusConfig holds Prometheus-specific configuration.
type PrometheusConfig struct {
	// Registry to register metrics with. Defaults to the global registerer.
	Registry prometheus.Registerer

	// DurationBuckets for the operation duration histogram.
	DurationBuckets []float64
}

// NewPrometheusExporter creates a Prometheus metrics exporter.
func NewPrometheusExporter(config *Config, promConfig *PrometheusConfig) (*PrometheusExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if promConfig == nil {
		promConfig = &PrometheusConfig{}
	}

	registry := promConfig.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	durationBuckets := promConfig.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	}

	constLabels := make(prometheus.Labels, len(config.Labels))
	for k, v := range config.Labels {
		constLabels[k] = v
	}

	e := &PrometheusExporter{
		config:           config,
		registry:         registry,
		prev:             make(map[string]statsSnapshot),
		customCounters:   make(map[string]*prometheus.CounterVec),
		customHistograms: make(map[string]*prometheus.HistogramVec),
		customGauges:     make(map[string]*prometheus.GaugeVec),
	}

	if err := e.createStandardMetrics(constLabels, durationBuckets); err != nil {
		return nil, fmt.Errorf("create standard metrics: %w", err)
	}

	return e, nil
}

func (p *PrometheusExporter) createStandardMetrics(constLabels prometheus.Labels, durationBuckets []float64) error {
	names := p.config.MetricNames
	baseLabels := []string{"cache_name"}

	var err error

	p.hitsTotal, err = p.newCounterVec(names.CacheHitsTotal, "Total number of cache hits.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.missesTotal, err = p.newCounterVec(names.CacheMissesTotal, "Total number of cache misses.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.evictionsTotal, err = p.newCounterVec(names.CacheEvictionsTotal, "Total number of cache evictions.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.invalidationsTotal, err = p.newCounterVec(names.CacheInvalidationsTotal, "Total number of keys removed by invalidation.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.operationsTotal, err = p.newCounterVec(names.CacheOperationsTotal, "Total number of cache operations.", append(baseLabels, "operation"), constLabels)
	if err != nil {
		return err
	}

	if p.config.IncludeDetailedTimings {
		p.operationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        names.CacheOperationDuration,
				Help:        "Cache operation duration in seconds.",
				ConstLabels: constLabels,
				Buckets:     durationBuckets,
			},
			append(baseLabels, "operation"),
		)
		if err := p.registry.Register(p.operationDuration); err != nil {
			return err
		}
	}

	p.keysCount, err = p.newGaugeVec(names.CacheKeysCount, "Current number of keys in the cache.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.inFlightRequests, err = p.newGaugeVec(names.CacheInFlightRequests, "Current number of in-flight computations.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	p.hitRate, err = p.newGaugeVec(names.CacheHitRate, "Cache hit rate as a percentage.", baseLabels, constLabels)
	if err != nil {
		return err
	}

	return nil
}

// ExportStats exports a statistics snapshot.
func (p *PrometheusExporter) ExportStats(stats Stats, labels Labels) error {
	base := baseLabels(labels)
	name := base["cache_name"]

	cur := statsSnapshot{
		hits:          stats.Hits(),
		misses:        stats.Misses(),
		evictions:     stats.Evictions(),
		invalidations: stats.Invalidations(),
	}

	p.prevMu.Lock()
	last := p.prev[name]
	p.prev[name] = cur
	p.prevMu.Unlock()

	p.hitsTotal.With(base).Add(counterDelta(cur.hits, last.hits))
	p.missesTotal.With(base).Add(counterDelta(cur.misses, last.misses))
	p.evictionsTotal.With(base).Add(counterDelta(cur.evictions, last.evictions))
	p.invalidationsTotal.With(base).Add(counterDelta(cur.invalidations, last.invalidations))

	p.keysCount.With(base).Set(float64(stats.KeyCount()))
	p.inFlightRequests.With(base).Set(float64(stats.InFlight()))
	p.hitRate.With(base).Set(stats.HitRate())

	return nil
}

// RecordOperation records a cache operation with timing.
func (p *PrometheusExporter) RecordOperation(operation Operation, duration time.Duration, labels Labels) error {
	opLabels := baseLabels(labels)
	opLabels["operation"] = string(operation)

	p.operationsTotal.With(opLabels).Inc()
	if p.operationDuration != nil {
		p.operationDuration.With(opLabels).Observe(duration.Seconds())
	}

	return nil
}

// IncrementCounter increments a custom counter, creating it on first use.
func (p *PrometheusExporter) IncrementCounter(name string, labels Labels) error {
	p.mu.Lock()
	counter, ok := p.customCounters[name]
	if !ok {
		var err error
		counter, err = p.newCounterVec(name, "Cache counter: "+name, labelNames(labels), nil)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("create counter %s: %w", name, err)
		}
		p.customCounters[name] = counter
	}
	p.mu.Unlock()

	counter.With(prometheus.Labels(labels)).Inc()
	return nil
}

// RecordHistogram records a value in a custom histogram, creating it on first use.
func (p *PrometheusExporter) RecordHistogram(name string, value float64, labels Labels) error {
	p.mu.Lock()
	histogram, ok := p.customHistograms[name]
	if !ok {
		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name,
				Help:    "Cache histogram: " + name,
				Buckets: prometheus.DefBuckets,
			},
			labelNames(labels),
		)
		if err := p.registry.Register(histogram); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("create histogram %s: %w", name, err)
		}
		p.customHistograms[name] = histogram
	}
	p.mu.Unlock()

	histogram.With(prometheus.Labels(labels)).Observe(value)
	return nil
}

// SetGauge sets a custom gauge, creating it on first use.
func (p *PrometheusExporter) SetGauge(name string, value float64, labels Labels) error {
	p.mu.Lock()
	gauge, ok := p.customGauges[name]
	if !ok {
		var err error
		gauge, err = p.newGaugeVec(name, "Cache gauge: "+name, labelNames(labels), nil)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("create gauge %s: %w", name, err)
		}
		p.customGauges[name] = gauge
	}
	p.mu.Unlock()

	gauge.With(prometheus.Labels(labels)).Set(value)
	return nil
}

// Close is a no-op: registered collectors live as long as the registry.
func (p *PrometheusExporter) Close() error {
	return nil
}

func (p *PrometheusExporter) newCounterVec(name, help string, labelNames []string, constLabels prometheus.Labels) (*prometheus.CounterVec, error) {
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		},
		labelNames,
	)
	if err := p.registry.Register(counter); err != nil {
		return nil, err
	}
	return counter, nil
}

func (p *PrometheusExporter) newGaugeVec(name, help string, labelNames []string, constLabels prometheus.Labels) (*prometheus.GaugeVec, error) {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		},
		labelNames,
	)
	if err := p.registry.Register(gauge); err != nil {
		return nil, err
	}
	return gauge, nil
}

// baseLabels keeps only the cache_name label; standard instruments are
// registered with a fixed label set and reject extras.
func baseLabels(labels Labels) prometheus.Labels {
	base := prometheus.Labels{"cache_name": ""}
	if name, ok := labels["cache_name"]; ok {
		base["cache_name"] = name
	}
	return base
}

func labelNames(labels Labels) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

func counterDelta(cur, last int64) float64 {
	if cur < last {
		// Counter reset upstream (cache recreated under the same name).
		return float64(cur)
	}
	return float64(cur - last)
}

var _ Exporter = (*PrometheusExporter)(nil)
