package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OpenTelemetryExporter exports cache metrics through an OpenTelemetry meter.
// Like the Prometheus exporter it converts cumulative stats snapshots into
// deltas before feeding the counters.
type OpenTelemetryExporter struct {
	config *Config
	meter  metric.Meter
	ctx    context.Context

	hitsCounter          metric.Int64Counter
	missesCounter        metric.Int64Counter
	evictionsCounter     metric.Int64Counter
	invalidationsCounter metric.Int64Counter
	operationsCounter    metric.Int64Counter

	operationDuration metric.Float64Histogram

	keysGauge     metric.Int64Gauge
	inFlightGauge metric.Int64Gauge
	hitRateGauge  metric.Float64Gauge

	prevMu sync.Mutex
	prev   map[string]statsSnapshot

	mu               sync.Mutex
	customCounters   map[string]metric.Int64Counter
	customHistograms map[string]metric.Float64Histogram
	customGauges     map[string]metric.Float64Gauge
}

// OpenTelemetryConfig holds OpenTelemetry-specific configuration.
type OpenTelemetryConfig struct {
	// Meter creates the metric instruments. Required.
	Meter metric.Meter

	// Context for instrument recordings.
	Context context.Context

	// DefaultAttributes are attached to every recording.
	DefaultAttributes []attribute.KeyValue
}

// NewOpenTelemetryExporter creates an OpenTelemetry metrics exporter.
func NewOpenTelemetryExporter(config *Config, otelConfig *OpenTelemetryConfig) (*OpenTelemetryExporter, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if otelConfig == nil || otelConfig.Meter == nil {
		return nil, fmt.Errorf("opentelemetry meter is required")
	}

	ctx := otelConfig.Context
	if ctx == nil {
		ctx = context.Background()
	}

	e := &OpenTelemetryExporter{
		config:           config,
		meter:            otelConfig.Meter,
		ctx:              ctx,
		prev:             make(map[string]statsSnapshot),
		customCounters:   make(map[string]metric.Int64Counter),
		customHistograms: make(map[string]metric.Float64Histogram),
		customGauges:     make(map[string]metric.Float64Gauge),
	}

	if err := e.createStandardMetrics(); err != nil {
		return nil, fmt.Errorf("create standard metrics: %w", err)
	}

	return e, nil
}

func (o *OpenTelemetryExporter) createStandardMetrics() error {
	names := o.config.MetricNames
	var err error

	o.hitsCounter, err = o.meter.Int64Counter(
		names.CacheHitsTotal,
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.missesCounter, err = o.meter.Int64Counter(
		names.CacheMissesTotal,
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.evictionsCounter, err = o.meter.Int64Counter(
		names.CacheEvictionsTotal,
		metric.WithDescription("Total number of cache evictions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.invalidationsCounter, err = o.meter.Int64Counter(
		names.CacheInvalidationsTotal,
		metric.WithDescription("Total number of keys removed by invalidation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.operationsCounter, err = o.meter.Int64Counter(
		names.CacheOperationsTotal,
		metric.WithDescription("Total number of cache operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	if o.config.IncludeDetailedTimings {
		o.operationDuration, err = o.meter.Float64Histogram(
			names.CacheOperationDuration,
			metric.WithDescription("Cache operation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			return err
		}
	}

	o.keysGauge, err = o.meter.Int64Gauge(
		names.CacheKeysCount,
		metric.WithDescription("Current number of keys in the cache"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.inFlightGauge, err = o.meter.Int64Gauge(
		names.CacheInFlightRequests,
		metric.WithDescription("Current number of in-flight computations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	o.hitRateGauge, err = o.meter.Float64Gauge(
		names.CacheHitRate,
		metric.WithDescription("Cache hit rate as a percentage"),
		metric.WithUnit("%"),
	)
	if err != nil {
		return err
	}

	return nil
}

// ExportStats exports a statistics snapshot.
func (o *OpenTelemetryExporter) ExportStats(stats Stats, labels Labels) error {
	attrs := o.convertLabels(labels)
	opts := metric.WithAttributes(attrs...)

	cur := statsSnapshot{
		hits:          stats.Hits(),
		misses:        stats.Misses(),
		evictions:     stats.Evictions(),
		invalidations: stats.Invalidations(),
	}

	o.prevMu.Lock()
	last := o.prev[labels["cache_name"]]
	o.prev[labels["cache_name"]] = cur
	o.prevMu.Unlock()

	o.hitsCounter.Add(o.ctx, int64(counterDelta(cur.hits, last.hits)), opts)
	o.missesCounter.Add(o.ctx, int64(counterDelta(cur.misses, last.misses)), opts)
	o.evictionsCounter.Add(o.ctx, int64(counterDelta(cur.evictions, last.evictions)), opts)
	o.invalidationsCounter.Add(o.ctx, int64(counterDelta(cur.invalidations, last.invalidations)), opts)

	o.keysGauge.Record(o.ctx, stats.KeyCount(), opts)
	o.inFlightGauge.Record(o.ctx, stats.InFlight(), opts)
	o.hitRateGauge.Record(o.ctx, stats.HitRate(), opts)

	return nil
}

// RecordOperation records a cache operation with timing.
func (o *OpenTelemetryExporter) RecordOperation(operation Operation, duration time.Duration, labels Labels) error {
	attrs := o.convertLabels(labels)
	attrs = append(attrs, attribute.String("operation", string(operation)))
	opts := metric.WithAttributes(attrs...)

	o.operationsCounter.Add(o.ctx, 1, opts)
	if o.operationDuration != nil {
		o.operationDuration.Record(o.ctx, duration.Seconds(), opts)
	}

	return nil
}

// IncrementCounter increments a custom counter, creating it on first use.
func (o *OpenTelemetryExporter) IncrementCounter(name string, labels Labels) error {
	o.mu.Lock()
	counter, ok := o.customCounters[name]
	if !ok {
		var err error
		counter, err = o.meter.Int64Counter(name, metric.WithUnit("1"))
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("create counter %s: %w", name, err)
		}
		o.customCounters[name] = counter
	}
	o.mu.Unlock()

	counter.Add(o.ctx, 1, metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// RecordHistogram records a value in a custom histogram, creating it on first use.
func (o *OpenTelemetryExporter) RecordHistogram(name string, value float64, labels Labels) error {
	o.mu.Lock()
	histogram, ok := o.customHistograms[name]
	if !ok {
		var err error
		histogram, err = o.meter.Float64Histogram(name, metric.WithUnit("1"))
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("create histogram %s: %w", name, err)
		}
		o.customHistograms[name] = histogram
	}
	o.mu.Unlock()

	histogram.Record(o.ctx, value, metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// SetGauge sets a custom gauge, creating it on first use.
func (o *OpenTelemetryExporter) SetGauge(name string, value float64, labels Labels) error {
	o.mu.Lock()
	gauge, ok := o.customGauges[name]
	if !ok {
		var err error
		gauge, err = o.meter.Float64Gauge(name, metric.WithUnit("1"))
		if err != nil {
			o.mu.Unlock()
			return fmt.Errorf("create gauge %s: %w", name, err)
		}
		o.customGauges[name] = gauge
	}
	o.mu.Unlock()

	gauge.Record(o.ctx, value, metric.WithAttributes(o.convertLabels(labels)...))
	return nil
}

// Close is a no-op: the meter provider's lifecycle belongs to the caller.
func (o *OpenTelemetryExporter) Close() error {
	return nil
}

func (o *OpenTelemetryExporter) convertLabels(labels Labels) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+len(o.config.Labels))
	for k, v := range o.config.Labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

var _ Exporter = (*OpenTelemetryExporter)(nil)
