// Package metrics abstracts cache observability behind an Exporter
// interface so the cache core stays independent of any one metrics system.
// Prometheus and OpenTelemetry exporters are provided; NoOpExporter keeps
// the hot path free of nil checks when metrics are disabled.
package metrics

import (
	"time"
)

// Exporter receives cache statistics and per-operation timings.
type Exporter interface {
	// ExportStats exports a snapshot of the cache statistics.
	ExportStats(stats Stats, labels Labels) error

	// RecordOperation records an individual cache operation with timing.
	RecordOperation(operation Operation, duration time.Duration, labels Labels) error

	// IncrementCounter increments a named counter.
	IncrementCounter(name string, labels Labels) error

	// RecordHistogram records a value in a named histogram.
	RecordHistogram(name string, value float64, labels Labels) error

	// SetGauge sets a gauge value.
	SetGauge(name string, value float64, labels Labels) error

	// Close shuts down the exporter and flushes pending metrics.
	Close() error
}

// Labels are key-value pairs attached to exported metrics.
type Labels map[string]string

// Stats is the statistics surface the exporters consume. Any stats
// implementation with these accessors can be exported.
type Stats interface {
	Hits() int64
	Misses() int64
	Evictions() int64
	Invalidations() int64
	KeyCount() int64
	InFlight() int64
	HitRate() float64
}

// Operation identifies a cache operation for metric labelling.
type Operation string

const (
	OperationGet        Operation = "get"
	OperationSet        Operation = "set"
	OperationDelete     Operation = "delete"
	OperationInvalidate Operation = "invalidate"
	OperationCleanup    Operation = "cleanup"
	OperationCompute    Operation = "compute"
)

// MetricNames holds the metric names used by the standard exporters.
type MetricNames struct {
	CacheHitsTotal          string
	CacheMissesTotal        string
	CacheEvictionsTotal     string
	CacheInvalidationsTotal string
	CacheOperationsTotal    string

	CacheOperationDuration string

	CacheKeysCount        string
	CacheInFlightRequests string
	CacheHitRate          string
}

// DefaultMetricNames returns the default, namespaced metric names.
func DefaultMetricNames() MetricNames {
	return MetricNames{
		CacheHitsTotal:          "appcache_hits_total",
		CacheMissesTotal:        "appcache_misses_total",
		CacheEvictionsTotal:     "appcache_evictions_total",
		CacheInvalidationsTotal: "appcache_invalidations_total",
		CacheOperationsTotal:    "appcache_operations_total",
		CacheOperationDuration:  "appcache_operation_duration_seconds",
		CacheKeysCount:          "appcache_keys_count",
		CacheInFlightRequests:   "appcache_inflight_requests",
		CacheHitRate:            "appcache_hit_rate",
	}
}

// Config holds common exporter configuration.
type Config struct {
	// Labels are default labels applied to all metrics.
	Labels Labels

	// MetricNames allows customizing metric names.
	MetricNames MetricNames

	// IncludeDetailedTimings enables per-operation duration histograms.
	IncludeDetailedTimings bool
}

// NewDefaultConfig creates a default metrics configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Labels:      make(Labels),
		MetricNames: DefaultMetricNames(),
	}
}

// WithLabels adds default labels to all metrics.
func (c *Config) WithLabels(labels Labels) *Config {
	for k, v := range labels {
		c.Labels[k] = v
	}
	return c
}

// WithDetailedTimings enables per-operation duration histograms.
func (c *Config) WithDetailedTimings(enabled bool) *Config {
	c.IncludeDetailedTimings = enabled
	return c
}

// MultiExporter fans metrics out to several exporters.
type MultiExporter struct {
	exporters []Exporter
}

// NewMultiExporter creates an exporter that writes to every given backend.
func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

// ExportStats exports to all configured exporters.
func (m *MultiExporter) ExportStats(stats Stats, labels Labels) error {
	for _, e := range m.exporters {
		if err := e.ExportStats(stats, labels); err != nil {
			return err
		}
	}
	return nil
}

// RecordOperation records to all configured exporters.
func (m *MultiExporter) RecordOperation(operation Operation, duration time.Duration, labels Labels) error {
	for _, e := range m.exporters {
		if err := e.RecordOperation(operation, duration, labels); err != nil {
			return err
		}
	}
	return nil
}

// IncrementCounter increments on all configured exporters.
func (m *MultiExporter) IncrementCounter(name string, labels Labels) error {
	for _, e := range m.exporters {
		if err := e.IncrementCounter(name, labels); err != nil {
			return err
		}
	}
	return nil
}

// RecordHistogram records to all configured exporters.
func (m *MultiExporter) RecordHistogram(name string, value float64, labels Labels) error {
	for _, e := range m.exporters {
		if err := e.RecordHistogram(name, value, labels); err != nil {
			return err
		}
	}
	return nil
}

// SetGauge sets on all configured exporters.
func (m *MultiExporter) SetGauge(name string, value float64, labels Labels) error {
	for _, e := range m.exporters {
		if err := e.SetGauge(name, value, labels); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all configured exporters.
func (m *MultiExporter) Close() error {
	for _, e := range m.exporters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}

// NoOpExporter discards all metrics.
type NoOpExporter struct{}

// NewNoOpExporter creates an exporter that discards everything.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (n *NoOpExporter) ExportStats(Stats, Labels) error                          { return nil }
func (n *NoOpExporter) RecordOperation(Operation, time.Duration, Labels) error   { return nil }
func (n *NoOpExporter) IncrementCounter(string, Labels) error                    { return nil }
func (n *NoOpExporter) RecordHistogram(string, float64, Labels) error            { return nil }
func (n *NoOpExporter) SetGauge(string, float64, Labels) error                   { return nil }
func (n *NoOpExporter) Close() error                                             { return nil }

var (
	_ Exporter = (*MultiExporter)(nil)
	_ Exporter = (*NoOpExporter)(nil)
)
