package prometheus

import (
	"time"
)

// DatasetMetrics holds the metric families of dataset builds and record
// access.
type DatasetMetrics struct {
	// Build
	RecordsProduced  CounterVec
	MoleculesSkipped CounterVec
	BuildDuration    HistogramVec
	SplitRecords     GaugeVec
	SplitBytes       GaugeVec
	BuildsTotal      CounterVec

	// Access
	RecordGets        CounterVec
	RecordGetDuration HistogramVec
	CacheHits         CounterVec
	CacheMisses       CounterVec

	// Transforms
	TransformDuration HistogramVec
	TransformErrors   CounterVec

	// Events
	EventsPublished CounterVec
}

var (
	DefaultBuildDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
	DefaultGetDurationBuckets   = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}
)

// NewDatasetMetrics registers all dataset metrics on collector.
func NewDatasetMetrics(collector MetricsCollector) *DatasetMetrics {
	m := &DatasetMetrics{}

	m.RecordsProduced = collector.RegisterCounter("records_produced_total", "Records produced from raw SDF input", "split_mode")
	m.MoleculesSkipped = collector.RegisterCounter("molecules_skipped_total", "Molecules dropped by the pre-filter", "split_mode")
	m.BuildDuration = collector.RegisterHistogram("build_duration_seconds", "Split build duration", DefaultBuildDurationBuckets, "split_mode")
	m.SplitRecords = collector.RegisterGauge("split_records", "Records in a processed split", "split_mode", "split")
	m.SplitBytes = collector.RegisterGauge("split_bytes", "Size of a processed split file", "split_mode", "split")
	m.BuildsTotal = collector.RegisterCounter("builds_total", "Split builds", "split_mode", "status")

	m.RecordGets = collector.RegisterCounter("record_gets_total", "Record reads", "split", "status")
	m.RecordGetDuration = collector.RegisterHistogram("record_get_duration_seconds", "Record read duration", DefaultGetDurationBuckets, "split")
	m.CacheHits = collector.RegisterCounter("cache_hits_total", "Record cache hits", "split")
	m.CacheMisses = collector.RegisterCounter("cache_misses_total", "Record cache misses", "split")

	m.TransformDuration = collector.RegisterHistogram("transform_duration_seconds", "Transform duration", nil, "transform")
	m.TransformErrors = collector.RegisterCounter("transform_errors_total", "Transform failures", "transform")

	m.EventsPublished = collector.RegisterCounter("events_published_total", "Dataset events published", "status")
	return m
}

// Helpers

func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *DatasetMetrics) RecordBuild(splitMode string, produced, skipped int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RecordsProduced.WithLabelValues(splitMode).Add(float64(produced))
	m.MoleculesSkipped.WithLabelValues(splitMode).Add(float64(skipped))
	m.BuildDuration.WithLabelValues(splitMode).Observe(duration.Seconds())
	m.BuildsTotal.WithLabelValues(splitMode, statusLabel(err)).Inc()
}

func (m *DatasetMetrics) RecordSplit(splitMode, split string, records int, size int64) {
	if m == nil {
		return
	}
	m.SplitRecords.WithLabelValues(splitMode, split).Set(float64(records))
	m.SplitBytes.WithLabelValues(splitMode, split).Set(float64(size))
}

func (m *DatasetMetrics) RecordGet(split string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RecordGets.WithLabelValues(split, statusLabel(err)).Inc()
	m.RecordGetDuration.WithLabelValues(split).Observe(duration.Seconds())
}

func (m *DatasetMetrics) RecordCacheAccess(split string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.WithLabelValues(split).Inc()
	} else {
		m.CacheMisses.WithLabelValues(split).Inc()
	}
}

func (m *DatasetMetrics) RecordTransform(name string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.TransformDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		m.TransformErrors.WithLabelValues(name).Inc()
	}
}

func (m *DatasetMetrics) RecordEvent(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(statusLabel(err)).Inc()
}
