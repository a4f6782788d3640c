package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ffbackup"

// Collector is a prometheus.Collector for backup and restore runs. A nil
// *Collector ignores every observation.
type Collector struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	archiveBytes prometheus.Gauge
	unitErrors   *prometheus.CounterVec
	restored     *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Backup and restore runs by outcome.",
			}, []string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Wall time of backup and restore runs.",
				Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
			}, []string{"operation"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last run without a fatal error.",
			}, []string{"operation"},
		),
		archiveBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "archive_size_bytes",
				Help:      "Size of the most recent archive.",
			},
		),
		unitErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "restore_unit_errors_total",
				Help:      "Per-table and per-file restore failures.",
			}, []string{"operation"},
		),
		restored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "restored_units_total",
				Help:      "Tables and files written by restores.",
			}, []string{"kind"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_requests_total",
				Help:      "Admin requests rejected by the rate limiter.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.duration.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.archiveBytes.Describe(ch)
	c.unitErrors.Describe(ch)
	c.restored.Describe(ch)
	c.rateLimited.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.duration.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.archiveBytes.Collect(ch)
	c.unitErrors.Collect(ch)
	c.restored.Collect(ch)
	c.rateLimited.Collect(ch)
}

// ObserveBackup records a finished backup.
func (c *Collector) ObserveBackup(status string, took time.Duration, archiveBytes int64) {
	if c == nil {
		return
	}
	c.observe("backup", status, took)
	if status != "failed" {
		c.archiveBytes.Set(float64(archiveBytes))
	}
}

// ObserveRestore records a finished restore and its per-unit outcome.
func (c *Collector) ObserveRestore(status string, took time.Duration, tables, files, errors int) {
	if c == nil {
		return
	}
	c.observe("restore", status, took)
	c.restored.WithLabelValues("table").Add(float64(tables))
	c.restored.WithLabelValues("file").Add(float64(files))
	c.unitErrors.WithLabelValues("restore").Add(float64(errors))
}

func (c *Collector) RateLimited() {
	if c == nil {
		return
	}
	c.rateLimited.Inc()
}

func (c *Collector) observe(op, status string, took time.Duration) {
	c.operations.WithLabelValues(op, status).Inc()
	c.duration.WithLabelValues(op).Observe(took.Seconds())
	if status != "failed" {
		c.lastSuccess.WithLabelValues(op).SetToCurrentTime()
	}
}
