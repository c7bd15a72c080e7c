package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exposes a QueryMetrics snapshot as Prometheus
// gauges, scraped on demand rather than updated incrementally: each
// Collect call takes a fresh Snapshot so the exported values never
// drift from what query_metrics itself reports via MCP resources.
type PrometheusCollector struct {
	metrics *QueryMetrics

	totalQueries    *prometheus.Desc
	zeroResultCount *prometheus.Desc
	zeroResultPct   *prometheus.Desc
	exactRepeatRate *prometheus.Desc
	queryTypeCount  *prometheus.Desc
	latencyBucket   *prometheus.Desc
}

// NewPrometheusCollector wraps metrics for registration with a
// prometheus.Registry.
func NewPrometheusCollector(metrics *QueryMetrics) *PrometheusCollector {
	return &PrometheusCollector{
		metrics: metrics,
		totalQueries: prometheus.NewDesc(
			"miller_queries_total", "Total number of search queries served.", nil, nil),
		zeroResultCount: prometheus.NewDesc(
			"miller_queries_zero_result_total", "Queries that returned no hits.", nil, nil),
		zeroResultPct: prometheus.NewDesc(
			"miller_queries_zero_result_ratio", "Fraction of queries that returned no hits.", nil, nil),
		exactRepeatRate: prometheus.NewDesc(
			"miller_queries_exact_repeat_ratio", "Fraction of queries that exactly repeat a recent one.", nil, nil),
		queryTypeCount: prometheus.NewDesc(
			"miller_queries_by_type_total", "Queries served, partitioned by detected type.", []string{"query_type"}, nil),
		latencyBucket: prometheus.NewDesc(
			"miller_query_latency_bucket_total", "Queries served, partitioned by latency bucket.", []string{"bucket"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalQueries
	ch <- c.zeroResultCount
	ch <- c.zeroResultPct
	ch <- c.exactRepeatRate
	ch <- c.queryTypeCount
	ch <- c.latencyBucket
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.totalQueries, prometheus.CounterValue, float64(snap.TotalQueries))
	ch <- prometheus.MustNewConstMetric(c.zeroResultCount, prometheus.CounterValue, float64(snap.ZeroResultCount))
	ch <- prometheus.MustNewConstMetric(c.zeroResultPct, prometheus.GaugeValue, snap.ZeroResultPercentage()/100)
	ch <- prometheus.MustNewConstMetric(c.exactRepeatRate, prometheus.GaugeValue, snap.ExactRepeatRate)

	for qtype, count := range snap.QueryTypeCounts {
		ch <- prometheus.MustNewConstMetric(c.queryTypeCount, prometheus.CounterValue, float64(count), string(qtype))
	}
	for bucket, count := range snap.LatencyDistribution {
		ch <- prometheus.MustNewConstMetric(c.latencyBucket, prometheus.CounterValue, float64(count), string(bucket))
	}
}
