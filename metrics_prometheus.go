package tokenscope

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector on top of
// prometheus/client_golang.
type PrometheusCollector struct {
	tableLoads     *prometheus.CounterVec
	tableLoadSecs  prometheus.Histogram
	shardFetches   *prometheus.CounterVec
	shardFetchSecs prometheus.Histogram
	searches       *prometheus.CounterVec
	searchSecs     prometheus.Histogram
	resolves       *prometheus.CounterVec
}

// NewPrometheusCollector creates a collector and registers its metrics
// with reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusCollector(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "tokenscope"
	}

	c := &PrometheusCollector{
		tableLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "table_loads_total",
			Help:      "Manifest/table loads by result.",
		}, []string{"result"}),
		tableLoadSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_load_duration_seconds",
			Help:      "Manifest/table load latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		shardFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shard_fetches_total",
			Help:      "Shard fetches by result and origin.",
		}, []string{"result", "background"}),
		shardFetchSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shard_fetch_duration_seconds",
			Help:      "Shard fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by result.",
		}, []string{"result"}),
		searchSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolves_total",
			Help:      "Token resolves by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.tableLoads, c.tableLoadSecs,
		c.shardFetches, c.shardFetchSecs,
		c.searches, c.searchSecs,
		c.resolves,
	)
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *PrometheusCollector) RecordTableLoad(duration time.Duration, err error) {
	c.tableLoads.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.tableLoadSecs.Observe(duration.Seconds())
	}
}

func (c *PrometheusCollector) RecordShardFetch(_ int, background bool, duration time.Duration, err error) {
	c.shardFetches.WithLabelValues(result(err), strconv.FormatBool(background)).Inc()
	if err == nil {
		c.shardFetchSecs.Observe(duration.Seconds())
	}
}

func (c *PrometheusCollector) RecordSearch(_ int, duration time.Duration, err error) {
	c.searches.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.searchSecs.Observe(duration.Seconds())
	}
}

func (c *PrometheusCollector) RecordResolve(duration time.Duration, err error) {
	c.resolves.WithLabelValues(result(err)).Inc()
}
