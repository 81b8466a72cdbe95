package tokenscope

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; a
// ready-made Prometheus implementation is provided by
// NewPrometheusCollector.
type MetricsCollector interface {
	// RecordTableLoad is called after each manifest/table load.
	// duration is the total time taken, err is nil if successful.
	RecordTableLoad(duration time.Duration, err error)

	// RecordShardFetch is called after each shard fetch.
	// background is true for prefetcher-initiated fetches.
	RecordShardFetch(shard int, background bool, duration time.Duration, err error)

	// RecordSearch is called after each search.
	// results is the number of hits returned.
	RecordSearch(results int, duration time.Duration, err error)

	// RecordResolve is called after each resolve, including the shard
	// fetch it may have triggered.
	RecordResolve(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTableLoad(time.Duration, error)             {}
func (NoopMetricsCollector) RecordShardFetch(int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)           {}
func (NoopMetricsCollector) RecordResolve(time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	TableLoads          atomic.Int64
	TableLoadErrors     atomic.Int64
	TableLoadTotalNanos atomic.Int64

	ShardFetches         atomic.Int64
	ShardFetchErrors     atomic.Int64
	ShardPrefetches      atomic.Int64
	ShardFetchTotalNanos atomic.Int64

	Searches         atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64

	Resolves      atomic.Int64
	ResolveErrors atomic.Int64
}

func (c *BasicMetricsCollector) RecordTableLoad(duration time.Duration, err error) {
	c.TableLoads.Add(1)
	c.TableLoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		c.TableLoadErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordShardFetch(_ int, background bool, duration time.Duration, err error) {
	c.ShardFetches.Add(1)
	c.ShardFetchTotalNanos.Add(duration.Nanoseconds())
	if background {
		c.ShardPrefetches.Add(1)
	}
	if err != nil {
		c.ShardFetchErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	c.Searches.Add(1)
	c.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		c.SearchErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordResolve(_ time.Duration, err error) {
	c.Resolves.Add(1)
	if err != nil {
		c.ResolveErrors.Add(1)
	}
}
