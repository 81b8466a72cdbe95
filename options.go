package tokenscope

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/tokenscope/codec"
)

const (
	// DefaultSearchLimit caps Search results when the caller passes a
	// non-positive limit.
	DefaultSearchLimit = 50

	// DefaultPrefetchDelay is the debounce before the first background
	// shard fetch, so an immediately-following foreground fetch is not
	// competing with prefetch for bandwidth.
	DefaultPrefetchDelay = 250 * time.Millisecond

	// DefaultPrefetchRate is the background fetch pacing in shards per
	// second.
	DefaultPrefetchRate = rate.Limit(4)
)

type options struct {
	codec         codec.Codec
	logger        *Logger
	metrics       MetricsCollector
	searchLimit   int
	prefetch      bool
	prefetchDelay time.Duration
	prefetchRate  rate.Limit
}

func defaultOptions() options {
	return options{
		codec:         codec.Default,
		logger:        NoopLogger(),
		metrics:       NoopMetricsCollector{},
		searchLimit:   DefaultSearchLimit,
		prefetch:      true,
		prefetchDelay: DefaultPrefetchDelay,
		prefetchRate:  DefaultPrefetchRate,
	}
}

// Option configures Explorer constructor behavior.
type Option func(*options)

// WithCodec configures the codec used for decoding artifacts.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging. If nil is passed, logging
// is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures metrics collection. If nil is
// passed, metrics are disabled.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithSearchLimit sets the default Search result cap used when the
// caller passes a non-positive limit.
func WithSearchLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.searchLimit = limit
		}
	}
}

// WithPrefetch enables or disables background shard prefetching.
// Enabled by default. Prefetch is a best-effort completeness
// optimization; foreground lookups never depend on it.
func WithPrefetch(enabled bool) Option {
	return func(o *options) {
		o.prefetch = enabled
	}
}

// WithPrefetchDelay sets the debounce before the first background
// shard fetch of a new selection.
func WithPrefetchDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.prefetchDelay = d
		}
	}
}

// WithPrefetchRate sets the background fetch pacing in shards per
// second. Use rate.Inf to prefetch as fast as the store allows.
func WithPrefetchRate(r rate.Limit) Option {
	return func(o *options) {
		if r > 0 {
			o.prefetchRate = r
		}
	}
}
