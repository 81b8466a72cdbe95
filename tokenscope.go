package tokenscope

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/tokenscope/blobstore"
	"github.com/hupe1980/tokenscope/codec"
	"github.com/hupe1980/tokenscope/registry"
)

// Explorer is the facade over a progressively loaded neighbor dataset.
//
// One selection is active at a time. Select swaps in a fresh session
// and invalidates all in-flight work for the previous one; queries
// always run against the session that was current when they started.
// Safe for concurrent use.
type Explorer struct {
	store   blobstore.Store
	reg     *registry.Registry
	codec   codec.Codec
	logger  *Logger
	metrics MetricsCollector
	opts    options

	mu     sync.RWMutex
	gen    uint64
	sess   *session
	closed bool
}

// New creates an Explorer reading artifacts from store, with datasets
// described by reg.
func New(store blobstore.Store, reg *registry.Registry, optFns ...Option) (*Explorer, error) {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	return &Explorer{
		store:   store,
		reg:     reg,
		codec:   o.codec,
		logger:  o.logger,
		metrics: o.metrics,
		opts:    o,
	}, nil
}

// Select activates a (dataset, variant) pair. It blocks until the
// manifest and token table are loaded and the search index is built;
// shards keep loading in the background afterwards.
//
// A configuration error (unknown dataset, unavailable variant) is
// returned before any fetch and leaves the previous selection active.
// Any other failure replaces the previous selection with an errored
// one. If Select is called again while a load is in flight, the older
// call returns ErrSuperseded.
func (ex *Explorer) Select(ctx context.Context, sel registry.Selector) error {
	prefix, err := ex.reg.Resolve(sel)
	if err != nil {
		return err
	}

	ex.mu.Lock()
	if ex.closed {
		ex.mu.Unlock()
		return ErrClosed
	}
	if ex.sess != nil {
		ex.sess.cancel()
	}
	ex.gen++
	sess := newSession(ex.gen, sel, prefix)
	ex.sess = sess
	ex.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		start := time.Now()
		err := ex.load(sess)
		ex.metrics.RecordTableLoad(time.Since(start), err)
		ex.logger.LogTableLoad(sess.ctx, sel, vocabOf(sess), shardsOf(sess), time.Since(start), err)
		done <- err

		if err == nil && ex.opts.prefetch {
			ex.prefetchLoop(sess)
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// The load keeps running for the still-current session.
		return ctx.Err()
	}
}

// Selector returns the active selector, or false if none is active.
func (ex *Explorer) Selector() (registry.Selector, bool) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	if ex.sess == nil {
		return registry.Selector{}, false
	}
	return ex.sess.selector, true
}

// Status reports the loading state of the active selection.
func (ex *Explorer) Status() Status {
	ex.mu.RLock()
	sess := ex.sess
	ex.mu.RUnlock()

	if sess == nil {
		return Status{}
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return Status{
		TableLoading:     !sess.ready && sess.loadErr == nil,
		TableErr:         sess.loadErr,
		NeighborsLoading: sess.inflight.Load() > 0,
	}
}

// Stats returns a snapshot of the active session, or false if no
// table is loaded.
func (ex *Explorer) Stats() (Stats, bool) {
	sess, err := ex.current()
	if err != nil {
		return Stats{}, false
	}

	man, ok := sess.manifest()
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Generation:   sess.gen,
		VocabSize:    man.VocabSize,
		ShardSize:    man.ShardSize,
		NumShards:    man.NumShards,
		K:            man.K,
		CachedShards: sess.cachedShards(),
	}, true
}

// Close invalidates the active session and stops background work.
func (ex *Explorer) Close() error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.closed {
		return nil
	}
	ex.closed = true
	if ex.sess != nil {
		ex.sess.cancel()
		ex.sess = nil
	}
	return nil
}

// current returns the active session, whether or not its table has
// finished loading.
func (ex *Explorer) current() (*session, error) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	if ex.closed {
		return nil, ErrClosed
	}
	if ex.sess == nil {
		return nil, ErrNoDataset
	}
	return ex.sess, nil
}

// ready returns the active session with its table loaded.
func (ex *Explorer) ready() (*session, error) {
	sess, err := ex.current()
	if err != nil {
		return nil, err
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	if !sess.ready {
		if sess.loadErr != nil {
			return nil, sess.loadErr
		}
		return nil, ErrTableNotReady
	}
	return sess, nil
}

func vocabOf(sess *session) int {
	if man, ok := sess.manifest(); ok {
		return man.VocabSize
	}
	return 0
}

func shardsOf(sess *session) int {
	if man, ok := sess.manifest(); ok {
		return man.NumShards
	}
	return 0
}
