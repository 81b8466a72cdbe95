package tokenscope

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/tokenscope/manifest"
	"github.com/hupe1980/tokenscope/registry"
)

// session owns all state derived from one (dataset, variant)
// selection: manifest, token table, search index and shard cache.
// Sessions are created by Select and invalidated wholesale by the next
// Select; in-flight work holds the session it was started for, so a
// stale completion can only ever touch a dead session.
type session struct {
	gen      uint64
	selector registry.Selector
	prefix   string

	// ctx is canceled when the session is superseded or the explorer
	// closes. Every commit re-checks it before writing.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	man     *manifest.Manifest
	tokens  []string
	index   *searchIndex
	shards  map[int]Shard
	cached  *roaring.Bitmap
	ready   bool
	loadErr error

	// flight coalesces concurrent fetches per shard index. Scoped to
	// the session so coalescing never crosses generations.
	flight singleflight.Group

	// inflight counts outstanding foreground shard fetches.
	inflight atomic.Int64
}

func newSession(gen uint64, sel registry.Selector, prefix string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		gen:      gen,
		selector: sel,
		prefix:   prefix,
		ctx:      ctx,
		cancel:   cancel,
		shards:   make(map[int]Shard),
		cached:   roaring.New(),
	}
}

// publish commits the loaded manifest, table and index. Returns false
// if the session was superseded meanwhile.
func (s *session) publish(man *manifest.Manifest, tokens []string, idx *searchIndex) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	s.man = man
	s.tokens = tokens
	s.index = idx
	s.ready = true
	return true
}

// fail records a table load failure. Silently dropped if superseded.
func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	s.loadErr = err
}

func (s *session) manifest() (*manifest.Manifest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.man, s.ready
}

func (s *session) shard(i int) (Shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[i]
	return sh, ok
}

// putShard commits a fetched shard. Returns false if the session was
// superseded; the shard is dropped and nothing is cached.
func (s *session) putShard(i int, sh Shard) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return false
	}
	// On-demand and background fetches may race for the same index;
	// whichever commits first wins, the loser is discarded.
	if _, ok := s.shards[i]; !ok {
		s.shards[i] = sh
		s.cached.Add(uint32(i))
	}
	return true
}

// missingShards returns the shard indices not yet cached, ascending.
func (s *session) missingShards() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil
	}
	missing := make([]int, 0, s.man.NumShards)
	for i := 0; i < s.man.NumShards; i++ {
		if !s.cached.Contains(uint32(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *session) cachedShards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.cached.GetCardinality())
}

// searchIndex maps case-folded token text to the token ids sharing
// that folded form. keys preserves first-appearance order so scans
// visit buckets in table order; buckets preserve table order within a
// key. Rebuilt in full whenever the table changes, never patched.
type searchIndex struct {
	keys    []string
	buckets map[string][]int
}

func buildSearchIndex(tokens []string) *searchIndex {
	idx := &searchIndex{
		buckets: make(map[string][]int, len(tokens)),
	}
	for id, text := range tokens {
		key := strings.ToLower(text)
		if _, ok := idx.buckets[key]; !ok {
			idx.keys = append(idx.keys, key)
		}
		idx.buckets[key] = append(idx.buckets[key], id)
	}
	return idx
}
