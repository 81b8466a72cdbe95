package tokenscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hupe1980/tokenscope/blobstore"
	"github.com/hupe1980/tokenscope/manifest"
	"github.com/hupe1980/tokenscope/registry"
)

func gzipJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// putDataset writes a synthetic artifact family under prefix: an
// uncompressed manifest, a gzipped token table and gzipped shards.
// Token i's neighbors are (i+1..i+k) mod vocab with decreasing
// similarity.
func putDataset(t *testing.T, store *blobstore.MemoryStore, prefix string, tokens []string, shardSize, k int) manifest.Manifest {
	t.Helper()

	vocab := len(tokens)
	man := manifest.Manifest{
		VocabSize: vocab,
		ShardSize: shardSize,
		NumShards: (vocab + shardSize - 1) / shardSize,
		K:         k,
	}
	require.NoError(t, man.Validate())

	manData, err := json.Marshal(man)
	require.NoError(t, err)
	store.Put(manifest.Name(prefix), manData)
	store.Put(manifest.TokensName(prefix), gzipJSON(t, tokens))

	for s := 0; s < man.NumShards; s++ {
		shard := make([][][2]any, 0, man.ShardLen(s))
		for i := 0; i < man.ShardLen(s); i++ {
			id := s*shardSize + i
			var nbrs [][2]any
			for j := 1; j <= k; j++ {
				nbrs = append(nbrs, [2]any{(id + j) % vocab, 1 - 0.01*float64(j)})
			}
			shard = append(shard, nbrs)
		}
		store.Put(manifest.ShardName(prefix, s), gzipJSON(t, shard))
	}
	return man
}

func testReg() *registry.Registry {
	return registry.Static(map[string]map[registry.Variant]string{
		"model-a": {
			registry.VariantInput: "a-input",
		},
		"model-b": {
			registry.VariantInput: "b-input",
		},
	})
}

func selA() registry.Selector {
	return registry.Selector{Dataset: "model-a", Variant: registry.VariantInput}
}

func selB() registry.Selector {
	return registry.Selector{Dataset: "model-b", Variant: registry.VariantInput}
}

func newTestExplorer(t *testing.T, store blobstore.Store, optFns ...Option) *Explorer {
	t.Helper()
	opts := append([]Option{WithPrefetch(false)}, optFns...)
	ex, err := New(store, testReg(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

// gateStore blocks shard fetches until released, so tests can hold a
// fetch in flight deterministically.
type gateStore struct {
	inner *blobstore.MemoryStore
	gate  chan struct{}
}

func newGateStore(inner *blobstore.MemoryStore) *gateStore {
	return &gateStore{inner: inner, gate: make(chan struct{})}
}

func (g *gateStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	if strings.Contains(name, "-knn-") {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.Fetch(ctx, name)
}

func (g *gateStore) release() { close(g.gate) }

func TestSelectAndSearch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"cat", "Cats", "dog", "concatenate", "bird"}, 2, 2)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	sel, ok := ex.Selector()
	require.True(t, ok)
	assert.Equal(t, selA(), sel)

	st := ex.Status()
	assert.False(t, st.TableLoading)
	assert.NoError(t, st.TableErr)

	t.Run("Substring", func(t *testing.T) {
		hits, err := ex.Search("cat", 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		// Table order, case-folded substring match.
		assert.Equal(t, []Hit{
			{ID: 0, Text: "cat"},
			{ID: 1, Text: "Cats"},
			{ID: 3, Text: "concatenate"},
		}, hits)
	})

	t.Run("Limit", func(t *testing.T) {
		hits, err := ex.Search("cat", 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("IntegerLiteralFirst", func(t *testing.T) {
		hits, err := ex.Search("2", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		// "dog" does not contain "2"; the id fast path ranks it first.
		assert.Equal(t, Hit{ID: 2, Text: "dog"}, hits[0])
	})

	t.Run("IntegerLiteralOutOfRange", func(t *testing.T) {
		hits, err := ex.Search("99", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("InRangeIDs", func(t *testing.T) {
		hits, err := ex.Search("", 100)
		require.NoError(t, err)
		for _, h := range hits {
			assert.Less(t, h.ID, 5)
			assert.GreaterOrEqual(t, h.ID, 0)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		hits, err := ex.Search("zebra", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestSearchCaseFoldBuckets(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	// "CAT" and "cat" fold to the same key; ids stay in table order.
	putDataset(t, store, "a-input", []string{"x", "CAT", "y", "cat"}, 4, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	hits, err := ex.Search("cat", 10)
	require.NoError(t, err)
	assert.Equal(t, []Hit{{ID: 1, Text: "CAT"}, {ID: 3, Text: "cat"}}, hits)
}

func TestSelectConfigErrors(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)

	ex := newTestExplorer(t, store)

	t.Run("UnknownDataset", func(t *testing.T) {
		err := ex.Select(ctx, registry.Selector{Dataset: "nope", Variant: registry.VariantInput})
		var unknown *registry.ErrUnknownDataset
		require.True(t, errors.As(err, &unknown))
		assert.Zero(t, store.TotalFetches())
	})

	t.Run("UnavailableVariant", func(t *testing.T) {
		err := ex.Select(ctx, registry.Selector{Dataset: "model-a", Variant: registry.VariantOutput})
		var unavailable *registry.ErrUnavailableVariant
		require.True(t, errors.As(err, &unavailable))
		// Config errors never reach the network.
		assert.Zero(t, store.TotalFetches())
	})

	t.Run("PreviousSelectionSurvives", func(t *testing.T) {
		require.NoError(t, ex.Select(ctx, selA()))
		require.Error(t, ex.Select(ctx, registry.Selector{Dataset: "model-a", Variant: registry.VariantOutput}))

		hits, err := ex.Search("a", 10)
		require.NoError(t, err)
		assert.NotEmpty(t, hits)
	})
}

func TestSelectLoadFailure(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	// No artifacts at all: the manifest fetch fails.

	ex := newTestExplorer(t, store)
	err := ex.Select(ctx, selA())

	var te *ErrTransport
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	st := ex.Status()
	assert.False(t, st.TableLoading)
	assert.Error(t, st.TableErr)

	_, err = ex.Search("a", 10)
	assert.Error(t, err)
}

func TestSelectTableMismatch(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c"}, 2, 1)
	// Corrupt the table: one entry short of vocabSize.
	store.Put(manifest.TokensName("a-input"), gzipJSON(t, []string{"a", "b"}))

	ex := newTestExplorer(t, store)
	err := ex.Select(ctx, selA())

	var de *ErrDecode
	require.True(t, errors.As(err, &de))
}

func TestSelectManifestInvariant(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c"}, 2, 1)
	// numShards inconsistent with ceil(vocabSize/shardSize).
	store.Put(manifest.Name("a-input"), []byte(`{"vocabSize":3,"shardSize":2,"numShards":5,"k":1}`))

	ex := newTestExplorer(t, store)
	err := ex.Select(ctx, selA())

	var de *ErrDecode
	require.True(t, errors.As(err, &de))
}

func TestResolveShardBoundary(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	tokens := make([]string, 40000)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%05d", i)
	}
	man := putDataset(t, store, "a-input", tokens, 16384, 2)
	require.Equal(t, 3, man.NumShards)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	// Token 16384 lives in shard 1, token 16383 in shard 0.
	tok, err := ex.Resolve(ctx, 16384)
	require.NoError(t, err)
	assert.Equal(t, "tok16384", tok.Text)
	assert.Len(t, tok.Neighbors, 2)
	assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", 1)))
	assert.Equal(t, 0, store.Fetches(manifest.ShardName("a-input", 0)))

	_, err = ex.Resolve(ctx, 16383)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", 0)))

	// Cached: no refetch.
	_, err = ex.Resolve(ctx, 16384)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", 1)))

	assert.True(t, ex.ShardCached(0))
	assert.True(t, ex.ShardCached(1))
	assert.False(t, ex.ShardCached(2))
}

func TestResolveOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))
	before := store.TotalFetches()

	for _, id := range []int{-1, 2, 1 << 30} {
		_, err := ex.Resolve(ctx, id)
		var oor *ErrOutOfRange
		require.True(t, errors.As(err, &oor), "id %d", id)
		assert.Equal(t, id, oor.ID)
	}
	// Fails fast: no fetch attempted.
	assert.Equal(t, before, store.TotalFetches())
}

func TestResolveNeighborValues(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c", "d"}, 4, 2)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	tok, err := ex.Resolve(ctx, 1)
	require.NoError(t, err)
	require.Len(t, tok.Neighbors, 2)
	assert.Equal(t, 2, tok.Neighbors[0].ID)
	assert.InDelta(t, 0.99, tok.Neighbors[0].Similarity, 1e-9)
	assert.Equal(t, 3, tok.Neighbors[1].ID)
	assert.InDelta(t, 0.98, tok.Neighbors[1].Similarity, 1e-9)
	// Rank order is taken from the data as-is, never re-sorted.
	assert.Greater(t, tok.Neighbors[0].Similarity, tok.Neighbors[1].Similarity)
}

func TestResolveCached(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c", "d"}, 2, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	// Shard 1 not fetched yet: text resolves, neighbors do not.
	tok, ok := ex.ResolveCached(2)
	require.True(t, ok)
	assert.Equal(t, "c", tok.Text)
	assert.Nil(t, tok.Neighbors)
	assert.False(t, ex.ShardCached(1))

	_, err := ex.Resolve(ctx, 2)
	require.NoError(t, err)

	tok, ok = ex.ResolveCached(2)
	require.True(t, ok)
	assert.NotEmpty(t, tok.Neighbors)

	_, ok = ex.ResolveCached(99)
	assert.False(t, ok)
}

func TestEnsureShardCoalescing(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	putDataset(t, inner, "a-input", []string{"a", "b", "c", "d", "e", "f"}, 6, 2)
	gate := newGateStore(inner)

	ex := newTestExplorer(t, gate)
	require.NoError(t, ex.Select(ctx, selA()))

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ex.Resolve(ctx, i%6)
		}(i)
	}

	// Let all callers attach to the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	gate.release()
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, inner.Fetches(manifest.ShardName("a-input", 0)))
}

func TestEnsureShardRetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)
	shardName := manifest.ShardName("a-input", 0)
	good, err := store.Fetch(ctx, shardName)
	require.NoError(t, err)

	// Corrupt the shard: first fetch fails and must not be cached.
	store.Put(shardName, []byte{0xde, 0xad})

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	_, err = ex.Resolve(ctx, 0)
	var de *ErrDecode
	require.True(t, errors.As(err, &de))
	assert.False(t, ex.ShardCached(0))

	// Restore and retry: the failure was not cached.
	store.Put(shardName, good)
	tok, err := ex.Resolve(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Neighbors)
}

func TestEnsureShardOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	_, err := ex.EnsureShard(ctx, 7)
	var oor *ErrShardOutOfRange
	require.True(t, errors.As(err, &oor))
	assert.Equal(t, 7, oor.Shard)
}

func TestGenerationIsolation(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	putDataset(t, inner, "a-input", []string{"a", "b"}, 2, 1)
	putDataset(t, inner, "b-input", []string{"x", "y"}, 2, 1)
	gate := newGateStore(inner)

	ex := newTestExplorer(t, gate)
	require.NoError(t, ex.Select(ctx, selA()))

	resolved := make(chan error, 1)
	go func() {
		_, err := ex.Resolve(ctx, 0)
		resolved <- err
	}()

	// Wait for the shard fetch to be held at the gate, then supersede
	// the selection. The in-flight fetch is canceled with its session.
	time.Sleep(50 * time.Millisecond)

	// Select for model-b must not block on model-a's gated shard
	// fetch; only shard fetches are gated.
	require.NoError(t, ex.Select(ctx, selB()))

	err := <-resolved
	require.Error(t, err)

	// Nothing from the old generation reached the new session.
	assert.False(t, ex.ShardCached(0))
	stats, ok := ex.Stats()
	require.True(t, ok)
	assert.Zero(t, stats.CachedShards)
	assert.Equal(t, 2, stats.VocabSize)

	// The new session still fetches its own shard fine.
	gate.release()
	tok, err := ex.Resolve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "x", tok.Text)
}

func TestStaleShardDropped(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)
	putDataset(t, store, "b-input", []string{"x", "y"}, 2, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))

	ex.mu.RLock()
	old := ex.sess
	ex.mu.RUnlock()

	require.NoError(t, ex.Select(ctx, selB()))

	// A completion for the superseded generation is silently inert.
	assert.False(t, old.putShard(0, Shard{{}}))
	_, cached := old.shard(0)
	assert.False(t, cached)
}

func TestStatusNeighborsLoading(t *testing.T) {
	ctx := context.Background()
	inner := blobstore.NewMemoryStore()
	putDataset(t, inner, "a-input", []string{"a", "b"}, 2, 1)
	gate := newGateStore(inner)

	ex := newTestExplorer(t, gate)
	require.NoError(t, ex.Select(ctx, selA()))
	assert.False(t, ex.Status().NeighborsLoading)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ex.Resolve(ctx, 0)
	}()

	require.Eventually(t, func() bool {
		return ex.Status().NeighborsLoading
	}, time.Second, 5*time.Millisecond)

	gate.release()
	<-done
	assert.False(t, ex.Status().NeighborsLoading)
}

func TestQueriesBeforeSelect(t *testing.T) {
	ctx := context.Background()
	ex := newTestExplorer(t, blobstore.NewMemoryStore())

	_, err := ex.Search("a", 10)
	assert.ErrorIs(t, err, ErrNoDataset)

	_, err = ex.Resolve(ctx, 0)
	assert.ErrorIs(t, err, ErrNoDataset)

	_, ok := ex.Stats()
	assert.False(t, ok)

	_, ok = ex.Selector()
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b"}, 2, 1)

	ex := newTestExplorer(t, store)
	require.NoError(t, ex.Select(ctx, selA()))
	require.NoError(t, ex.Close())
	require.NoError(t, ex.Close())

	_, err := ex.Search("a", 10)
	assert.ErrorIs(t, err, ErrClosed)

	err = ex.Select(ctx, selA())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPrefetchCompletes(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	tokens := make([]string, 20)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%02d", i)
	}
	man := putDataset(t, store, "a-input", tokens, 5, 2)
	require.Equal(t, 4, man.NumShards)

	ex := newTestExplorer(t, store,
		WithPrefetch(true),
		WithPrefetchDelay(0),
		WithPrefetchRate(rate.Inf),
	)
	require.NoError(t, ex.Select(ctx, selA()))

	require.Eventually(t, func() bool {
		stats, ok := ex.Stats()
		return ok && stats.CachedShards == man.NumShards
	}, 2*time.Second, 5*time.Millisecond)

	// Every shard fetched exactly once, even with resolves afterwards.
	for i := 0; i < man.NumShards; i++ {
		_, err := ex.Resolve(ctx, i*5)
		require.NoError(t, err)
		assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", i)), "shard %d", i)
	}
}

func TestPrefetchStopsOnSelect(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c", "d"}, 1, 1)
	putDataset(t, store, "b-input", []string{"x"}, 1, 1)

	// Long debounce: superseding during the delay must cancel the run
	// before any shard fetch happens.
	ex := newTestExplorer(t, store,
		WithPrefetch(true),
		WithPrefetchDelay(time.Hour),
	)
	require.NoError(t, ex.Select(ctx, selA()))
	require.NoError(t, ex.Select(ctx, selB()))

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 4; i++ {
		assert.Zero(t, store.Fetches(manifest.ShardName("a-input", i)), "shard %d", i)
	}
}

func TestPrefetchSkipsOnDemandFills(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c", "d"}, 2, 1)

	ex := newTestExplorer(t, store,
		WithPrefetch(true),
		WithPrefetchDelay(100*time.Millisecond),
		WithPrefetchRate(rate.Inf),
	)
	require.NoError(t, ex.Select(ctx, selA()))

	// Fill shard 1 in the foreground during the debounce window.
	_, err := ex.Resolve(ctx, 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats, ok := ex.Stats()
		return ok && stats.CachedShards == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", 0)))
	assert.Equal(t, 1, store.Fetches(manifest.ShardName("a-input", 1)))
}

func TestPrefetchFailuresAreNonFatal(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	putDataset(t, store, "a-input", []string{"a", "b", "c", "d"}, 2, 1)
	// Shard 0 is broken; prefetch must still complete shard 1.
	store.Put(manifest.ShardName("a-input", 0), []byte{0xff})

	ex := newTestExplorer(t, store,
		WithPrefetch(true),
		WithPrefetchDelay(0),
		WithPrefetchRate(rate.Inf),
	)
	require.NoError(t, ex.Select(ctx, selA()))

	require.Eventually(t, func() bool {
		return ex.ShardCached(1)
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, ex.ShardCached(0))
}
