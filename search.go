package tokenscope

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Search returns up to limit tokens whose case-folded text contains
// the case-folded query as a substring, in table order. If the query
// is an integer literal naming a valid token id, that token is ranked
// first even when its text does not match lexically. A non-positive
// limit uses the configured default.
//
// Matching is substring, not prefix, and the scan is linear over the
// index: vocabularies top out at a few hundred thousand entries, and
// token text makes arbitrary-substring lookup the useful operation.
func (ex *Explorer) Search(query string, limit int) ([]Hit, error) {
	start := time.Now()
	hits, err := ex.search(query, limit)
	ex.metrics.RecordSearch(len(hits), time.Since(start), err)
	if err == nil {
		ex.logger.LogSearch(context.Background(), query, len(hits), time.Since(start))
	}
	return hits, err
}

func (ex *Explorer) search(query string, limit int) ([]Hit, error) {
	sess, err := ex.ready()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = ex.opts.searchLimit
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	tokens, idx := sess.tokens, sess.index

	hits := make([]Hit, 0, limit)
	seen := make(map[int]struct{})

	// Integer-literal fast path: a valid id ranks first regardless of
	// its text.
	if id, convErr := strconv.Atoi(strings.TrimSpace(query)); convErr == nil && sess.man.InRange(id) {
		hits = append(hits, Hit{ID: id, Text: tokens[id]})
		seen[id] = struct{}{}
	}

	folded := strings.ToLower(query)
	for _, key := range idx.keys {
		if len(hits) >= limit {
			break
		}
		if !strings.Contains(key, folded) {
			continue
		}
		for _, id := range idx.buckets[key] {
			if _, dup := seen[id]; dup {
				continue
			}
			hits = append(hits, Hit{ID: id, Text: tokens[id]})
			seen[id] = struct{}{}
			if len(hits) >= limit {
				break
			}
		}
	}
	return hits, nil
}

// Resolve returns a token with its neighbor list, fetching the
// containing shard on demand. The fetch is coalesced with any other
// request for the same shard. A fetch or decode failure is surfaced;
// there is no silent empty-neighbors fallback.
func (ex *Explorer) Resolve(ctx context.Context, id int) (Token, error) {
	start := time.Now()
	tok, err := ex.resolve(ctx, id)
	ex.metrics.RecordResolve(time.Since(start), err)
	return tok, err
}

func (ex *Explorer) resolve(ctx context.Context, id int) (Token, error) {
	sess, err := ex.ready()
	if err != nil {
		return Token{}, err
	}

	sess.mu.RLock()
	man := sess.man
	inRange := man.InRange(id)
	var text string
	if inRange {
		text = sess.tokens[id]
	}
	sess.mu.RUnlock()

	if !inRange {
		return Token{}, &ErrOutOfRange{ID: id, VocabSize: man.VocabSize}
	}

	sess.inflight.Add(1)
	defer sess.inflight.Add(-1)

	shardIdx := man.ShardFor(id)
	sh, err := ex.ensureShard(ctx, sess, shardIdx, false)
	if err != nil {
		return Token{}, err
	}

	return Token{
		ID:        id,
		Text:      text,
		Neighbors: sh[id-shardIdx*man.ShardSize],
	}, nil
}

// ResolveCached is the non-blocking variant of Resolve: it never
// fetches. ok is false if no table is loaded or id is out of range.
// Neighbors is nil when the containing shard is not cached yet; use
// ShardCached (or a later Resolve) to distinguish "not available yet"
// from an empty neighbor list.
func (ex *Explorer) ResolveCached(id int) (Token, bool) {
	sess, err := ex.ready()
	if err != nil {
		return Token{}, false
	}

	sess.mu.RLock()
	defer sess.mu.RUnlock()

	man := sess.man
	if !man.InRange(id) {
		return Token{}, false
	}

	tok := Token{ID: id, Text: sess.tokens[id]}
	shardIdx := man.ShardFor(id)
	if sh, ok := sess.shards[shardIdx]; ok {
		tok.Neighbors = sh[id-shardIdx*man.ShardSize]
	}
	return tok, true
}
