package tokenscope

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/tokenscope/manifest"
)

// EnsureShard fetches shard i for the active selection if it is not
// already cached, and returns it. Idempotent: concurrent callers for
// the same shard attach to a single underlying fetch. A failed fetch
// is not cached; a later call retries.
func (ex *Explorer) EnsureShard(ctx context.Context, i int) (Shard, error) {
	sess, err := ex.ready()
	if err != nil {
		return nil, err
	}
	return ex.ensureShard(ctx, sess, i, false)
}

// ShardCached reports whether shard i of the active selection is
// already in the cache. Callers use this to distinguish "token
// unknown" from "neighbors not yet available".
func (ex *Explorer) ShardCached(i int) bool {
	sess, err := ex.ready()
	if err != nil {
		return false
	}
	_, ok := sess.shard(i)
	return ok
}

// ensureShard is the single fetch path for both foreground and
// background callers. ctx governs how long this caller waits; the
// fetch itself runs on the session context so one caller giving up
// does not abort a coalesced fetch others are attached to.
func (ex *Explorer) ensureShard(ctx context.Context, sess *session, i int, background bool) (Shard, error) {
	man, ok := sess.manifest()
	if !ok {
		return nil, ErrTableNotReady
	}
	if i < 0 || i >= man.NumShards {
		return nil, &ErrShardOutOfRange{Shard: i, NumShards: man.NumShards}
	}

	if sh, ok := sess.shard(i); ok {
		return sh, nil
	}

	ch := sess.flight.DoChan(strconv.Itoa(i), func() (any, error) {
		// Re-check: the racing path may have filled it meanwhile.
		if sh, ok := sess.shard(i); ok {
			return sh, nil
		}

		start := time.Now()
		sh, err := ex.fetchShard(sess, man, i)
		ex.metrics.RecordShardFetch(i, background, time.Since(start), err)
		ex.logger.LogShardFetch(sess.ctx, i, background, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		return sh, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Shard), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ex *Explorer) fetchShard(sess *session, man *manifest.Manifest, i int) (Shard, error) {
	name := manifest.ShardName(sess.prefix, i)

	var sh Shard
	if err := ex.fetchArtifact(sess.ctx, name, &sh); err != nil {
		return nil, err
	}
	if len(sh) != man.ShardLen(i) {
		return nil, &ErrDecode{
			Artifact: name,
			cause:    fmt.Errorf("shard length %d, want %d", len(sh), man.ShardLen(i)),
		}
	}

	if !sess.putShard(i, sh) {
		// Superseded between fetch and commit: drop the result.
		return nil, ErrSuperseded
	}
	return sh, nil
}
