package tokenscope

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// prefetchLoop fetches every shard not yet cached, one at a time,
// until the queue is drained or the session is superseded. It runs on
// its own goroutine after the table load succeeds.
//
// Pacing: an initial debounce keeps the first prefetch from competing
// with the user's first on-demand fetch, then a rate limiter spaces
// out the remaining fetches. Individual failures are logged and
// skipped; foreground lookups fall back to the on-demand path, so
// prefetch is never a correctness requirement.
func (ex *Explorer) prefetchLoop(sess *session) {
	select {
	case <-time.After(ex.opts.prefetchDelay):
	case <-sess.ctx.Done():
		return
	}

	limiter := rate.NewLimiter(ex.opts.prefetchRate, 1)

	var fetched, skipped, failed int
	for _, i := range sess.missingShards() {
		if err := limiter.Wait(sess.ctx); err != nil {
			return
		}

		// An on-demand fetch may have filled it meanwhile.
		if _, ok := sess.shard(i); ok {
			skipped++
			continue
		}

		if _, err := ex.ensureShard(sess.ctx, sess, i, true); err != nil {
			if sess.ctx.Err() != nil || errors.Is(err, ErrSuperseded) {
				return
			}
			failed++
			continue
		}
		fetched++
	}

	ex.logger.LogPrefetchDone(sess.ctx, fetched, skipped, failed)
}
