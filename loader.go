package tokenscope

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/tokenscope/codec"
	"github.com/hupe1980/tokenscope/manifest"
)

// load fetches the manifest and token table for a fresh session,
// builds the search index and publishes the result. The two fetches
// run concurrently; neither depends on the other. Consumers never
// observe a table without an index: publish happens after both.
func (ex *Explorer) load(sess *session) error {
	var (
		man    manifest.Manifest
		tokens []string
	)

	g, gctx := errgroup.WithContext(sess.ctx)
	g.Go(func() error {
		name := manifest.Name(sess.prefix)
		if err := ex.fetchArtifact(gctx, name, &man); err != nil {
			return err
		}
		if err := man.Validate(); err != nil {
			return &ErrDecode{Artifact: name, cause: err}
		}
		return nil
	})
	g.Go(func() error {
		return ex.fetchArtifact(gctx, manifest.TokensName(sess.prefix), &tokens)
	})

	if err := g.Wait(); err != nil {
		sess.fail(err)
		return err
	}

	if len(tokens) != man.VocabSize {
		err := &ErrDecode{
			Artifact: manifest.TokensName(sess.prefix),
			cause:    fmt.Errorf("token table length %d, manifest vocabSize %d", len(tokens), man.VocabSize),
		}
		sess.fail(err)
		return err
	}

	if !sess.publish(&man, tokens, buildSearchIndex(tokens)) {
		return ErrSuperseded
	}
	return nil
}

// fetchArtifact retrieves and decodes one artifact. Fetch failures
// become ErrTransport, payload failures ErrDecode.
func (ex *Explorer) fetchArtifact(ctx context.Context, name string, v any) error {
	data, err := ex.store.Fetch(ctx, name)
	if err != nil {
		return &ErrTransport{Artifact: name, cause: err}
	}
	if err := codec.Decode(data, v, ex.codec); err != nil {
		return &ErrDecode{Artifact: name, cause: err}
	}
	return nil
}
