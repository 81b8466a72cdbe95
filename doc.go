// Package tokenscope loads precomputed token nearest-neighbor datasets
// progressively from sharded artifacts.
//
// A dataset is published per (model, embedding variant) pair as a small
// manifest, a token table and a sequence of compressed neighbor shards.
// The Explorer turns that layout into a locally queryable structure:
// the manifest and table load first, shards load on demand with
// request coalescing, and a background prefetcher completes the rest
// without blocking foreground lookups. Changing the selected dataset
// invalidates all in-flight work for the previous one.
//
// Basic usage:
//
//	store, _ := blobstore.NewHTTPStore("https://example.com/data", nil)
//	reg := registry.Static(map[string]map[registry.Variant]string{
//	    "qwen3-30b-a3b": {registry.VariantInput: "qwen3-30b-a3b-input"},
//	})
//
//	ex, _ := tokenscope.New(store, reg)
//	defer ex.Close()
//
//	_ = ex.Select(ctx, registry.Selector{Dataset: "qwen3-30b-a3b", Variant: registry.VariantInput})
//	hits, _ := ex.Search("cat", 50)
//	tok, _ := ex.Resolve(ctx, hits[0].ID)
package tokenscope
