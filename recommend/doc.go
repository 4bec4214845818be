// Package recommend implements the recommendation engine: the embedding
// cache lifecycle, cosine similarity ranking with self-exclusion, and
// popularity ordering.
//
// An Engine is built for one catalog kind:
//
//	cache, err := recommend.NewEmbeddingCache(repo, embedder)
//	engine, err := recommend.NewEngine(ctx, core.KindMovies, loader, cache, embedder)
//	recs, err := engine.RecommendByTitle(ctx, "inception", 10)
//
// Construction loads the catalog and resolves its embedding matrix, reusing
// persisted artifacts when they pass validation and rebuilding them with a
// single EmbedTexts call when they do not. Queries never embed catalog rows
// again; only an unmatched free-text query is embedded.
package recommend
