// Package plexrec is a personal content recommender for movies, series and
// anime catalogs.
//
// A Recommender wires the catalog loader, the embedding cache, the history
// store and an optional TMDB client from a config.Config, and keeps one
// recommend.Engine per catalog kind:
//
//	r, err := plexrec.New(plexrec.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	recs, err := r.RecommendByTitle(ctx, core.KindMovies, "inception", 10)
package plexrec
