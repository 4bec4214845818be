// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package plexrec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/plexrec/ai"
	"github.com/poiesic/plexrec/ai/hashing"
	"github.com/poiesic/plexrec/ai/openai"
	"github.com/poiesic/plexrec/catalog"
	"github.com/poiesic/plexrec/config"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/metadata"
	"github.com/poiesic/plexrec/recommend"
	"github.com/poiesic/plexrec/reembed"
	"github.com/poiesic/plexrec/storage"
	"github.com/poiesic/plexrec/storage/badger"
	"github.com/poiesic/plexrec/storage/filecache"
	"github.com/poiesic/plexrec/storage/sqlite"
)

// DefaultHistorySelections is how many top results RecordSelections keeps
// when n is not positive.
const DefaultHistorySelections = 3

// Recommender keeps one engine per catalog kind and the stores they share.
// Access to each kind is serialized; different kinds proceed independently.
type Recommender struct {
	config       *config.Config
	loader       *catalog.Loader
	cacheRepo    storage.EmbeddingCacheRepository
	history      storage.HistoryRepository
	embedder     ai.Embedder
	ownsEmbedder bool
	cache        *recommend.EmbeddingCache
	tmdb         *metadata.Client
	monitor      recommend.Monitor
	logger       *slog.Logger

	mu    sync.Mutex
	slots map[core.Kind]*slot
}

type slot struct {
	mu     sync.Mutex
	engine *recommend.Engine
}

// Option configures a Recommender.
type Option func(*options)

type options struct {
	config   *config.Config
	embedder ai.Embedder
	tmdb     *metadata.Client
	monitor  recommend.Monitor
	logger   *slog.Logger
}

// WithConfig sets the configuration. Default is config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithEmbedder overrides the embedder selected by the configuration.
// The caller keeps ownership; Close does not close it.
func WithEmbedder(e ai.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithMetadataClient overrides the TMDB client built from the configured API key.
func WithMetadataClient(c *metadata.Client) Option {
	return func(o *options) {
		o.tmdb = c
	}
}

// WithMonitor sets the engine event monitor.
func WithMonitor(m recommend.Monitor) Option {
	return func(o *options) {
		o.monitor = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New wires the loader, cache repository, history store, embedder and
// metadata client described by the configuration. Engines are built lazily.
func New(opts ...Option) (*Recommender, error) {
	o := &options{
		monitor: recommend.NoopMonitor{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.config == nil {
		o.config = config.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.monitor == nil {
		o.monitor = recommend.NoopMonitor{}
	}
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Recommender{
		config:  cfg,
		monitor: o.monitor,
		logger:  o.logger.With("component", "recommender"),
		slots:   make(map[core.Kind]*slot),
	}

	var err error
	r.loader, err = catalog.NewLoader(cfg.DataDir, catalog.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	r.embedder = o.embedder
	if r.embedder == nil {
		if r.embedder, err = newEmbedder(cfg.AIConfig()); err != nil {
			return nil, err
		}
		r.ownsEmbedder = true
	}

	switch cfg.Cache.Backend {
	case config.BackendBadger:
		r.cacheRepo, err = badger.NewCacheRepository(cfg.BadgerDir())
	default:
		r.cacheRepo, err = filecache.NewRepository(cfg.DataDir)
	}
	if err != nil {
		r.closeEmbedder()
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}

	r.history, err = sqlite.OpenHistory(cfg.HistoryFile())
	if err != nil {
		r.cacheRepo.Close()
		r.closeEmbedder()
		return nil, fmt.Errorf("opening history: %w", err)
	}

	r.cache, err = recommend.NewEmbeddingCache(r.cacheRepo, r.embedder,
		recommend.WithCacheLogger(o.logger), recommend.WithCacheMonitor(o.monitor))
	if err != nil {
		r.Close()
		return nil, err
	}

	r.tmdb = o.tmdb
	if r.tmdb == nil && cfg.APIKeys.TMDB != "" {
		r.tmdb, err = metadata.NewClient(cfg.APIKeys.TMDB, metadata.WithLogger(o.logger))
		if err != nil {
			r.Close()
			return nil, err
		}
	}

	r.logger.Info("recommender ready",
		"data_dir", cfg.DataDir, "cache", cfg.Cache.Backend,
		"model", r.cache.Model(), "tmdb", r.tmdb != nil)
	return r, nil
}

func newEmbedder(cfg *ai.Config) (ai.Embedder, error) {
	switch cfg.Provider {
	case ai.ProviderHashing:
		return hashing.NewEmbedder(cfg)
	default:
		return openai.NewEmbedder(cfg)
	}
}

// Config returns the active configuration.
func (r *Recommender) Config() *config.Config {
	return r.config
}

// Loader returns the catalog loader.
func (r *Recommender) Loader() *catalog.Loader {
	return r.loader
}

// Engine returns the engine for kind, building it on first use.
func (r *Recommender) Engine(ctx context.Context, kind core.Kind) (*recommend.Engine, error) {
	var engine *recommend.Engine
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		engine = e
		return nil
	})
	return engine, err
}

// RecommendByTitle returns up to k items similar to the first title
// containing query, or to the query text itself when no title matches.
func (r *Recommender) RecommendByTitle(ctx context.Context, kind core.Kind, query string, k int) ([]core.Recommendation, error) {
	var recs []core.Recommendation
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		var err error
		recs, err = e.RecommendByTitle(ctx, query, k)
		return err
	})
	return recs, err
}

// RecommendForItem returns up to k items similar to the item at position.
func (r *Recommender) RecommendForItem(ctx context.Context, kind core.Kind, position, k int) ([]core.Recommendation, error) {
	var recs []core.Recommendation
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		var err error
		recs, err = e.RecommendForItem(position, k)
		return err
	})
	return recs, err
}

// Popular returns up to k popular items. With online set and a TMDB key
// configured, TMDB is asked first; any failure or an empty answer falls
// back to the local catalog.
func (r *Recommender) Popular(ctx context.Context, kind core.Kind, k int, online bool) ([]core.Item, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	if online && r.tmdb != nil && k > 0 {
		items, err := r.popularOnline(ctx, kind)
		switch {
		case err != nil:
			r.logger.Warn("online popular lookup failed, using catalog", "kind", kind, "err", err)
		case len(items) == 0:
			r.logger.Info("online popular lookup returned nothing, using catalog", "kind", kind)
		default:
			return items[:min(k, len(items))], nil
		}
	}

	var items []core.Item
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		items = e.GetPopular(k)
		return nil
	})
	return items, err
}

func (r *Recommender) popularOnline(ctx context.Context, kind core.Kind) ([]core.Item, error) {
	mediaType, err := metadata.MediaTypeFor(kind)
	if err != nil {
		return nil, err
	}
	return r.tmdb.Popular(ctx, mediaType, 1)
}

// SearchOnline looks query up on TMDB and returns up to k matching titles.
// It fails with metadata.ErrNoAPIKey when no TMDB key is configured.
func (r *Recommender) SearchOnline(ctx context.Context, kind core.Kind, query string, k int) ([]core.Item, error) {
	mediaType, err := metadata.MediaTypeFor(kind)
	if err != nil {
		return nil, err
	}
	if r.tmdb == nil {
		return nil, metadata.ErrNoAPIKey
	}
	if k <= 0 {
		return []core.Item{}, nil
	}
	items, err := r.tmdb.Search(ctx, mediaType, query)
	if err != nil {
		return nil, err
	}
	return items[:min(k, len(items))], nil
}

// AllTime returns up to k items ordered by rating.
func (r *Recommender) AllTime(ctx context.Context, kind core.Kind, k int) ([]core.Item, error) {
	var items []core.Item
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		items = e.GetAllTime(k)
		return nil
	})
	return items, err
}

// Preview returns the first n catalog rows without building an engine.
func (r *Recommender) Preview(ctx context.Context, kind core.Kind, n int) ([]core.Item, error) {
	return r.loader.Preview(ctx, kind, n)
}

// RecordSelections appends the first n recommendations (DefaultHistorySelections
// when n <= 0) to the history as selections made for query.
func (r *Recommender) RecordSelections(ctx context.Context, kind core.Kind, query string, recs []core.Recommendation, n int) ([]*core.HistoryEntry, error) {
	if n <= 0 {
		n = DefaultHistorySelections
	}
	recs = recs[:min(n, len(recs))]
	if len(recs) == 0 {
		return []*core.HistoryEntry{}, nil
	}

	entries := make([]*core.HistoryEntry, len(recs))
	for i, rec := range recs {
		entries[i] = &core.HistoryEntry{
			Kind:      kind,
			Query:     query,
			ItemID:    rec.Item.ID,
			ItemTitle: rec.Item.Title,
		}
	}
	return r.history.Append(ctx, entries...)
}

// RecordItems appends the catalog items with the given ids to the history
// as selections made for query. An unknown id yields core.ErrOutOfRange.
func (r *Recommender) RecordItems(ctx context.Context, kind core.Kind, query string, ids []string) ([]*core.HistoryEntry, error) {
	var recs []core.Recommendation
	err := r.withEngine(ctx, kind, func(e *recommend.Engine) error {
		byID := make(map[string]core.Item, e.Len())
		for _, item := range e.Items() {
			if _, dup := byID[item.ID]; !dup {
				byID[item.ID] = item
			}
		}
		for _, id := range ids {
			item, ok := byID[id]
			if !ok {
				return fmt.Errorf("%w: unknown item id %q", core.ErrOutOfRange, id)
			}
			recs = append(recs, core.Recommendation{Item: item})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.RecordSelections(ctx, kind, query, recs, len(recs))
}

// History returns the most recent selections for kind, newest first.
func (r *Recommender) History(ctx context.Context, kind core.Kind, limit int) ([]*core.HistoryEntry, error) {
	return r.history.Recent(ctx, kind, limit)
}

// Rebuild re-embeds the catalogs of kinds (all kinds when none are given)
// and drops their engines so the next query picks up the new vectors.
func (r *Recommender) Rebuild(ctx context.Context, progress io.Writer, kinds ...core.Kind) (*reembed.Result, error) {
	reembedder, err := reembed.NewReembedder(r.loader, r.cache, reembed.DefaultConfig(), progress)
	if err != nil {
		return nil, err
	}
	result, err := reembedder.Run(ctx, kinds...)
	if result != nil {
		r.reset(result.Rebuilt...)
	}
	return result, err
}

// Clean rewrites the catalogs of kinds (all kinds when none are given) as
// plain UTF-8. Missing catalogs are skipped. Engines of cleaned kinds are
// dropped.
func (r *Recommender) Clean(ctx context.Context, kinds ...core.Kind) ([]*catalog.CleanReport, error) {
	if len(kinds) == 0 {
		kinds = core.Kinds
	}
	var reports []*catalog.CleanReport
	for _, kind := range kinds {
		report, err := r.loader.Clean(ctx, kind)
		if errors.Is(err, core.ErrCatalogUnavailable) {
			r.logger.Info("no catalog to clean", "kind", kind)
			continue
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		r.reset(kind)
	}
	return reports, nil
}

// Close releases the stores and any embedder New created.
func (r *Recommender) Close() error {
	var errs []error
	if err := r.closeEmbedder(); err != nil {
		r.logger.Error("error closing embedder", "err", err)
		errs = append(errs, err)
	}
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.logger.Error("error closing history", "err", err)
			errs = append(errs, err)
		}
	}
	if r.cacheRepo != nil {
		if err := r.cacheRepo.Close(); err != nil {
			r.logger.Error("error closing embedding cache", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Recommender) closeEmbedder() error {
	if !r.ownsEmbedder {
		return nil
	}
	if c, ok := r.embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Recommender) slot(kind core.Kind) (*slot, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[kind]
	if !ok {
		s = &slot{}
		r.slots[kind] = s
	}
	return s, nil
}

func (r *Recommender) withEngine(ctx context.Context, kind core.Kind, fn func(*recommend.Engine) error) error {
	s, err := r.slot(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		engine, err := recommend.NewEngine(ctx, kind, r.loader, r.cache, r.embedder,
			recommend.WithLogger(r.logger), recommend.WithMonitor(r.monitor))
		if err != nil {
			return err
		}
		s.engine = engine
	}
	return fn(s.engine)
}

func (r *Recommender) reset(kinds ...core.Kind) {
	for _, kind := range kinds {
		s, err := r.slot(kind)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.engine = nil
		s.mu.Unlock()
	}
}
