package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/plexrec/ai"
	"github.com/poiesic/plexrec/core"
)

// CatalogLoader supplies the catalog for a kind.
type CatalogLoader interface {
	Load(ctx context.Context, kind core.Kind) (*core.Catalog, error)
}

// State is the engine lifecycle stage. Transitions only move forward.
type State int32

const (
	StateUninitialized State = iota
	StateLoadingCatalog
	StateResolvingEmbeddings
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoadingCatalog:
		return "loading_catalog"
	case StateResolvingEmbeddings:
		return "resolving_embeddings"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine answers similarity and popularity queries over one catalog kind.
// It is safe for sequential use by a single caller.
type Engine struct {
	kind     core.Kind
	catalog  *core.Catalog
	matrix   [][]float32
	cacheHit bool
	state    atomic.Int32

	embedder ai.Embedder
	monitor  Monitor
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "engine")
		return nil
	}
}

// WithMonitor sets the event monitor for queries.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) error {
		if m == nil {
			m = NoopMonitor{}
		}
		e.monitor = m
		return nil
	}
}

// NewEngine loads the catalog for kind, resolves its embedding matrix and
// returns a Ready engine. Catalog and embedding failures are returned as is.
func NewEngine(ctx context.Context, kind core.Kind, loader CatalogLoader, cache *EmbeddingCache, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, ErrLoaderRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		kind:     kind,
		embedder: embedder,
		monitor:  NoopMonitor{},
		logger:   slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("kind", kind)

	e.setState(StateLoadingCatalog)
	catalog, err := loader.Load(ctx, kind)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateCatalog(catalog); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCatalogUnavailable, err)
	}
	if catalog.Kind != kind {
		return nil, fmt.Errorf("%w: loader returned %s catalog for %s", core.ErrCatalogUnavailable, catalog.Kind, kind)
	}

	e.setState(StateResolvingEmbeddings)
	resolved, err := cache.Resolve(ctx, catalog)
	if err != nil {
		return nil, err
	}
	e.catalog = resolved.Catalog
	e.matrix = resolved.Matrix
	e.cacheHit = resolved.Hit

	e.setState(StateReady)
	e.logger.Info("engine ready", "rows", e.catalog.Len(), "cache_hit", e.cacheHit)
	return e, nil
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// State returns the lifecycle stage.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Kind returns the catalog kind served by the engine.
func (e *Engine) Kind() core.Kind {
	return e.kind
}

// Len returns the number of rows in the working view.
func (e *Engine) Len() int {
	return e.catalog.Len()
}

// Items returns the working view. Callers must not modify it.
func (e *Engine) Items() []core.Item {
	return e.catalog.Items
}

// Item returns the row at position.
func (e *Engine) Item(position int) (core.Item, error) {
	if position < 0 || position >= e.Len() {
		return core.Item{}, fmt.Errorf("%w: %d not in [0, %d)", core.ErrOutOfRange, position, e.Len())
	}
	return e.catalog.Items[position], nil
}

// Matrix returns the embedding matrix aligned with Items. Callers must not modify it.
func (e *Engine) Matrix() [][]float32 {
	return e.matrix
}

// CacheHit reports whether the matrix was reused from persisted artifacts.
func (e *Engine) CacheHit() bool {
	return e.cacheHit
}

// RecommendByTitle finds the first item whose title contains query,
// ignoring case, and returns its nearest neighbours excluding itself. When
// nothing matches, query is embedded directly and nothing is excluded. A
// blank query never matches a title.
func (e *Engine) RecommendByTitle(ctx context.Context, query string, topK int) ([]core.Recommendation, error) {
	defer e.observe(OpByTitle, time.Now())

	if pos, ok := e.findTitle(query); ok {
		e.logger.Debug("query matched catalog title", "query", query, "position", pos, "title", e.catalog.Items[pos].Title)
		return e.collect(Rank(e.matrix[pos], e.matrix, topK, pos)), nil
	}

	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", core.ErrEmbeddingFailure, query, err)
	}
	e.logger.Debug("query embedded as free text", "query", query)
	return e.collect(Rank(vec, e.matrix, topK, NoExclude)), nil
}

// RecommendForItem returns the nearest neighbours of the item at position,
// excluding the item itself.
func (e *Engine) RecommendForItem(position int, topK int) ([]core.Recommendation, error) {
	defer e.observe(OpForItem, time.Now())

	if position < 0 || position >= len(e.matrix) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", core.ErrOutOfRange, position, len(e.matrix))
	}
	return e.collect(Rank(e.matrix[position], e.matrix, topK, position)), nil
}

// GetPopular ranks by rating when any item has one, else by popularity,
// else keeps catalog order.
func (e *Engine) GetPopular(topK int) []core.Item {
	defer e.observe(OpPopular, time.Now())

	switch {
	case e.catalog.HasRatings():
		return topByField(e.catalog.Items, topK, rating)
	case e.catalog.HasPopularity():
		return topByField(e.catalog.Items, topK, popularity)
	default:
		return head(e.catalog.Items, topK)
	}
}

// GetAllTime ranks by rating only, else keeps catalog order.
func (e *Engine) GetAllTime(topK int) []core.Item {
	defer e.observe(OpAllTime, time.Now())

	if e.catalog.HasRatings() {
		return topByField(e.catalog.Items, topK, rating)
	}
	return head(e.catalog.Items, topK)
}

// findTitle returns the first item whose title contains query, ignoring case.
// Only the empty string never matches; whitespace is matched like any other text.
func (e *Engine) findTitle(query string) (int, bool) {
	if query == "" {
		return 0, false
	}
	needle := strings.ToLower(query)
	for i := range e.catalog.Items {
		if strings.Contains(strings.ToLower(e.catalog.Items[i].Title), needle) {
			return i, true
		}
	}
	return 0, false
}

func (e *Engine) collect(scored []Scored) []core.Recommendation {
	recs := make([]core.Recommendation, len(scored))
	for i, s := range scored {
		recs[i] = core.Recommendation{Item: e.catalog.Items[s.Position], Score: s.Score}
	}
	return recs
}

func (e *Engine) observe(op string, start time.Time) {
	e.monitor.Query(e.kind, op, time.Since(start))
}
