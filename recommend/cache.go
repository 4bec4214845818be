package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/plexrec/ai"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/storage"
)

// Resolved is the working view produced by EmbeddingCache: the catalog rows
// that have vectors, renumbered 0..M-1, and their matrix in the same order.
type Resolved struct {
	Catalog *core.Catalog
	Matrix  [][]float32
	Hit     bool // true when the matrix came from persisted artifacts
}

// EmbeddingCache resolves the embedding matrix for a catalog, reusing
// persisted artifacts when they are valid and rebuilding them otherwise.
type EmbeddingCache struct {
	repo     storage.EmbeddingCacheRepository
	embedder ai.Embedder
	model    string
	device   string
	monitor  Monitor
	logger   *slog.Logger
	now      func() time.Time
}

// CacheOption configures an EmbeddingCache.
type CacheOption func(*EmbeddingCache) error

// WithModel overrides the model identifier and device recorded with, and
// required of, persisted artifacts. Default comes from the embedder.
func WithModel(model, device string) CacheOption {
	return func(c *EmbeddingCache) error {
		if model == "" {
			return errors.New("model identifier must not be empty")
		}
		c.model = model
		c.device = device
		return nil
	}
}

// WithCacheMonitor sets the event monitor.
// Default is NoopMonitor.
func WithCacheMonitor(m Monitor) CacheOption {
	return func(c *EmbeddingCache) error {
		if m == nil {
			m = NoopMonitor{}
		}
		c.monitor = m
		return nil
	}
}

// WithCacheLogger sets a custom logger.
// Default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *EmbeddingCache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "embedding-cache")
		return nil
	}
}

// NewEmbeddingCache creates a cache over repo that builds with embedder.
func NewEmbeddingCache(repo storage.EmbeddingCacheRepository, embedder ai.Embedder, opts ...CacheOption) (*EmbeddingCache, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	model, device := ai.Describe(embedder, nil)
	c := &EmbeddingCache{
		repo:     repo,
		embedder: embedder,
		model:    model,
		device:   device,
		monitor:  NoopMonitor{},
		logger:   slog.Default().With("component", "embedding-cache"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Model returns the model identifier persisted artifacts must match.
func (c *EmbeddingCache) Model() string {
	return c.model
}

// Resolve returns the working view for catalog. Valid persisted artifacts
// are reused without embedding anything; otherwise the matrix is built from
// the whole catalog and persisted. Cache faults never surface: they only
// force a rebuild. Embedding faults do.
func (c *EmbeddingCache) Resolve(ctx context.Context, catalog *core.Catalog) (*Resolved, error) {
	if err := core.ValidateCatalog(catalog); err != nil {
		return nil, err
	}

	set, err := c.repo.LoadEmbeddings(ctx, catalog.Kind)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.logger.Info("no cached embeddings", "kind", catalog.Kind)
		c.monitor.CacheMiss(catalog.Kind, MissAbsent)
	case err != nil:
		c.logger.Warn("cached embeddings unreadable, rebuilding", "kind", catalog.Kind, "reason", err)
		c.monitor.CacheMiss(catalog.Kind, MissCorrupt)
	default:
		if verr := c.validate(set, catalog.Len()); verr != nil {
			c.logger.Warn("cached embeddings invalid, rebuilding", "kind", catalog.Kind, "reason", verr)
			reason := MissCorrupt
			if errors.Is(verr, errModelMismatch) {
				reason = MissModel
			}
			c.monitor.CacheMiss(catalog.Kind, reason)
			break
		}
		resolved := selectRows(catalog, set)
		c.logger.Info("using cached embeddings", "kind", catalog.Kind, "rows", len(resolved.Matrix), "catalog", catalog.Len())
		c.monitor.CacheHit(catalog.Kind, len(resolved.Matrix))
		return resolved, nil
	}

	return c.build(ctx, catalog, false)
}

// Rebuild embeds the whole catalog and persists the result regardless of
// what is cached. Unlike Resolve, a failure to persist is returned.
func (c *EmbeddingCache) Rebuild(ctx context.Context, catalog *core.Catalog) (*Resolved, error) {
	if err := core.ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	c.monitor.CacheMiss(catalog.Kind, MissForced)
	return c.build(ctx, catalog, true)
}

// Invalidate deletes the persisted artifacts for kind.
func (c *EmbeddingCache) Invalidate(ctx context.Context, kind core.Kind) error {
	if err := core.ValidateKind(kind); err != nil {
		return err
	}
	if err := c.repo.DeleteEmbeddings(ctx, kind); err != nil {
		return err
	}
	c.logger.Info("invalidated cached embeddings", "kind", kind)
	return nil
}

// build embeds and persists catalog. When mustPersist is false a save
// failure only loses the cache; the in-memory matrix is still returned.
func (c *EmbeddingCache) build(ctx context.Context, catalog *core.Catalog, mustPersist bool) (*Resolved, error) {
	rows := catalog.Len()
	c.monitor.BuildStarted(catalog.Kind, rows)
	start := c.now()

	matrix, err := c.embedCatalog(ctx, catalog)
	c.monitor.BuildFinished(catalog.Kind, rows, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	alignment := make([]int, rows)
	for i := range alignment {
		alignment[i] = i
	}
	set := &core.EmbeddingSet{
		Matrix:     matrix,
		Alignment:  alignment,
		Model:      c.model,
		Device:     c.device,
		Dimensions: dimensions(matrix),
		CreatedAt:  c.now().UTC(),
	}
	if err := c.repo.SaveEmbeddings(ctx, catalog.Kind, set); err != nil {
		if mustPersist {
			return nil, fmt.Errorf("%w: %s: %w", ErrPersistFailed, catalog.Kind, err)
		}
		c.logger.Warn("failed to persist embeddings, continuing with in-memory copy", "kind", catalog.Kind, "err", err)
	} else {
		c.logger.Info("built and cached embeddings", "kind", catalog.Kind, "rows", rows, "dims", set.Dimensions, "elapsed", time.Since(start))
	}

	return &Resolved{Catalog: catalog, Matrix: matrix}, nil
}

// embedCatalog issues a single EmbedTexts call over every row in order.
func (c *EmbeddingCache) embedCatalog(ctx context.Context, catalog *core.Catalog) ([][]float32, error) {
	texts := make([]string, catalog.Len())
	for i := range catalog.Items {
		texts[i] = catalog.Items[i].CombinedText()
	}

	matrix, err := c.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrEmbeddingFailure, catalog.Kind, err)
	}
	if len(matrix) != len(texts) {
		return nil, fmt.Errorf("%w: %s: embedder returned %d vectors for %d rows", core.ErrEmbeddingFailure, catalog.Kind, len(matrix), len(texts))
	}
	dims := dimensions(matrix)
	for i, row := range matrix {
		if len(row) == 0 || len(row) != dims {
			return nil, fmt.Errorf("%w: %s: row %d has %d dimensions, want %d", core.ErrEmbeddingFailure, catalog.Kind, i, len(row), dims)
		}
	}
	return matrix, nil
}

var errModelMismatch = errors.New("model mismatch")

// validate is the single usability predicate for persisted artifacts.
func (c *EmbeddingCache) validate(set *core.EmbeddingSet, catalogLen int) error {
	if set == nil {
		return fmt.Errorf("%w: empty result", core.ErrCacheCorrupt)
	}
	if set.Model != c.model {
		return fmt.Errorf("%w: %w: cached %q, configured %q", core.ErrCacheCorrupt, errModelMismatch, set.Model, c.model)
	}
	if len(set.Matrix) != len(set.Alignment) {
		return fmt.Errorf("%w: %d vectors but %d alignment entries", core.ErrCacheCorrupt, len(set.Matrix), len(set.Alignment))
	}
	if len(set.Matrix) == 0 && catalogLen > 0 {
		return fmt.Errorf("%w: no vectors for a catalog of %d rows", core.ErrCacheCorrupt, catalogLen)
	}
	dims := dimensions(set.Matrix)
	for i, row := range set.Matrix {
		if len(row) == 0 || len(row) != dims {
			return fmt.Errorf("%w: row %d has %d dimensions, want %d", core.ErrCacheCorrupt, i, len(row), dims)
		}
	}
	seen := make(map[int]struct{}, len(set.Alignment))
	for i, pos := range set.Alignment {
		if pos < 0 || pos >= catalogLen {
			return fmt.Errorf("%w: alignment entry %d = %d outside catalog of %d rows", core.ErrCacheCorrupt, i, pos, catalogLen)
		}
		if _, dup := seen[pos]; dup {
			return fmt.Errorf("%w: alignment entry %d repeats row %d", core.ErrCacheCorrupt, i, pos)
		}
		seen[pos] = struct{}{}
	}
	return nil
}

// selectRows builds the working view by picking catalog rows in alignment
// order. Rows absent from the alignment are dropped.
func selectRows(catalog *core.Catalog, set *core.EmbeddingSet) *Resolved {
	items := make([]core.Item, len(set.Alignment))
	for i, orig := range set.Alignment {
		item := catalog.Items[orig]
		item.Position = i
		items[i] = item
	}
	return &Resolved{
		Catalog: &core.Catalog{Kind: catalog.Kind, Items: items},
		Matrix:  set.Matrix,
		Hit:     true,
	}
}

func dimensions(matrix [][]float32) int {
	if len(matrix) == 0 {
		return 0
	}
	return len(matrix[0])
}
