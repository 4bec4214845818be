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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/recommend"
)

// Rebuilder forces a fresh embedding build for a catalog.
// *recommend.EmbeddingCache satisfies it.
type Rebuilder interface {
	Rebuild(ctx context.Context, catalog *core.Catalog) (*recommend.Resolved, error)
}

// Config holds configuration for the reembedding operation.
type Config struct {
	// Workers is the number of kinds rebuilt concurrently
	Workers int

	// ReportInterval is how often to report progress (number of rows)
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:        1,
		ReportInterval: 1,
	}
}

// Result summarizes a Run.
type Result struct {
	Rebuilt []core.Kind
	Skipped []core.Kind // catalogs that were unavailable
	Rows    int
}

// Reembedder rebuilds the embedding cache of one or more catalog kinds.
type Reembedder struct {
	loader   recommend.CatalogLoader
	cache    Rebuilder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(loader recommend.CatalogLoader, cache Rebuilder, config *Config, progress io.Writer) (*Reembedder, error) {
	if loader == nil {
		return nil, ErrLoaderRequired
	}
	if cache == nil {
		return nil, ErrCacheRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Workers)
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		loader:   loader,
		cache:    cache,
		config:   config,
		progress: progress,
		logger:   slog.Default().With("component", "reembedder"),
	}, nil
}

// Run rebuilds the cache for each kind, or for every kind when none are
// given. Unavailable catalogs are skipped. Rebuild failures of individual
// kinds do not stop the others; they are joined into the returned error.
func (r *Reembedder) Run(ctx context.Context, kinds ...core.Kind) (*Result, error) {
	if len(kinds) == 0 {
		kinds = core.Kinds
	}

	result := &Result{}
	var catalogs []*core.Catalog
	for _, kind := range kinds {
		if err := core.ValidateKind(kind); err != nil {
			return nil, err
		}
		catalog, err := r.loader.Load(ctx, kind)
		if errors.Is(err, core.ErrCatalogUnavailable) {
			fmt.Fprintf(r.progress, "Skipping %s: %v\n", kind, err)
			result.Skipped = append(result.Skipped, kind)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s catalog: %w", kind, err)
		}
		catalogs = append(catalogs, catalog)
		result.Rows += catalog.Len()
	}

	if len(catalogs) == 0 {
		fmt.Fprintf(r.progress, "No catalogs to reembed\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d rows across %d catalogs (workers: %d)\n",
		result.Rows, len(catalogs), r.config.Workers)

	tracker := NewProgressTracker(r.progress, result.Rows, r.config.ReportInterval)
	tracker.Start()

	rebuilt, err := r.rebuildAll(ctx, catalogs, tracker)
	result.Rebuilt = rebuilt
	if err != nil {
		fmt.Fprintln(r.progress)
		return result, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d rows in %v\n",
		result.Rows, elapsed.Round(time.Millisecond))

	return result, nil
}

// rebuildAll submits one pool task per catalog and waits for all of them.
func (r *Reembedder) rebuildAll(ctx context.Context, catalogs []*core.Catalog, tracker *ProgressTracker) ([]core.Kind, error) {
	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		rebuilt []core.Kind
	)
	for _, catalog := range catalogs {
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			start := time.Now()
			_, err := r.cache.Rebuild(ctx, catalog)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Error("rebuild failed", "kind", catalog.Kind, "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", catalog.Kind, err))
				return
			}
			r.logger.Info("rebuilt embeddings", "kind", catalog.Kind, "rows", catalog.Len(), "elapsed", time.Since(start))
			rebuilt = append(rebuilt, catalog.Kind)
			tracker.Increment(catalog.Len())
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", catalog.Kind, submitErr))
			mu.Unlock()
		}
	}
	wg.Wait()

	slices.SortFunc(rebuilt, func(a, b core.Kind) int {
		return slices.Index(core.Kinds, a) - slices.Index(core.Kinds, b)
	})
	return rebuilt, errors.Join(errs...)
}
