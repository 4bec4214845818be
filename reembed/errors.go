package reembed

import "errors"

var (
	// ErrLoaderRequired is returned when creating a reembedder without a catalog loader.
	ErrLoaderRequired = errors.New("catalog loader is required")

	// ErrCacheRequired is returned when creating a reembedder without a cache to rebuild.
	ErrCacheRequired = errors.New("embedding cache is required")

	// ErrInvalidWorkers is returned when Config.Workers is < 1
	ErrInvalidWorkers = errors.New("workers must be greater than 0")
)
