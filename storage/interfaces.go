package storage

import (
	"context"

	"github.com/poiesic/plexrec/core"
)

// EmbeddingCacheRepository persists one embedding matrix and its alignment
// index per catalog kind. The two artifacts are always written and removed
// together. Implementations must be thread-safe.
type EmbeddingCacheRepository interface {
	// LoadEmbeddings returns the persisted set for kind.
	// Returns ErrNotFound when no artifacts exist and ErrCorruptData
	// (wrapped) when they exist but cannot be decoded or do not pair up.
	LoadEmbeddings(ctx context.Context, kind core.Kind) (*core.EmbeddingSet, error)

	// SaveEmbeddings replaces the persisted set for kind.
	SaveEmbeddings(ctx context.Context, kind core.Kind, set *core.EmbeddingSet) error

	// DeleteEmbeddings removes the persisted set for kind.
	// Deleting a missing set is not an error.
	DeleteEmbeddings(ctx context.Context, kind core.Kind) error

	// Close releases resources held by the repository.
	Close() error
}

// HistoryRepository is the append-only log of selected recommendations.
type HistoryRepository interface {
	// Append stores entries, stamping a UTC timestamp on those without one.
	// Returns the entries with IDs populated.
	Append(ctx context.Context, entries ...*core.HistoryEntry) ([]*core.HistoryEntry, error)

	// Recent returns up to limit entries for kind, newest first.
	Recent(ctx context.Context, kind core.Kind, limit int) ([]*core.HistoryEntry, error)

	// Close releases resources held by the repository.
	Close() error
}
