package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/storage"
)

// CacheRepository implements storage.EmbeddingCacheRepository for BadgerDB.
// The matrix and alignment of a kind live under two keys that are always
// written and deleted in the same transaction.
type CacheRepository struct {
	backend     *Backend
	ownsBackend bool
}

var _ storage.EmbeddingCacheRepository = (*CacheRepository)(nil)

// NewCacheRepository opens a BadgerDB database at path and returns a cache
// repository that owns it.
//
// Returns storage.EmbeddingCacheRepository interface to enforce abstraction.
func NewCacheRepository(path string) (storage.EmbeddingCacheRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return &CacheRepository{backend: backend, ownsBackend: true}, nil
}

// newCacheRepository wraps an existing backend. The caller keeps ownership.
func newCacheRepository(backend *Backend) *CacheRepository {
	return &CacheRepository{backend: backend}
}

// Close closes the backend if the repository opened it.
func (r *CacheRepository) Close() error {
	if r.ownsBackend && !r.backend.IsClosed() {
		return r.backend.Close()
	}
	return nil
}

// LoadEmbeddings reads both artifacts for kind in a single read transaction.
func (r *CacheRepository) LoadEmbeddings(ctx context.Context, kind core.Kind) (*core.EmbeddingSet, error) {
	var set *core.EmbeddingSet

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		matrixBytes, matrixErr := readValue(tx, makeMatrixKey(kind))
		alignBytes, alignErr := readValue(tx, makeAlignmentKey(kind))

		switch {
		case errors.Is(matrixErr, storage.ErrNotFound) && errors.Is(alignErr, storage.ErrNotFound):
			return storage.ErrNotFound
		case errors.Is(matrixErr, storage.ErrNotFound):
			return fmt.Errorf("%w: alignment present without matrix", storage.ErrCorruptData)
		case errors.Is(alignErr, storage.ErrNotFound):
			return fmt.Errorf("%w: matrix present without alignment", storage.ErrCorruptData)
		case matrixErr != nil:
			return matrixErr
		case alignErr != nil:
			return alignErr
		}

		decoded, err := storage.UnmarshalMatrix(matrixBytes)
		if err != nil {
			return err
		}
		alignment, err := storage.UnmarshalAlignment(alignBytes)
		if err != nil {
			return err
		}
		decoded.Alignment = alignment
		set = decoded
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	r.backend.logger.Debug("loaded embeddings", "kind", kind, "rows", set.Len())
	return set, nil
}

// SaveEmbeddings writes both artifacts for kind in one transaction.
func (r *CacheRepository) SaveEmbeddings(ctx context.Context, kind core.Kind, set *core.EmbeddingSet) error {
	if err := storage.ValidateEmbeddingSet(set); err != nil {
		return err
	}
	matrixBytes, err := storage.MarshalMatrix(set)
	if err != nil {
		return err
	}
	alignBytes := storage.MarshalAlignment(set.Alignment)

	err = r.backend.WithTransaction(ctx, func(ctx context.Context, tx *badger.Txn) error {
		if err := tx.Set(makeMatrixKey(kind), matrixBytes); err != nil {
			return err
		}
		return tx.Set(makeAlignmentKey(kind), alignBytes)
	})
	if err != nil {
		return err
	}

	r.backend.logger.Debug("saved embeddings", "kind", kind, "rows", set.Len(), "bytes", len(matrixBytes)+len(alignBytes))
	return nil
}

// DeleteEmbeddings removes both artifacts for kind.
func (r *CacheRepository) DeleteEmbeddings(ctx context.Context, kind core.Kind) error {
	return r.backend.WithTransaction(ctx, func(ctx context.Context, tx *badger.Txn) error {
		if err := tx.Delete(makeMatrixKey(kind)); err != nil {
			return err
		}
		return tx.Delete(makeAlignmentKey(kind))
	})
}

func readValue(tx *badger.Txn, key []byte) ([]byte, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
