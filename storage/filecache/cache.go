// Package filecache stores embedding sets as plain files under the data
// directory:
//
//	<data_dir>/embeddings/<kind>_emb.bin   mus-encoded matrix with model header
//	<data_dir>/embeddings/<kind>_idx.csv   single column "orig_index"
//
// Both files are written to temporary names and renamed into place. A pair
// where only one file exists is reported as corrupt.
package filecache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/storage"
)

// AlignmentHeader is the column name of the alignment CSV.
const AlignmentHeader = "orig_index"

// Repository implements storage.EmbeddingCacheRepository on the filesystem.
type Repository struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ storage.EmbeddingCacheRepository = (*Repository)(nil)

// NewRepository returns a file-backed cache rooted at <dataDir>/embeddings.
// The directory is created on first save.
//
// Returns storage.EmbeddingCacheRepository interface to enforce abstraction.
func NewRepository(dataDir string) (storage.EmbeddingCacheRepository, error) {
	return newRepository(dataDir)
}

func newRepository(dataDir string) (*Repository, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("filecache: data directory is required")
	}
	return &Repository{
		dir:    filepath.Join(dataDir, "embeddings"),
		logger: slog.Default().With("component", "filecache"),
	}, nil
}

// MatrixPath returns the matrix file for kind.
func (r *Repository) MatrixPath(kind core.Kind) string {
	return filepath.Join(r.dir, string(kind)+"_emb.bin")
}

// AlignmentPath returns the alignment file for kind.
func (r *Repository) AlignmentPath(kind core.Kind) string {
	return filepath.Join(r.dir, string(kind)+"_idx.csv")
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}

// LoadEmbeddings reads the matrix and alignment files for kind.
func (r *Repository) LoadEmbeddings(ctx context.Context, kind core.Kind) (*core.EmbeddingSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matrixBytes, matrixErr := os.ReadFile(r.MatrixPath(kind))
	alignFile, alignErr := os.Open(r.AlignmentPath(kind))
	if alignErr == nil {
		defer alignFile.Close()
	}

	matrixMissing := errors.Is(matrixErr, fs.ErrNotExist)
	alignMissing := errors.Is(alignErr, fs.ErrNotExist)
	switch {
	case matrixMissing && alignMissing:
		return nil, storage.ErrNotFound
	case matrixMissing:
		return nil, fmt.Errorf("%w: %s missing", storage.ErrCorruptData, filepath.Base(r.MatrixPath(kind)))
	case alignMissing:
		return nil, fmt.Errorf("%w: %s missing", storage.ErrCorruptData, filepath.Base(r.AlignmentPath(kind)))
	case matrixErr != nil:
		return nil, matrixErr
	case alignErr != nil:
		return nil, alignErr
	}

	set, err := storage.UnmarshalMatrix(matrixBytes)
	if err != nil {
		return nil, err
	}
	alignment, err := ReadAlignment(alignFile)
	if err != nil {
		return nil, err
	}
	set.Alignment = alignment

	r.logger.Debug("loaded embeddings", "kind", kind, "rows", set.Len(), "path", r.MatrixPath(kind))
	return set, nil
}

// SaveEmbeddings writes both files for kind.
func (r *Repository) SaveEmbeddings(ctx context.Context, kind core.Kind, set *core.EmbeddingSet) error {
	if err := storage.ValidateEmbeddingSet(set); err != nil {
		return err
	}
	matrixBytes, err := storage.MarshalMatrix(set)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}

	matrixTmp, err := writeTemp(r.dir, func(w io.Writer) error {
		_, err := w.Write(matrixBytes)
		return err
	})
	if err != nil {
		return err
	}
	alignTmp, err := writeTemp(r.dir, func(w io.Writer) error {
		return WriteAlignment(w, set.Alignment)
	})
	if err != nil {
		os.Remove(matrixTmp)
		return err
	}

	if err := os.Rename(alignTmp, r.AlignmentPath(kind)); err != nil {
		os.Remove(matrixTmp)
		os.Remove(alignTmp)
		return err
	}
	if err := os.Rename(matrixTmp, r.MatrixPath(kind)); err != nil {
		os.Remove(matrixTmp)
		return err
	}

	r.logger.Debug("saved embeddings", "kind", kind, "rows", set.Len(), "path", r.MatrixPath(kind))
	return nil
}

// DeleteEmbeddings removes both files for kind.
func (r *Repository) DeleteEmbeddings(ctx context.Context, kind core.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, path := range []string{r.MatrixPath(kind), r.AlignmentPath(kind)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadAlignment parses an orig_index CSV.
func ReadAlignment(r io.Reader) ([]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: alignment: %w", storage.ErrCorruptData, err)
	}
	if len(records) == 0 || strings.TrimSpace(records[0][0]) != AlignmentHeader {
		return nil, fmt.Errorf("%w: alignment header must be %q", storage.ErrCorruptData, AlignmentHeader)
	}

	out := make([]int, 0, len(records)-1)
	for i, rec := range records[1:] {
		v, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: alignment row %d: %w", storage.ErrCorruptData, i+1, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteAlignment writes an orig_index CSV.
func WriteAlignment(w io.Writer, alignment []int) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{AlignmentHeader}); err != nil {
		return err
	}
	for _, v := range alignment {
		if err := writer.Write([]string{strconv.Itoa(v)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeTemp(dir string, fill func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
