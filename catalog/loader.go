// Package catalog loads per-kind title catalogs from CSV files.
//
// A catalog lives at <data_dir>/<kind>.csv. The loader tolerates the files
// people actually export: legacy encodings, a byte order mark, missing
// headers, or a plain list of titles. Whatever the input, every returned
// item has a non-empty trimmed Title and items are numbered densely in file
// order.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/plexrec/core"
)

// ErrDataDirRequired is returned by NewLoader when no directory is given.
var ErrDataDirRequired = errors.New("catalog: data directory is required")

// Loader reads catalogs from a data directory.
type Loader struct {
	dataDir string
	logger  *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger.With("component", "catalog")
		return nil
	}
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string, opts ...Option) (*Loader, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, ErrDataDirRequired
	}
	l := &Loader{
		dataDir: dataDir,
		logger:  slog.Default().With("component", "catalog"),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// DataDir returns the directory catalogs are read from.
func (l *Loader) DataDir() string {
	return l.dataDir
}

// Path returns the CSV path for kind.
func (l *Loader) Path(kind core.Kind) string {
	return filepath.Join(l.dataDir, string(kind)+".csv")
}

// Load reads and normalizes the catalog for kind. A missing file yields
// core.ErrCatalogUnavailable wrapping fs.ErrNotExist.
func (l *Loader) Load(ctx context.Context, kind core.Kind) (*core.Catalog, error) {
	t, enc, err := l.read(ctx, kind)
	if err != nil {
		return nil, err
	}
	catalog := &core.Catalog{Kind: kind, Items: t.items()}
	l.logger.Info("loaded catalog", "kind", kind, "rows", catalog.Len(), "encoding", enc)
	return catalog, nil
}

// Preview returns at most n items from the start of the catalog.
func (l *Loader) Preview(ctx context.Context, kind core.Kind, n int) ([]core.Item, error) {
	catalog, err := l.Load(ctx, kind)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n > catalog.Len() {
		n = catalog.Len()
	}
	return catalog.Items[:n], nil
}

// read loads the raw table for kind, returning the detected encoding.
func (l *Loader) read(ctx context.Context, kind core.Kind) (*table, string, error) {
	if err := core.ValidateKind(kind); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	path := l.Path(kind)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s not found, place your CSV at %s: %w", core.ErrCatalogUnavailable, filepath.Base(path), path, err)
		}
		return nil, "", fmt.Errorf("%w: %w", core.ErrCatalogUnavailable, err)
	}

	text, enc := decode(raw)
	t, err := parseCSV(text)
	if err != nil {
		l.logger.Warn("catalog is not valid CSV, reading as plain text", "kind", kind, "err", err)
		t = parsePlain(text)
	}
	return t, enc, nil
}
