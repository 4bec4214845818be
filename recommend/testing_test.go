package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/storage"
	"github.com/poiesic/plexrec/storage/badger"
	"github.com/stretchr/testify/require"
)

func newCatalog(kind core.Kind, titles ...string) *core.Catalog {
	items := make([]core.Item, len(titles))
	for i, title := range titles {
		items[i] = core.Item{
			Position:  i,
			OrigIndex: i,
			ID:        core.IDFromContent(title).String(),
			Title:     title,
		}
	}
	return &core.Catalog{Kind: kind, Items: items}
}

type stubLoader struct {
	catalog *core.Catalog
	err     error
	calls   int
}

func (l *stubLoader) Load(_ context.Context, kind core.Kind) (*core.Catalog, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.catalog, nil
}

// failingSaveRepo loads from the wrapped repository but refuses writes.
type failingSaveRepo struct {
	storage.EmbeddingCacheRepository
}

func (failingSaveRepo) SaveEmbeddings(context.Context, core.Kind, *core.EmbeddingSet) error {
	return errors.New("disk full")
}

type recordingMonitor struct {
	mu       sync.Mutex
	hits     int
	misses   []string
	builds   int
	buildErr error
	queries  []string
}

func (m *recordingMonitor) CacheHit(core.Kind, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recordingMonitor) CacheMiss(_ core.Kind, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses = append(m.misses, reason)
}

func (m *recordingMonitor) BuildStarted(core.Kind, int) {}

func (m *recordingMonitor) BuildFinished(_ core.Kind, _ int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds++
	m.buildErr = err
}

func (m *recordingMonitor) Query(_ core.Kind, op string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, op)
}

func newMemoryRepo(t *testing.T) storage.EmbeddingCacheRepository {
	t.Helper()
	repo, err := badger.NewMemoryCacheRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}
