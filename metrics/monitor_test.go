package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/plexrec/ai/mock"
	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/recommend"
	"github.com/poiesic/plexrec/storage/badger"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestNewMonitor_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMonitor(reg)
	require.NoError(t, err)

	_, err = NewMonitor(reg)
	assert.Error(t, err)
}

func TestMonitor_RecordsEvents(t *testing.T) {
	m, err := NewMonitor(prometheus.NewRegistry())
	require.NoError(t, err)

	m.CacheMiss(core.KindMovies, recommend.MissAbsent)
	m.BuildStarted(core.KindMovies, 10)
	assert.Equal(t, 1.0, gaugeValue(t, m.BuildsActive.WithLabelValues("movies")))
	m.BuildFinished(core.KindMovies, 10, 2*time.Second, nil)
	m.BuildStarted(core.KindAnime, 4)
	m.BuildFinished(core.KindAnime, 4, time.Second, errors.New("boom"))
	m.CacheHit(core.KindSeries, 7)
	m.Query(core.KindMovies, recommend.OpByTitle, time.Millisecond)
	m.Query(core.KindMovies, recommend.OpByTitle, time.Millisecond)

	assert.Equal(t, 1.0, counterValue(t, m.CacheMisses.WithLabelValues("movies", "absent")))
	assert.Equal(t, 1.0, counterValue(t, m.Builds.WithLabelValues("movies", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.Builds.WithLabelValues("anime", "error")))
	assert.Equal(t, 0.0, gaugeValue(t, m.BuildsActive.WithLabelValues("movies")))
	assert.Equal(t, 10.0, gaugeValue(t, m.CachedRows.WithLabelValues("movies")))
	assert.Equal(t, 7.0, gaugeValue(t, m.CachedRows.WithLabelValues("series")))
	assert.Equal(t, 1.0, counterValue(t, m.CacheHits.WithLabelValues("series")))
	assert.Equal(t, 2.0, counterValue(t, m.Queries.WithLabelValues("movies", "by_title")))
}

func TestMonitor_WiredIntoEngine(t *testing.T) {
	ctx := context.Background()
	m, err := NewMonitor(prometheus.NewRegistry())
	require.NoError(t, err)

	repo, err := badger.NewMemoryCacheRepository()
	require.NoError(t, err)
	defer repo.Close()

	emb := mock.NewMockEmbedder()
	cache, err := recommend.NewEmbeddingCache(repo, emb, recommend.WithCacheMonitor(m))
	require.NoError(t, err)

	catalog := &core.Catalog{Kind: core.KindMovies, Items: []core.Item{
		{Position: 0, Title: "Alien"},
		{Position: 1, OrigIndex: 1, Title: "Heat"},
	}}
	loader := staticLoader{catalog}

	engine, err := recommend.NewEngine(ctx, core.KindMovies, loader, cache, emb, recommend.WithMonitor(m))
	require.NoError(t, err)
	_ = engine.GetPopular(1)

	_, err = recommend.NewEngine(ctx, core.KindMovies, loader, cache, emb)
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, m.CacheMisses.WithLabelValues("movies", "absent")))
	assert.Equal(t, 1.0, counterValue(t, m.CacheHits.WithLabelValues("movies")))
	assert.Equal(t, 1.0, counterValue(t, m.Queries.WithLabelValues("movies", "popular")))
}

type staticLoader struct {
	catalog *core.Catalog
}

func (l staticLoader) Load(context.Context, core.Kind) (*core.Catalog, error) {
	return l.catalog, nil
}
