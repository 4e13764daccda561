package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebuildManager_ShouldRebuild_RespectsThresholds(t *testing.T) {
	cfg := DefaultVectorStoreConfig(2)
	s, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ids := make([]string, 0, 10)
	vecs := make([][]float32, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, string(rune('a'+i)))
		vecs = append(vecs, []float32{float32(i), 0})
	}
	require.NoError(t, s.Add(context.Background(), ids, vecs))

	m := NewRebuildManager(RebuildConfig{
		Enabled:         true,
		OrphanThreshold: 0.3,
		MinOrphanCount:  2,
		IdleTimeout:     time.Millisecond,
		Cooldown:        time.Hour,
	})
	m.Start(context.Background())
	defer m.Stop()

	key := graphKey{Index: "products", Field: "embedding"}
	assert.False(t, m.shouldRebuild(key, s), "no graph state registered yet means no rebuild")

	// Register state via a search-complete call, then delete enough IDs
	// to cross both the orphan-count floor and the ratio threshold.
	m.OnSearchComplete("products", "embedding", s)
	require.NoError(t, s.Delete(context.Background(), ids[:4]))

	assert.True(t, m.shouldRebuild(key, s))
}

func TestRebuildManager_ShouldRebuild_BelowMinimumOrphanCount(t *testing.T) {
	cfg := DefaultVectorStoreConfig(2)
	s, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	m := NewRebuildManager(RebuildConfig{
		Enabled:         true,
		OrphanThreshold: 0.01,
		MinOrphanCount:  100,
		IdleTimeout:     time.Millisecond,
		Cooldown:        time.Hour,
	})
	m.Start(context.Background())
	defer m.Stop()

	key := graphKey{Index: "products", Field: "embedding"}
	m.OnSearchComplete("products", "embedding", s)
	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	assert.False(t, m.shouldRebuild(key, s))
}

func TestRebuildManager_Disabled(t *testing.T) {
	s, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	m := NewRebuildManager(RebuildConfig{Enabled: false})
	m.Start(context.Background())
	defer m.Stop()

	m.OnSearchComplete("products", "embedding", s)
	assert.False(t, m.shouldRebuild(graphKey{Index: "products", Field: "embedding"}, s))
}

func TestHNSWStore_ReplaceGraph_PreservesResults(t *testing.T) {
	cfg := DefaultVectorStoreConfig(2)
	s, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Delete(context.Background(), []string{"b"}))

	fresh, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, fresh.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))

	s.replaceGraph(fresh)

	stats := s.Stats()
	assert.Equal(t, 0, stats.Orphans)
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
}
