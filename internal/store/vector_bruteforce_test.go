package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBruteForceStore_AddAndSearch(t *testing.T) {
	cfg := DefaultVectorStoreConfig(3)
	s, err := NewBruteForceStore(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ids := []string{"a", "b", "c"}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}}
	require.NoError(t, s.Add(context.Background(), ids, vecs))

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestBruteForceStore_DimensionMismatch(t *testing.T) {
	s, err := NewBruteForceStore(DefaultVectorStoreConfig(3))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	err = s.Add(context.Background(), []string{"a"}, [][]float32{{1, 2}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(context.Background(), []float32{1, 2}, 1)
	require.ErrorAs(t, err, &dimErr)
}

func TestBruteForceStore_Delete(t *testing.T) {
	s, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Delete(context.Background(), []string{"a"}))

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.Equal(t, 1, s.Count())
}

func TestBruteForceStore_SearchFiltered(t *testing.T) {
	s, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}))

	results, err := s.SearchFiltered(context.Background(), []float32{1, 0}, 2, func(id string) bool {
		return id != "a"
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestBruteForceStore_EmptySearch(t *testing.T) {
	s, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	results, err := s.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBruteForceStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.snapshot")

	s, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	s2, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	require.NoError(t, s2.Load(path))

	assert.True(t, s2.Contains("a"))
}

func TestBruteForceStore_CloseIdempotent(t *testing.T) {
	s, err := NewBruteForceStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)
}
