package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

func productSchema() *schema.Schema {
	return &schema.Schema{
		IndexName: "products",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, Key: true, Retrievable: true},
			{Name: "title", Type: schema.TypeString, Searchable: true, Retrievable: true},
			{Name: "category", Type: schema.TypeString, Filterable: true, Facetable: true, Sortable: true, Retrievable: true},
			{Name: "rating", Type: schema.TypeDouble, Filterable: true, Sortable: true, Retrievable: true},
			{Name: "inStock", Type: schema.TypeBoolean, Filterable: true, Retrievable: true},
		},
	}
}

func mustRawDoc(t *testing.T, id, title, category string, rating float64, inStock bool) *Document {
	t.Helper()
	return &Document{
		ID: id,
		Fields: docval.Document{
			"id":       docval.FromString(id),
			"title":    docval.FromString(title),
			"category": docval.FromString(category),
			"rating":   docval.FromFloat(rating),
			"inStock":  docval.FromBool(inStock),
		},
		Raw: []byte(`{"id":"` + id + `"}`),
	}
}

func TestInvertedIndex_IndexAndSearch_Basic(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	docs := []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
		mustRawDoc(t, "2", "wireless keyboard", "electronics", 4.0, true),
		mustRawDoc(t, "3", "desk lamp", "furniture", 3.5, false),
	}
	require.NoError(t, idx.Index(context.Background(), docs))

	results, err := idx.Search(context.Background(), "wireless", nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Greater(t, results[0].Score, float32(0.0))
}

func TestInvertedIndex_Search_RestrictsToSearchFields(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
	}))

	results, err := idx.Search(context.Background(), "wireless", []string{"title"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].DocID)
}

func TestInvertedIndex_Search_EmptyQuery(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInvertedIndex_Delete(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
		mustRawDoc(t, "2", "wireless keyboard", "electronics", 4.0, true),
	}))

	require.NoError(t, idx.Delete(context.Background(), []string{"1"}))

	results, err := idx.Search(context.Background(), "wireless", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2", results[0].DocID)
}

func TestInvertedIndex_GetRaw(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
	}))

	raw, ok, err := idx.GetRaw("1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"id":"1"`)
}

func TestInvertedIndex_GetRaw_MissingKey(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, ok, err := idx.GetRaw("nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvertedIndex_AllIDs(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
		mustRawDoc(t, "2", "desk lamp", "furniture", 3.5, false),
	}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
}

func TestInvertedIndex_Stats(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
	}))

	stats := idx.Stats()
	assert.Equal(t, 1, stats.DocumentCount)
}

func TestInvertedIndex_CloseIdempotent(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
}

func TestInvertedIndex_SearchAfterClose(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "wireless", nil, 10)
	assert.Error(t, err)
}

func TestInvertedIndex_IndexEmpty(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Index(context.Background(), nil))
}

func TestInvertedIndex_DeleteEmpty(t *testing.T) {
	idx, err := NewInvertedIndex("", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.Delete(context.Background(), nil))
}

func TestInvertedIndex_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	idx, err := NewInvertedIndex(tmpDir+"/segments", productSchema(), DefaultBM25Config())
	require.NoError(t, err)

	require.NoError(t, idx.Index(context.Background(), []*Document{
		mustRawDoc(t, "1", "wireless mouse", "electronics", 4.5, true),
	}))
	require.NoError(t, idx.Close())

	idx2, err := NewInvertedIndex(tmpDir+"/segments", productSchema(), DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()

	results, err := idx2.Search(context.Background(), "wireless", nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFieldAnalyzer(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "standard"},
		{"standard", "standard"},
		{"keyword", "keyword"},
		{"english", "en"},
		{"french", "fr"},
		{"german", "de"},
		{"bogus", "standard"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, fieldAnalyzer(tc.in))
	}
}

func TestFilterFieldName(t *testing.T) {
	assert.Equal(t, "category__exact", filterFieldName("category"))
}
