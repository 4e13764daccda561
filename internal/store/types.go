// Package store implements the on-disk and in-memory storage engines: the
// inverted index over schema fields, the brute-force and HNSW vector
// stores, and the stored-raw document region each index's segments sit on
// top of.
package store

import (
	"context"
	"fmt"
)

// StoredDocument is one document as retained for projection: its key and
// the retrievable projection of its fields, serialized as the original
// ingested JSON object (the "_raw" artifact).
type StoredDocument struct {
	Key string
	Raw []byte
}

// BM25Result is one hit returned by a lexical field search, carrying
// bleve's score for it.
type BM25Result struct {
	DocID        string
	Score        float32
	MatchedTerms []string
}

// IndexStats summarizes an inverted index's size.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Config holds the lexical similarity parameters and default
// analysis settings an InvertedIndex is opened with. The index keeps
// them but does not pass them to bleve: scoring uses bleve's default
// model and each field is analyzed by its schema-declared analyzer.
type BM25Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultBM25Config returns the engine's documented BM25 defaults (k1=1.2,
// b=0.75).
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      nil,
		MinTokenLength: 1,
	}
}

// BuildStopWordMap converts a stop word list into a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// VectorResult is one hit returned by a vector store search.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures a per-(index,field) vector store.
type VectorStoreConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"

	// Quantization names a storage precision hint (e.g. "f16"). Carried
	// through for forward compatibility; the current store implementations
	// hold vectors at full float32 precision regardless of this value.
	Quantization string

	// HNSW graph construction/search parameters. Ignored by the
	// brute-force store.
	M              int
	EfConstruction int
	EfSearch       int
	RandomSeed     int64

	// OversampleMultiplier scales k for filtered queries that need to
	// compensate for candidates excluded post-search.
	OversampleMultiplier float64
}

// DefaultVectorStoreConfig returns sane defaults for a vector store over
// vectors of the given dimensionality.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:           dimensions,
		Metric:               "cos",
		M:                    16,
		EfConstruction:       200,
		EfSearch:             64,
		RandomSeed:           0,
		OversampleMultiplier: 2.0,
	}
}

// VectorStore is the storage interface shared by the brute-force and HNSW
// implementations for one (index, field) pair.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// FilteredVectorStore is implemented by vector stores that can post-filter
// candidates against a predicate, oversampling internally to compensate
// for candidates the predicate excludes.
type FilteredVectorStore interface {
	VectorStore
	SearchFiltered(ctx context.Context, query []float32, k int, keep func(id string) bool) ([]*VectorResult, error)
}

// ErrDimensionMismatch is returned when a vector's length doesn't match
// the store's declared dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
