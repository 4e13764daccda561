package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// BruteForceStore implements VectorStore with an exact linear scan over
// every stored vector. Used for small indexes and fields where HNSW's
// approximate recall isn't worth its memory and build cost, per §4.5.
type BruteForceStore struct {
	mu     sync.RWMutex
	config VectorStoreConfig
	byID   map[string][]float32
	closed bool
}

// bruteForceSnapshot is the on-disk representation of a BruteForceStore.
type bruteForceSnapshot struct {
	Config VectorStoreConfig
	ByID   map[string][]float32
}

// NewBruteForceStore creates a new in-memory exact vector store.
func NewBruteForceStore(cfg VectorStoreConfig) (*BruteForceStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	return &BruteForceStore{
		config: cfg,
		byID:   make(map[string][]float32),
	}, nil
}

// Add inserts or replaces vectors by ID.
func (s *BruteForceStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.byID[id] = vec
	}
	return nil
}

// Search performs an exact linear scan for the k nearest vectors.
func (s *BruteForceStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	return s.scan(query, k, nil), nil
}

// SearchFiltered performs an exact linear scan, skipping candidates keep
// rejects. Unlike the HNSW store, no oversampling is needed: every
// candidate is already considered.
func (s *BruteForceStore) SearchFiltered(ctx context.Context, query []float32, k int, keep func(id string) bool) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	return s.scan(query, k, keep), nil
}

func (s *BruteForceStore) scan(query []float32, k int, keep func(id string) bool) []*VectorResult {
	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	results := make([]*VectorResult, 0, len(s.byID))
	for id, vec := range s.byID {
		if keep != nil && !keep(id) {
			continue
		}
		distance := vectorDistance(normalizedQuery, vec, s.config.Metric)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// vectorDistance computes the distance between two vectors under metric,
// matching the semantics coder/hnsw's Distance functions use so brute
// force and HNSW scores are directly comparable.
func vectorDistance(a, b []float32, metric string) float32 {
	switch metric {
	case "l2":
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	default: // "cos"
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(1.0 - dot)
	}
}

// Delete removes vectors by ID.
func (s *BruteForceStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range ids {
		delete(s.byID, id)
	}
	return nil
}

// AllIDs returns every stored vector ID.
func (s *BruteForceStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether id is stored.
func (s *BruteForceStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, ok := s.byID[id]
	return ok
}

// Count returns the number of stored vectors.
func (s *BruteForceStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.byID)
}

// Save persists the store to disk using an atomic temp-file-then-rename,
// matching the HNSW store's persistence style.
func (s *BruteForceStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	snapshot := bruteForceSnapshot{Config: s.config, ByID: s.byID}
	w := bufio.NewWriter(file)
	if err := gob.NewEncoder(w).Encode(snapshot); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}
	return nil
}

// Load restores the store from a snapshot written by Save.
func (s *BruteForceStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var snapshot bruteForceSnapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s.config = snapshot.Config
	s.byID = snapshot.ByID
	if s.byID == nil {
		s.byID = make(map[string][]float32)
	}
	return nil
}

// Close releases resources held by the store.
func (s *BruteForceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.byID = nil
	return nil
}

var _ VectorStore = (*BruteForceStore)(nil)
var _ FilteredVectorStore = (*BruteForceStore)(nil)
