// Package engine provides the library-level API described in spec §6: a
// single process that owns one or more named indexes, each with its own
// inverted index, per-field vector stores, and scoring profiles, and
// exposes ingestion and search as in-process calls. The HTTP layer that
// maps this onto a wire protocol lives outside this module.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/aisearch-core/internal/config"
	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
	"github.com/Aman-CERP/aisearch-core/internal/ingest"
	"github.com/Aman-CERP/aisearch-core/internal/logging"
	"github.com/Aman-CERP/aisearch-core/internal/query"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
	"github.com/Aman-CERP/aisearch-core/internal/scoring"
	"github.com/Aman-CERP/aisearch-core/internal/store"
)

// indexHandle holds every live resource opened for one index: the lock
// that keeps a second engine instance out of its directory, the inverted
// index, one vector store per vector field, and the coordinator/executor
// pair built on top of them.
type indexHandle struct {
	schema      *schema.Schema
	dirLock     *store.DirLock
	inverted    *store.InvertedIndex
	vectors     map[string]store.VectorStore
	coordinator *ingest.Coordinator
	executor    *query.Executor
}

// Engine is one running instance of the search core: construct, open the
// indexes it's asked to serve, run ingestion and search against them,
// then Close to commit, drain readers, and flush HNSW graphs, per §5.
type Engine struct {
	cfg     config.EngineConfig
	schemas *schema.Cache
	rebuild *store.RebuildManager
	logger  *slog.Logger

	mu      sync.RWMutex
	indexes map[string]*indexHandle
	closed  bool

	logCleanup func()
}

// New constructs an Engine rooted at cfg.IndexRoot, backed by provider for
// schema lookups on indexes it hasn't seen yet. Refuses to start if
// IndexRoot is missing or invalid, per §6.
func New(cfg config.EngineConfig, provider schema.Provider) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	if info, err := os.Stat(cfg.IndexRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("index_root %q is not a directory", cfg.IndexRoot)
	}

	schemas, err := schema.NewCache(cfg.SchemaCacheSize, provider)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.LogPath(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.WriteToStderr,
	})
	if err != nil {
		return nil, fmt.Errorf("set up engine logging: %w", err)
	}

	rebuild := store.NewRebuildManager(store.DefaultRebuildConfig())
	rebuild.Start(context.Background())

	return &Engine{
		cfg:        cfg,
		schemas:    schemas,
		rebuild:    rebuild,
		logger:     logger,
		logCleanup: cleanup,
		indexes:    make(map[string]*indexHandle),
	}, nil
}

// InstallSchema registers s directly, bypassing the schema provider.
// Useful for tests and for callers that manage schemas out of band.
func (e *Engine) InstallSchema(s *schema.Schema) error {
	return e.schemas.Install(s)
}

func (e *Engine) indexDir(indexName string) string {
	return filepath.Join(e.cfg.IndexRoot, indexName)
}

// open returns the handle for indexName, opening it on first use. Callers
// must hold no lock; open manages its own locking.
func (e *Engine) open(indexName string) (*indexHandle, *engerrors.Error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, engerrors.Unavailable("engine is closed")
	}
	if h, ok := e.indexes[indexName]; ok {
		e.mu.RUnlock()
		return h, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, engerrors.Unavailable("engine is closed")
	}
	if h, ok := e.indexes[indexName]; ok {
		return h, nil
	}

	s, err := e.schemas.Get(indexName)
	if err != nil {
		if ee, ok := err.(*engerrors.Error); ok {
			return nil, ee
		}
		return nil, engerrors.Internal("load schema", err)
	}

	h, buildErr := e.buildHandle(s)
	if buildErr != nil {
		return nil, engerrors.Internal(fmt.Sprintf("open index %q", indexName), buildErr)
	}
	e.indexes[indexName] = h
	return h, nil
}

// buildHandle opens the on-disk resources for s: the directory lock, the
// inverted index, and one vector store per vector field, per the §6 disk
// layout. Vector stores for distinct fields are opened concurrently since
// each is an independent HNSW graph or brute-force map with no shared
// state.
func (e *Engine) buildHandle(s *schema.Schema) (*indexHandle, error) {
	dir := e.indexDir(s.IndexName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	lock := store.NewDirLock(dir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire directory lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("index %q directory is locked by another engine instance", s.IndexName)
	}

	segmentsPath := filepath.Join(dir, "segments", "index.bleve")
	inverted, err := store.NewInvertedIndex(segmentsPath, s, store.BM25Config{
		K1: e.cfg.Similarity.K1,
		B:  e.cfg.Similarity.B,
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open inverted index: %w", err)
	}

	var vectorFields []schema.Field
	for _, f := range s.Fields {
		if f.IsVector() {
			vectorFields = append(vectorFields, f)
		}
	}

	vectors := make(map[string]store.VectorStore, len(vectorFields))
	var vmu sync.Mutex
	group, _ := errgroup.WithContext(context.Background())
	for _, f := range vectorFields {
		f := f
		group.Go(func() error {
			vs, err := e.openVectorStore(dir, s.IndexName, f)
			if err != nil {
				return fmt.Errorf("open vector store for field %q: %w", f.Name, err)
			}
			vmu.Lock()
			vectors[f.Name] = vs
			vmu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		_ = inverted.Close()
		_ = lock.Unlock()
		return nil, err
	}

	coordinator := ingest.NewCoordinator(s, inverted, vectors)
	executor := &query.Executor{
		Schema:    s,
		Inverted:  inverted,
		Vectors:   vectors,
		Evaluator: scoring.NewEvaluator(scoring.SystemClock{}),
		Hybrid:    e.cfg.Vectors.Hybrid,
		Defaults:  e.cfg,
	}

	return &indexHandle{
		schema:      s,
		dirLock:     lock,
		inverted:    inverted,
		vectors:     vectors,
		coordinator: coordinator,
		executor:    executor,
	}, nil
}

func (e *Engine) openVectorStore(indexDir, indexName string, f schema.Field) (store.VectorStore, error) {
	fieldDir := filepath.Join(indexDir, "hnsw", f.Name)
	if err := os.MkdirAll(fieldDir, 0o755); err != nil {
		return nil, err
	}

	cfg := store.VectorStoreConfig{
		Dimensions:           f.Dimensions,
		Metric:               "cos",
		M:                    e.cfg.Vectors.HNSW.M,
		EfConstruction:       e.cfg.Vectors.HNSW.EfConstruction,
		EfSearch:             e.cfg.Vectors.HNSW.EfSearch,
		RandomSeed:           e.cfg.Vectors.HNSW.RandomSeed,
		OversampleMultiplier: e.cfg.Vectors.HNSW.OversampleMultiplier,
	}

	vectorsPath := filepath.Join(fieldDir, "vectors.bin")

	if !e.cfg.Vectors.UseHNSW {
		bf, err := store.NewBruteForceStore(cfg)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(vectorsPath); err == nil {
			if err := bf.Load(vectorsPath); err != nil {
				return nil, err
			}
		}
		return bf, nil
	}

	hs, err := store.NewHNSWStore(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(vectorsPath); err == nil {
		if err := hs.Load(vectorsPath); err != nil {
			return nil, err
		}
	}
	return hs, nil
}

// IndexBatch applies actions to indexName in input order, per §4.1.
func (e *Engine) IndexBatch(ctx context.Context, indexName string, reqs []ingest.Request) ([]ingest.Result, error) {
	h, err := e.open(indexName)
	if err != nil {
		return nil, err
	}
	results, batchErr := h.coordinator.Batch(ctx, reqs)
	if batchErr != nil {
		e.logger.Error("ingest_batch_failed", slog.String("index", indexName), slog.String("error", batchErr.Error()))
	}
	return results, batchErr
}

// Search runs req against indexName and returns the planned, scored,
// paginated response, per §4.3. Notifies the rebuild manager of each
// vector field a request touched so idle HNSW graphs can be swept for
// orphaned nodes.
func (e *Engine) Search(ctx context.Context, indexName string, req query.Request) (*query.Response, error) {
	h, err := e.open(indexName)
	if err != nil {
		return nil, err
	}
	resp, execErr := h.executor.Execute(ctx, req)
	if execErr != nil {
		return nil, execErr
	}
	for _, vq := range req.VectorQueries {
		if hs, ok := h.vectors[vq.Field].(*store.HNSWStore); ok {
			e.rebuild.OnSearchComplete(indexName, vq.Field, hs)
		}
	}
	return resp, nil
}

// Suggest runs a prefix query over field in indexName, per §4.3.
func (e *Engine) Suggest(ctx context.Context, indexName, field, prefix string, top int) ([]string, error) {
	h, err := e.open(indexName)
	if err != nil {
		return nil, err
	}
	return h.executor.Suggest(ctx, field, prefix, top)
}

// GetDocument retrieves one document by key, projecting select (or every
// retrievable field when select is empty). Returns ok=false if the
// document doesn't exist.
func (e *Engine) GetDocument(ctx context.Context, indexName, key string, selectFields []string) (map[string]interface{}, bool, error) {
	h, err := e.open(indexName)
	if err != nil {
		return nil, false, err
	}
	result, ok, getErr := h.executor.GetByKey(ctx, key, selectFields)
	if getErr != nil {
		return nil, false, engerrors.Internal("get document", getErr)
	}
	if !ok {
		return nil, false, nil
	}
	return result.Fields, true, nil
}

// CountDocuments returns the number of documents currently indexed in
// indexName.
func (e *Engine) CountDocuments(ctx context.Context, indexName string) (int, error) {
	h, err := e.open(indexName)
	if err != nil {
		return 0, err
	}
	ids, idErr := h.inverted.AllIDs()
	if idErr != nil {
		return 0, engerrors.Internal("count documents", idErr)
	}
	return len(ids), nil
}

// ClearIndex removes every document from indexName but keeps its schema
// and on-disk directory in place.
func (e *Engine) ClearIndex(ctx context.Context, indexName string) error {
	h, err := e.open(indexName)
	if err != nil {
		return err
	}
	ids, idErr := h.inverted.AllIDs()
	if idErr != nil {
		return engerrors.Internal("list documents", idErr)
	}
	if len(ids) == 0 {
		return nil
	}
	if delErr := h.inverted.Delete(ctx, ids); delErr != nil {
		return engerrors.Internal("clear inverted index", delErr)
	}
	for _, vs := range h.vectors {
		if delErr := vs.Delete(ctx, ids); delErr != nil {
			return engerrors.Internal("clear vector store", delErr)
		}
	}
	return nil
}

// DeleteIndex closes indexName's resources and removes its on-disk
// directory entirely, per §6.
func (e *Engine) DeleteIndex(ctx context.Context, indexName string) error {
	e.mu.Lock()
	h, ok := e.indexes[indexName]
	if ok {
		delete(e.indexes, indexName)
	}
	e.mu.Unlock()

	if ok {
		e.closeHandle(h)
	}
	e.schemas.Evict(indexName)

	if err := os.RemoveAll(e.indexDir(indexName)); err != nil {
		return engerrors.Internal("remove index directory", err)
	}
	return nil
}

func (e *Engine) closeHandle(h *indexHandle) {
	for field, vs := range h.vectors {
		path := filepath.Join(e.indexDir(h.schema.IndexName), "hnsw", field, "vectors.bin")
		if err := vs.Save(path); err != nil {
			e.logger.Warn("vector_store_save_failed", slog.String("index", h.schema.IndexName), slog.String("field", field), slog.String("error", err.Error()))
		}
		_ = vs.Close()
	}
	_ = h.inverted.Close()
	_ = h.dirLock.Unlock()
}

// Close commits and flushes every open index, drains the rebuild
// manager, and releases all directory locks. A second call returns nil.
// After Close, every method that opens an index (IndexBatch, Search,
// Suggest, GetDocument, CountDocuments, ClearIndex) returns an
// unavailable error.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	handles := make([]*indexHandle, 0, len(e.indexes))
	for _, h := range e.indexes {
		handles = append(handles, h)
	}
	e.indexes = nil
	e.mu.Unlock()

	e.rebuild.Stop()

	var group errgroup.Group
	for _, h := range handles {
		h := h
		group.Go(func() error {
			e.closeHandle(h)
			return nil
		})
	}
	err := group.Wait()
	if e.logCleanup != nil {
		e.logCleanup()
	}
	return err
}
