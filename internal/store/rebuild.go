package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RebuildConfig controls when RebuildManager triggers a background HNSW
// rebuild for an (index, field) graph, per §4.5.
type RebuildConfig struct {
	Enabled         bool
	OrphanThreshold float64       // orphans/total ratio that triggers a rebuild
	MinOrphanCount  int           // avoids rebuilding small graphs on every delete
	IdleTimeout     time.Duration // quiet period after the last search before rebuilding
	Cooldown        time.Duration // minimum time between two rebuilds of the same graph
}

// DefaultRebuildConfig returns the engine's documented rebuild policy.
func DefaultRebuildConfig() RebuildConfig {
	return RebuildConfig{
		Enabled:         true,
		OrphanThreshold: 0.3,
		MinOrphanCount:  100,
		IdleTimeout:     30 * time.Second,
		Cooldown:        time.Hour,
	}
}

// graphKey is the lookup key for one (index, field) HNSW graph.
type graphKey struct {
	Index string
	Field string
}

// rebuildState tracks rebuild eligibility for one graph.
type rebuildState struct {
	lastSearch  time.Time
	lastRebuild time.Time
	idleTimer   *time.Timer
	rebuilding  bool
	cancel      context.CancelFunc
}

// RebuildManager schedules background HNSW graph rebuilds that discard
// lazily-deleted (orphaned) nodes, adapted from a per-project compaction
// policy to run per (index, field) graph.
type RebuildManager struct {
	config RebuildConfig

	mu     sync.Mutex
	graphs map[graphKey]*rebuildState

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRebuildManager creates a rebuild manager under the given policy.
func NewRebuildManager(cfg RebuildConfig) *RebuildManager {
	return &RebuildManager{
		config: cfg,
		graphs: make(map[graphKey]*rebuildState),
	}
}

// Start begins scheduling against ctx; cancelling ctx stops all pending
// and in-flight rebuilds.
func (m *RebuildManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
}

// Stop cancels in-flight rebuilds and waits for them to exit.
func (m *RebuildManager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Lock()
		for _, state := range m.graphs {
			if state.idleTimer != nil {
				state.idleTimer.Stop()
			}
			if state.cancel != nil {
				state.cancel()
			}
		}
		m.mu.Unlock()
		m.wg.Wait()
	})
}

// OnSearchComplete resets the idle timer for (index, field), scheduling
// an eligibility check once the graph has been quiet for IdleTimeout.
func (m *RebuildManager) OnSearchComplete(index, field string, store *HNSWStore) {
	if !m.config.Enabled {
		return
	}

	key := graphKey{Index: index, Field: field}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.graphs[key]
	if !ok {
		state = &rebuildState{}
		m.graphs[key] = state
	}
	state.lastSearch = time.Now()

	if state.idleTimer != nil {
		state.idleTimer.Stop()
	}
	state.idleTimer = time.AfterFunc(m.config.IdleTimeout, func() {
		m.onIdle(key, store)
	})

	// A new search always interrupts any rebuild in progress on this
	// graph, per §4.5's interruption rule.
	if state.rebuilding && state.cancel != nil {
		state.cancel()
	}
}

func (m *RebuildManager) onIdle(key graphKey, hnswStore *HNSWStore) {
	if !m.shouldRebuild(key, hnswStore) {
		return
	}
	m.startRebuild(key, hnswStore)
}

func (m *RebuildManager) shouldRebuild(key graphKey, hnswStore *HNSWStore) bool {
	if !m.config.Enabled {
		return false
	}
	select {
	case <-m.ctx.Done():
		return false
	default:
	}

	m.mu.Lock()
	state, ok := m.graphs[key]
	if !ok || state.rebuilding {
		m.mu.Unlock()
		return false
	}
	if time.Since(state.lastRebuild) < m.config.Cooldown {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	stats := hnswStore.Stats()
	if stats.GraphNodes == 0 {
		return false
	}
	if stats.Orphans < m.config.MinOrphanCount {
		return false
	}
	ratio := float64(stats.Orphans) / float64(stats.GraphNodes)
	if ratio < m.config.OrphanThreshold {
		return false
	}

	slog.Info("hnsw_rebuild_eligible",
		slog.String("index", key.Index), slog.String("field", key.Field),
		slog.Int("orphans", stats.Orphans), slog.Int("total", stats.GraphNodes))
	return true
}

func (m *RebuildManager) startRebuild(key graphKey, hnswStore *HNSWStore) {
	m.mu.Lock()
	state := m.graphs[key]
	if state == nil || state.rebuilding {
		m.mu.Unlock()
		return
	}
	state.rebuilding = true
	ctx, cancel := context.WithCancel(m.ctx)
	state.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			state.rebuilding = false
			state.cancel = nil
			m.mu.Unlock()
		}()
		m.runRebuild(ctx, key, hnswStore)
	}()
}

// runRebuild replaces hnswStore's graph in place with a freshly built one
// holding only the still-valid vectors, batching inserts and checking for
// interruption between batches.
func (m *RebuildManager) runRebuild(ctx context.Context, key graphKey, hnswStore *HNSWStore) {
	start := time.Now()
	before := hnswStore.Stats()

	vectors := hnswStore.Vectors()
	if len(vectors) == 0 {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	cfg := hnswStore.config
	fresh, err := NewHNSWStore(cfg)
	if err != nil {
		slog.Warn("hnsw_rebuild_failed", slog.String("index", key.Index), slog.String("field", key.Field), slog.String("error", err.Error()))
		return
	}

	const batchSize = 1000
	ids := make([]string, 0, batchSize)
	vecs := make([][]float32, 0, batchSize)

	for id, vec := range vectors {
		ids = append(ids, id)
		vecs = append(vecs, vec)

		if len(ids) >= batchSize {
			select {
			case <-ctx.Done():
				_ = fresh.Close()
				return
			default:
			}
			if err := fresh.Add(ctx, ids, vecs); err != nil {
				slog.Warn("hnsw_rebuild_failed", slog.String("index", key.Index), slog.String("field", key.Field), slog.String("error", err.Error()))
				_ = fresh.Close()
				return
			}
			ids = ids[:0]
			vecs = vecs[:0]
		}
	}
	if len(ids) > 0 {
		if err := fresh.Add(ctx, ids, vecs); err != nil {
			slog.Warn("hnsw_rebuild_failed", slog.String("index", key.Index), slog.String("field", key.Field), slog.String("error", err.Error()))
			_ = fresh.Close()
			return
		}
	}

	select {
	case <-ctx.Done():
		_ = fresh.Close()
		return
	default:
	}

	hnswStore.replaceGraph(fresh)

	m.mu.Lock()
	if state, ok := m.graphs[key]; ok {
		state.lastRebuild = time.Now()
	}
	m.mu.Unlock()

	slog.Info("hnsw_rebuild_complete",
		slog.String("index", key.Index), slog.String("field", key.Field),
		slog.Int("orphans_removed", before.Orphans),
		slog.Int("vectors", fresh.Count()),
		slog.Duration("duration", time.Since(start)))
}
