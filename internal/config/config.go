// Package config loads and validates the engine's configuration tree.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FusionMode selects the hybrid score fusion strategy.
type FusionMode string

const (
	FusionWeightedSum FusionMode = "weighted_sum"
	FusionRRF         FusionMode = "rrf"
)

// SimilarityKind selects the lexical scoring function used by the
// inverted index.
type SimilarityKind string

const (
	SimilarityBM25 SimilarityKind = "bm25"
)

// EngineConfig is the top-level configuration for an engine instance.
type EngineConfig struct {
	// IndexRoot is the directory all indexes are stored under. Required.
	IndexRoot string `yaml:"index_root" json:"index_root"`

	// RAMBufferMB is the ingestion buffer size target in megabytes. It is
	// loaded, merged, validated and written with the rest of the
	// configuration, but no engine component reads it: bleve's in-memory
	// buffering is not bounded by it.
	RAMBufferMB int `yaml:"ram_buffer_mb" json:"ram_buffer_mb"`

	// CommitEverySeconds is the auto-commit interval in seconds. It is
	// loaded, merged, validated and written with the rest of the
	// configuration, but no engine component reads it: ingestion commits
	// once at the end of each batch and never on a timer.
	CommitEverySeconds int `yaml:"commit_every_seconds" json:"commit_every_seconds"`

	// DefaultPageSize is used when a search request doesn't specify top.
	DefaultPageSize int `yaml:"default_page_size" json:"default_page_size"`

	// MaxPageSize caps top for any single request; skip is not bounded
	// by it.
	MaxPageSize int `yaml:"max_page_size" json:"max_page_size"`

	// SchemaCacheSize bounds the number of schemas held in the LRU cache.
	SchemaCacheSize int `yaml:"schema_cache_size" json:"schema_cache_size"`

	Vectors    VectorsConfig    `yaml:"vectors" json:"vectors"`
	Similarity SimilarityConfig `yaml:"similarity" json:"similarity"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// VectorsConfig configures the vector subsystem.
type VectorsConfig struct {
	// UseHNSW selects the HNSW approximate index over brute-force search.
	UseHNSW bool        `yaml:"use_hnsw" json:"use_hnsw"`
	HNSW    HNSWConfig  `yaml:"hnsw" json:"hnsw"`
	Hybrid  HybridConfig `yaml:"hybrid" json:"hybrid"`
}

// HNSWConfig configures the HNSW graph construction and search.
type HNSWConfig struct {
	// M is the maximum number of bidirectional links per node.
	M int `yaml:"m" json:"m"`
	// EfConstruction is the build-time candidate list size. It is kept in
	// the HNSW store's persisted configuration; coder/hnsw has no separate
	// build-time setting, so it does not change how the graph is built.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	// EfSearch controls query-time candidate list size.
	EfSearch int `yaml:"ef_search" json:"ef_search"`
	// OversampleMultiplier scales k when a filter narrows the candidate
	// set, compensating for filtered-out approximate neighbours.
	OversampleMultiplier float64 `yaml:"oversample_multiplier" json:"oversample_multiplier"`
	// RandomSeed seeds the graph's level-assignment RNG. Zero means
	// non-deterministic.
	RandomSeed int64 `yaml:"random_seed" json:"random_seed"`
}

// HybridConfig configures hybrid score fusion between the lexical and
// vector search legs.
type HybridConfig struct {
	// Fusion selects the fusion strategy. Default is weighted_sum.
	Fusion FusionMode `yaml:"fusion" json:"fusion"`
	// TextWeight and VectorWeight are used when Fusion is weighted_sum.
	// They must sum to 1.0.
	TextWeight   float64 `yaml:"text_weight" json:"text_weight"`
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// RRFK is the reciprocal rank fusion smoothing constant, used when
	// Fusion is rrf.
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
}

// SimilarityConfig holds the lexical scoring settings. K1 and B are
// passed to the inverted index's BM25Config, which does not apply them:
// lexical scores come from bleve's default scoring. bm25 is the only
// SimilarityKind defined.
type SimilarityConfig struct {
	Kind SimilarityKind `yaml:"kind" json:"kind"`
	// K1 and B are the standard BM25 tuning parameters.
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// LoggingConfig configures the engine's logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// DefaultEngineConfig returns an EngineConfig with the engine's documented
// defaults, rooted at indexRoot.
func DefaultEngineConfig(indexRoot string) *EngineConfig {
	return &EngineConfig{
		IndexRoot:          indexRoot,
		RAMBufferMB:        64,
		CommitEverySeconds: 5,
		DefaultPageSize:    50,
		MaxPageSize:        1000,
		SchemaCacheSize:    128,
		Vectors: VectorsConfig{
			UseHNSW: true,
			HNSW: HNSWConfig{
				M:                    16,
				EfConstruction:       200,
				EfSearch:             64,
				OversampleMultiplier: 2.0,
				RandomSeed:           0,
			},
			Hybrid: HybridConfig{
				Fusion:       FusionWeightedSum,
				TextWeight:   0.5,
				VectorWeight: 0.5,
				RRFK:         60,
			},
		},
		Similarity: SimilarityConfig{
			Kind: SimilarityBM25,
			K1:   1.2,
			B:    0.75,
		},
		Logging: LoggingConfig{
			Level:         "info",
			MaxSizeMB:     10,
			MaxFiles:      5,
			WriteToStderr: true,
		},
	}
}

// Load reads an EngineConfig from the YAML file at path, applying
// defaults rooted at indexRoot for any field the file leaves zero.
func Load(path, indexRoot string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig(indexRoot)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed EngineConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.mergeWith(&parsed)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *EngineConfig) mergeWith(other *EngineConfig) {
	if other.IndexRoot != "" {
		c.IndexRoot = other.IndexRoot
	}
	if other.RAMBufferMB != 0 {
		c.RAMBufferMB = other.RAMBufferMB
	}
	if other.CommitEverySeconds != 0 {
		c.CommitEverySeconds = other.CommitEverySeconds
	}
	if other.DefaultPageSize != 0 {
		c.DefaultPageSize = other.DefaultPageSize
	}
	if other.MaxPageSize != 0 {
		c.MaxPageSize = other.MaxPageSize
	}
	if other.SchemaCacheSize != 0 {
		c.SchemaCacheSize = other.SchemaCacheSize
	}

	if other.Vectors.HNSW.M != 0 {
		c.Vectors.HNSW.M = other.Vectors.HNSW.M
	}
	if other.Vectors.HNSW.EfConstruction != 0 {
		c.Vectors.HNSW.EfConstruction = other.Vectors.HNSW.EfConstruction
	}
	if other.Vectors.HNSW.EfSearch != 0 {
		c.Vectors.HNSW.EfSearch = other.Vectors.HNSW.EfSearch
	}
	if other.Vectors.HNSW.OversampleMultiplier != 0 {
		c.Vectors.HNSW.OversampleMultiplier = other.Vectors.HNSW.OversampleMultiplier
	}
	if other.Vectors.HNSW.RandomSeed != 0 {
		c.Vectors.HNSW.RandomSeed = other.Vectors.HNSW.RandomSeed
	}

	if other.Vectors.Hybrid.Fusion != "" {
		c.Vectors.Hybrid.Fusion = other.Vectors.Hybrid.Fusion
	}
	if other.Vectors.Hybrid.TextWeight != 0 {
		c.Vectors.Hybrid.TextWeight = other.Vectors.Hybrid.TextWeight
	}
	if other.Vectors.Hybrid.VectorWeight != 0 {
		c.Vectors.Hybrid.VectorWeight = other.Vectors.Hybrid.VectorWeight
	}
	if other.Vectors.Hybrid.RRFK != 0 {
		c.Vectors.Hybrid.RRFK = other.Vectors.Hybrid.RRFK
	}

	if other.Similarity.Kind != "" {
		c.Similarity.Kind = other.Similarity.Kind
	}
	if other.Similarity.K1 != 0 {
		c.Similarity.K1 = other.Similarity.K1
	}
	if other.Similarity.B != 0 {
		c.Similarity.B = other.Similarity.B
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// Validate checks the configuration for internal consistency, per §6.
func (c *EngineConfig) Validate() error {
	if c.IndexRoot == "" {
		return fmt.Errorf("index_root is required")
	}
	if c.RAMBufferMB <= 0 {
		return fmt.Errorf("ram_buffer_mb must be positive, got %d", c.RAMBufferMB)
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("default_page_size must be positive, got %d", c.DefaultPageSize)
	}
	if c.MaxPageSize < c.DefaultPageSize {
		return fmt.Errorf("max_page_size (%d) must be >= default_page_size (%d)", c.MaxPageSize, c.DefaultPageSize)
	}

	switch c.Vectors.Hybrid.Fusion {
	case FusionWeightedSum, FusionRRF:
	default:
		return fmt.Errorf("vectors.hybrid.fusion must be %q or %q, got %q", FusionWeightedSum, FusionRRF, c.Vectors.Hybrid.Fusion)
	}
	if c.Vectors.Hybrid.Fusion == FusionWeightedSum {
		sum := c.Vectors.Hybrid.TextWeight + c.Vectors.Hybrid.VectorWeight
		if diff := sum - 1.0; diff > 0.01 || diff < -0.01 {
			return fmt.Errorf("vectors.hybrid.text_weight + vector_weight must equal 1.0, got %.2f", sum)
		}
	}
	if c.Vectors.HNSW.M <= 0 {
		return fmt.Errorf("vectors.hnsw.m must be positive, got %d", c.Vectors.HNSW.M)
	}
	if c.Vectors.HNSW.EfSearch <= 0 {
		return fmt.Errorf("vectors.hnsw.ef_search must be positive, got %d", c.Vectors.HNSW.EfSearch)
	}

	switch c.Similarity.Kind {
	case SimilarityBM25:
	default:
		return fmt.Errorf("similarity.kind must be %q, got %q", SimilarityBM25, c.Similarity.Kind)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *EngineConfig) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LogPath returns the path the engine's log file should live at, derived
// from IndexRoot.
func (c *EngineConfig) LogPath() string {
	return filepath.Join(c.IndexRoot, "logs", "engine.log")
}
