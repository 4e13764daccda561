package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "engine.yaml")
	content := `
ram_buffer_mb: 0
default_page_size: 0
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := Load(cfgPath, tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 64, cfg.RAMBufferMB, "zero should not override default ram_buffer_mb")
	assert.Equal(t, 50, cfg.DefaultPageSize, "zero should not override default default_page_size")
}

func TestLoad_EmptyFusionNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "engine.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("vectors:\n  hybrid:\n    rrf_k: 50\n"), 0o644))

	cfg, err := Load(cfgPath, tmpDir)

	require.NoError(t, err)
	assert.Equal(t, FusionWeightedSum, cfg.Vectors.Hybrid.Fusion)
	assert.Equal(t, 50, cfg.Vectors.Hybrid.RRFK)
}

// =============================================================================
// Validation Edge Cases
// =============================================================================

func TestValidate_RejectsNonPositiveRAMBuffer(t *testing.T) {
	cfg := DefaultEngineConfig("/tmp/idx")
	cfg.RAMBufferMB = 0

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ram_buffer_mb")
}

func TestValidate_RejectsNonPositiveHNSWM(t *testing.T) {
	cfg := DefaultEngineConfig("/tmp/idx")
	cfg.Vectors.HNSW.M = 0

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vectors.hnsw.m")
}

func TestValidate_RejectsNonPositiveEfSearch(t *testing.T) {
	cfg := DefaultEngineConfig("/tmp/idx")
	cfg.Vectors.HNSW.EfSearch = 0

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ef_search")
}

func TestValidate_RRFModeSkipsWeightSumCheck(t *testing.T) {
	cfg := DefaultEngineConfig("/tmp/idx")
	cfg.Vectors.Hybrid.Fusion = FusionRRF
	cfg.Vectors.Hybrid.TextWeight = 0
	cfg.Vectors.Hybrid.VectorWeight = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownSimilarityKind(t *testing.T) {
	cfg := DefaultEngineConfig("/tmp/idx")
	cfg.Similarity.Kind = "tf-idf"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "similarity.kind")
}

// =============================================================================
// File Permission Edge Cases
// =============================================================================

func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("test requires non-root user")
	}

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "engine.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("ram_buffer_mb: 32"), 0o000))
	defer func() { _ = os.Chmod(cfgPath, 0o644) }()

	cfg, err := Load(cfgPath, tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read config file")
}

// =============================================================================
// JSON Round-Trip Edge Cases
// =============================================================================

func TestEngineConfig_JSONRoundTrip(t *testing.T) {
	cfg := DefaultEngineConfig("/var/lib/aisearch")
	cfg.RAMBufferMB = 256
	cfg.Vectors.Hybrid.Fusion = FusionRRF

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var parsed EngineConfig
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, 256, parsed.RAMBufferMB)
	assert.Equal(t, FusionRRF, parsed.Vectors.Hybrid.Fusion)
}

func TestEngineConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	var cfg EngineConfig
	err := json.Unmarshal([]byte("{invalid json"), &cfg)
	require.Error(t, err)
}
