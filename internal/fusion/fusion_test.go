package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/aisearch-core/internal/config"
)

func weightedCfg() config.HybridConfig {
	return config.HybridConfig{Fusion: config.FusionWeightedSum, TextWeight: 0.5, VectorWeight: 0.5}
}

func TestFuse_WeightedSum_BothSides(t *testing.T) {
	candidates := []Candidate{
		{DocID: "both", TextScore: 0.8, VectorScore: 0.9, InText: true, InVector: true},
		{DocID: "textOnly", TextScore: 1.0, InText: true},
		{DocID: "vectorOnly", VectorScore: 1.0, InVector: true},
	}

	results := Fuse(candidates, weightedCfg())
	require := map[string]float64{}
	for _, r := range results {
		require[r.DocID] = r.Score
	}

	assert.InDelta(t, 0.85, require["both"], 1e-9)
	assert.InDelta(t, 0.5, require["textOnly"], 1e-9)
	assert.InDelta(t, 0.5, require["vectorOnly"], 1e-9)
	assert.Equal(t, "both", results[0].DocID, "highest combined score ranks first")
}

func TestFuse_WeightedSum_Empty(t *testing.T) {
	results := Fuse(nil, weightedCfg())
	assert.Empty(t, results)
}

func TestFuse_RRF_FavoursDocsInBothSides(t *testing.T) {
	candidates := []Candidate{
		{DocID: "both", TextScore: 5, VectorScore: 5, InText: true, InVector: true},
		{DocID: "textOnly", TextScore: 10, InText: true},
		{DocID: "vectorOnly", VectorScore: 10, InVector: true},
	}

	cfg := config.HybridConfig{Fusion: config.FusionRRF, RRFK: 60}
	results := Fuse(candidates, cfg)

	assert.Equal(t, "both", results[0].DocID)
}

func TestFuse_RRF_DefaultsKWhenZero(t *testing.T) {
	candidates := []Candidate{{DocID: "a", TextScore: 1, InText: true}}
	cfg := config.HybridConfig{Fusion: config.FusionRRF, RRFK: 0}

	results := Fuse(candidates, cfg)
	assert.NotEmpty(t, results)
}

func TestFuse_TieBreaksByDocIDAscending(t *testing.T) {
	candidates := []Candidate{
		{DocID: "z", TextScore: 1, InText: true},
		{DocID: "a", TextScore: 1, InText: true},
	}
	results := Fuse(candidates, weightedCfg())
	assert.Equal(t, "a", results[0].DocID)
	assert.Equal(t, "z", results[1].DocID)
}
