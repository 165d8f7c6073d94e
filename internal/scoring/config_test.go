package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_WeightsSumToOne(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25, cfg.AnalysisWindow)
	assert.Equal(t, "v1", cfg.Version)
}

func TestValidate_RejectsMissingFactor(t *testing.T) {
	cfg := DefaultConfig()
	delete(cfg.Weights, FactorKDAAnalysis)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 9 factor weights")
}

func TestValidate_RejectsNegativeWeight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[FactorWinRate] = -0.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative weight")
}

func TestValidate_RejectsSumOutsideTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[FactorKDAAnalysis] = 0.5 // blows past the 1.0 ± 0.01 budget

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to")
}

func TestValidate_AllowsSumWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights[FactorKDAAnalysis] += 0.009 // within the 0.01 tolerance band

	assert.NoError(t, cfg.Validate())
}

func TestConfigFromMap_ConvertsStringKeys(t *testing.T) {
	raw := map[string]float64{
		"rank_discrepancy":        0.20,
		"win_rate":                0.18,
		"performance_trends":      0.15,
		"win_rate_trends":         0.10,
		"role_performance":        0.09,
		"rank_progression":        0.09,
		"account_level":           0.08,
		"performance_consistency": 0.08,
		"kda_analysis":            0.03,
	}
	cfg := ConfigFromMap(raw, 30, "v2")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.20, cfg.Weights[FactorRankDiscrepancy])
	assert.Equal(t, 30, cfg.AnalysisWindow)
	assert.Equal(t, "v2", cfg.Version)
}
