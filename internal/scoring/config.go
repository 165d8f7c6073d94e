// Package scoring implements C8, the nine-factor weighted smurf-detection
// engine (spec.md §4.8).
//
// Grounded on backend/internal/analytics/config.go's MetricWeights /
// AnalyticsConfig pattern (named float64 weights validated against the
// engine at construction) and engine_test.go's TestAnalyticsEngineWithCustomConfig,
// which asserts a custom weight set is honored verbatim.
package scoring

import "fmt"

// FactorName identifies one of the nine weighted inputs (spec.md §4.8 table).
type FactorName string

const (
	FactorRankDiscrepancy        FactorName = "rank_discrepancy"
	FactorWinRate                FactorName = "win_rate"
	FactorPerformanceTrends      FactorName = "performance_trends"
	FactorWinRateTrends          FactorName = "win_rate_trends"
	FactorRolePerformance        FactorName = "role_performance"
	FactorRankProgression        FactorName = "rank_progression"
	FactorAccountLevel           FactorName = "account_level"
	FactorPerformanceConsistency FactorName = "performance_consistency"
	FactorKDAAnalysis            FactorName = "kda_analysis"
)

// allFactors is the fixed set of nine factors every weight map must cover.
var allFactors = []FactorName{
	FactorRankDiscrepancy, FactorWinRate, FactorPerformanceTrends, FactorWinRateTrends,
	FactorRolePerformance, FactorRankProgression, FactorAccountLevel,
	FactorPerformanceConsistency, FactorKDAAnalysis,
}

// defaultWeights sums to 1.0 (spec.md §4.8).
func defaultWeights() map[FactorName]float64 {
	return map[FactorName]float64{
		FactorRankDiscrepancy:        0.20,
		FactorWinRate:                0.18,
		FactorPerformanceTrends:      0.15,
		FactorWinRateTrends:          0.10,
		FactorRolePerformance:        0.09,
		FactorRankProgression:        0.09,
		FactorAccountLevel:           0.08,
		FactorPerformanceConsistency: 0.08,
		FactorKDAAnalysis:            0.03,
	}
}

// Config carries the engine's tunables: factor weights, the analysis
// window (how many recent matches to consider), and a version tag stamped
// onto every SmurfDetectionResult for reproducibility.
type Config struct {
	Weights        map[FactorName]float64
	AnalysisWindow int
	Version        string
}

// DefaultConfig returns the spec's default weight set.
func DefaultConfig() Config {
	return Config{Weights: defaultWeights(), AnalysisWindow: 25, Version: "v1"}
}

// ConfigFromMap builds a Config from a plain string-keyed map, as loaded
// from internal/config's viper-backed ScoringConfig.
func ConfigFromMap(weights map[string]float64, analysisWindow int, version string) Config {
	w := make(map[FactorName]float64, len(weights))
	for k, v := range weights {
		w[FactorName(k)] = v
	}
	return Config{Weights: w, AnalysisWindow: analysisWindow, Version: version}
}

// Validate enforces that every factor has a weight and all nine weights sum
// to 1.0 within a 0.01 tolerance (spec.md §4.8 invariant). An engine built
// from an invalid config must refuse to run rather than silently produce
// skewed scores.
func (c Config) Validate() error {
	if len(c.Weights) != len(allFactors) {
		return fmt.Errorf("scoring: expected %d factor weights, got %d", len(allFactors), len(c.Weights))
	}

	var sum float64
	for _, name := range allFactors {
		w, ok := c.Weights[name]
		if !ok {
			return fmt.Errorf("scoring: missing weight for factor %q", name)
		}
		if w < 0 {
			return fmt.Errorf("scoring: negative weight for factor %q", name)
		}
		sum += w
	}

	const tolerance = 0.01
	if diff := sum - 1.0; diff > tolerance || diff < -tolerance {
		return fmt.Errorf("scoring: factor weights sum to %.4f, want 1.0 ± %.2f", sum, tolerance)
	}
	return nil
}
