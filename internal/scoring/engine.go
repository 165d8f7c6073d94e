package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/herald-lol/smurfcore/internal/store"
)

// Confidence buckets for an overall score (spec.md §4.8 aggregation table).
const (
	ConfidenceHigh     = "high"
	ConfidenceMedium   = "medium"
	ConfidenceLow      = "low"
	ConfidenceUnlikely = "unlikely"
)

func confidenceFor(score float64) string {
	switch {
	case score >= 0.80:
		return ConfidenceHigh
	case score >= 0.60:
		return ConfidenceMedium
	case score >= 0.40:
		return ConfidenceLow
	default:
		return ConfidenceUnlikely
	}
}

// FactorScore is one factor's contribution to a Result, exported so callers
// (and the player analyzer job's structured logging) can inspect the
// breakdown without re-running the engine.
type FactorScore struct {
	Name  FactorName
	Score float64
}

// Result is one scoring run's full output, ready for persistence.
type Result struct {
	OverallScore float64
	Confidence   string
	Factors      []FactorScore
	SampleSize   int
	Version      string
}

// Engine is the C8 nine-factor weighted smurf-detection engine. Grounded on
// backend/internal/analytics/engine.go's pattern of a config-holding struct
// with a pure Compute method and a separate persistence step; factor
// functions stay free functions rather than engine methods so each one's
// signature documents exactly what data it depends on (spec.md §4.8
// per-factor contract: pure, no IO).
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and refuses to build an engine that would silently
// produce a skewed score (spec.md §4.8: "refuses to run otherwise").
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Compute runs all nine factors against profile and weights them into a
// final score. It performs no IO; profile must already hold every match and
// rank row the engine will consider.
func (e *Engine) Compute(profile PlayerProfile) Result {
	if e.cfg.AnalysisWindow > 0 && len(profile.Matches) > e.cfg.AnalysisWindow {
		profile.Matches = profile.Matches[:e.cfg.AnalysisWindow]
	}

	factors := make([]FactorScore, 0, len(allFactors))
	var overall float64
	for _, name := range sortedFactorNames() {
		raw := factorFuncs[name](profile)
		factors = append(factors, FactorScore{Name: name, Score: raw})
		overall += raw * e.cfg.Weights[name]
	}

	return Result{
		OverallScore: overall,
		Confidence:   confidenceFor(overall),
		Factors:      factors,
		SampleSize:   len(profile.Matches),
		Version:      e.cfg.Version,
	}
}

// AnalyzeAndPersist loads a player's recent matches and rank history from
// repo, runs Compute, and saves a new SmurfDetectionResult row (spec.md
// §4.7c). It is the only IO-performing entry point in this package; Compute
// itself stays pure and deterministic per spec.md §8 property S3.
func AnalyzeAndPersist(ctx context.Context, e *Engine, repo *store.Repository, player store.Player) (Result, error) {
	matches, err := repo.MatchParticipantsForPlayer(ctx, player.PUUID, e.cfg.AnalysisWindow)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: load matches: %w", err)
	}
	ranks, err := repo.RanksForPlayer(ctx, player.ID)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: load ranks: %w", err)
	}

	sample := rankedSample(matches)
	profile := PlayerProfile{
		AccountLevel: player.AccountLevel,
		Matches:      sample,
		Ranks:        ranks,
	}
	result := e.Compute(profile)

	record := &store.SmurfDetectionResult{
		PlayerID:       player.ID,
		ComputedAt:     time.Now().UTC(),
		OverallScore:   result.OverallScore,
		Confidence:     result.Confidence,
		FactorScores:   factorScoresToColumn(result.Factors),
		SampleSize:     result.SampleSize,
		QueueAnalyzed:  primaryQueue(sample),
		ScoringVersion: result.Version,
	}
	if err := repo.SaveResult(ctx, record); err != nil {
		return Result{}, fmt.Errorf("scoring: save result: %w", err)
	}
	return result, nil
}

// rankedSample narrows matches to ranked-queue games (store.IsRanked), the
// sample the factor functions are meant to score (spec.md §3: "games
// analyzed, queue analyzed" implies a single queue family per run, not a mix
// of ranked and normals/ARAM). A player with no stored ranked games falls
// back to the full set rather than never being analyzable.
func rankedSample(matches []store.MatchParticipant) []store.MatchParticipant {
	out := make([]store.MatchParticipant, 0, len(matches))
	for _, m := range matches {
		if store.IsRanked(m.Match) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return matches
	}
	return out
}

// primaryQueue reports the queue ID the analyzed sample was drawn from.
// matches is ordered most-recent-first, so the head is the queue this run's
// factors actually scored.
func primaryQueue(matches []store.MatchParticipant) int {
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Match.QueueID
}

func factorScoresToColumn(factors []FactorScore) []string {
	out := make([]string, len(factors))
	for i, f := range factors {
		out[i] = fmt.Sprintf("%s:%.4f", f.Name, f.Score)
	}
	return out
}
