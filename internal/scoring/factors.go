package scoring

import (
	"math"
	"sort"

	"github.com/herald-lol/smurfcore/internal/store"
)

// tierIndex orders ranked tiers low to high for discrepancy/progression math.
var tierIndex = map[string]int{
	"IRON": 0, "BRONZE": 1, "SILVER": 2, "GOLD": 3, "PLATINUM": 4,
	"EMERALD": 5, "DIAMOND": 6, "MASTER": 7, "GRANDMASTER": 8, "CHALLENGER": 9,
}

// PlayerProfile is everything a factor function needs, assembled once per
// analysis run by the engine so each factor stays a pure function of data
// rather than reaching back into the store itself.
type PlayerProfile struct {
	AccountLevel int
	Matches      []store.MatchParticipant // most recent first
	Ranks        []store.PlayerRank       // oldest first, by ObservedAt
}

// factorFunc computes one factor's raw score in [0, 1], where 1.0 indicates
// the strongest smurf signal.
type factorFunc func(p PlayerProfile) float64

var factorFuncs = map[FactorName]factorFunc{
	FactorRankDiscrepancy:        rankDiscrepancyFactor,
	FactorWinRate:                winRateFactor,
	FactorPerformanceTrends:      performanceTrendsFactor,
	FactorWinRateTrends:          winRateTrendsFactor,
	FactorRolePerformance:        rolePerformanceFactor,
	FactorRankProgression:        rankProgressionFactor,
	FactorAccountLevel:           accountLevelFactor,
	FactorPerformanceConsistency: performanceConsistencyFactor,
	FactorKDAAnalysis:            kdaAnalysisFactor,
}

// rankDiscrepancyFactor scores how far current rank outpaces what the
// account level would predict: a level-40 Diamond is a stronger signal than
// a level-200 Diamond.
func rankDiscrepancyFactor(p PlayerProfile) float64 {
	if len(p.Ranks) == 0 || p.AccountLevel <= 0 {
		return 0
	}
	tier := tierIndex[p.Ranks[len(p.Ranks)-1].Tier]
	expectedTierForLevel := math.Min(9, float64(p.AccountLevel)/40.0)
	discrepancy := float64(tier) - expectedTierForLevel
	return clamp01(discrepancy / 9.0)
}

// winRateFactor scores an unusually high win rate over the analysis window
// using a fixed piecewise scale rather than a linear one. The sample size
// is not considered: any window at 70% or above scores 1.0.
func winRateFactor(p PlayerProfile) float64 {
	if len(p.Matches) == 0 {
		return 0
	}
	rate := winRate(p.Matches)
	switch {
	case rate >= 0.70:
		return 1.0
	case rate >= 0.60:
		return 0.7
	case rate >= 0.55:
		return 0.4
	default:
		return 0.0
	}
}

// performanceTrendsFactor scores whether KDA is climbing across the window,
// which smurfs show as they adapt quickly while a genuine new player does not.
func performanceTrendsFactor(p PlayerProfile) float64 {
	if len(p.Matches) < 6 {
		return 0
	}
	half := len(p.Matches) / 2
	recentAvg := averageKDA(p.Matches[:half])  // most recent first
	earlierAvg := averageKDA(p.Matches[half:])
	if earlierAvg == 0 {
		return 0
	}
	improvement := (recentAvg - earlierAvg) / earlierAvg
	return clamp01(improvement)
}

// winRateTrendsFactor scores whether the win rate is climbing within the window.
func winRateTrendsFactor(p PlayerProfile) float64 {
	if len(p.Matches) < 6 {
		return 0
	}
	half := len(p.Matches) / 2
	recentRate := winRate(p.Matches[:half])
	earlierRate := winRate(p.Matches[half:])
	return clamp01((recentRate - earlierRate) / 0.3)
}

// rolePerformanceFactor scores whether the player performs uniformly well
// across every role they've played, which a smurf new to the account (but
// not to the game) tends to do.
func rolePerformanceFactor(p PlayerProfile) float64 {
	byRole := make(map[string][]float64)
	for _, m := range p.Matches {
		byRole[m.TeamPosition] = append(byRole[m.TeamPosition], store.KDARatio(m))
	}
	if len(byRole) < 2 {
		return 0
	}

	var roleAverages []float64
	for _, kdas := range byRole {
		roleAverages = append(roleAverages, average(kdas))
	}
	mean := average(roleAverages)
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, v := range roleAverages {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(roleAverages))
	stdDev := math.Sqrt(variance)

	// Low spread relative to the mean across roles is the signal; invert it.
	relativeSpread := stdDev / mean
	return clamp01(1 - relativeSpread)
}

// rankProgressionFactor scores unusually fast tier climbs across the rank
// history (spec.md §4.8: rank progression speed).
func rankProgressionFactor(p PlayerProfile) float64 {
	if len(p.Ranks) < 2 {
		return 0
	}
	first := p.Ranks[0]
	last := p.Ranks[len(p.Ranks)-1]
	tierGain := tierIndex[last.Tier] - tierIndex[first.Tier]
	if tierGain <= 0 {
		return 0
	}
	elapsedDays := last.ObservedAt.Sub(first.ObservedAt).Hours() / 24
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	tiersPerWeek := float64(tierGain) / (elapsedDays / 7)
	// More than one tier climbed per week is an aggressive signal.
	return clamp01(tiersPerWeek)
}

// accountLevelFactor scores a low account level given a non-trivial match
// history: genuinely new accounts rarely have the match volume to be
// analyzed at all, so a low level with enough matches to score is itself
// a signal.
func accountLevelFactor(p PlayerProfile) float64 {
	if p.AccountLevel <= 0 {
		return 0
	}
	// Levels below 60 are the smurf-typical range; the signal fades out by 150.
	return clamp01((150.0 - float64(p.AccountLevel)) / 90.0)
}

// performanceConsistencyFactor scores low variance in KDA across matches:
// smurfs tend to perform consistently well rather than having the volatile
// game-to-game swings of a genuinely improving new player.
func performanceConsistencyFactor(p PlayerProfile) float64 {
	if len(p.Matches) < 3 {
		return 0
	}
	kdas := make([]float64, len(p.Matches))
	for i, m := range p.Matches {
		kdas[i] = store.KDARatio(m)
	}
	mean := average(kdas)
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range kdas {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(kdas))
	coefficientOfVariation := math.Sqrt(variance) / mean
	return clamp01(1 - coefficientOfVariation)
}

// kdaAnalysisFactor scores an unusually high average KDA.
func kdaAnalysisFactor(p PlayerProfile) float64 {
	if len(p.Matches) == 0 {
		return 0
	}
	avg := averageKDA(p.Matches)
	// An average KDA above 2.0 is strong; scores climb toward 1.0 at 5.0+.
	return clamp01((avg - 2.0) / 3.0)
}

func averageKDA(matches []store.MatchParticipant) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += store.KDARatio(m)
	}
	return sum / float64(len(matches))
}

func winRate(matches []store.MatchParticipant) float64 {
	if len(matches) == 0 {
		return 0
	}
	wins := 0
	for _, m := range matches {
		if m.Win {
			wins++
		}
	}
	return float64(wins) / float64(len(matches))
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sortedFactorNames returns allFactors in a stable order, used when
// persisting FactorScores so the ordering is deterministic across runs.
func sortedFactorNames() []FactorName {
	out := make([]FactorName, len(allFactors))
	copy(out, allFactors)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
