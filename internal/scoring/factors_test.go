package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/herald-lol/smurfcore/internal/store"
)

func participant(win bool, kills, deaths, assists int, position string) store.MatchParticipant {
	return store.MatchParticipant{Win: win, Kills: kills, Deaths: deaths, Assists: assists, TeamPosition: position}
}

func TestWinRateFactor_PiecewiseScale(t *testing.T) {
	high := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 5, 1, 5, "MIDDLE"), participant(true, 5, 1, 5, "MIDDLE"),
		participant(true, 5, 1, 5, "MIDDLE"), participant(false, 1, 5, 1, "MIDDLE"),
	}}
	assert.Equal(t, 1.0, winRateFactor(high))

	low := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 5, 1, 5, "MIDDLE"), participant(false, 1, 5, 1, "MIDDLE"),
	}}
	assert.Equal(t, 0.0, winRateFactor(low))
}

func TestWinRateFactor_EmptyMatches(t *testing.T) {
	assert.Equal(t, 0.0, winRateFactor(PlayerProfile{}))
}

func TestAccountLevelFactor_MonotoneNonIncreasing(t *testing.T) {
	low := accountLevelFactor(PlayerProfile{AccountLevel: 30})
	mid := accountLevelFactor(PlayerProfile{AccountLevel: 100})
	high := accountLevelFactor(PlayerProfile{AccountLevel: 300})

	assert.Greater(t, low, mid)
	assert.GreaterOrEqual(t, mid, high)
	assert.Equal(t, 0.0, high)
}

func TestPerformanceConsistencyFactor_RewardsLowVariance(t *testing.T) {
	steady := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 6, 2, 4, "MIDDLE"),
		participant(true, 6, 2, 4, "MIDDLE"),
		participant(true, 6, 2, 4, "MIDDLE"),
	}}
	volatile := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 15, 0, 10, "MIDDLE"),
		participant(false, 0, 10, 0, "MIDDLE"),
		participant(true, 8, 3, 2, "MIDDLE"),
	}}

	assert.Greater(t, performanceConsistencyFactor(steady), performanceConsistencyFactor(volatile))
}

func TestRolePerformanceFactor_RequiresMultipleRoles(t *testing.T) {
	singleRole := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 6, 2, 4, "MIDDLE"),
		participant(true, 6, 2, 4, "MIDDLE"),
	}}
	assert.Equal(t, 0.0, rolePerformanceFactor(singleRole))
}

func TestRankProgressionFactor_NoGainScoresZero(t *testing.T) {
	p := PlayerProfile{Ranks: []store.PlayerRank{
		{Tier: "GOLD", ObservedAt: time.Now().Add(-14 * 24 * time.Hour)},
		{Tier: "GOLD", ObservedAt: time.Now()},
	}}
	assert.Equal(t, 0.0, rankProgressionFactor(p))
}

func TestRankProgressionFactor_FastClimbScoresHigh(t *testing.T) {
	p := PlayerProfile{Ranks: []store.PlayerRank{
		{Tier: "IRON", ObservedAt: time.Now().Add(-7 * 24 * time.Hour)},
		{Tier: "GOLD", ObservedAt: time.Now()},
	}}
	assert.Greater(t, rankProgressionFactor(p), 0.4)
}

func TestKDAAnalysisFactor_ScalesWithAverage(t *testing.T) {
	p := PlayerProfile{Matches: []store.MatchParticipant{
		participant(true, 10, 1, 10, "MIDDLE"),
		participant(true, 12, 0, 8, "MIDDLE"),
	}}
	assert.Greater(t, kdaAnalysisFactor(p), 0.5)
}

func TestClamp01_BoundsOutput(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-5))
	assert.Equal(t, 1.0, clamp01(5))
	assert.Equal(t, 0.5, clamp01(0.5))
}
