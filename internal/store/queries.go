package store

import "fmt"

// kda_ratio, is_ranked and duration_formatted are the free helper functions
// called out in the spec's design notes: small derivations on stored rows.
// KDARatio feeds the scoring engine's KDA factors and IsRanked its
// ranked-queue sample selection; DurationFormatted is a read-path helper.

// KDARatio computes (kills+assists)/deaths, treating a perfect game
// (zero deaths) as kills+assists rather than dividing by zero.
func KDARatio(p MatchParticipant) float64 {
	if p.Deaths == 0 {
		return float64(p.Kills + p.Assists)
	}
	return float64(p.Kills+p.Assists) / float64(p.Deaths)
}

// rankedQueueIDs are the queue IDs counted as "ranked" for is_ranked and for
// the scoring engine's sample selection (420 Ranked Solo/Duo, 440 Ranked Flex).
var rankedQueueIDs = map[int]bool{420: true, 440: true}

// IsRanked reports whether a match was played in a ranked queue.
func IsRanked(m Match) bool {
	return rankedQueueIDs[m.QueueID]
}

// DurationFormatted renders a match's duration as "MM:SS".
func DurationFormatted(m Match) string {
	minutes := m.GameDuration / 60
	seconds := m.GameDuration % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
