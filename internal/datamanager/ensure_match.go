package datamanager

import (
	"context"
	"fmt"

	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// EnsureMatchIDs lists recent match IDs for a player. Concurrent calls for
// the same player share one request. A successful fetch records its time
// under the match-id-list kind, but that time is not consulted here: every
// call that is not coalesced goes to the API.
func (m *Manager) EnsureMatchIDs(ctx context.Context, region, puuid string, filter riotapi.MatchIDFilter) ([]string, riotapi.Outcome, error) {
	trackingKey := region + "/" + puuid
	raw, err := m.sf.Do("matchids:"+trackingKey, func() (any, error) {
		return m.fetchMatchIDs(ctx, region, puuid, filter, trackingKey)
	})
	if err != nil {
		return nil, riotapi.OutcomeTransient, err
	}
	result := raw.(matchIDsResult)
	return result.ids, result.outcome, result.err
}

type matchIDsResult struct {
	ids     []string
	outcome riotapi.Outcome
	err     error
}

func (m *Manager) fetchMatchIDs(ctx context.Context, region, puuid string, filter riotapi.MatchIDFilter, trackingKey string) (matchIDsResult, error) {
	res := m.client.GetMatchIDsByPUUID(ctx, region, puuid, filter)
	switch res.Outcome {
	case riotapi.OutcomeFound:
		if err := m.markFetched(ctx, kindMatchIDList, trackingKey); err != nil {
			return matchIDsResult{}, err
		}
		return matchIDsResult{ids: res.Value, outcome: riotapi.OutcomeFound}, nil
	case riotapi.OutcomeNotFound:
		return matchIDsResult{ids: nil, outcome: riotapi.OutcomeNotFound}, nil
	default:
		return matchIDsResult{outcome: res.Outcome, err: res.Error()}, nil
	}
}

// EnsureMatch fetches and stores a match if it isn't already known. Matches
// are immutable once stored, so no freshness window applies — existence is
// the only check (spec.md §4.3 table).
func (m *Manager) EnsureMatch(ctx context.Context, region, matchID string) riotapi.Outcome {
	raw, err := m.sf.Do("match:"+matchID, func() (any, error) {
		return m.fetchMatch(ctx, region, matchID)
	})
	if err != nil {
		return riotapi.OutcomeTransient
	}
	return raw.(riotapi.Outcome)
}

func (m *Manager) fetchMatch(ctx context.Context, region, matchID string) (riotapi.Outcome, error) {
	exists, err := m.repo.MatchExists(ctx, matchID)
	if err != nil {
		return riotapi.OutcomeTransient, err
	}
	if exists {
		return riotapi.OutcomeFound, nil
	}

	res := m.client.GetMatchByID(ctx, region, matchID)
	if res.Outcome != riotapi.OutcomeFound {
		return res.Outcome, nil
	}

	match, participants := convertMatch(res.Value)
	if err := m.repo.InsertMatchWithParticipants(ctx, match, participants); err != nil {
		return riotapi.OutcomeTransient, fmt.Errorf("store match %s: %w", matchID, err)
	}
	return riotapi.OutcomeFound, nil
}

func convertMatch(wire riotapi.Match) (*store.Match, []store.MatchParticipant) {
	match := &store.Match{
		MatchID:            wire.Metadata.MatchID,
		PlatformID:         wire.Info.PlatformID,
		QueueID:            wire.Info.QueueID,
		MapID:              wire.Info.MapID,
		GameStartTimestamp: wire.Info.GameStartTimestamp,
		GameEndTimestamp:   wire.Info.GameEndTimestamp,
		GameDuration:       wire.Info.GameDuration,
		GameVersion:        wire.Info.GameVersion,
	}
	for _, team := range wire.Info.Teams {
		if team.Win {
			match.WinningTeam = team.TeamID
		}
	}

	participants := make([]store.MatchParticipant, 0, len(wire.Info.Participants))
	for _, p := range wire.Info.Participants {
		participants = append(participants, store.MatchParticipant{
			PUUID:                       p.PUUID,
			SummonerID:                  p.SummonerID,
			SummonerName:                p.SummonerName,
			ParticipantID:               p.ParticipantID,
			TeamID:                      p.TeamID,
			TeamPosition:                p.TeamPosition,
			ChampionID:                  p.ChampionID,
			ChampionName:                p.ChampionName,
			ChampLevel:                  p.ChampLevel,
			Win:                         p.Win,
			Kills:                       p.Kills,
			Deaths:                      p.Deaths,
			Assists:                     p.Assists,
			TotalMinionsKilled:          p.TotalMinionsKilled,
			NeutralMinionsKilled:        p.NeutralMinionsKilled,
			GoldEarned:                  p.GoldEarned,
			TotalDamageDealtToChampions: p.TotalDamageDealtToChampions,
			VisionScore:                 p.VisionScore,
			TimePlayed:                  p.TimePlayed,
			DoubleKills:                 p.DoubleKills,
			TripleKills:                 p.TripleKills,
			QuadraKills:                 p.QuadraKills,
			PentaKills:                  p.PentaKills,
		})
	}
	return match, participants
}
