package datamanager

import (
	"context"
	"time"

	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// EnsureRank refreshes and appends a ranked snapshot for a player if the
// rank freshness window (1 hour) has elapsed, returning the current entries.
func (m *Manager) EnsureRank(ctx context.Context, platform string, p *store.Player) ([]riotapi.LeagueEntry, riotapi.Outcome, Freshness, error) {
	raw, err := m.sf.Do("rank:"+p.PUUID, func() (any, error) {
		return m.fetchRank(ctx, platform, p)
	})
	if err != nil {
		return nil, riotapi.OutcomeTransient, FreshnessMissingRateLimited, err
	}
	result := raw.(rankResult)
	return result.entries, result.outcome, result.tag, result.err
}

type rankResult struct {
	entries []riotapi.LeagueEntry
	outcome riotapi.Outcome
	tag     Freshness
	err     error
}

func (m *Manager) fetchRank(ctx context.Context, platform string, p *store.Player) (rankResult, error) {
	fresh, err := m.fresh(ctx, kindRank, p.PUUID)
	if err != nil {
		return rankResult{}, err
	}
	if fresh {
		ranks, err := m.repo.RanksForPlayer(ctx, p.ID)
		if err == nil && len(ranks) > 0 {
			return rankResult{entries: ranksToEntries(ranks), outcome: riotapi.OutcomeFound, tag: FreshnessFresh}, nil
		}
	}

	if p.SummonerID == "" {
		return rankResult{outcome: riotapi.OutcomeNotFound, tag: FreshnessFresh}, nil
	}

	res := m.client.GetLeagueEntriesBySummonerID(ctx, platform, p.SummonerID)
	if res.Outcome != riotapi.OutcomeFound {
		return m.staleRankFallback(ctx, p, res), nil
	}

	now := time.Now()
	for _, entry := range res.Value {
		if err := m.repo.AppendRank(ctx, &store.PlayerRank{
			PlayerID:     p.ID,
			ObservedAt:   now,
			QueueType:    entry.QueueType,
			Tier:         entry.Tier,
			Rank:         entry.Rank,
			LeaguePoints: entry.LeaguePoints,
			Wins:         entry.Wins,
			Losses:       entry.Losses,
		}); err != nil {
			return rankResult{}, err
		}
	}
	if err := m.markFetched(ctx, kindRank, p.PUUID); err != nil {
		return rankResult{}, err
	}

	return rankResult{entries: res.Value, outcome: riotapi.OutcomeFound, tag: FreshnessFresh}, nil
}

// staleRankFallback handles a live league-v4 call that came back something
// other than Found: a RateLimited or Transient outcome falls back to the
// last-known rank snapshot when one exists, tagged stale_served; any other
// outcome, or no cached rows at all, is reported as-is (spec.md §4.3 step 4,
// scenario S5).
func (m *Manager) staleRankFallback(ctx context.Context, p *store.Player, res riotapi.Result[[]riotapi.LeagueEntry]) rankResult {
	if res.Outcome != riotapi.OutcomeRateLimited && res.Outcome != riotapi.OutcomeTransient {
		return rankResult{outcome: res.Outcome, tag: FreshnessFresh, err: res.Error()}
	}
	if ranks, err := m.repo.RanksForPlayer(ctx, p.ID); err == nil && len(ranks) > 0 {
		return rankResult{entries: ranksToEntries(ranks), outcome: riotapi.OutcomeFound, tag: FreshnessStaleServed}
	}
	return rankResult{outcome: res.Outcome, tag: FreshnessMissingRateLimited, err: res.Error()}
}

func ranksToEntries(ranks []store.PlayerRank) []riotapi.LeagueEntry {
	latestByQueue := make(map[string]store.PlayerRank)
	for _, r := range ranks {
		if existing, ok := latestByQueue[r.QueueType]; !ok || r.ObservedAt.After(existing.ObservedAt) {
			latestByQueue[r.QueueType] = r
		}
	}
	entries := make([]riotapi.LeagueEntry, 0, len(latestByQueue))
	for _, r := range latestByQueue {
		entries = append(entries, riotapi.LeagueEntry{
			QueueType:    r.QueueType,
			Tier:         r.Tier,
			Rank:         r.Rank,
			LeaguePoints: r.LeaguePoints,
			Wins:         r.Wins,
			Losses:       r.Losses,
		})
	}
	return entries
}
