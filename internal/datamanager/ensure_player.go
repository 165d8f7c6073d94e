package datamanager

import (
	"context"

	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// EnsurePlayer guarantees a Player row exists and its account/summoner data
// is fresh, resolving through account-v1 then summoner-v4 as needed. It is
// the entry point used both by a manual "track this player" request and by
// the Tracked Player Updater job.
func (m *Manager) EnsurePlayer(ctx context.Context, region, platform, gameName, tagLine string) (*store.Player, riotapi.Outcome, Freshness, error) {
	key := region + "/" + gameName + "#" + tagLine

	res, err := m.sf.Do("account:"+key, func() (any, error) {
		return m.ensureAccount(ctx, region, platform, gameName, tagLine)
	})
	if err != nil {
		return nil, riotapi.OutcomeTransient, FreshnessMissingRateLimited, err
	}
	outcome := res.(ensureAccountResult)
	if outcome.player == nil {
		return nil, outcome.outcome, outcome.tag, outcome.err
	}

	if err := m.ensureSummoner(ctx, platform, outcome.player); err != nil {
		m.log.Warn("ensure summoner failed", zap.String("puuid", outcome.player.PUUID), zap.Error(err))
	}

	return outcome.player, outcome.outcome, outcome.tag, nil
}

type ensureAccountResult struct {
	player  *store.Player
	outcome riotapi.Outcome
	tag     Freshness
	err     error
}

func (m *Manager) ensureAccount(ctx context.Context, region, platform, gameName, tagLine string) (ensureAccountResult, error) {
	fresh, err := m.fresh(ctx, kindAccount, region+"/"+gameName+"#"+tagLine)
	if err != nil {
		return ensureAccountResult{}, err
	}

	if fresh {
		if p, err := m.playerByRiotID(ctx, gameName, tagLine); err == nil && p != nil {
			return ensureAccountResult{player: p, outcome: riotapi.OutcomeFound, tag: FreshnessFresh}, nil
		}
	}

	res := m.client.GetAccountByRiotID(ctx, region, gameName, tagLine)
	switch res.Outcome {
	case riotapi.OutcomeFound:
		p := &store.Player{
			PUUID:     res.Value.PUUID,
			Platform:  platform,
			GameName:  res.Value.GameName,
			TagLine:   res.Value.TagLine,
			IsTracked: true,
		}
		if err := m.repo.UpsertPlayer(ctx, p); err != nil {
			return ensureAccountResult{}, err
		}
		if err := m.markFetched(ctx, kindAccount, region+"/"+gameName+"#"+tagLine); err != nil {
			return ensureAccountResult{}, err
		}
		return ensureAccountResult{player: p, outcome: riotapi.OutcomeFound, tag: FreshnessFresh}, nil

	case riotapi.OutcomeNotFound:
		return ensureAccountResult{outcome: riotapi.OutcomeNotFound, tag: FreshnessFresh}, nil

	case riotapi.OutcomeRateLimited, riotapi.OutcomeTransient:
		// Fall back to the last-known row rather than giving up outright
		// (spec.md §4.3 step 4, scenario S5).
		if p, perr := m.playerByRiotID(ctx, gameName, tagLine); perr == nil && p != nil {
			return ensureAccountResult{player: p, outcome: riotapi.OutcomeFound, tag: FreshnessStaleServed}, nil
		}
		return ensureAccountResult{outcome: res.Outcome, tag: FreshnessMissingRateLimited}, nil

	default:
		return ensureAccountResult{outcome: res.Outcome, tag: FreshnessFresh, err: res.Error()}, nil
	}
}

// playerByRiotID serves cached data when the freshness window hasn't
// expired; a miss just means we haven't stored this riot-id before.
func (m *Manager) playerByRiotID(ctx context.Context, gameName, tagLine string) (*store.Player, error) {
	return m.repo.PlayerByRiotID(ctx, gameName, tagLine)
}

func (m *Manager) ensureSummoner(ctx context.Context, platform string, p *store.Player) error {
	fresh, err := m.fresh(ctx, kindSummoner, p.PUUID)
	if err != nil {
		return err
	}
	if fresh && p.SummonerID != "" {
		return nil
	}

	res := m.client.GetSummonerByPUUID(ctx, platform, p.PUUID)
	if res.Outcome != riotapi.OutcomeFound {
		return res.Error()
	}

	p.SummonerID = res.Value.ID
	p.AccountLevel = res.Value.SummonerLevel
	if err := m.repo.UpsertPlayer(ctx, p); err != nil {
		return err
	}
	return m.markFetched(ctx, kindSummoner, p.PUUID)
}
