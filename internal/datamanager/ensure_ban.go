package datamanager

import (
	"context"
	"time"

	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// CheckBan re-resolves a previously-known PUUID through account-v1. A
// NotFound here is the ban signal (spec.md §9 Open Question ii / §4.7d): a
// PUUID that once resolved and now doesn't has had its account actioned.
// Transient and RateLimited outcomes leave last_ban_check untouched so a
// temporary API hiccup is never mistaken for a ban, and so the next run
// retries rather than skipping silently.
func (m *Manager) CheckBan(ctx context.Context, region string, p *store.Player) (riotapi.Outcome, error) {
	res := m.client.GetAccountByPUUID(ctx, region, p.PUUID)

	switch res.Outcome {
	case riotapi.OutcomeFound, riotapi.OutcomeNotFound:
		banned := res.Outcome == riotapi.OutcomeNotFound
		if err := m.repo.SetBanned(ctx, p.ID, banned, time.Now()); err != nil {
			return res.Outcome, err
		}
		return res.Outcome, nil
	default:
		return res.Outcome, res.Error()
	}
}
