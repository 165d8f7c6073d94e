// Package datamanager implements C3, the sole gateway between the domain
// and the Riot API: every "ensure_*" operation first asks whether stored
// data is fresh enough to serve, and only calls out through internal/riotapi
// when it isn't (spec.md §4.3).
package datamanager

import (
	"context"
	"time"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// kind strings used as the first half of the DataTracking composite key.
const (
	kindAccount     = "account"
	kindSummoner    = "summoner"
	kindRank        = "rank"
	kindMatchIDList = "match_id_list"
)

// Freshness windows from spec.md §4.3's table. Match data itself has no
// entry here: once Found, a match is immutable and is never re-requested
// (Manager.EnsureMatch checks existence, not freshness). Active-game lookups
// are never cached and also have no entry.
var freshnessWindow = map[string]time.Duration{
	kindAccount:     24 * time.Hour,
	kindSummoner:    24 * time.Hour,
	kindRank:        time.Hour,
	kindMatchIDList: 5 * time.Minute,
}

// Manager is the Data Manager collaborator. It owns the single-flight
// coalescing group and is safe for concurrent use by every job and worker
// goroutine in the process.
type Manager struct {
	client *riotapi.Client
	repo   *store.Repository
	log    *logging.Logger
	sf     *group
}

func New(client *riotapi.Client, repo *store.Repository, log *logging.Logger) *Manager {
	return &Manager{client: client, repo: repo, log: log, sf: newGroup()}
}

// fresh reports whether (kind, key) was fetched within its freshness window,
// recording a cache hit when it was (spec.md §3 Data Tracking hit counter).
func (m *Manager) fresh(ctx context.Context, kind, key string) (bool, error) {
	window, ok := freshnessWindow[kind]
	if !ok {
		return false, nil
	}
	lastFetched, found, err := m.repo.LastFetched(ctx, kind, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if time.Since(lastFetched) >= window {
		return false, nil
	}
	if err := m.repo.RecordCacheHit(ctx, kind, key, time.Now()); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) markFetched(ctx context.Context, kind, key string) error {
	return m.repo.RecordDataFetched(ctx, kind, key, time.Now())
}
