package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/datamanager"
	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

// MatchFetcher expands graph coverage: it finds players who showed up as
// teammates or opponents in already-ingested matches but still have fewer
// than targetMatchesPerPlayer stored matches, and fetches more for them
// (spec.md §4.7b).
type MatchFetcher struct {
	repo                   *store.Repository
	dm                     *datamanager.Manager
	concurrency            int
	region                 string
	targetMatchesPerPlayer int
	matchesPerPlayerPerRun int
}

func NewMatchFetcher(repo *store.Repository, dm *datamanager.Manager, concurrency int, region string, targetMatchesPerPlayer, matchesPerPlayerPerRun int) *MatchFetcher {
	if targetMatchesPerPlayer <= 0 {
		targetMatchesPerPlayer = 20
	}
	if matchesPerPlayerPerRun <= 0 {
		matchesPerPlayerPerRun = 10
	}
	return &MatchFetcher{
		repo: repo, dm: dm, concurrency: concurrency, region: region,
		targetMatchesPerPlayer: targetMatchesPerPlayer,
		matchesPerPlayerPerRun: matchesPerPlayerPerRun,
	}
}

func (j *MatchFetcher) JobType() string { return "match_fetcher" }

func (j *MatchFetcher) Run(ctx context.Context, log *logging.Logger) Outcome {
	players, err := j.repo.PlayersNeedingMoreMatches(ctx, j.targetMatchesPerPlayer, 0)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	if len(players) == 0 {
		return Outcome{Status: StatusSuccess}
	}

	var (
		processed int64
		failed    int64
		worst     = StatusSuccess
		mu        sync.Mutex
		wg        sync.WaitGroup
	)

	pool, err := ants.NewPool(j.concurrency)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	defer pool.Release()

	for _, p := range players {
		p := p
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			got, lost, outcome := j.fetchFor(ctx, log, p)
			atomic.AddInt64(&processed, int64(got))
			atomic.AddInt64(&failed, int64(lost))
			if outcome != riotapi.OutcomeFound {
				mu.Lock()
				worst = worseStatus(worst, classifyOutcome(outcome))
				mu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			log.Error("submit to pool", zap.Error(submitErr))
		}
	}
	wg.Wait()

	return Outcome{Status: worst, ItemsProcessed: int(processed), ItemsFailed: int(failed)}
}

func (j *MatchFetcher) fetchFor(ctx context.Context, log *logging.Logger, p store.Player) (got, lost int, outcome riotapi.Outcome) {
	ids, idsOutcome, err := j.dm.EnsureMatchIDs(ctx, j.region, p.PUUID, riotapi.MatchIDFilter{Count: j.matchesPerPlayerPerRun})
	if err != nil && idsOutcome != riotapi.OutcomeRateLimited {
		log.Warn("list match ids failed", zap.String("puuid", p.PUUID), zap.Error(err))
		return 0, 1, riotapi.OutcomeTransient
	}
	if idsOutcome != riotapi.OutcomeFound {
		return 0, 1, idsOutcome
	}

	for _, matchID := range ids {
		matchOutcome := j.dm.EnsureMatch(ctx, j.region, matchID)
		switch matchOutcome {
		case riotapi.OutcomeFound:
			got++
		case riotapi.OutcomeNotFound:
			// match disappeared between listing and fetch; not a failure
		default:
			lost++
			outcome = matchOutcome
		}
	}
	return got, lost, outcome
}
