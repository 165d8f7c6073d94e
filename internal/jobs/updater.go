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

// TrackedPlayerUpdater refreshes account, summoner and rank data for every
// tracked player (spec.md §4.7a), fanning out across per_job_concurrency
// goroutines via an ants pool.
//
// Grounded on internal/workers/analytics_worker_pool.go's bounded
// concurrency shape; the hand-rolled channel-and-goroutine pool there is
// replaced with panjf2000/ants so the per-job concurrency cap is enforced
// by a library rather than reimplemented per job type.
type TrackedPlayerUpdater struct {
	repo                    *store.Repository
	dm                      *datamanager.Manager
	concurrency             int
	region                  string
	maxTrackedPlayersPerRun int
	maxNewMatchesPerPlayer  int
}

func NewTrackedPlayerUpdater(repo *store.Repository, dm *datamanager.Manager, concurrency int, region string, maxTrackedPlayersPerRun, maxNewMatchesPerPlayer int) *TrackedPlayerUpdater {
	return &TrackedPlayerUpdater{
		repo: repo, dm: dm, concurrency: concurrency, region: region,
		maxTrackedPlayersPerRun: maxTrackedPlayersPerRun,
		maxNewMatchesPerPlayer:  maxNewMatchesPerPlayer,
	}
}

func (j *TrackedPlayerUpdater) JobType() string { return "tracked_player_updater" }

func (j *TrackedPlayerUpdater) Run(ctx context.Context, log *logging.Logger) Outcome {
	players, err := j.repo.TrackedPlayers(ctx, j.maxTrackedPlayersPerRun)
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
			outcome := j.updateOne(ctx, log, p)
			if outcome == riotapi.OutcomeFound {
				atomic.AddInt64(&processed, 1)
				return
			}
			atomic.AddInt64(&failed, 1)
			mu.Lock()
			worst = worseStatus(worst, classifyOutcome(outcome))
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			log.Error("submit to pool", zap.Error(submitErr))
		}
	}
	wg.Wait()

	return Outcome{Status: worst, ItemsProcessed: int(processed), ItemsFailed: int(failed)}
}

func (j *TrackedPlayerUpdater) updateOne(ctx context.Context, log *logging.Logger, p store.Player) riotapi.Outcome {
	player, outcome, _, err := j.dm.EnsurePlayer(ctx, j.region, p.Platform, p.GameName, p.TagLine)
	if err != nil {
		log.Warn("ensure player failed", zap.String("puuid", p.PUUID), zap.Error(err))
		return riotapi.OutcomeTransient
	}
	if outcome != riotapi.OutcomeFound || player == nil {
		return outcome
	}

	_, rankOutcome, _, err := j.dm.EnsureRank(ctx, player.Platform, player)
	if err != nil && rankOutcome != riotapi.OutcomeRateLimited {
		log.Warn("ensure rank failed", zap.String("puuid", player.PUUID), zap.Error(err))
		return riotapi.OutcomeTransient
	}
	if rankOutcome != riotapi.OutcomeFound {
		return rankOutcome
	}

	ids, idsOutcome, err := j.dm.EnsureMatchIDs(ctx, j.region, player.PUUID, riotapi.MatchIDFilter{Count: j.maxNewMatchesPerPlayer})
	if err != nil && idsOutcome != riotapi.OutcomeRateLimited {
		log.Warn("ensure match ids failed", zap.String("puuid", player.PUUID), zap.Error(err))
		return riotapi.OutcomeTransient
	}
	if idsOutcome != riotapi.OutcomeFound {
		return idsOutcome
	}

	for _, matchID := range ids {
		if matchOutcome := j.dm.EnsureMatch(ctx, j.region, matchID); matchOutcome != riotapi.OutcomeFound && matchOutcome != riotapi.OutcomeNotFound {
			return matchOutcome
		}
	}
	return riotapi.OutcomeFound
}
