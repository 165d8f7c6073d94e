package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/datamanager"
	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/scoring"
	"github.com/herald-lol/smurfcore/internal/store"
)

// BanChecker re-verifies accounts flagged by recent high-confidence
// detections and records the result (is_banned, last_ban_check) on the
// player row (spec.md §4.7d).
type BanChecker struct {
	repo         *store.Repository
	dm           *datamanager.Manager
	region       string
	banCheckDays int
}

func NewBanChecker(repo *store.Repository, dm *datamanager.Manager, region string, banCheckDays int) *BanChecker {
	return &BanChecker{repo: repo, dm: dm, region: region, banCheckDays: banCheckDays}
}

func (j *BanChecker) JobType() string { return "ban_checker" }

func (j *BanChecker) Run(ctx context.Context, log *logging.Logger) Outcome {
	players, err := j.repo.PlayersWithRecentHighConfidenceResult(ctx, scoring.ConfidenceHigh)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	threshold := time.Duration(j.banCheckDays) * 24 * time.Hour
	worst := StatusSuccess
	var processed, failed int

	for _, p := range players {
		due, err := j.dueForBanCheck(ctx, p, threshold)
		if err != nil {
			log.Warn("check ban-check eligibility", zap.String("puuid", p.PUUID), zap.Error(err))
			failed++
			continue
		}
		if !due {
			continue
		}

		outcome, err := j.dm.CheckBan(ctx, j.region, &p)
		if err != nil && outcome != riotapi.OutcomeRateLimited {
			log.Warn("check ban", zap.String("puuid", p.PUUID), zap.Error(err))
			failed++
			worst = worseStatus(worst, StatusFailed)
			continue
		}
		if outcome != riotapi.OutcomeFound && outcome != riotapi.OutcomeNotFound {
			worst = worseStatus(worst, classifyOutcome(outcome))
			continue
		}
		processed++
	}

	return Outcome{Status: worst, ItemsProcessed: processed, ItemsFailed: failed}
}

// dueForBanCheck reports whether p was recently flagged by a high-confidence
// detection and its last ban check has aged past banCheckDays.
func (j *BanChecker) dueForBanCheck(ctx context.Context, p store.Player, threshold time.Duration) (bool, error) {
	latest, err := j.repo.LatestResultForPlayer(ctx, p.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if latest.Confidence != scoring.ConfidenceHigh {
		return false, nil
	}
	if p.LastBanCheck.IsZero() {
		return true, nil
	}
	return time.Since(p.LastBanCheck) >= threshold, nil
}
