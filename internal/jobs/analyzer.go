package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/scoring"
	"github.com/herald-lol/smurfcore/internal/store"
)

// PlayerAnalyzer runs the scoring engine over players with enough stored
// matches to analyze (spec.md §4.7c). It makes no external API calls: every
// input comes from C4, which is what lets it run on its own schedule
// independent of the rate limiter.
type PlayerAnalyzer struct {
	repo                    *store.Repository
	engine                  *scoring.Engine
	minimumGamesForAnalysis int
	reanalysisThreshold     int // hours
}

func NewPlayerAnalyzer(repo *store.Repository, engine *scoring.Engine, minimumGamesForAnalysis, reanalysisThresholdHours int) *PlayerAnalyzer {
	return &PlayerAnalyzer{
		repo:                    repo,
		engine:                  engine,
		minimumGamesForAnalysis: minimumGamesForAnalysis,
		reanalysisThreshold:     reanalysisThresholdHours,
	}
}

func (j *PlayerAnalyzer) JobType() string { return "player_analyzer" }

func (j *PlayerAnalyzer) Run(ctx context.Context, log *logging.Logger) Outcome {
	players, err := j.repo.PlayersWithMatchCount(ctx, j.minimumGamesForAnalysis)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}

	var processed, failed int
	for _, p := range players {
		due, err := j.dueForAnalysis(ctx, p)
		if err != nil {
			log.Warn("check analysis eligibility", zap.String("puuid", p.PUUID), zap.Error(err))
			failed++
			continue
		}
		if !due {
			continue
		}

		if _, err := scoring.AnalyzeAndPersist(ctx, j.engine, j.repo, p); err != nil {
			log.Warn("analyze player", zap.String("puuid", p.PUUID), zap.Error(err))
			failed++
			continue
		}
		processed++
	}

	status := StatusSuccess
	if failed > 0 && processed == 0 {
		status = StatusFailed
	}
	return Outcome{Status: status, ItemsProcessed: processed, ItemsFailed: failed}
}

// dueForAnalysis reports whether p has enough stored matches and either has
// never been analyzed or its last analysis has aged past the reanalysis
// threshold (spec.md §4.7c working-set definition).
func (j *PlayerAnalyzer) dueForAnalysis(ctx context.Context, p store.Player) (bool, error) {
	matches, err := j.repo.MatchParticipantsForPlayer(ctx, p.PUUID, 0)
	if err != nil {
		return false, err
	}
	if len(matches) < j.minimumGamesForAnalysis {
		return false, nil
	}

	latest, err := j.repo.LatestResultForPlayer(ctx, p.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}

	age := time.Since(latest.ComputedAt)
	return age.Hours() >= float64(j.reanalysisThreshold), nil
}
