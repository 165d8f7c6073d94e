package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/herald-lol/smurfcore/internal/ratelimit"
)

// Repository is the single persistence collaborator every other component
// depends on. Grounded on backend/internal/services/riot_service.go's
// saveMatchToDatabase (existence check, then transaction wrapping the
// match and its participants), generalized into named operations so the
// outermost transaction boundary is always the repository method, never a
// caller reaching into *gorm.DB directly (spec.md §5 commit discipline).
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// IsNotFound reports whether err is the "no row" error returned by the
// lookup methods below, so callers can distinguish "never happened" from a
// real failure without importing gorm directly.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// UpsertPlayer inserts a new tracked player or updates the mutable fields of
// an existing one, keyed by PUUID.
func (r *Repository) UpsertPlayer(ctx context.Context, p *Player) error {
	var existing Player
	err := r.db.WithContext(ctx).Where("puuid = ?", p.PUUID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(p).Error
	case err != nil:
		return err
	}

	existing.Platform = p.Platform
	existing.GameName = p.GameName
	existing.TagLine = p.TagLine
	existing.SummonerID = p.SummonerID
	if p.AccountLevel > 0 {
		existing.AccountLevel = p.AccountLevel
	}
	if !p.LastAccountFetch.IsZero() {
		existing.LastAccountFetch = p.LastAccountFetch
	}
	if !p.LastSummonerFetch.IsZero() {
		existing.LastSummonerFetch = p.LastSummonerFetch
	}
	if !p.LastRankFetch.IsZero() {
		existing.LastRankFetch = p.LastRankFetch
	}
	if !p.LastMatchListScan.IsZero() {
		existing.LastMatchListScan = p.LastMatchListScan
	}
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return err
	}
	*p = existing
	return nil
}

// PlayerByPUUID looks up a player, returning gorm.ErrRecordNotFound if absent.
func (r *Repository) PlayerByPUUID(ctx context.Context, puuid string) (*Player, error) {
	var p Player
	if err := r.db.WithContext(ctx).Where("puuid = ?", puuid).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// PlayerByRiotID looks up a player by the human-facing gameName#tagLine,
// returning gorm.ErrRecordNotFound if absent.
func (r *Repository) PlayerByRiotID(ctx context.Context, gameName, tagLine string) (*Player, error) {
	var p Player
	err := r.db.WithContext(ctx).Where("game_name = ? AND tag_line = ?", gameName, tagLine).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// TrackedPlayers lists players currently being tracked, oldest-updated
// first, capped by limit (spec.md §4.7a working-set definition). limit <= 0
// means unbounded.
func (r *Repository) TrackedPlayers(ctx context.Context, limit int) ([]Player, error) {
	var players []Player
	q := r.db.WithContext(ctx).Where("is_tracked = ?", true).Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&players).Error
	return players, err
}

// PlayersWithMatchCount lists every player — tracked or merely discovered —
// with at least minMatches stored participant rows, the working set for jobs
// whose population is defined by match volume rather than tracking status
// (spec.md §4.7c: the Player Analyzer considers any player with enough
// stored matches, not only ones still being actively tracked).
func (r *Repository) PlayersWithMatchCount(ctx context.Context, minMatches int) ([]Player, error) {
	var players []Player
	err := r.db.WithContext(ctx).
		Table("players").
		Select("players.*").
		Joins(`JOIN (SELECT puuid, COUNT(*) AS cnt FROM match_participants GROUP BY puuid) mc ON mc.puuid = players.puuid`).
		Where("mc.cnt >= ?", minMatches).
		Find(&players).Error
	return players, err
}

// PlayersWithRecentHighConfidenceResult lists every player — tracked or
// merely discovered — whose most recent scoring result is high-confidence,
// the Ban Checker's working set (spec.md §4.7d: players flagged by recent
// high-confidence detections, independent of is_tracked).
func (r *Repository) PlayersWithRecentHighConfidenceResult(ctx context.Context, confidence string) ([]Player, error) {
	var players []Player
	err := r.db.WithContext(ctx).
		Table("players").
		Select("players.*").
		Joins(`JOIN (
			SELECT player_id, confidence
			FROM smurf_detection_results sdr
			WHERE computed_at = (
				SELECT MAX(computed_at) FROM smurf_detection_results WHERE player_id = sdr.player_id
			)
		) latest ON latest.player_id = players.id`).
		Where("latest.confidence = ?", confidence).
		Find(&players).Error
	return players, err
}

// SetBanned marks a player banned (spec.md §4.7d Ban Checker) and always
// stamps LastBanCheck, since a definitive outcome (found-not-banned or
// confirmed-banned) was reached.
func (r *Repository) SetBanned(ctx context.Context, playerID uuid.UUID, banned bool, checkedAt time.Time) error {
	updates := map[string]any{"last_ban_check": checkedAt}
	if banned {
		updates["is_banned"] = true
		updates["banned_at"] = checkedAt
	}
	return r.db.WithContext(ctx).Model(&Player{}).Where("id = ?", playerID).Updates(updates).Error
}

// MatchExists reports whether a match has already been stored, so the
// Match Fetcher can skip re-fetching (spec.md §4.3 freshness: matches never
// go stale once Found).
func (r *Repository) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Match{}).Where("match_id = ?", matchID).Count(&count).Error
	return count > 0, err
}

// InsertMatchWithParticipants stores a match and its participants in a
// single transaction: either both are committed or neither is. It also
// ensures a minimal, untracked Player row exists for every participant PUUID
// not already known, so the Match Fetcher's graph-expansion working set
// (spec.md §4.7b: "players discovered as teammates/opponents") has
// something to query against.
func (r *Repository) InsertMatchWithParticipants(ctx context.Context, match *Match, participants []MatchParticipant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			return err
		}
		for i := range participants {
			participants[i].MatchID = match.ID
		}
		if len(participants) == 0 {
			return nil
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		for _, p := range participants {
			var existing Player
			err := tx.Where("puuid = ?", p.PUUID).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				discovered := Player{PUUID: p.PUUID, Platform: match.PlatformID, IsTracked: false}
				if err := tx.Create(&discovered).Error; err != nil {
					return err
				}
				// is_tracked has a column default of true, which gorm writes for a zero value on insert.
				if err := tx.Model(&discovered).Update("is_tracked", false).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// PlayersNeedingMoreMatches lists players (tracked or merely discovered)
// with fewer than targetMatches stored participant rows, the Match
// Fetcher's working set (spec.md §4.7b).
func (r *Repository) PlayersNeedingMoreMatches(ctx context.Context, targetMatches, limit int) ([]Player, error) {
	var players []Player
	q := r.db.WithContext(ctx).
		Table("players").
		Select("players.*").
		Joins(`LEFT JOIN (SELECT puuid, COUNT(*) AS cnt FROM match_participants GROUP BY puuid) mc ON mc.puuid = players.puuid`).
		Where("COALESCE(mc.cnt, 0) < ?", targetMatches)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&players).Error
	return players, err
}

// MatchParticipantsForPlayer returns a player's participant rows across
// stored matches, most recent first, bounded by limit. Each row's Match is
// preloaded so callers (the Scoring Engine's ranked-queue sample selection)
// can inspect queue_id without a separate lookup.
func (r *Repository) MatchParticipantsForPlayer(ctx context.Context, puuid string, limit int) ([]MatchParticipant, error) {
	var rows []MatchParticipant
	q := r.db.WithContext(ctx).
		Preload("Match").
		Joins("JOIN matches ON matches.id = match_participants.match_id").
		Where("match_participants.puuid = ?", puuid).
		Order("matches.game_start_timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// AppendRank records a new ranked snapshot (never overwrites history, so
// rank progression can be derived from it).
func (r *Repository) AppendRank(ctx context.Context, rank *PlayerRank) error {
	return r.db.WithContext(ctx).Create(rank).Error
}

// RanksForPlayer returns a player's rank history, oldest first.
func (r *Repository) RanksForPlayer(ctx context.Context, playerID uuid.UUID) ([]PlayerRank, error) {
	var ranks []PlayerRank
	err := r.db.WithContext(ctx).Where("player_id = ?", playerID).Order("observed_at ASC").Find(&ranks).Error
	return ranks, err
}

// LatestResultForPlayer returns the most recent smurf-detection result, if any.
func (r *Repository) LatestResultForPlayer(ctx context.Context, playerID uuid.UUID) (*SmurfDetectionResult, error) {
	var result SmurfDetectionResult
	err := r.db.WithContext(ctx).Where("player_id = ?", playerID).Order("computed_at DESC").First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveResult persists a new scoring run's output.
func (r *Repository) SaveResult(ctx context.Context, result *SmurfDetectionResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

// CreateJobConfiguration inserts a new job control row.
func (r *Repository) CreateJobConfiguration(ctx context.Context, cfg *JobConfiguration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled := cfg.Enabled
		if err := tx.Create(cfg).Error; err != nil {
			return err
		}
		if enabled {
			return nil
		}
		// gorm writes the column default (true) for a zero-value Enabled on insert.
		cfg.Enabled = false
		return tx.Model(cfg).Update("enabled", false).Error
	})
}

// JobConfigurationByType loads a single job's control row.
func (r *Repository) JobConfigurationByType(ctx context.Context, jobType string) (*JobConfiguration, error) {
	var cfg JobConfiguration
	if err := r.db.WithContext(ctx).Where("job_type = ?", jobType).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EnabledJobConfigurations lists every job the scheduler should register
// (spec.md §9 Open Question i: a job with no row at all is simply absent
// from this list, and is therefore never registered).
func (r *Repository) EnabledJobConfigurations(ctx context.Context) ([]JobConfiguration, error) {
	var cfgs []JobConfiguration
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Find(&cfgs).Error
	return cfgs, err
}

// SetJobEnabled flips a job's enabled flag (job-control contract, spec.md §4.6).
func (r *Repository) SetJobEnabled(ctx context.Context, jobType string, enabled bool) error {
	return r.db.WithContext(ctx).Model(&JobConfiguration{}).
		Where("job_type = ?", jobType).Update("enabled", enabled).Error
}

// UpdateJobSchedule changes a job's cron expression.
func (r *Repository) UpdateJobSchedule(ctx context.Context, jobType, cronExpr string) error {
	return r.db.WithContext(ctx).Model(&JobConfiguration{}).
		Where("job_type = ?", jobType).Update("cron_expression", cronExpr).Error
}

// CreateExecution inserts an execution row with the status the caller set;
// the generated ID is written back into exec.ID.
func (r *Repository) CreateExecution(ctx context.Context, exec *JobExecution) error {
	return r.db.WithContext(ctx).Create(exec).Error
}

// FinishExecution appends the terminal state, log blob and counters to an
// execution row (spec.md §4.5c).
func (r *Repository) FinishExecution(ctx context.Context, id uuid.UUID, status string, endedAt time.Time, errMsg string, logBlob []byte, processed, failed int) error {
	return r.db.WithContext(ctx).Model(&JobExecution{}).Where("id = ?", id).Updates(map[string]any{
		"status":          status,
		"ended_at":        endedAt,
		"error_message":   errMsg,
		"log_blob":        logBlob,
		"items_processed": processed,
		"items_failed":    failed,
	}).Error
}

// ExecutionByID backs get_execution (spec.md §6): the full record including
// its captured log blob.
func (r *Repository) ExecutionByID(ctx context.Context, id uuid.UUID) (*JobExecution, error) {
	var exec JobExecution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&exec).Error; err != nil {
		return nil, err
	}
	return &exec, nil
}

// ExecutionsByJobType backs list_executions (spec.md §6), most recent first,
// bounded by limit (limit <= 0 means unbounded).
func (r *Repository) ExecutionsByJobType(ctx context.Context, jobType string, limit int) ([]JobExecution, error) {
	var execs []JobExecution
	q := r.db.WithContext(ctx).Where("job_type = ?", jobType).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&execs).Error
	return execs, err
}

// RunningExecutionExists enforces "at most one execution per job_type
// running" (spec.md §4.5 Concurrency invariant).
func (r *Repository) RunningExecutionExists(ctx context.Context, jobType string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&JobExecution{}).
		Where("job_type = ? AND status = ?", jobType, "running").Count(&count).Error
	return count > 0, err
}

// RecordDataFetched upserts the freshness-tracking row for (kind, key),
// incrementing its fetch counter (spec.md §3 Data Tracking: last_fetched,
// last_updated, fetch and hit counters). Implements the Data Manager's
// persisted half of the freshness policy (spec.md §4.3); the in-memory
// single-flight layer is separate.
func (r *Repository) RecordDataFetched(ctx context.Context, kind, key string, fetchedAt time.Time) error {
	var existing DataTracking
	err := r.db.WithContext(ctx).Where("kind = ? AND key = ?", kind, key).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(&DataTracking{
			Kind: kind, Key: key, FetchedAt: fetchedAt, UpdatedAt: fetchedAt, FetchCount: 1,
		}).Error
	case err != nil:
		return err
	}
	return r.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"fetched_at":  fetchedAt,
		"updated_at":  fetchedAt,
		"fetch_count": gorm.Expr("fetch_count + 1"),
	}).Error
}

// RecordCacheHit bumps the hit counter for (kind, key) when the Data
// Manager's freshness check serves cached data instead of calling out to the
// Riot API (spec.md §3 Data Tracking hit counter, §4.3 step 5). A missing row
// is not an error here — it just means this (kind, key) was never fetched,
// which freshness already treats as stale.
func (r *Repository) RecordCacheHit(ctx context.Context, kind, key string, hitAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&DataTracking{}).
		Where("kind = ? AND key = ?", kind, key).
		Updates(map[string]any{
			"updated_at": hitAt,
			"hit_count":  gorm.Expr("hit_count + 1"),
		})
	return res.Error
}

// LastFetched returns when (kind, key) was last fetched, or the zero time
// and false if never.
func (r *Repository) LastFetched(ctx context.Context, kind, key string) (time.Time, bool, error) {
	var existing DataTracking
	err := r.db.WithContext(ctx).Where("kind = ? AND key = ?", kind, key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return existing.FetchedAt, true, nil
}

// RecordRateLimitEvent implements ratelimit.EventSink, appending to the
// rate-limit log.
func (r *Repository) RecordRateLimitEvent(ctx context.Context, ev ratelimit.Event) error {
	return r.db.WithContext(ctx).Create(&RateLimitLog{
		ScopeKind:       ev.Scope.Kind,
		Method:          ev.Scope.Method,
		Endpoint:        ev.Endpoint,
		ConfiguredLimit: ev.ConfiguredLimit,
		ObservedUsage:   ev.ObservedUsage,
		RetryAfterMS:    ev.RetryAfter.Milliseconds(),
		ObservedAt:      ev.ObservedAt,
	}).Error
}

// RateLimitLogSince returns rate-limit events observed at or after since,
// backing get_rate_limit_log (spec.md §4.1/§6).
func (r *Repository) RateLimitLogSince(ctx context.Context, since time.Time) ([]RateLimitLog, error) {
	var rows []RateLimitLog
	err := r.db.WithContext(ctx).Where("observed_at >= ?", since).Order("observed_at ASC").Find(&rows).Error
	return rows, err
}

var _ ratelimit.EventSink = (*Repository)(nil)
