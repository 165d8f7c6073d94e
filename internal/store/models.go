// Package store holds the persistence layer (C4): gorm models, connection
// setup, and the repository operations the rest of the core depends on.
//
// Grounded on backend/internal/models/match.go for model shape and
// conventions (uuid primary keys via BeforeCreate hooks, gorm tags,
// CreatedAt/UpdatedAt), generalized from Herald's analytics-platform schema
// to the ingestion-core schema (spec.md §3 Data Model).
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Player is a tracked (or previously tracked) account (spec.md §3 Player).
type Player struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time
	UpdatedAt time.Time

	PUUID        string `gorm:"uniqueIndex;not null"`
	Platform     string `gorm:"not null"`
	GameName     string
	TagLine      string
	SummonerID   string
	AccountLevel int

	IsTracked bool `gorm:"default:true;index"`

	LastAccountFetch  time.Time
	LastSummonerFetch time.Time
	LastRankFetch     time.Time
	LastMatchListScan time.Time
	LastBanCheck      time.Time

	IsBanned bool `gorm:"default:false"`
	BannedAt time.Time

	Ranks   []PlayerRank           `gorm:"foreignKey:PlayerID"`
	Results []SmurfDetectionResult `gorm:"foreignKey:PlayerID"`
}

func (p *Player) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Match is a completed game (spec.md §3 Match), immutable once stored.
type Match struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CreatedAt time.Time
	UpdatedAt time.Time

	MatchID    string `gorm:"uniqueIndex;not null"`
	PlatformID string `gorm:"not null"`
	QueueID    int    `gorm:"not null;index"`
	MapID      int

	GameStartTimestamp int64
	GameEndTimestamp   int64
	GameDuration       int
	GameVersion        string

	WinningTeam int

	Participants []MatchParticipant `gorm:"foreignKey:MatchID"`
}

func (m *Match) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MatchParticipant is one player's row within a stored Match (spec.md §3).
type MatchParticipant struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	MatchID uuid.UUID `gorm:"not null;index"`
	Match   Match     `json:"-" gorm:"foreignKey:MatchID"`

	PUUID        string `gorm:"not null;index"`
	SummonerID   string
	SummonerName string

	ParticipantID int
	TeamID        int
	TeamPosition  string

	ChampionID   int
	ChampionName string
	ChampLevel   int
	Win          bool

	Kills   int
	Deaths  int
	Assists int

	TotalMinionsKilled   int
	NeutralMinionsKilled int
	GoldEarned           int

	TotalDamageDealtToChampions int
	VisionScore                 int
	TimePlayed                  int

	DoubleKills int
	TripleKills int
	QuadraKills int
	PentaKills  int
}

func (mp *MatchParticipant) BeforeCreate(tx *gorm.DB) error {
	if mp.ID == uuid.Nil {
		mp.ID = uuid.New()
	}
	return nil
}

// PlayerRank is a single queue's ranked snapshot, appended (not overwritten)
// on each refresh so rank progression is derivable from history.
type PlayerRank struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	PlayerID uuid.UUID `gorm:"not null;index"`
	Player   Player    `json:"-" gorm:"foreignKey:PlayerID"`

	ObservedAt time.Time `gorm:"not null;index"`

	QueueType    string
	Tier         string
	Rank         string
	LeaguePoints int
	Wins         int
	Losses       int
}

func (r *PlayerRank) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SmurfDetectionResult is one C8 scoring run's output (spec.md §4.8).
type SmurfDetectionResult struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	PlayerID uuid.UUID `gorm:"not null;index"`
	Player   Player    `json:"-" gorm:"foreignKey:PlayerID"`

	ComputedAt time.Time `gorm:"not null;index"`

	OverallScore float64
	Confidence   string // high | medium | low | unlikely

	FactorScores  pq.StringArray `gorm:"type:text[]"` // "name:score" pairs, ordered
	SampleSize    int            // games analyzed
	QueueAnalyzed int            // queue ID of the most recent analyzed match, 0 if none

	ScoringVersion string
}

func (r *SmurfDetectionResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// JobConfiguration is one scheduled job's persisted control state
// (spec.md §3 Job Configuration, §4.6 job-control contract).
type JobConfiguration struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	JobType           string `gorm:"uniqueIndex;not null"`
	CronExpression    string `gorm:"not null"`
	Enabled           bool   `gorm:"default:true"`
	TimeoutSeconds    int
	PerJobConcurrency int

	// ConfigJSON carries the job-type-specific knobs (max_tracked_players_per_run,
	// ban_check_days, and so on) that vary per job type, so this one table
	// serves all four without a column per knob.
	ConfigJSON []byte `gorm:"type:jsonb"`

	UpdatedAt time.Time
}

func (c *JobConfiguration) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// JobExecution is one run of the Job Framework's state machine
// (spec.md §4.5): pending -> running -> terminal.
type JobExecution struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	JobType   string    `gorm:"not null;index"`
	Status    string    `gorm:"not null;index"` // pending, running, success, failed, rate_limited, skipped
	StartedAt time.Time
	EndedAt   time.Time

	Triggered    string // "scheduler" or "manual"
	ErrorMessage string
	LogBlob      []byte `gorm:"type:jsonb"`

	ItemsProcessed int
	ItemsFailed    int
}

func (e *JobExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// DataTracking records last_fetched/last_updated and fetch/hit counters per
// (kind, key) so the Data Manager's freshness policy (spec.md §4.3, §3 Data
// Tracking) can decide when to refetch without re-deriving it from the
// domain rows themselves.
type DataTracking struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	Kind string `gorm:"not null;uniqueIndex:idx_tracking_kind_key"` // account, summoner, rank, match_id_list
	Key  string `gorm:"not null;uniqueIndex:idx_tracking_kind_key"` // puuid or composite key

	FetchedAt time.Time `gorm:"not null"` // last_fetched
	UpdatedAt time.Time `gorm:"not null"` // last_updated: bumped on every fetch or hit

	FetchCount int // incremented on every live fetch from the Riot API
	HitCount   int // incremented on every freshness check served from cache
}

func (d *DataTracking) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// RateLimitLog is the append-only log backing get_rate_limit_log (spec.md
// §3 Rate-Limit Log, §8 invariant 6).
type RateLimitLog struct {
	ID uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`

	ScopeKind string `gorm:"not null"`
	Method    string
	Endpoint  string

	ConfiguredLimit int
	ObservedUsage   int
	RetryAfterMS    int64

	ObservedAt time.Time `gorm:"not null;index"`
}

func (l *RateLimitLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
