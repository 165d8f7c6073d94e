package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/herald-lol/smurfcore/internal/config"
)

// Connect opens the configured database driver and configures the
// connection pool. Grounded on backend/cmd/migrate/main.go's
// connectDatabase, generalized to read driver/DSN from our config package.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DSN()), gcfg)
	default:
		return nil, fmt.Errorf("store: unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// AutoMigrate creates or updates every table the core owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Player{},
		&Match{},
		&MatchParticipant{},
		&PlayerRank{},
		&SmurfDetectionResult{},
		&JobConfiguration{},
		&JobExecution{},
		&DataTracking{},
		&RateLimitLog{},
	)
}

// defaultJobConfigurations is the factory-default job control state, seeded
// on first boot so the Scheduler (C6) always has something to load (spec.md
// §9 Open Question i: a job with no configuration row is never registered,
// so start-up seeds rows for every known job type).
func defaultJobConfigurations() []JobConfiguration {
	mustJSON := func(v any) []byte {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err) // only ever called with the literal maps below
		}
		return b
	}

	return []JobConfiguration{
		{
			JobType: "tracked_player_updater", CronExpression: "*/15 * * * *", Enabled: true,
			TimeoutSeconds: 600, PerJobConcurrency: 4,
			ConfigJSON: mustJSON(map[string]int{
				"max_tracked_players_per_run": 200,
				"max_new_matches_per_player":  10,
			}),
		},
		{
			JobType: "match_fetcher", CronExpression: "*/5 * * * *", Enabled: true,
			TimeoutSeconds: 600, PerJobConcurrency: 4,
			ConfigJSON: mustJSON(map[string]int{
				"target_matches_per_player":  20,
				"matches_per_player_per_run": 10,
			}),
		},
		{
			JobType: "player_analyzer", CronExpression: "0 * * * *", Enabled: true,
			TimeoutSeconds: 900, PerJobConcurrency: 4,
			ConfigJSON: mustJSON(map[string]int{
				"minimum_games_for_analysis": 10,
				"reanalysis_age_hours":       24,
			}),
		},
		{
			JobType: "ban_checker", CronExpression: "0 3 * * *", Enabled: true,
			TimeoutSeconds: 1800, PerJobConcurrency: 4,
			ConfigJSON: mustJSON(map[string]int{
				"ban_check_days": 7,
			}),
		},
	}
}

// SeedDefaultJobConfigurations inserts a row for every known job type that
// doesn't already have one. Safe to call on every boot.
func SeedDefaultJobConfigurations(db *gorm.DB) error {
	for _, cfg := range defaultJobConfigurations() {
		var existing JobConfiguration
		err := db.Where("job_type = ?", cfg.JobType).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("store: seed job configuration %s: %w", cfg.JobType, err)
		}
		if err := db.Create(&cfg).Error; err != nil {
			return fmt.Errorf("store: seed job configuration %s: %w", cfg.JobType, err)
		}
	}
	return nil
}
