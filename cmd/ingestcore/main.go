// Command ingestcore is the composition root for the ingestion-and-analysis
// core: it wires config, storage, the Riot client, the job framework and the
// scheduler together and runs until told to stop.
//
// Grounded on backend/cmd/grpc-server/main.go's flag-parse/config-load/wire/
// signal-wait/graceful-stop shape and backend/cmd/migrate/main.go's
// connect-then-AutoMigrate sequence.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/config"
	"github.com/herald-lol/smurfcore/internal/datamanager"
	"github.com/herald-lol/smurfcore/internal/jobs"
	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/ratelimit"
	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/scheduler"
	"github.com/herald-lol/smurfcore/internal/scoring"
	"github.com/herald-lol/smurfcore/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ingestcore:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	db, err := store.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := store.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := store.SeedDefaultJobConfigurations(db); err != nil {
		return fmt.Errorf("seed job configurations: %w", err)
	}
	repo := store.NewRepository(db)

	apiKey := os.Getenv(cfg.Riot.APIKeyEnvVar)
	if apiKey == "" {
		log.Warn("no Riot API key set at startup; calls will fail until one is provided",
			zap.String("env_var", cfg.Riot.APIKeyEnvVar))
	}
	settings := datamanager.NewInMemorySettings(apiKey)

	limiter := ratelimit.New(ratelimit.Config{
		AppLimitMargin:         cfg.RateLimit.AppLimitMargin,
		MethodLimitMargin:      cfg.RateLimit.MethodLimitMargin,
		AppRequestsPer2Min:     cfg.RateLimit.AppRequestsPer2Min,
		AppRequestsPerSec:      cfg.RateLimit.AppRequestsPerSec,
		MethodRequestsPer10Sec: cfg.RateLimit.MethodRequestsPer10Sec,
	}, repo)

	clientCfg := riotapi.DefaultClientConfig()
	clientCfg.BaseURLSuffix = cfg.Riot.BaseURLSuffix
	clientCfg.RequestTimeout = cfg.Riot.RequestTimeout
	clientCfg.MaxRetries = cfg.Riot.MaxRetries

	client := riotapi.New(clientCfg, settings, limiter, log)
	dm := datamanager.New(client, repo, log)

	engine, err := scoring.NewEngine(scoring.ConfigFromMap(cfg.Scoring.Weights, cfg.Scoring.AnalysisWindow, cfg.Scoring.AnalysisVersion))
	if err != nil {
		return fmt.Errorf("build scoring engine: %w", err)
	}

	sched := scheduler.New(repo, log, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registerJobs(ctx, repo, sched, dm, engine, cfg.Riot.Region, cfg.Scheduler.DefaultJobTimeout); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	sched.Start(ctx)
	log.Info("ingestcore started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	sched.Stop(cfg.Scheduler.ShutdownGracePeriod)
	return nil
}

// jobKnobs is the shape of every JobConfiguration.ConfigJSON blob this
// binary knows how to read; each job type only populates the fields it
// uses, the rest stay zero (spec.md line ~207's per-job knob list).
type jobKnobs struct {
	MaxTrackedPlayersPerRun int `json:"max_tracked_players_per_run"`
	MaxNewMatchesPerPlayer  int `json:"max_new_matches_per_player"`
	TargetMatchesPerPlayer  int `json:"target_matches_per_player"`
	MatchesPerPlayerPerRun  int `json:"matches_per_player_per_run"`
	MinimumGamesForAnalysis int `json:"minimum_games_for_analysis"`
	ReanalysisAgeHours      int `json:"reanalysis_age_hours"`
	BanCheckDays            int `json:"ban_check_days"`
}

func loadKnobs(ctx context.Context, repo *store.Repository, jobType string) (jobKnobs, int, error) {
	cfg, err := repo.JobConfigurationByType(ctx, jobType)
	if err != nil {
		return jobKnobs{}, 0, err
	}
	var knobs jobKnobs
	if len(cfg.ConfigJSON) > 0 {
		if err := json.Unmarshal(cfg.ConfigJSON, &knobs); err != nil {
			return jobKnobs{}, 0, fmt.Errorf("unmarshal config for %s: %w", jobType, err)
		}
	}
	concurrency := cfg.PerJobConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return knobs, concurrency, nil
}

// registerJobs builds the four C7 Runnables from their persisted
// configuration and registers each with the scheduler. A job whose
// configuration row is missing is simply skipped (spec.md §9 Open Question
// i) rather than registered with made-up defaults.
func registerJobs(ctx context.Context, repo *store.Repository, sched *scheduler.Scheduler, dm *datamanager.Manager, engine *scoring.Engine, region string, defaultTimeout time.Duration) error {
	type registration struct {
		jobType string
		build   func(knobs jobKnobs, concurrency int) jobs.Runnable
	}

	regs := []registration{
		{
			jobType: "tracked_player_updater",
			build: func(k jobKnobs, concurrency int) jobs.Runnable {
				return jobs.NewTrackedPlayerUpdater(repo, dm, concurrency, region, k.MaxTrackedPlayersPerRun, k.MaxNewMatchesPerPlayer)
			},
		},
		{
			jobType: "match_fetcher",
			build: func(k jobKnobs, concurrency int) jobs.Runnable {
				return jobs.NewMatchFetcher(repo, dm, concurrency, region, k.TargetMatchesPerPlayer, k.MatchesPerPlayerPerRun)
			},
		},
		{
			jobType: "player_analyzer",
			build: func(k jobKnobs, _ int) jobs.Runnable {
				return jobs.NewPlayerAnalyzer(repo, engine, k.MinimumGamesForAnalysis, k.ReanalysisAgeHours)
			},
		},
		{
			jobType: "ban_checker",
			build: func(k jobKnobs, _ int) jobs.Runnable {
				return jobs.NewBanChecker(repo, dm, region, k.BanCheckDays)
			},
		},
	}

	for _, r := range regs {
		knobs, concurrency, err := loadKnobs(ctx, repo, r.jobType)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}

		runnable := r.build(knobs, concurrency)

		timeout := defaultTimeout
		if cfg, err := repo.JobConfigurationByType(ctx, r.jobType); err == nil && cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}

		if err := sched.Register(ctx, runnable, timeout); err != nil {
			return fmt.Errorf("register %s: %w", r.jobType, err)
		}
	}

	return nil
}
