package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/scoring"
	"github.com/herald-lol/smurfcore/internal/store"
)

func TestPlayerAnalyzer_AnalyzesUntrackedPlayerWithEnoughMatches(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	match := &store.Match{MatchID: "NA1_100", PlatformID: "NA1", QueueID: 420}
	participants := []store.MatchParticipant{{PUUID: "discovered-analyzable", ParticipantID: 1, Win: true}}
	require.NoError(t, repo.InsertMatchWithParticipants(ctx, match, participants))

	p, err := repo.PlayerByPUUID(ctx, "discovered-analyzable")
	require.NoError(t, err)
	require.False(t, p.IsTracked) // never explicitly tracked, only discovered via match insert

	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)
	job := NewPlayerAnalyzer(repo, engine, 1, 24)

	outcome := job.Run(ctx, logging.Nop())

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 1, outcome.ItemsProcessed)

	result, err := repo.LatestResultForPlayer(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 420, result.QueueAnalyzed)
}

func TestPlayerAnalyzer_SkipsPlayersBelowMatchCount(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	match := &store.Match{MatchID: "NA1_101", PlatformID: "NA1", QueueID: 420}
	participants := []store.MatchParticipant{{PUUID: "too-few-matches", ParticipantID: 1}}
	require.NoError(t, repo.InsertMatchWithParticipants(ctx, match, participants))

	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)
	job := NewPlayerAnalyzer(repo, engine, 5, 24)

	outcome := job.Run(ctx, logging.Nop())

	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, 0, outcome.ItemsProcessed)
}
