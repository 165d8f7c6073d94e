package datamanager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/ratelimit"
	"github.com/herald-lol/smurfcore/internal/riotapi"
	"github.com/herald-lol/smurfcore/internal/store"
)

type fakeKeys struct{}

func (fakeKeys) APIKey() (string, bool) { return "RGAPI-test", true }

func TestEnsureMatch_SkipsFetchWhenAlreadyStored(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	repo := store.NewRepository(db)

	require.NoError(t, repo.InsertMatchWithParticipants(context.Background(), &store.Match{MatchID: "NA1_1"}, nil))

	lim := ratelimit.New(ratelimit.Config{AppLimitMargin: 0.9, MethodLimitMargin: 0.9, AppRequestsPer2Min: 100, AppRequestsPerSec: 50, MethodRequestsPer10Sec: 50}, repo)
	cfg := riotapi.DefaultClientConfig()
	client := riotapi.New(cfg, fakeKeys{}, lim, logging.Nop())
	mgr := New(client, repo, logging.Nop())

	outcome := mgr.EnsureMatch(context.Background(), "americas", "NA1_1")
	assert.Equal(t, riotapi.OutcomeFound, outcome)
}

func TestSingleflightGroup_ConcurrentCallersAllReceiveValue(t *testing.T) {
	g := newGroup()
	calls := 0
	done := make(chan struct{})

	results := make(chan any, 10)
	for i := 0; i < 10; i++ {
		go func() {
			v, err := g.Do("key", func() (any, error) {
				calls++
				<-done
				return "value", nil
			})
			require.NoError(t, err)
			results <- v
		}()
	}

	close(done)
	for i := 0; i < 10; i++ {
		assert.Equal(t, "value", <-results)
	}
}

func TestConvertMatch_DerivesWinningTeamFromTeams(t *testing.T) {
	wire := riotapi.Match{
		Metadata: riotapi.MatchMetadata{MatchID: "NA1_2"},
		Info: riotapi.MatchInfo{
			PlatformID: "NA1",
			Teams:      []riotapi.Team{{TeamID: 100, Win: false}, {TeamID: 200, Win: true}},
			Participants: []riotapi.Participant{
				{PUUID: "p1", TeamID: 100},
				{PUUID: "p2", TeamID: 200},
			},
		},
	}

	match, participants := convertMatch(wire)
	assert.Equal(t, 200, match.WinningTeam)
	require.Len(t, participants, 2)
}

func TestInMemorySettings_RotatesKey(t *testing.T) {
	s := NewInMemorySettings("")
	_, ok := s.APIKey()
	assert.False(t, ok)

	s.SetAPIKey("RGAPI-new")
	key, ok := s.APIKey()
	require.True(t, ok)
	assert.Equal(t, "RGAPI-new", key)
}

func TestJSONRoundtrip_LeagueEntrySmoke(t *testing.T) {
	entry := riotapi.LeagueEntry{QueueType: "RANKED_SOLO_5x5", Tier: "GOLD", Rank: "II"}
	blob, err := json.Marshal(entry)
	require.NoError(t, err)
	var out riotapi.LeagueEntry
	require.NoError(t, json.Unmarshal(blob, &out))
	assert.Equal(t, entry, out)
}
