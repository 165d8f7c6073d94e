package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AppLimitMargin:         0.9,
		MethodLimitMargin:      0.9,
		AppRequestsPer2Min:     100,
		AppRequestsPerSec:      20,
		MethodRequestsPer10Sec: 20,
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) RecordRateLimitEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestAcquire_AdmitsWithinBurst(t *testing.T) {
	lim := New(testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, lim.Acquire(ctx, "match-v5"))
	}
}

func TestAcquire_RespectsContextCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.AppRequestsPerSec = 0  // floors the per-second bucket to 16/s
	cfg.AppLimitMargin = 0.001 // the 2-minute bucket runs near zero with its burst floored to 8
	lim := New(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Drain the 2-minute bucket's burst of 8 so the next Acquire has to wait.
	for i := 0; i < 8; i++ {
		_ = lim.Acquire(context.Background(), "match-v5")
	}

	err := lim.Acquire(ctx, "match-v5")
	assert.Error(t, err)
}

func TestObserve429_ForcesBucketEmptyUntilRetryAfter(t *testing.T) {
	sink := &recordingSink{}
	lim := New(testConfig(), sink)
	ctx := context.Background()

	lim.Observe429(ctx, "match-v5", "/lol/match/v5/matches/NA1_1", 50*time.Millisecond)

	start := time.Now()
	require.NoError(t, lim.Acquire(ctx, "match-v5"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Equal(t, 1, sink.count())
}

func TestAcquire_FIFOPerMethodDoesNotBlockOtherMethods(t *testing.T) {
	lim := New(testConfig(), nil)
	ctx := context.Background()

	lim.Observe429(ctx, "match-v5", "/lol/match/v5/matches/NA1_1", 200*time.Millisecond)

	start := time.Now()
	require.NoError(t, lim.Acquire(ctx, "summoner-v4"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestObserveServerHeaders_UpdatesStats(t *testing.T) {
	lim := New(testConfig(), nil)

	lim.ObserveServerHeaders("20:1,100:120", "3:1,40:120", "20:10", "5:10")
	stats := lim.Stats()

	assert.Equal(t, "20:1,100:120", stats.LastAppLimit)
	assert.Equal(t, "3:1,40:120", stats.LastAppCount)
	assert.Equal(t, "20:10", stats.LastMethodLimit)
	assert.Equal(t, "5:10", stats.LastMethodCount)
	assert.Equal(t, 0, stats.BlockedScopes)
}

func TestStats_ReportsBlockedScopeCount(t *testing.T) {
	lim := New(testConfig(), nil)
	ctx := context.Background()

	lim.Observe429(ctx, "match-v5", "/lol/match/v5/matches/NA1_1", time.Minute)
	lim.Observe429(ctx, "league-v4", "/lol/league/v4/entries/by-summoner/x", time.Minute)

	assert.Equal(t, 2, lim.Stats().BlockedScopes)
}

func TestAcquire_AppPerSecBucketBlocksEvenWith2MinRoom(t *testing.T) {
	cfg := testConfig()
	cfg.AppRequestsPerSec = 0       // floors to a small fixed per-second burst
	cfg.AppRequestsPer2Min = 100000 // 2-min bucket left wide open
	cfg.AppLimitMargin = 1
	lim := New(cfg, nil)

	// Drain the per-second bucket's burst; the 2-min bucket never runs dry.
	for i := 0; i < 16; i++ {
		require.NoError(t, lim.Acquire(context.Background(), "match-v5"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctx, "match-v5")
	assert.Error(t, err)
}

func TestAcquire_App2MinBucketBlocksEvenWithPerSecRoom(t *testing.T) {
	cfg := testConfig()
	cfg.AppRequestsPerSec = 100000 // per-second bucket left wide open
	cfg.AppRequestsPer2Min = 0     // floors to a small fixed 2-min burst
	cfg.AppLimitMargin = 1
	lim := New(cfg, nil)

	// Drain the 2-min bucket's burst; the per-second bucket never runs dry.
	for i := 0; i < 8; i++ {
		require.NoError(t, lim.Acquire(context.Background(), "match-v5"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctx, "match-v5")
	assert.Error(t, err)
}

func TestScope_Key(t *testing.T) {
	assert.Equal(t, "app", Scope{Kind: "app"}.key())
	assert.Equal(t, "method:match-v5", Scope{Kind: "method", Method: "match-v5"}.key())
}
