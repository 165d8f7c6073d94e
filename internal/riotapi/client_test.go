package riotapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/ratelimit"
)

type staticKeyProvider struct{ key string }

func (s staticKeyProvider) APIKey() (string, bool) {
	if s.key == "" {
		return "", false
	}
	return s.key, true
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.BaseURLSuffix = "" // unused: the tests call doGet with server.URL directly
	cfg.MaxRetries = 1
	cfg.RequestTimeout = 2 * time.Second

	lim := ratelimit.New(ratelimit.Config{
		AppLimitMargin:         0.9,
		MethodLimitMargin:      0.9,
		AppRequestsPer2Min:     100,
		AppRequestsPerSec:      50,
		MethodRequestsPer10Sec: 50,
	}, nil)

	return New(cfg, staticKeyProvider{key: "RGAPI-test"}, lim, logging.Nop())
}

func TestGetAccountByPUUID_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RGAPI-test", r.Header.Get("X-Riot-Token"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Account{PUUID: "abc", GameName: "Foo", TagLine: "NA1"})
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[Account](context.Background(), c, "account-v1", server.URL+"/riot/account/v1/accounts/by-puuid/abc")

	require.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "abc", res.Value.PUUID)
}

func TestDoGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[Account](context.Background(), c, "account-v1", server.URL+"/x")

	assert.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestDoGet_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[Account](context.Background(), c, "account-v1", server.URL+"/x")

	require.Equal(t, OutcomeRateLimited, res.Outcome)
	assert.Equal(t, 2*time.Second, res.RetryAfter)
}

func TestDoGet_FatalOnBadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad query"))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[Account](context.Background(), c, "account-v1", server.URL+"/x")

	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
}

func TestDoGet_TransientRetriesThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(Account{PUUID: "retried"})
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[Account](context.Background(), c, "account-v1", server.URL+"/x")

	require.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, "retried", res.Value.PUUID)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestDoGet_ForwardsQueryString(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode([]string{"NA1_1", "NA1_2"})
	}))
	defer server.Close()

	c := newTestClient(t, server)
	res := doGet[[]string](context.Background(), c, "match-v5", server.URL+"/ids?queue=420&start=0&count=20")

	require.Equal(t, OutcomeFound, res.Outcome)
	assert.Len(t, res.Value, 2)
	assert.Contains(t, gotQuery, "queue=420")
}

func TestActiveGameTranslation_NotFoundBecomesFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	inner := doGet[activeGame](context.Background(), c, "spectator-v4", server.URL+"/x")
	require.Equal(t, OutcomeNotFound, inner.Outcome)

	translated := Found(false)
	if inner.Outcome == OutcomeFound {
		translated = Found(true)
	}
	assert.False(t, translated.Value)
}
