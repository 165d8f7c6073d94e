package riotapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/herald-lol/smurfcore/internal/logging"
	"github.com/herald-lol/smurfcore/internal/ratelimit"
)

// Client is the compliant Riot Games API client. It routes regional-family
// endpoints (account-v1, match-v5) by routing region and platform-family
// endpoints (summoner-v4, league-v4, spectator-v4) by platform code,
// authenticates every call with a freshly-fetched key, and classifies every
// response into a Result so callers never need to type-switch on error.
//
// Grounded on backend/internal/riot/client.go's one-method-per-resource
// layout; the Redis cache/rate-limit plumbing there is replaced with the
// internal/ratelimit.Limiter and the caller-side freshness policy in
// internal/datamanager, since caching here is a domain concern, not a
// transport concern.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	keys       KeyProvider
	limiter    *ratelimit.Limiter
	log        *logging.Logger
}

// New constructs a Client. limiter and keys must not be nil.
func New(cfg ClientConfig, keys KeyProvider, limiter *ratelimit.Limiter, log *logging.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		keys:       keys,
		limiter:    limiter,
		log:        log,
	}
}

func (c *Client) platformHost(platform string) string {
	return "https://" + strings.ToLower(platform) + c.cfg.BaseURLSuffix
}

func (c *Client) regionalHost(region string) string {
	return "https://" + region + c.cfg.BaseURLSuffix
}

// GetAccountByRiotID resolves a gameName#tagLine to its durable PUUID.
func (c *Client) GetAccountByRiotID(ctx context.Context, region, gameName, tagLine string) Result[Account] {
	endpoint := fmt.Sprintf("/riot/account/v1/accounts/by-riot-id/%s/%s",
		url.PathEscape(gameName), url.PathEscape(tagLine))
	return doGet[Account](ctx, c, "account-v1", c.regionalHost(region)+endpoint)
}

// GetAccountByPUUID is also used by the Ban Checker (§4.7d): a NotFound here
// for a PUUID that previously resolved is the ban signal.
func (c *Client) GetAccountByPUUID(ctx context.Context, region, puuid string) Result[Account] {
	endpoint := "/riot/account/v1/accounts/by-puuid/" + url.PathEscape(puuid)
	return doGet[Account](ctx, c, "account-v1", c.regionalHost(region)+endpoint)
}

// GetSummonerByPUUID fetches the platform summoner-v4 resource.
func (c *Client) GetSummonerByPUUID(ctx context.Context, platform, puuid string) Result[Summoner] {
	endpoint := "/lol/summoner/v4/summoners/by-puuid/" + url.PathEscape(puuid)
	return doGet[Summoner](ctx, c, "summoner-v4", c.platformHost(platform)+endpoint)
}

// MatchIDFilter narrows a match-ids-by-puuid call (spec.md §4.2 operations).
type MatchIDFilter struct {
	Queue     int       // 0 means unset
	StartTime time.Time // zero means unset
	EndTime   time.Time // zero means unset
	Start     int
	Count     int
}

// GetMatchIDsByPUUID lists recent match IDs, optionally filtered by queue and
// time window, with paging.
func (c *Client) GetMatchIDsByPUUID(ctx context.Context, region, puuid string, filter MatchIDFilter) Result[[]string] {
	q := url.Values{}
	if filter.Queue != 0 {
		q.Set("queue", strconv.Itoa(filter.Queue))
	}
	if !filter.StartTime.IsZero() {
		q.Set("startTime", strconv.FormatInt(filter.StartTime.Unix(), 10))
	}
	if !filter.EndTime.IsZero() {
		q.Set("endTime", strconv.FormatInt(filter.EndTime.Unix(), 10))
	}
	count := filter.Count
	if count <= 0 {
		count = 20
	}
	q.Set("start", strconv.Itoa(filter.Start))
	q.Set("count", strconv.Itoa(count))

	endpoint := fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids?%s", url.PathEscape(puuid), q.Encode())
	return doGet[[]string](ctx, c, "match-v5", c.regionalHost(region)+endpoint)
}

// GetMatchByID fetches a completed match. The spec's freshness policy treats
// a match as immutable once Found, so callers should never need to re-fetch.
func (c *Client) GetMatchByID(ctx context.Context, region, matchID string) Result[Match] {
	endpoint := "/lol/match/v5/matches/" + url.PathEscape(matchID)
	return doGet[Match](ctx, c, "match-v5", c.regionalHost(region)+endpoint)
}

// GetLeagueEntriesBySummonerID fetches all ranked queue entries for a summoner.
func (c *Client) GetLeagueEntriesBySummonerID(ctx context.Context, platform, summonerID string) Result[[]LeagueEntry] {
	endpoint := "/lol/league/v4/entries/by-summoner/" + url.PathEscape(summonerID)
	return doGet[[]LeagueEntry](ctx, c, "league-v4", c.platformHost(platform)+endpoint)
}

// activeGame is the spectator-v4 response shape, kept unexported: the spec
// only needs to know whether a game is in progress, not its detail.
type activeGame struct {
	GameID int64 `json:"gameId"`
}

// GetActiveGameBySummonerID reports whether a summoner is currently in game.
// The freshness policy never caches this call (spec.md §4.3 table).
func (c *Client) GetActiveGameBySummonerID(ctx context.Context, platform, summonerID string) Result[bool] {
	endpoint := "/lol/spectator/v4/active-games/by-summoner/" + url.PathEscape(summonerID)
	res := doGet[activeGame](ctx, c, "spectator-v4", c.platformHost(platform)+endpoint)
	switch res.Outcome {
	case OutcomeFound:
		return Found(true)
	case OutcomeNotFound:
		return Found(false)
	default:
		return Result[bool]{Outcome: res.Outcome, RetryAfter: res.RetryAfter, HTTPStatus: res.HTTPStatus, Message: res.Message}
	}
}

// doGet performs one logical operation: admission through the rate limiter,
// an HTTP GET retried on transient failure via exponential backoff, response
// classification into a Result[T], and decode into T on success.
func doGet[T any](ctx context.Context, c *Client, method, rawURL string) Result[T] {
	if err := c.limiter.Acquire(ctx, method); err != nil {
		return Result[T]{Outcome: OutcomeTransient, Message: err.Error()}
	}

	var decoded T
	var classified Result[T]

	operation := func() error {
		req, err := c.newRequest(ctx, rawURL)
		if err != nil {
			classified = Fatal[T](0, err.Error())
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			classified = Transient[T](0)
			return err // retryable: network error
		}
		defer resp.Body.Close()

		c.limiter.ObserveServerHeaders(
			resp.Header.Get("X-App-Rate-Limit"),
			resp.Header.Get("X-App-Rate-Limit-Count"),
			resp.Header.Get("X-Method-Rate-Limit"),
			resp.Header.Get("X-Method-Rate-Limit-Count"),
		)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			classified = Transient[T](resp.StatusCode)
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, &decoded); err != nil {
				classified = Fatal[T](resp.StatusCode, "decode: "+err.Error())
				return backoff.Permanent(err)
			}
			classified = Found(decoded)
			return nil

		case resp.StatusCode == http.StatusNotFound:
			classified = NotFound[T]()
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			c.limiter.Observe429(ctx, method, rawURL, retryAfter)
			classified = RateLimited[T](retryAfter)
			return nil

		case resp.StatusCode >= 500:
			classified = Transient[T](resp.StatusCode)
			return fmt.Errorf("riotapi: server error %d", resp.StatusCode)

		default:
			classified = Fatal[T](resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(fmt.Errorf("riotapi: status %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if classified.Outcome == OutcomeFound {
			classified = Transient[T](0)
		}
		if c.log != nil {
			c.log.Warn("riotapi request exhausted retries",
				zap.String("method", method), zap.Error(err))
		}
	}

	return classified
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	key, ok := c.keys.APIKey()
	if !ok {
		return nil, fmt.Errorf("riotapi: no API key configured")
	}
	req.Header.Set("X-Riot-Token", key)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
