// Package ratelimit implements the token-bucket admission control described
// in spec.md §4.1 (C1). Three buckets gate every call: two independent
// application-wide buckets (a per-second one and a rolling 2-minute one,
// both shared by all endpoints) and a method bucket keyed by endpoint
// family. All three must have a token for a request to be admitted.
//
// Grounded on backend/internal/services/riot_service.go's
// `rateLimiters map[string]*rate.Limiter` guarded by a mutex — this package
// generalizes that single per-region limiter map into the app+method pair
// the spec requires, using the same golang.org/x/time/rate primitive.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scope identifies what a rate-limit event or bucket applies to: the shared
// application scope, or a specific method family (e.g. "match-v5").
type Scope struct {
	Kind   string // "app" or "method"
	Method string // endpoint family, empty for "app"
}

func (s Scope) key() string {
	if s.Kind == "app" {
		return "app"
	}
	return "method:" + s.Method
}

// Event is a single throttling event appended to the rate-limit log
// (spec.md §3 Rate-Limit Log, §8 invariant 6).
type Event struct {
	Scope           Scope
	Endpoint        string
	ConfiguredLimit int
	ObservedUsage   int
	RetryAfter      time.Duration
	ObservedAt      time.Time
}

// EventSink receives rate-limit events for persistence. Implemented by
// internal/store.
type EventSink interface {
	RecordRateLimitEvent(ctx context.Context, ev Event) error
}

// Config carries the safety margins and nominal server limits (spec.md §4.1,
// §6 Configuration).
type Config struct {
	AppLimitMargin         float64
	MethodLimitMargin      float64
	AppRequestsPer2Min     int
	AppRequestsPerSec      int
	MethodRequestsPer10Sec int
}

// Limiter admits requests against an application bucket and a set of
// per-method-family buckets, enforcing internal targets below the server's
// published limits by the configured safety margin.
type Limiter struct {
	cfg  Config
	sink EventSink

	mu             sync.Mutex
	appLimiter     *rate.Limiter // per-second app-wide bucket
	appLimiter2Min *rate.Limiter // rolling 2-minute app-wide bucket
	methodLimiter  map[string]*rate.Limiter
	blockedUntil   map[string]time.Time // scope key -> forced-empty deadline
	fifo           map[string]chan struct{}
	lastHeaders    headerSnapshot
}

// New constructs a Limiter. sink may be nil, in which case rate-limit events
// are not persisted (used in tests that don't need the log).
//
// Two independent app-scope buckets are built from AppRequestsPerSec and
// AppRequestsPer2Min (spec.md §4.1: both must admit a request). Sizing one
// bucket's burst off the other's nominal limit would let the per-second
// bucket alone sustain far more than the 2-minute ceiling once its burst
// drained, so the 2-minute window gets its own independent *rate.Limiter
// rather than folding into the per-second one's burst.
func New(cfg Config, sink EventSink) *Limiter {
	appRate := rate.Limit(float64(cfg.AppRequestsPerSec) * cfg.AppLimitMargin)
	if appRate <= 0 {
		appRate = rate.Limit(16)
	}
	burst := int(float64(cfg.AppRequestsPerSec) * cfg.AppLimitMargin)
	if burst <= 0 {
		burst = 16
	}

	rate2Min := rate.Limit(float64(cfg.AppRequestsPer2Min) / 120.0 * cfg.AppLimitMargin)
	if rate2Min <= 0 {
		rate2Min = rate.Limit(80.0 / 120.0)
	}
	// Burst is kept small (a tenth of the window's nominal total) rather than
	// the full AppRequestsPer2Min, or a cold start could admit close to
	// double the 2-minute ceiling before the rolling rate caught up.
	burst2Min := int(float64(cfg.AppRequestsPer2Min) * cfg.AppLimitMargin / 10)
	if burst2Min <= 0 {
		burst2Min = 8
	}

	return &Limiter{
		cfg:            cfg,
		sink:           sink,
		appLimiter:     rate.NewLimiter(appRate, burst),
		appLimiter2Min: rate.NewLimiter(rate2Min, burst2Min),
		methodLimiter:  make(map[string]*rate.Limiter),
		blockedUntil:   make(map[string]time.Time),
		fifo:           make(map[string]chan struct{}),
	}
}

func (l *Limiter) methodLimiterFor(method string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.methodLimiter[method]; ok {
		return lim
	}

	perSecond := rate.Limit(float64(l.cfg.MethodRequestsPer10Sec)/10.0) * rate.Limit(l.cfg.MethodLimitMargin)
	burst := int(float64(l.cfg.MethodRequestsPer10Sec) * l.cfg.MethodLimitMargin)
	if burst <= 0 {
		burst = 10
	}
	lim := rate.NewLimiter(perSecond, burst)
	l.methodLimiter[method] = lim
	return lim
}

// Acquire blocks until every applicable bucket for method holds a token, or
// ctx is cancelled. Admission is always decided — Acquire never returns a
// non-context error (spec.md §4.1 Failure modes: "Never throws").
//
// Within a single process, callers contending on the same method are served
// FIFO so one noisy endpoint cannot starve another (spec.md §4.1 Ordering
// guarantees): each caller takes a per-method ticket channel before waiting
// on the token buckets, and releases it after acquiring (or giving up).
func (l *Limiter) Acquire(ctx context.Context, method string) error {
	ticket := l.ticketFor(method)
	select {
	case ticket <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ticket }()

	if until, blocked := l.forcedBlockUntil(method); blocked {
		wait := time.Until(until)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if err := l.appLimiter.Wait(ctx); err != nil {
		return err
	}
	if err := l.appLimiter2Min.Wait(ctx); err != nil {
		return err
	}
	return l.methodLimiterFor(method).Wait(ctx)
}

func (l *Limiter) ticketFor(method string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.fifo[method]
	if !ok {
		t = make(chan struct{}, 1)
		l.fifo[method] = t
	}
	return t
}

func (l *Limiter) forcedBlockUntil(method string) (time.Time, bool) {
	scope := Scope{Kind: "method", Method: method}
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.blockedUntil[scope.key()]
	if !ok {
		return time.Time{}, false
	}
	return until, time.Now().Before(until)
}

// Observe429 forces all buckets for the affected scope empty until
// retryAfter elapses and appends a rate-limit log entry (spec.md §4.1
// Admission algorithm, last sentence).
func (l *Limiter) Observe429(ctx context.Context, method, endpoint string, retryAfter time.Duration) {
	scope := Scope{Kind: "method", Method: method}
	until := time.Now().Add(retryAfter)

	l.mu.Lock()
	l.blockedUntil[scope.key()] = until
	l.mu.Unlock()

	if l.sink == nil {
		return
	}
	_ = l.sink.RecordRateLimitEvent(ctx, Event{
		Scope:           scope,
		Endpoint:        endpoint,
		ConfiguredLimit: l.cfg.MethodRequestsPer10Sec,
		RetryAfter:      retryAfter,
		ObservedAt:      time.Now(),
	})
}

// ObserveServerHeaders records the server's published limit/count headers
// for observability; it does not itself throttle (the safety margin on the
// locally configured limit is what keeps us under the server's ceiling).
func (l *Limiter) ObserveServerHeaders(appLimit, appCount, methodLimit, methodCount string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastHeaders = headerSnapshot{
		AppLimit:    appLimit,
		AppCount:    appCount,
		MethodLimit: methodLimit,
		MethodCount: methodCount,
		ObservedAt:  time.Now(),
	}
}

// headerSnapshot is the most recently observed set of server rate-limit
// headers, kept for Stats() / operator observability.
type headerSnapshot struct {
	AppLimit    string
	AppCount    string
	MethodLimit string
	MethodCount string
	ObservedAt  time.Time
}

// Stats summarizes limiter state for the observability contract (spec.md
// §6 get_rate_limit_log): last server-published headers and how many
// scopes are currently forced empty.
type Stats struct {
	LastAppLimit    string
	LastAppCount    string
	LastMethodLimit string
	LastMethodCount string
	BlockedScopes   int
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	blocked := 0
	now := time.Now()
	for _, until := range l.blockedUntil {
		if now.Before(until) {
			blocked++
		}
	}

	return Stats{
		LastAppLimit:    l.lastHeaders.AppLimit,
		LastAppCount:    l.lastHeaders.AppCount,
		LastMethodLimit: l.lastHeaders.MethodLimit,
		LastMethodCount: l.lastHeaders.MethodCount,
		BlockedScopes:   blocked,
	}
}
