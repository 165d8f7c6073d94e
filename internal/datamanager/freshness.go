package datamanager

// Freshness tags how an ensure_* operation's returned value relates to the
// freshness window in spec.md §4.3 step 4 / scenario S5: served straight
// from cache or a live fetch, falling back to a stale cached row because the
// live call came back RateLimited or Transient, or not available at all.
type Freshness string

const (
	FreshnessFresh              Freshness = "fresh"
	FreshnessStaleServed        Freshness = "stale_served"
	FreshnessMissingRateLimited Freshness = "missing_rate_limited"
)
