package riotapi

import "time"

// Family distinguishes the two host families the client routes to
// (spec.md §4.2 Routing).
type Family int

const (
	FamilyRegional Family = iota // account-v1, match-v5
	FamilyPlatform               // summoner-v4, league-v4, spectator-v4
)

// platformToRegion is the fixed platform->region map enforced at call time.
var platformToRegion = map[string]string{
	"NA1":  "americas",
	"BR1":  "americas",
	"LA1":  "americas",
	"LA2":  "americas",
	"OC1":  "americas",
	"EUW1": "europe",
	"EUN1": "europe",
	"TR1":  "europe",
	"RU":   "europe",
	"KR":   "asia",
	"JP1":  "asia",
}

// RegionFor resolves a platform code (e.g. "NA1") to its routing region
// (e.g. "americas") for regional-family endpoints.
func RegionFor(platform string) (string, bool) {
	region, ok := platformToRegion[platform]
	return region, ok
}

// ClientConfig configures an outbound Client. APIKey is intentionally absent
// here: the key is fetched from the settings provider on every call because
// it may rotate daily (spec.md §4.2 Routing / §6 Settings provider).
type ClientConfig struct {
	BaseURLSuffix  string // e.g. ".api.riotgames.com"
	RequestTimeout time.Duration
	MaxRetries     int
	UserAgent      string
}

// DefaultClientConfig returns the defaults used when no override is supplied.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURLSuffix:  ".api.riotgames.com",
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		UserAgent:      "smurfcore/1.0 (ingestion core)",
	}
}

// KeyProvider exposes the single getter the settings collaborator surface
// contracts for (spec.md §6): get_api_key() -> string | missing.
type KeyProvider interface {
	APIKey() (string, bool)
}
