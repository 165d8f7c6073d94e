package jobs

import "github.com/herald-lol/smurfcore/internal/riotapi"

// classifyOutcome maps a riotapi.Outcome encountered mid-run to the
// execution-level status it should contribute towards, per spec.md §4.5:
// a rate-limited response anywhere in a run marks the whole run
// rate_limited rather than failed, since it's an expected, retriable
// condition rather than a defect.
func classifyOutcome(o riotapi.Outcome) string {
	if o == riotapi.OutcomeRateLimited {
		return StatusRateLimited
	}
	return StatusFailed
}

// worseStatus returns whichever of a, b represents a worse outcome, using
// the ordering success < rate_limited < failed. Jobs that process many
// items per run use this to fold per-item outcomes into one execution
// status without losing a failure to a later success.
func worseStatus(a, b string) string {
	rank := map[string]int{StatusSuccess: 0, StatusRateLimited: 1, StatusFailed: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
