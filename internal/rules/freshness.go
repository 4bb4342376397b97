package rules

import (
	"fmt"
	"time"

	"github.com/meridianfi/meridian/internal/finctx"
)

// FreshnessResult reports how stale the snapshot's synced data is
// relative to a threshold. A missing last-sync timestamp resolves to
// not-fresh with a warning rather than an error.
type FreshnessResult struct {
	IsFresh  bool       `json:"is_fresh"`
	AgeHours *float64   `json:"age_hours"`
	LastSync *time.Time `json:"last_sync"`
	Warning  string     `json:"warning,omitempty"`
}

// EvaluateFreshness decides whether the snapshot's account data is
// fresh enough to act on. maxAge is the staleness threshold.
func EvaluateFreshness(snap *finctx.Snapshot, maxAge time.Duration, now time.Time) FreshnessResult {
	if snap == nil || snap.DataFreshness.LastSync == nil {
		return FreshnessResult{
			IsFresh: false,
			Warning: "account data has never been synced; figures may not reflect reality",
		}
	}

	last := *snap.DataFreshness.LastSync
	age := now.Sub(last)
	ageHours := age.Hours()
	res := FreshnessResult{
		AgeHours: &ageHours,
		LastSync: &last,
	}
	if age > maxAge {
		res.Warning = fmt.Sprintf("account data is %.1f hours old (threshold %.1f); consider re-syncing before acting",
			ageHours, maxAge.Hours())
		return res
	}
	res.IsFresh = true
	return res
}
