package rules

import (
	"testing"
	"time"

	"github.com/meridianfi/meridian/internal/finctx"
)

func TestEvaluateFreshnessNeverSynced(t *testing.T) {
	snap := &finctx.Snapshot{UserID: "u1"}
	res := EvaluateFreshness(snap, 24*time.Hour, time.Now())

	if res.IsFresh {
		t.Error("expected not fresh when last_sync is absent")
	}
	if res.AgeHours != nil {
		t.Errorf("got age_hours %v, want nil", *res.AgeHours)
	}
	if res.Warning == "" {
		t.Error("expected a warning for never-synced data")
	}
}

func TestEvaluateFreshnessWithinThreshold(t *testing.T) {
	now := time.Now()
	last := now.Add(-2 * time.Hour)
	snap := &finctx.Snapshot{
		DataFreshness: finctx.DataFreshness{LastSync: &last},
	}
	res := EvaluateFreshness(snap, 24*time.Hour, now)

	if !res.IsFresh {
		t.Error("expected fresh within threshold")
	}
	if res.AgeHours == nil || *res.AgeHours < 1.9 || *res.AgeHours > 2.1 {
		t.Errorf("got age_hours %v, want ~2", res.AgeHours)
	}
	if res.Warning != "" {
		t.Errorf("got warning %q, want none", res.Warning)
	}
}

func TestEvaluateFreshnessStale(t *testing.T) {
	now := time.Now()
	last := now.Add(-48 * time.Hour)
	snap := &finctx.Snapshot{
		DataFreshness: finctx.DataFreshness{LastSync: &last},
	}
	res := EvaluateFreshness(snap, 24*time.Hour, now)

	if res.IsFresh {
		t.Error("expected stale beyond threshold")
	}
	if res.AgeHours == nil {
		t.Fatal("expected age_hours to be set")
	}
	if res.Warning == "" {
		t.Error("expected a staleness warning")
	}
}

func TestEvaluateFreshnessNilSnapshot(t *testing.T) {
	res := EvaluateFreshness(nil, time.Hour, time.Now())
	if res.IsFresh {
		t.Error("expected not fresh for nil snapshot")
	}
}
