package recompute

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ago  time.Duration
		want Tier
	}{
		{"5 minutes", 5 * time.Minute, TierHot},
		{"15 minutes", 15 * time.Minute, TierWarm},
		{"2 hours", 2 * time.Hour, TierActive},
		{"25 hours", 25 * time.Hour, TierCold},
		{"exactly 10 minutes", 10 * time.Minute, TierHot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(now.Add(-tt.ago), now); got != tt.want {
				t.Errorf("Classify(-%s) = %s, want %s", tt.ago, got, tt.want)
			}
		})
	}

	if got := Classify(time.Time{}, now); got != TierCold {
		t.Errorf("never traded = %s, want COLD", got)
	}
}

func TestDefaultTiers(t *testing.T) {
	want := map[Tier]TierConfig{
		TierHot:    {TierHot, 30 * time.Second, 100},
		TierWarm:   {TierWarm, 5 * time.Minute, 200},
		TierActive: {TierActive, 30 * time.Minute, 500},
		TierCold:   {TierCold, 12 * time.Hour, 50},
	}
	tiers := DefaultTiers()
	if len(tiers) != len(want) {
		t.Fatalf("got %d tiers, want %d", len(tiers), len(want))
	}
	for _, cfg := range tiers {
		if cfg != want[cfg.Tier] {
			t.Errorf("tier %s = %+v, want %+v", cfg.Tier, cfg, want[cfg.Tier])
		}
	}
}
