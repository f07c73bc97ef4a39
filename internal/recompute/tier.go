// Package recompute keeps derived token metrics fresh. Tokens are
// partitioned into tiers by how recently they traded; each tier refreshes
// on its own cadence with its own batch cap.
package recompute

import "time"

// Tier classifies a token by recency of trading.
type Tier string

// Tiers, hottest first.
const (
	TierHot    Tier = "HOT"
	TierWarm   Tier = "WARM"
	TierActive Tier = "ACTIVE"
	TierCold   Tier = "COLD"
)

// Recency bounds of the tiers.
const (
	HotWindow    = 10 * time.Minute
	WarmWindow   = time.Hour
	ActiveWindow = 24 * time.Hour
)

// TierConfig is the schedule of one tier.
type TierConfig struct {
	Tier     Tier
	Cadence  time.Duration
	BatchCap int
}

// DefaultTiers returns the standard schedule.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Tier: TierHot, Cadence: 30 * time.Second, BatchCap: 100},
		{Tier: TierWarm, Cadence: 5 * time.Minute, BatchCap: 200},
		{Tier: TierActive, Cadence: 30 * time.Minute, BatchCap: 500},
		{Tier: TierCold, Cadence: 12 * time.Hour, BatchCap: 50},
	}
}

// Classify returns the tier of a token whose latest trade was at lastTrade.
// A zero lastTrade means never traded.
func Classify(lastTrade, now time.Time) Tier {
	if lastTrade.IsZero() {
		return TierCold
	}
	age := now.Sub(lastTrade)
	switch {
	case age <= HotWindow:
		return TierHot
	case age <= WarmWindow:
		return TierWarm
	case age <= ActiveWindow:
		return TierActive
	default:
		return TierCold
	}
}
