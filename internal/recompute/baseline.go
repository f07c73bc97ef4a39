package recompute

import (
	"time"

	"launchpad-indexer/internal/domain"
)

// PricePoint is a traded price at a point in time.
type PricePoint struct {
	At    time.Time
	Price float64
}

// Baseline returns the price of the point whose timestamp is closest to
// target. Points with no price are ignored; ties go to the earlier point.
func Baseline(points []PricePoint, target time.Time) (float64, bool) {
	var (
		best     PricePoint
		bestDist time.Duration
		found    bool
	)
	for _, p := range points {
		if p.Price <= 0 {
			continue
		}
		d := p.At.Sub(target)
		if d < 0 {
			d = -d
		}
		if !found || d < bestDist || (d == bestDist && p.At.Before(best.At)) {
			best, bestDist, found = p, d, true
		}
	}
	return best.Price, found
}

// PriceChange returns (current - base) / base * 100, 0 without a base.
func PriceChange(current, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return domain.Finite((current - base) / base * 100)
}

// Volume sums the ETH side of trades at or after since.
func Volume(trades []*domain.Transaction, since time.Time) float64 {
	var v float64
	for _, tx := range trades {
		if tx.IsTrade() && !tx.Timestamp.Before(since) {
			v += tx.EthAmount()
		}
	}
	return domain.NonNegative(v)
}

func pointsFromTransactions(trades []*domain.Transaction) []PricePoint {
	out := make([]PricePoint, 0, len(trades))
	for _, tx := range trades {
		if tx.IsTrade() {
			out = append(out, PricePoint{At: tx.Timestamp, Price: tx.Price})
		}
	}
	return out
}

func pointsFromHistory(points []domain.TradePoint) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		out = append(out, PricePoint{At: p.Timestamp, Price: p.Price})
	}
	return out
}
