// Package calc contains the pure numeric formulas behind the risk snapshot:
// basis, TWAP, volume dominance, order-book imbalance and the composite
// short-risk score. All functions are total on finite inputs; ambiguous
// denominators yield 0 ("no signal") rather than an error.
package calc

import "math"

// BasisPct returns the percentage deviation of the mark price from the
// index price. A zero index carries no signal and yields 0.
func BasisPct(mark, index float64) float64 {
	if index == 0 {
		return 0
	}
	return (mark - index) / index * 100
}

// TWAP returns the arithmetic mean over the sample window, 0 for an empty
// window.
func TWAP(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// DominancePct returns futures volume as a percentage of combined
// futures+spot volume. A non-positive denominator yields 0.
func DominancePct(futVol, spotVolAgg float64) float64 {
	denom := futVol + spotVolAgg
	if denom <= 0 {
		return 0
	}
	return futVol / denom * 100
}

// Delta returns now - then.
func Delta(now, then float64) float64 {
	return now - then
}

// OrderbookImbalance returns the bid/ask quantity ratio within the depth
// band. A zero ask sum yields 0.
func OrderbookImbalance(sumBidsQty, sumAsksQty float64) float64 {
	if sumAsksQty == 0 {
		return 0
	}
	return sumBidsQty / sumAsksQty
}

// Composite score weights. They must sum to 1.
const (
	weightFunding   = 0.25
	weightBasis     = 0.20
	weightDominance = 0.20
	weightDeltaOI   = 0.20
	weightDepth     = 0.15
)

// CompositeScore folds already unit-scaled sub-scores into an integer score
// in [0,100]. Inputs are expected in [0,1]; the weighted sum is clamped to
// [0,1] before scaling, so out-of-range inputs cannot escape the bounds.
// Rounding is round-half-to-even.
func CompositeScore(fundingAbs, basisAbs, dominance, deltaOIPositive, depthRatio float64) int {
	score := weightFunding*fundingAbs +
		weightBasis*basisAbs +
		weightDominance*dominance +
		weightDeltaOI*deltaOIPositive +
		weightDepth*depthRatio
	score = clamp01(score)
	return int(math.RoundToEven(score * 100))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
