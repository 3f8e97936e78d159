package calc

import (
	"math"

	"shortradar/internal/models"
)

// Normalization references for the SRS sub-scores. A funding rate or basis
// at the reference magnitude saturates its sub-score at 1.
const (
	fundingStrongPctPerHour = 0.2
	basisStrongPct          = 0.2
	imbalanceStrongRatio    = 2.0
)

// SRS computes the composite short-risk score for a snapshot. Each
// component is scaled to [0,1] against its reference before weighting:
// funding and basis magnitude against the 0.2%/h strong-signal reference,
// dominance as a fraction of 100%, the positive OI delta against current
// OI, and the order-book imbalance against a 2.0 ratio.
func SRS(snap *models.Snapshot) int {
	funding := clamp01(math.Abs(snap.Funding1hPct) / fundingStrongPctPerHour)
	basis := clamp01(math.Abs(snap.BasisTWAP15Pct) / basisStrongPct)
	dominance := clamp01(snap.PerpDominancePct / 100)

	deltaOIPos := math.Max(0, snap.DeltaOI1hUSDT)
	deltaOI := clamp01(deltaOIPos / math.Max(snap.OIUSDT, 1))

	depth := clamp01(snap.OrderbookImbalance / imbalanceStrongRatio)

	return CompositeScore(funding, basis, dominance, deltaOI, depth)
}
