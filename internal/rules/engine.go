// Package rules classifies a market snapshot into the RED/YELLOW/GREEN
// short-risk traffic light. Every evaluation is a pure function of the
// snapshot plus two short lookups into the timeseries store; no state is
// carried between cycles.
package rules

import (
	"context"
	"errors"
	"time"

	"shortradar/internal/models"
	"shortradar/internal/store"
)

// Classification thresholds. Named so they can become per-symbol overrides
// later without touching the evaluation logic.
const (
	// RedDominanceThreshold is the perp dominance above which a large
	// OI/volume ratio turns the light red.
	RedDominanceThreshold = 70.0
	// OIPerpVolMinRatio is the open-interest to 24h-volume ratio that,
	// combined with high dominance, marks a crowded perp.
	OIPerpVolMinRatio = 0.25
	// BasisTWAP15GreenMin is the minimum 15-sample basis TWAP counted as a
	// green signal.
	BasisTWAP15GreenMin = 0.10
	// FundingVeryNegative (%/hour) triggers the yellow borrowable override.
	FundingVeryNegative = -0.15
	// GreenFundingNonnegHours is how long funding must stay non-negative
	// for the green funding signal.
	GreenFundingNonnegHours = 3
	// GreenDominanceMax is the perp dominance below which the market is
	// considered green-spot-anchored.
	GreenDominanceMax = 60.0
)

// ReasonNoSnapshot is returned before the first collection cycle completes
// for a symbol.
const ReasonNoSnapshot = "no snapshot yet"

// ReasonDefault is the neutral fallback when neither red nor green fires.
const ReasonDefault = "default state"

// Engine evaluates the classification rules against the store.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// NewEngine creates a rule engine reading history from st.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st, now: time.Now}
}

// Evaluate classifies the stored snapshot for a symbol. Symbols without a
// snapshot yet are YELLOW with ReasonNoSnapshot.
func (e *Engine) Evaluate(ctx context.Context, symbol string) (models.TrafficLight, []string, error) {
	snap, err := e.store.Snapshot(ctx, symbol)
	if errors.Is(err, store.ErrNotFound) {
		return models.Yellow, []string{ReasonNoSnapshot}, nil
	}
	if err != nil {
		return "", nil, err
	}
	return e.EvaluateSnapshot(ctx, snap)
}

// EvaluateSnapshot classifies the given snapshot. The collector calls this
// with the snapshot it is about to publish, so the classification always
// reflects the current cycle's data.
func (e *Engine) EvaluateSnapshot(ctx context.Context, snap *models.Snapshot) (models.TrafficLight, []string, error) {
	var reasons []string

	// Red conditions are evaluated as a set: every matching rule
	// contributes a reason and any non-empty set forces RED.
	if snap.Funding1hPct < 0 && snap.BasisTWAP15Pct <= 0 {
		reasons = append(reasons, "funding_1h < 0 and basis_twap15 <= 0 (perp discount)")
	}

	if snap.PerpDominancePct >= RedDominanceThreshold && snap.FutVol24USDT > 0 &&
		snap.OIUSDT/snap.FutVol24USDT >= OIPerpVolMinRatio {
		reasons = append(reasons, "perp_dominance >= 70% and oi/usdt_vol24 >= 0.25")
	}

	if snap.DeltaOI1hUSDT > 0 {
		up, err := e.priceUpLastHour(ctx, snap.Symbol)
		if err != nil {
			return "", nil, err
		}
		if up {
			reasons = append(reasons, "OI delta 1h > 0 while price up last hour")
		}
	}

	if len(snap.Borrow.Venues) > 0 && !snap.Borrow.Shortable {
		reasons = append(reasons, "spot short not borrowable or APR too high")
	}

	if len(reasons) > 0 {
		return models.Red, reasons, nil
	}

	if snap.Funding1hPct <= FundingVeryNegative && snap.Borrow.Shortable {
		return models.Yellow, []string{"funding very negative but spot short borrowable"}, nil
	}

	var greenReasons []string
	nonneg, err := e.fundingNonnegativeLastNHours(ctx, snap.Symbol, GreenFundingNonnegHours)
	if err != nil {
		return "", nil, err
	}
	if nonneg {
		greenReasons = append(greenReasons, "funding_1h >= 0 for >= 3h")
	}
	if snap.BasisTWAP15Pct >= BasisTWAP15GreenMin {
		greenReasons = append(greenReasons, "basis_twap15 >= +0.10%")
	}
	if snap.DeltaOI1hUSDT <= 0 {
		greenReasons = append(greenReasons, "OI delta 1h <= 0")
	}
	if snap.PerpDominancePct < GreenDominanceMax {
		greenReasons = append(greenReasons, "perp_dominance < 60%")
	}

	// All four signals must hold; a partial quorum stays neutral.
	if len(greenReasons) >= 4 {
		return models.Green, greenReasons, nil
	}

	return models.Yellow, []string{ReasonDefault}, nil
}

// priceUpLastHour reports whether the newest mark-price point of the last
// hour is strictly above the oldest one. Fewer than two points carry no
// trend.
func (e *Engine) priceUpLastHour(ctx context.Context, symbol string) (bool, error) {
	since := e.now().Add(-time.Hour).UnixMilli()
	points, err := e.store.Range(ctx, symbol, models.MetricMark, since)
	if err != nil {
		return false, err
	}
	if len(points) < 2 {
		return false, nil
	}
	return points[len(points)-1].Value > points[0].Value, nil
}

// fundingNonnegativeLastNHours reports whether every funding point within
// the last n hours is >= 0. No points means no evidence, hence false.
func (e *Engine) fundingNonnegativeLastNHours(ctx context.Context, symbol string, n int) (bool, error) {
	since := e.now().Add(-time.Duration(n) * time.Hour).UnixMilli()
	points, err := e.store.Range(ctx, symbol, models.MetricFunding, since)
	if err != nil {
		return false, err
	}
	if len(points) == 0 {
		return false, nil
	}
	for _, p := range points {
		if p.Value < 0 {
			return false, nil
		}
	}
	return true, nil
}
