// Package collector runs the market-data fusion pipeline: the polling
// orchestrator that fuses futures and spot upstream data into one snapshot
// per watchlist symbol each cycle, and a reduced-fidelity websocket variant.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shortradar/config"
	"shortradar/internal/calc"
	"shortradar/internal/exchange"
	"shortradar/internal/factcache"
	"shortradar/internal/models"
	"shortradar/internal/rules"
	"shortradar/internal/store"
	"shortradar/internal/telemetry"
	"shortradar/logger"
)

// Collector drives the periodic fusion cycle over the watchlist.
type Collector struct {
	config  *config.Config
	source  exchange.MarketSource
	store   store.Store
	facts   *factcache.Cache
	rules   *rules.Engine
	metrics *telemetry.Metrics
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	now func() time.Time
}

// NewCollector creates the polling collector. metrics may be nil.
func NewCollector(cfg *config.Config, source exchange.MarketSource, st store.Store, facts *factcache.Cache, metrics *telemetry.Metrics) *Collector {
	return &Collector{
		config:  cfg,
		source:  source,
		store:   st,
		facts:   facts,
		rules:   rules.NewEngine(st),
		metrics: metrics,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		now:     time.Now,
	}
}

// Start launches the collection loop. The first cycle runs immediately.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("collector")
	log.WithFields(logger.Fields{
		"interval":    c.config.Collector.Interval,
		"concurrency": c.config.Collector.SymbolConcurrency,
	}).Info("starting collector")

	c.wg.Add(1)
	go c.runLoop()

	log.Info("collector started successfully")
	return nil
}

// Stop signals the loop to stop and waits for the in-flight cycle.
func (c *Collector) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("collector").Info("stopping collector")
	c.wg.Wait()
	c.log.WithComponent("collector").Info("collector stopped")
}

func (c *Collector) runLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Collector.Interval)
	defer ticker.Stop()

	c.runCycle()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.runCycle()
		}
	}
}

// runCycle executes one full fusion pass over the watchlist. Per-symbol
// failures are logged and isolated; nothing here may end the loop.
func (c *Collector) runCycle() {
	log := c.log.WithComponent("collector")

	c.metrics.CycleStarted()
	started := c.now()

	symbols, err := c.store.Watchlist(c.ctx)
	if err != nil {
		log.WithError(err).Error("failed to read watchlist, skipping cycle")
		return
	}
	if len(symbols) == 0 {
		return
	}

	futVols := c.fetchFuturesVolumes(symbols)
	spotVols := c.fetchSpotVolumes(symbols)

	g, gctx := errgroup.WithContext(c.ctx)
	g.SetLimit(c.config.Collector.SymbolConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := c.processSymbol(gctx, symbol, futVols, spotVols); err != nil {
				c.metrics.SymbolError(symbol)
				log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("symbol update skipped")
			}
			return nil
		})
	}
	g.Wait()

	c.metrics.CycleFinished(time.Since(started))
	log.WithFields(logger.Fields{
		"symbols":  len(symbols),
		"duration": time.Since(started),
	}).Debug("cycle finished")
}

// fetchFuturesVolumes batch-fetches futures 24h volumes. A batch failure
// degrades to per-symbol fetches inside processSymbol, so it only logs.
func (c *Collector) fetchFuturesVolumes(symbols []string) map[string]exchange.Ticker {
	out, err := c.source.FuturesTicker24hBatch(c.ctx, symbols)
	if err != nil {
		c.log.WithComponent("collector").WithError(err).Warn("futures volume batch failed, falling back to per-symbol")
		return map[string]exchange.Ticker{}
	}
	return out
}

// fetchSpotVolumes batch-fetches spot 24h volumes for the symbols already
// known to have a spot market. Unresolved symbols are probed individually
// later so an unknown symbol cannot poison the batch request.
func (c *Collector) fetchSpotVolumes(symbols []string) map[string]exchange.Ticker {
	known := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if c.facts.HasSpot(symbol) == factcache.Yes {
			known = append(known, symbol)
		}
	}
	if len(known) == 0 {
		return map[string]exchange.Ticker{}
	}

	out, err := c.source.SpotTicker24hBatch(c.ctx, known)
	if err != nil {
		c.log.WithComponent("collector").WithError(err).Warn("spot volume batch failed, falling back to per-symbol")
		return map[string]exchange.Ticker{}
	}
	return out
}

// processSymbol runs the full fusion for one symbol and publishes the
// resulting snapshot. Any error discards this symbol's update for the
// cycle without touching the previously published snapshot.
func (c *Collector) processSymbol(ctx context.Context, symbol string, futVols, spotVols map[string]exchange.Ticker) error {
	now := c.now()
	tsMillis := now.UnixMilli()

	pi, err := c.source.PremiumIndex(ctx, symbol)
	if err != nil {
		return err
	}

	intervalHours := c.fundingInterval(ctx, symbol)
	funding1h := pi.LastFundingRate * 100 / float64(intervalHours)

	nextFundingIn := pi.NextFundingTime/1000 - now.Unix()
	if nextFundingIn < 0 {
		nextFundingIn = 0
	}

	oiNow, oi1hAgo, err := c.openInterest(ctx, symbol)
	if err != nil {
		return err
	}

	futVol, err := c.futuresVolume(ctx, symbol, futVols)
	if err != nil {
		return err
	}

	snap := &models.Snapshot{
		Symbol:               symbol,
		TS:                   tsMillis,
		Mark:                 pi.MarkPrice,
		Index:                pi.IndexPrice,
		BasisPct:             calc.BasisPct(pi.MarkPrice, pi.IndexPrice),
		Funding1hPct:         funding1h,
		FundingIntervalHours: intervalHours,
		FundingDailyEstPct:   funding1h * 24,
		NextFundingInSec:     nextFundingIn,
		OIUSDT:               oiNow,
		DeltaOI1hUSDT:        calc.Delta(oiNow, oi1hAgo),
		FutVol24USDT:         futVol,
	}

	c.resolveSpotSide(ctx, symbol, snap, spotVols)

	if err := c.orderbookMetrics(ctx, symbol, snap); err != nil {
		return err
	}

	if err := c.basisTWAP(ctx, symbol, snap); err != nil {
		return err
	}

	snap.SRS = calc.SRS(snap)

	light, reasons, err := c.rules.EvaluateSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	snap.TrafficLight = light
	snap.RuleReasons = reasons

	if err := c.store.PutSnapshot(ctx, snap); err != nil {
		return err
	}
	c.metrics.SnapshotPublished()

	points := []struct {
		metric string
		value  float64
	}{
		{models.MetricMark, snap.Mark},
		{models.MetricBasis, snap.BasisPct},
		{models.MetricFunding, snap.Funding1hPct},
		{models.MetricOI, snap.OIUSDT},
		{models.MetricDominance, snap.PerpDominancePct},
		{models.MetricImbalance, snap.OrderbookImbalance},
	}
	for _, p := range points {
		if err := c.store.AppendPoint(ctx, symbol, p.metric, tsMillis, p.value); err != nil {
			return err
		}
	}
	return nil
}

// fundingInterval resolves the settlement interval from the fact cache,
// probing the funding history on a miss. The gap between the two most
// recent settlements is snapped to the nearest of 1, 4 or 8 hours; an
// undetectable gap defaults to 8 without caching, so the next cycle
// probes again.
func (c *Collector) fundingInterval(ctx context.Context, symbol string) int {
	if hours, ok := c.facts.FundingInterval(symbol); ok {
		return hours
	}

	history, err := c.source.FundingHistory(ctx, symbol, 2)
	if err != nil || len(history) < 2 {
		return 8
	}

	gap := history[len(history)-1].FundingTime - history[len(history)-2].FundingTime
	if gap < 0 {
		gap = -gap
	}
	hours := snapIntervalHours(time.Duration(gap) * time.Millisecond)
	c.facts.SetFundingInterval(symbol, hours)
	return hours
}

func snapIntervalHours(gap time.Duration) int {
	switch {
	case gap <= 2*time.Hour:
		return 1
	case gap <= 6*time.Hour:
		return 4
	default:
		return 8
	}
}

// openInterest returns the current notional OI and the value one hour
// prior, derived from the 5-minute history window.
func (c *Collector) openInterest(ctx context.Context, symbol string) (float64, float64, error) {
	history, err := c.source.OpenInterestHistory(ctx, symbol, c.config.Collector.OIPeriod, c.config.Collector.OISamples)
	if err != nil {
		return 0, 0, err
	}
	if len(history) == 0 {
		return 0, 0, nil
	}
	return history[len(history)-1].SumOpenInterestValue, history[0].SumOpenInterestValue, nil
}

func (c *Collector) futuresVolume(ctx context.Context, symbol string, futVols map[string]exchange.Ticker) (float64, error) {
	if t, ok := futVols[symbol]; ok {
		return t.QuoteVolume, nil
	}
	t, err := c.source.FuturesTicker24h(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.QuoteVolume, nil
}

// resolveSpotSide fills has_spot, spot volume and perp dominance. The
// tri-state existence fact keeps a confirmed spot market pinned so later
// cycles never re-probe it; only the unconfirmed states are probed again.
// Whenever a spot market exists but its volume cannot be confirmed this
// cycle, dominance_unknown is raised instead of publishing a misleading
// ratio.
func (c *Collector) resolveSpotSide(ctx context.Context, symbol string, snap *models.Snapshot, spotVols map[string]exchange.Ticker) {
	log := c.log.WithComponent("collector")

	state := c.facts.HasSpot(symbol)
	exists := state == factcache.Yes

	if state != factcache.Yes {
		probed, err := c.source.SpotMarketExists(ctx, symbol)
		switch {
		case err == nil:
			c.facts.SetHasSpot(symbol, probed)
			exists = probed
		case state == factcache.No:
			// A failed probe falls back to the cached negative.
			exists = false
		default:
			// Existence is genuinely unknown this cycle.
			snap.DominanceUnknown = true
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("spot existence probe failed")
			return
		}
	}

	snap.HasSpot = exists
	if !exists {
		snap.PerpDominancePct = calc.DominancePct(snap.FutVol24USDT, 0)
		return
	}

	spotVol, ok := c.spotVolume(ctx, symbol, spotVols)
	if !ok {
		snap.DominanceUnknown = true
		return
	}
	if spotVol == 0 {
		// The market exists but the 24h ticker reads zero; trust the
		// hourly candles over a flat ticker.
		volumes, err := c.source.SpotHourlyQuoteVolumes(ctx, symbol, 24)
		if err != nil {
			snap.DominanceUnknown = true
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("spot candle volume fallback failed")
			return
		}
		for _, v := range volumes {
			spotVol += v
		}
	}

	snap.SpotVol24USDT = spotVol
	snap.PerpDominancePct = calc.DominancePct(snap.FutVol24USDT, spotVol)
}

func (c *Collector) spotVolume(ctx context.Context, symbol string, spotVols map[string]exchange.Ticker) (float64, bool) {
	if t, ok := spotVols[symbol]; ok {
		return t.QuoteVolume, true
	}
	t, err := c.source.SpotTicker24h(ctx, symbol)
	if err != nil {
		c.log.WithComponent("collector").WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("spot volume fetch failed")
		return 0, false
	}
	return t.QuoteVolume, true
}

// orderbookMetrics computes the bid/ask imbalance over the levels within
// the configured band around mid. An empty book falls back to the mark
// price as mid, leaving both sums at zero.
func (c *Collector) orderbookMetrics(ctx context.Context, symbol string, snap *models.Snapshot) error {
	depth, err := c.source.OrderBookDepth(ctx, symbol, c.config.Collector.DepthLimit)
	if err != nil {
		return err
	}

	mid := snap.Mark
	if len(depth.Bids) > 0 && len(depth.Asks) > 0 {
		mid = (depth.Bids[0].Price + depth.Asks[0].Price) / 2
	}

	band := c.config.Collector.DepthWindowPct
	lo, hi := mid*(1-band), mid*(1+band)

	var bidQty, askQty float64
	for _, level := range depth.Bids {
		if level.Price >= lo {
			bidQty += level.Quantity
		}
	}
	for _, level := range depth.Asks {
		if level.Price <= hi {
			askQty += level.Quantity
		}
	}

	snap.OrderbookImbalance = calc.OrderbookImbalance(bidQty, askQty)
	return nil
}

// basisTWAP appends the instantaneous basis to the 1-minute series and
// recomputes the 15-sample TWAP from the recent window. With no history
// the TWAP equals the instantaneous basis.
func (c *Collector) basisTWAP(ctx context.Context, symbol string, snap *models.Snapshot) error {
	if err := c.store.AppendPoint(ctx, symbol, models.MetricBasis1m, snap.TS, snap.BasisPct); err != nil {
		return err
	}

	window := time.Duration(c.config.Collector.BasisTWAPSamples) * time.Minute
	since := snap.TS - window.Milliseconds()
	points, err := c.store.Range(ctx, symbol, models.MetricBasis1m, since)
	if err != nil {
		return err
	}

	values := store.Values(points)
	if len(values) > c.config.Collector.BasisTWAPSamples {
		values = values[len(values)-c.config.Collector.BasisTWAPSamples:]
	}
	if len(values) == 0 {
		snap.BasisTWAP15Pct = snap.BasisPct
		return nil
	}
	snap.BasisTWAP15Pct = calc.TWAP(values)
	return nil
}
