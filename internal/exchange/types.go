// Package exchange is the upstream market-data boundary: Binance USDT-M
// futures through the official SDK plus a raw spot REST client with
// regional host failover for the endpoints the spot side needs.
package exchange

import "context"

// PremiumIndex is the mark/index/funding view of one perpetual contract.
type PremiumIndex struct {
	Symbol          string
	MarkPrice       float64
	IndexPrice      float64
	LastFundingRate float64
	NextFundingTime int64
}

// FundingPoint is one historical funding settlement.
type FundingPoint struct {
	FundingTime int64
	FundingRate float64
}

// OpenInterestPoint is one open-interest history sample; the value is the
// notional open interest in quote currency.
type OpenInterestPoint struct {
	Timestamp            int64
	SumOpenInterestValue float64
}

// Ticker carries the 24h quote volume of one market.
type Ticker struct {
	Symbol      string
	QuoteVolume float64
}

// PriceLevel is one order-book level.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// Depth is an order-book snapshot, best levels first.
type Depth struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// MarketSource is the capability set the collector consumes. The concrete
// Client talks to Binance; tests substitute a fake.
type MarketSource interface {
	PremiumIndex(ctx context.Context, symbol string) (*PremiumIndex, error)
	FundingHistory(ctx context.Context, symbol string, limit int) ([]FundingPoint, error)
	OpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]OpenInterestPoint, error)

	FuturesTicker24h(ctx context.Context, symbol string) (*Ticker, error)
	// FuturesTicker24hBatch returns tickers for the requested symbols in
	// one call; symbols missing from the result are expected to be
	// re-fetched individually by the caller.
	FuturesTicker24hBatch(ctx context.Context, symbols []string) (map[string]Ticker, error)

	SpotTicker24h(ctx context.Context, symbol string) (*Ticker, error)
	SpotTicker24hBatch(ctx context.Context, symbols []string) (map[string]Ticker, error)

	OrderBookDepth(ctx context.Context, symbol string, limit int) (*Depth, error)
	SpotMarketExists(ctx context.Context, symbol string) (bool, error)
	// SpotHourlyQuoteVolumes returns the quote volumes of the most recent
	// hourly candles, used as the fallback spot volume source.
	SpotHourlyQuoteVolumes(ctx context.Context, symbol string, limit int) ([]float64, error)
}
