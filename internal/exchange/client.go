package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"shortradar/config"
	"shortradar/internal/telemetry"
	"shortradar/logger"
)

const spotSymbolNotFoundCode = -1121

// Client talks to Binance USDT-M futures and spot. Futures endpoints go
// through the official SDK; spot endpoints and open-interest history use
// the raw REST client because they need regional host failover and paths
// the SDK does not expose.
type Client struct {
	futures *futures.Client
	fdata   *restClient
	spot    *restClient

	futLimiter  *rate.Limiter
	spotLimiter *rate.Limiter

	metrics *telemetry.Metrics
	log     *logger.Log
}

// NewClient builds a Client from the binance section of the configuration.
// metrics may be nil.
func NewClient(cfg *config.BinanceConfig, metrics *telemetry.Metrics) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:       cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:    cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:    cfg.ConnectionPool.IdleConnTimeout,
		DisableCompression: false,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	fc := futures.NewClient("", "")
	fc.HTTPClient = httpClient
	if parsed, err := url.Parse(cfg.FuturesURL); err == nil && parsed.Host != "" {
		fc.SetApiEndpoint(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host))
	}

	rps := rate.Limit(cfg.RateLimit.RequestsPerSecond)
	burst := cfg.RateLimit.BurstSize
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		futures:     fc,
		fdata:       newRESTClient("futures_data", []string{cfg.FuturesURL}, httpClient, log),
		spot:        newRESTClient("spot", cfg.SpotURLs, httpClient, log),
		futLimiter:  rate.NewLimiter(rps, burst),
		spotLimiter: rate.NewLimiter(rps, burst),
		metrics:     metrics,
		log:         log,
	}

	log.WithComponent("exchange").WithFields(logger.Fields{
		"futures_url":        cfg.FuturesURL,
		"spot_hosts":         len(cfg.SpotURLs),
		"max_idle_conns":     cfg.ConnectionPool.MaxIdleConns,
		"max_conns_per_host": cfg.ConnectionPool.MaxConnsPerHost,
		"timeout":            cfg.Timeout,
	}).Info("exchange client initialized")

	return c
}

func (c *Client) PremiumIndex(ctx context.Context, symbol string) (*PremiumIndex, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	c.observe("premium_index", err)
	if err != nil {
		return nil, fmt.Errorf("premium index %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("premium index %s: empty response", symbol)
	}
	row := rows[0]
	return &PremiumIndex{
		Symbol:          row.Symbol,
		MarkPrice:       parseFloat(row.MarkPrice),
		IndexPrice:      parseFloat(row.IndexPrice),
		LastFundingRate: parseFloat(row.LastFundingRate),
		NextFundingTime: row.NextFundingTime,
	}, nil
}

func (c *Client) FundingHistory(ctx context.Context, symbol string, limit int) ([]FundingPoint, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.futures.NewFundingRateService().Symbol(symbol).Limit(limit).Do(ctx)
	c.observe("funding_history", err)
	if err != nil {
		return nil, fmt.Errorf("funding history %s: %w", symbol, err)
	}
	points := make([]FundingPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, FundingPoint{
			FundingTime: row.FundingTime,
			FundingRate: parseFloat(row.FundingRate),
		})
	}
	return points, nil
}

func (c *Client) OpenInterestHistory(ctx context.Context, symbol, period string, limit int) ([]OpenInterestPoint, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("period", period)
	query.Set("limit", strconv.Itoa(limit))

	var rows []struct {
		Timestamp            int64       `json:"timestamp"`
		SumOpenInterestValue json.Number `json:"sumOpenInterestValue"`
	}
	err := c.fdata.getJSON(ctx, "/futures/data/openInterestHist", query, &rows)
	c.observe("open_interest_hist", err)
	if err != nil {
		return nil, fmt.Errorf("open interest history %s: %w", symbol, err)
	}

	points := make([]OpenInterestPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, OpenInterestPoint{
			Timestamp:            row.Timestamp,
			SumOpenInterestValue: parseFloat(row.SumOpenInterestValue.String()),
		})
	}
	return points, nil
}

func (c *Client) FuturesTicker24h(ctx context.Context, symbol string) (*Ticker, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.futures.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	c.observe("futures_ticker", err)
	if err != nil {
		return nil, fmt.Errorf("futures ticker %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("futures ticker %s: empty response", symbol)
	}
	return &Ticker{Symbol: rows[0].Symbol, QuoteVolume: parseFloat(rows[0].QuoteVolume)}, nil
}

// FuturesTicker24hBatch fetches the all-symbols 24h statistics in one
// request and filters to the requested set. One request regardless of
// watchlist size keeps the weight budget flat.
func (c *Client) FuturesTicker24hBatch(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.futures.NewListPriceChangeStatsService().Do(ctx)
	c.observe("futures_ticker_batch", err)
	if err != nil {
		return nil, fmt.Errorf("futures ticker batch: %w", err)
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make(map[string]Ticker, len(symbols))
	for _, row := range rows {
		if wanted[row.Symbol] {
			out[row.Symbol] = Ticker{Symbol: row.Symbol, QuoteVolume: parseFloat(row.QuoteVolume)}
		}
	}
	return out, nil
}

func (c *Client) SpotTicker24h(ctx context.Context, symbol string) (*Ticker, error) {
	if err := c.spotLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	var row struct {
		Symbol      string      `json:"symbol"`
		QuoteVolume json.Number `json:"quoteVolume"`
	}
	err := c.spot.getJSON(ctx, "/api/v3/ticker/24hr", query, &row)
	c.observe("spot_ticker", err)
	if err != nil {
		return nil, fmt.Errorf("spot ticker %s: %w", symbol, err)
	}
	return &Ticker{Symbol: row.Symbol, QuoteVolume: parseFloat(row.QuoteVolume.String())}, nil
}

// SpotTicker24hBatch uses the symbols form of the 24hr endpoint. Symbols
// without a spot market would make the whole request fail with -1121, so
// callers should pass only symbols known to exist on spot.
func (c *Client) SpotTicker24hBatch(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	if len(symbols) == 0 {
		return map[string]Ticker{}, nil
	}
	if err := c.spotLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	list, err := json.Marshal(symbols)
	if err != nil {
		return nil, err
	}
	query := url.Values{}
	query.Set("symbols", string(list))

	var rows []struct {
		Symbol      string      `json:"symbol"`
		QuoteVolume json.Number `json:"quoteVolume"`
	}
	err = c.spot.getJSON(ctx, "/api/v3/ticker/24hr", query, &rows)
	c.observe("spot_ticker_batch", err)
	if err != nil {
		return nil, fmt.Errorf("spot ticker batch: %w", err)
	}

	out := make(map[string]Ticker, len(rows))
	for _, row := range rows {
		out[row.Symbol] = Ticker{Symbol: row.Symbol, QuoteVolume: parseFloat(row.QuoteVolume.String())}
	}
	return out, nil
}

func (c *Client) OrderBookDepth(ctx context.Context, symbol string, limit int) (*Depth, error) {
	if err := c.futLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.futures.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	c.observe("depth", err)
	if err != nil {
		return nil, fmt.Errorf("depth %s: %w", symbol, err)
	}

	depth := &Depth{
		Bids: make([]PriceLevel, 0, len(res.Bids)),
		Asks: make([]PriceLevel, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		depth.Bids = append(depth.Bids, PriceLevel{Price: parseFloat(b.Price), Quantity: parseFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		depth.Asks = append(depth.Asks, PriceLevel{Price: parseFloat(a.Price), Quantity: parseFloat(a.Quantity)})
	}
	return depth, nil
}

// SpotMarketExists probes the spot exchangeInfo endpoint for the symbol.
// Binance answers an unknown symbol with code -1121, which is a definite
// "no" rather than an upstream failure.
func (c *Client) SpotMarketExists(ctx context.Context, symbol string) (bool, error) {
	if err := c.spotLimiter.Wait(ctx); err != nil {
		return false, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)

	var info struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	err := c.spot.getJSON(ctx, "/api/v3/exchangeInfo", query, &info)
	c.observe("spot_exchange_info", err)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == spotSymbolNotFoundCode {
			return false, nil
		}
		return false, fmt.Errorf("spot exchange info %s: %w", symbol, err)
	}
	return len(info.Symbols) > 0, nil
}

func (c *Client) SpotHourlyQuoteVolumes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	if err := c.spotLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", "1h")
	query.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	err := c.spot.getJSON(ctx, "/api/v3/klines", query, &rows)
	c.observe("spot_klines", err)
	if err != nil {
		return nil, fmt.Errorf("spot klines %s: %w", symbol, err)
	}

	volumes := make([]float64, 0, len(rows))
	for _, row := range rows {
		// Quote asset volume sits at index 7 of a kline row.
		if len(row) < 8 {
			continue
		}
		var qv string
		if json.Unmarshal(row[7], &qv) != nil {
			continue
		}
		volumes = append(volumes, parseFloat(qv))
	}
	return volumes, nil
}

func (c *Client) observe(endpoint string, err error) {
	c.metrics.UpstreamRequest(endpoint, err)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var _ MarketSource = (*Client)(nil)
