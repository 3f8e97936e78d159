package models

// TrafficLight is the three-state short-risk classification for a symbol.
type TrafficLight string

const (
	Red    TrafficLight = "RED"
	Yellow TrafficLight = "YELLOW"
	Green  TrafficLight = "GREEN"
)

// BorrowVenue describes a spot venue where the base asset can be borrowed
// for shorting, together with its annualised borrow rate.
type BorrowVenue struct {
	Exchange string  `json:"ex"`
	APRPct   float64 `json:"apr_pct"`
}

// BorrowInfo carries spot-borrow availability for a symbol. Venues stays
// empty until a borrow-rate feed is wired in; Shortable is only meaningful
// when at least one venue is known.
type BorrowInfo struct {
	Shortable bool          `json:"shortable"`
	Venues    []BorrowVenue `json:"venues"`
}

// Snapshot is the fused per-symbol market view produced once per collection
// cycle. A snapshot is always written wholesale: a cycle either publishes a
// fully computed snapshot or leaves the previous one untouched.
type Snapshot struct {
	Symbol string `json:"symbol"`
	TS     int64  `json:"ts"`

	Mark           float64 `json:"mark"`
	Index          float64 `json:"index"`
	BasisPct       float64 `json:"basis_pct"`
	BasisTWAP15Pct float64 `json:"basis_twap15_pct"`

	Funding1hPct         float64 `json:"funding_1h_pct"`
	FundingIntervalHours int     `json:"funding_interval_hours"`
	FundingDailyEstPct   float64 `json:"funding_daily_est_pct"`
	NextFundingInSec     int64   `json:"next_funding_in_sec"`

	OIUSDT        float64 `json:"oi_usdt"`
	DeltaOI1hUSDT float64 `json:"delta_oi_1h_usdt"`

	PerpDominancePct float64 `json:"perp_dominance_pct"`
	// DominanceUnknown is raised instead of publishing a misleading ratio
	// when a spot market exists but its volume could not be confirmed this
	// cycle.
	DominanceUnknown bool `json:"dominance_unknown"`

	OrderbookImbalance float64 `json:"orderbook_imbalance"`

	Borrow BorrowInfo `json:"borrow"`

	FutVol24USDT  float64 `json:"fut_vol24_usdt"`
	SpotVol24USDT float64 `json:"spot_vol24_usdt"`
	HasSpot       bool    `json:"has_spot"`

	SRS          int          `json:"srs"`
	TrafficLight TrafficLight `json:"traffic_light"`
	RuleReasons  []string     `json:"rule_reasons"`
}

// TimeseriesPoint is one (timestamp, value) observation within a
// (symbol, metric) series. Timestamps are milliseconds since epoch.
type TimeseriesPoint struct {
	TS    int64   `json:"ts"`
	Value float64 `json:"value"`
}

// Metric names used for the per-symbol timeseries written each cycle.
const (
	MetricMark      = "mark"
	MetricBasis     = "basis"
	MetricBasis1m   = "basis_1m"
	MetricFunding   = "funding"
	MetricOI        = "oi"
	MetricDominance = "dominance"
	MetricImbalance = "imbalance"
)
