package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"shortradar/logger"
)

func testSpotClient(t *testing.T, hosts ...string) *Client {
	t.Helper()
	return &Client{
		spot:        newRESTClient("spot", hosts, &http.Client{Timeout: 5 * time.Second}, logger.GetLogger()),
		spotLimiter: rate.NewLimiter(rate.Inf, 1),
		log:         logger.GetLogger(),
	}
}

func TestRESTClientHostFailover(t *testing.T) {
	var primaryHits, secondaryHits int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryHits, 1)
		w.Write([]byte(`{"symbol":"BTCUSDT","quoteVolume":"123.5"}`))
	}))
	defer secondary.Close()

	c := testSpotClient(t, primary.URL, secondary.URL)

	ticker, err := c.SpotTicker24h(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("SpotTicker24h failed: %v", err)
	}
	if ticker.QuoteVolume != 123.5 {
		t.Errorf("expected quote volume 123.5, got %f", ticker.QuoteVolume)
	}
	if atomic.LoadInt32(&primaryHits) != 1 || atomic.LoadInt32(&secondaryHits) != 1 {
		t.Errorf("expected one hit per host, got primary=%d secondary=%d", primaryHits, secondaryHits)
	}
}

func TestRESTClientClientErrorIsFinal(t *testing.T) {
	var secondaryHits int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1100,"msg":"Illegal characters found in parameter"}`))
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&secondaryHits, 1)
	}))
	defer secondary.Close()

	c := testSpotClient(t, primary.URL, secondary.URL)

	if _, err := c.SpotTicker24h(context.Background(), "BTC USDT"); err == nil {
		t.Fatal("expected error for bad request")
	}
	if atomic.LoadInt32(&secondaryHits) != 0 {
		t.Error("client error should not fail over to the next host")
	}
}

func TestRESTClientBreakerSkipsDeadHost(t *testing.T) {
	var primaryHits int32

	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","quoteVolume":"1"}`))
	}))
	defer secondary.Close()

	c := testSpotClient(t, primary.URL, secondary.URL)

	for i := 0; i < 5; i++ {
		if _, err := c.SpotTicker24h(context.Background(), "BTCUSDT"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	// After three consecutive failures the primary breaker opens and
	// later calls go straight to the healthy host.
	if hits := atomic.LoadInt32(&primaryHits); hits != 3 {
		t.Errorf("expected primary to be tried exactly 3 times, got %d", hits)
	}
}

func TestSpotMarketExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT"}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
	defer srv.Close()

	c := testSpotClient(t, srv.URL)

	exists, err := c.SpotMarketExists(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("SpotMarketExists failed: %v", err)
	}
	if !exists {
		t.Error("expected BTCUSDT to exist on spot")
	}

	exists, err = c.SpotMarketExists(context.Background(), "1000FLOKIUSDT")
	if err != nil {
		t.Fatalf("SpotMarketExists for perp-only symbol failed: %v", err)
	}
	if exists {
		t.Error("expected -1121 to mean the symbol does not exist")
	}
}

func TestSpotTicker24hBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") == "" {
			t.Error("expected symbols query parameter")
		}
		w.Write([]byte(`[{"symbol":"BTCUSDT","quoteVolume":"100.0"},{"symbol":"ETHUSDT","quoteVolume":"50.5"}]`))
	}))
	defer srv.Close()

	c := testSpotClient(t, srv.URL)

	out, err := c.SpotTicker24hBatch(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("SpotTicker24hBatch failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(out))
	}
	if out["ETHUSDT"].QuoteVolume != 50.5 {
		t.Errorf("unexpected ETHUSDT quote volume: %f", out["ETHUSDT"].QuoteVolume)
	}

	empty, err := c.SpotTicker24hBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty result for empty symbol list, got %d", len(empty))
	}
}

func TestSpotHourlyQuoteVolumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("interval"); got != "1h" {
			t.Errorf("expected interval 1h, got %s", got)
		}
		w.Write([]byte(`[
			[1700000000000,"1","2","0.5","1.5","10",1700003599999,"1000.5",100,"5","500.25","0"],
			[1700003600000,"1","2","0.5","1.5","20",1700007199999,"2000.25",200,"10","1000.5","0"]
		]`))
	}))
	defer srv.Close()

	c := testSpotClient(t, srv.URL)

	volumes, err := c.SpotHourlyQuoteVolumes(context.Background(), "BTCUSDT", 24)
	if err != nil {
		t.Fatalf("SpotHourlyQuoteVolumes failed: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(volumes))
	}
	if volumes[0] != 1000.5 || volumes[1] != 2000.25 {
		t.Errorf("unexpected volumes: %v", volumes)
	}
}
