package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"shortradar/config"
	"shortradar/internal/calc"
	"shortradar/internal/models"
	"shortradar/internal/store"
	"shortradar/logger"
)

// pushState is the last seen per-symbol values shared between the futures
// and spot streams.
type pushState struct {
	mark      float64
	futVol24  float64
	spotVol24 float64
}

// PushCollector is the reduced-fidelity streaming variant: it subscribes
// to the combined 24h ticker streams on futures and spot and publishes
// price/volume snapshots without funding, basis, open-interest or
// order-book metrics. It feeds the same snapshot store as the polling
// collector, so downstream consumers do not care which one is active.
type PushCollector struct {
	config  *config.Config
	store   store.Store
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	state   map[string]*pushState
	running bool
	log     *logger.Log
}

func NewPushCollector(cfg *config.Config, st store.Store) *PushCollector {
	return &PushCollector{
		config: cfg,
		store:  st,
		wg:     &sync.WaitGroup{},
		state:  make(map[string]*pushState),
		log:    logger.GetLogger(),
	}
}

// Start opens one supervised stream per market against the watchlist read
// at startup. Watchlist changes require a restart in push mode.
func (p *PushCollector) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("push collector already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	symbols, err := p.store.Watchlist(ctx)
	if err != nil {
		return fmt.Errorf("failed to read watchlist: %w", err)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("watchlist is empty")
	}

	log := p.log.WithComponent("push_collector")
	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting push collector")

	p.wg.Add(2)
	go p.stream("futures_ticker", combinedStreamURL(p.config.Binance.FuturesWSURL, symbols), p.handleFuturesTicker)
	go p.stream("spot_ticker", combinedStreamURL(p.config.Binance.SpotWSURL, symbols), p.handleSpotTicker)

	log.Info("push collector started successfully")
	return nil
}

func (p *PushCollector) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("push_collector").Info("stopping push collector")
	p.wg.Wait()
	p.log.WithComponent("push_collector").Info("push collector stopped")
}

// combinedStreamURL builds the combined-stream endpoint subscribing to the
// 24h ticker of every symbol.
func combinedStreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@ticker")
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// stream handles websocket lifecycle, reconnection and message dispatch.
func (p *PushCollector) stream(name, wsURL string, handle func(payload *tickerEvent)) {
	defer p.wg.Done()
	log := p.log.WithComponent("push_collector").WithFields(logger.Fields{"stream": name})

	for {
		if p.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			logger.IncrementRetryCount()
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-p.ctx.Done():
				return
			}
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-p.ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				if p.ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("websocket read error, reconnecting")
				break
			}
			logger.RecordStreamMessage(name, len(msg))
			event, ok := parseTickerMessage(msg)
			if !ok {
				continue
			}
			handle(event)
		}

		time.Sleep(time.Second)
	}
}

// tickerEvent is the subset of the combined-stream 24h ticker payload the
// push collector consumes.
type tickerEvent struct {
	Symbol      string
	EventTime   int64
	LastPrice   float64
	QuoteVolume float64
}

func parseTickerMessage(msg []byte) (*tickerEvent, bool) {
	var frame struct {
		Data struct {
			Symbol      string `json:"s"`
			EventTime   int64  `json:"E"`
			LastPrice   string `json:"c"`
			QuoteVolume string `json:"q"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Data.Symbol == "" {
		return nil, false
	}
	last, _ := strconv.ParseFloat(frame.Data.LastPrice, 64)
	qv, _ := strconv.ParseFloat(frame.Data.QuoteVolume, 64)
	return &tickerEvent{
		Symbol:      strings.ToUpper(frame.Data.Symbol),
		EventTime:   frame.Data.EventTime,
		LastPrice:   last,
		QuoteVolume: qv,
	}, true
}

func (p *PushCollector) handleFuturesTicker(event *tickerEvent) {
	p.mu.Lock()
	s := p.stateFor(event.Symbol)
	s.mark = event.LastPrice
	s.futVol24 = event.QuoteVolume
	snap := p.buildSnapshot(event.Symbol, event.EventTime, s)
	p.mu.Unlock()

	p.publish(snap, true)
}

func (p *PushCollector) handleSpotTicker(event *tickerEvent) {
	p.mu.Lock()
	s := p.stateFor(event.Symbol)
	s.spotVol24 = event.QuoteVolume
	snap := p.buildSnapshot(event.Symbol, event.EventTime, s)
	p.mu.Unlock()

	p.publish(snap, false)
}

func (p *PushCollector) stateFor(symbol string) *pushState {
	s, ok := p.state[symbol]
	if !ok {
		s = &pushState{}
		p.state[symbol] = s
	}
	return s
}

// buildSnapshot assembles the reduced snapshot from the shared state.
// The futures ticker carries no index price, so the last price stands in
// for both sides and basis stays zero.
func (p *PushCollector) buildSnapshot(symbol string, ts int64, s *pushState) *models.Snapshot {
	unknown := s.futVol24 <= 0 && s.spotVol24 <= 0
	var dominance float64
	if !unknown {
		dominance = calc.DominancePct(s.futVol24, s.spotVol24)
	}
	return &models.Snapshot{
		Symbol:           symbol,
		TS:               ts,
		Mark:             s.mark,
		Index:            s.mark,
		PerpDominancePct: dominance,
		DominanceUnknown: unknown,
		Borrow:           models.BorrowInfo{Shortable: s.spotVol24 > 0},
		FutVol24USDT:     s.futVol24,
		SpotVol24USDT:    s.spotVol24,
		HasSpot:          s.spotVol24 > 0,
	}
}

func (p *PushCollector) publish(snap *models.Snapshot, appendMark bool) {
	log := p.log.WithComponent("push_collector")

	if err := p.store.PutSnapshot(p.ctx, snap); err != nil {
		log.WithError(err).WithFields(logger.Fields{"symbol": snap.Symbol}).Warn("failed to publish snapshot")
		return
	}
	if appendMark {
		if err := p.store.AppendPoint(p.ctx, snap.Symbol, models.MetricMark, snap.TS, snap.Mark); err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": snap.Symbol}).Warn("failed to append mark point")
		}
	}
}
