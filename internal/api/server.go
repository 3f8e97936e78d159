// Package api exposes the snapshot, timeseries, rules and watchlist
// surfaces over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"shortradar/internal/models"
	"shortradar/internal/rules"
	"shortradar/internal/store"
	"shortradar/logger"
)

const defaultWindow = "48h"

// Server is the HTTP API over the snapshot store and rule engine.
type Server struct {
	store store.Store
	rules *rules.Engine
	srv   *http.Server
	log   *logger.Log

	now func() time.Time
}

func NewServer(addr string, st store.Store) *Server {
	s := &Server{
		store: st,
		rules: rules.NewEngine(st),
		log:   logger.GetLogger(),
		now:   time.Now,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers without binding a socket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/symbols", s.handleListSymbols).Methods(http.MethodGet)
	r.HandleFunc("/symbols", s.handleAddSymbol).Methods(http.MethodPost)
	r.HandleFunc("/symbols", s.handleRemoveSymbol).Methods(http.MethodDelete)
	r.HandleFunc("/metrics/{symbol}", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/timeseries/{symbol}", s.handleTimeseries).Methods(http.MethodGet)
	r.HandleFunc("/rules/{symbol}", s.handleRules).Methods(http.MethodGet)
	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log := s.log.WithComponent("api")
	log.WithFields(logger.Fields{"addr": s.srv.Addr}).Info("starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("api server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Watchlist(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListSymbols(w http.ResponseWriter, r *http.Request) {
	watchlist, err := s.store.Watchlist(r.Context())
	if err != nil {
		s.storeError(w, err, "failed to read watchlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"watchlist": watchlist})
}

type symbolRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleAddSymbol(w http.ResponseWriter, r *http.Request) {
	symbol, ok := decodeSymbol(w, r)
	if !ok {
		return
	}
	if err := s.store.AddSymbol(r.Context(), symbol); err != nil {
		s.storeError(w, err, "failed to add symbol")
		return
	}
	s.respondWatchlist(w, r)
}

func (s *Server) handleRemoveSymbol(w http.ResponseWriter, r *http.Request) {
	symbol, ok := decodeSymbol(w, r)
	if !ok {
		return
	}
	if err := s.store.RemoveSymbol(r.Context(), symbol); err != nil {
		s.storeError(w, err, "failed to remove symbol")
		return
	}
	s.respondWatchlist(w, r)
}

func (s *Server) respondWatchlist(w http.ResponseWriter, r *http.Request) {
	watchlist, err := s.store.Watchlist(r.Context())
	if err != nil {
		s.storeError(w, err, "failed to read watchlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "watchlist": watchlist})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	snap, err := s.store.Snapshot(r.Context(), symbol)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No snapshot yet")
		return
	}
	if err != nil {
		s.storeError(w, err, "failed to read snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = models.MetricBasis
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	window := r.URL.Query().Get("window")
	if window == "" {
		window = defaultWindow
	}

	since := s.now().UnixMilli() - parseWindow(window).Milliseconds()
	points, err := s.store.Range(r.Context(), symbol, metric, since)
	if err != nil {
		s.storeError(w, err, "failed to read timeseries")
		return
	}
	if points == nil {
		points = []models.TimeseriesPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"metric":   metric,
		"interval": interval,
		"window":   window,
		"points":   points,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	symbol := pathSymbol(r)
	light, reasons, err := s.rules.Evaluate(r.Context(), symbol)
	if err != nil {
		s.storeError(w, err, "failed to evaluate rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"traffic_light": light,
		"reasons":       reasons,
	})
}

// parseWindow accepts windows like "48h" and "72h", falling back to 48h on
// anything unparseable.
func parseWindow(window string) time.Duration {
	if strings.HasSuffix(window, "h") {
		if hours, err := strconv.Atoi(strings.TrimSuffix(window, "h")); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
	}
	return 48 * time.Hour
}

func pathSymbol(r *http.Request) string {
	return strings.ToUpper(mux.Vars(r)["symbol"])
}

func decodeSymbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body symbolRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	symbol := strings.ToUpper(strings.TrimSpace(body.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return "", false
	}
	return symbol, true
}

func (s *Server) storeError(w http.ResponseWriter, err error, msg string) {
	s.log.WithComponent("api").WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
