package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shortradar/internal/models"
)

// Memory is an in-process Store. Series are kept as slices sorted by
// timestamp; appends land at the tail in the common case and fall back to
// a binary-search insert for out-of-order points.
type Memory struct {
	mu        sync.RWMutex
	watch     map[string]struct{}
	snaps     map[string]*models.Snapshot
	series    map[string][]models.TimeseriesPoint
	retention time.Duration
	now       func() time.Time
}

// NewMemory creates an in-memory store. Points older than retention are
// trimmed on append; retention <= 0 disables trimming.
func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		watch:     make(map[string]struct{}),
		snaps:     make(map[string]*models.Snapshot),
		series:    make(map[string][]models.TimeseriesPoint),
		retention: retention,
		now:       time.Now,
	}
}

func seriesKey(symbol, metric string) string {
	return strings.ToUpper(symbol) + ":" + metric
}

func (m *Memory) Watchlist(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.watch))
	for s := range m.watch {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) AddSymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watch[strings.ToUpper(symbol)] = struct{}{}
	return nil
}

func (m *Memory) RemoveSymbol(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watch, strings.ToUpper(symbol))
	return nil
}

func (m *Memory) EnsureDefaultWatchlist(ctx context.Context, defaults []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.watch) > 0 {
		return nil
	}
	for _, s := range defaults {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			m.watch[s] = struct{}{}
		}
	}
	return nil
}

func (m *Memory) PutSnapshot(ctx context.Context, snap *models.Snapshot) error {
	cp := *snap
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[strings.ToUpper(snap.Symbol)] = &cp
	return nil
}

func (m *Memory) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[strings.ToUpper(symbol)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (m *Memory) AppendPoint(ctx context.Context, symbol, metric string, ts int64, value float64) error {
	key := seriesKey(symbol, metric)
	point := models.TimeseriesPoint{TS: ts, Value: value}

	m.mu.Lock()
	defer m.mu.Unlock()

	points := m.series[key]
	if n := len(points); n == 0 || points[n-1].TS <= ts {
		points = append(points, point)
	} else {
		i := sort.Search(n, func(i int) bool { return points[i].TS > ts })
		points = append(points, models.TimeseriesPoint{})
		copy(points[i+1:], points[i:])
		points[i] = point
	}

	if m.retention > 0 {
		cutoff := m.now().Add(-m.retention).UnixMilli()
		i := sort.Search(len(points), func(i int) bool { return points[i].TS >= cutoff })
		if i > 0 {
			points = append(points[:0:0], points[i:]...)
		}
	}

	m.series[key] = points
	return nil
}

func (m *Memory) Range(ctx context.Context, symbol, metric string, since int64) ([]models.TimeseriesPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points := m.series[seriesKey(symbol, metric)]
	i := sort.Search(len(points), func(i int) bool { return points[i].TS >= since })
	out := make([]models.TimeseriesPoint, len(points)-i)
	copy(out, points[i:])
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
