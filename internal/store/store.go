// Package store persists the per-symbol risk snapshots, the append-only
// metric timeseries backing TWAP and trend checks, and the watchlist. Two
// backends exist: Redis for the running service and an in-memory store for
// tests and redis-less runs.
package store

import (
	"context"
	"errors"

	"shortradar/internal/models"
)

// ErrNotFound is returned when no snapshot has been published for a symbol
// yet.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence boundary shared by the collectors, the rule
// engine and the HTTP API. Implementations must tolerate one write per
// metric per symbol per cycle and keep range reads in ascending timestamp
// order. Duplicate timestamps within a series are allowed.
type Store interface {
	// Watchlist returns the monitored symbols in sorted order.
	Watchlist(ctx context.Context) ([]string, error)
	AddSymbol(ctx context.Context, symbol string) error
	RemoveSymbol(ctx context.Context, symbol string) error
	// EnsureDefaultWatchlist seeds the watchlist with defaults when it is
	// empty.
	EnsureDefaultWatchlist(ctx context.Context, defaults []string) error

	// PutSnapshot overwrites the symbol's snapshot wholesale.
	PutSnapshot(ctx context.Context, snap *models.Snapshot) error
	// Snapshot returns the latest snapshot or ErrNotFound.
	Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error)

	// AppendPoint records one observation in the (symbol, metric) series.
	AppendPoint(ctx context.Context, symbol, metric string, ts int64, value float64) error
	// Range returns all points with timestamp >= since, ascending.
	Range(ctx context.Context, symbol, metric string, since int64) ([]models.TimeseriesPoint, error)

	Close() error
}

// Values extracts just the values of a range query, preserving order.
func Values(points []models.TimeseriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
