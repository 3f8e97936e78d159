package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"shortradar/internal/models"
)

func TestMemoryWatchlist(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	if err := m.EnsureDefaultWatchlist(ctx, []string{"ethusdt", "btcusdt", ""}); err != nil {
		t.Fatalf("EnsureDefaultWatchlist: %v", err)
	}
	got, err := m.Watchlist(ctx)
	if err != nil {
		t.Fatalf("Watchlist: %v", err)
	}
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("Watchlist = %v, want [BTCUSDT ETHUSDT]", got)
	}

	// Seeding again must not overwrite an existing watchlist.
	if err := m.EnsureDefaultWatchlist(ctx, []string{"SOLUSDT"}); err != nil {
		t.Fatalf("EnsureDefaultWatchlist: %v", err)
	}
	got, _ = m.Watchlist(ctx)
	if len(got) != 2 {
		t.Fatalf("watchlist reseeded: %v", got)
	}

	if err := m.AddSymbol(ctx, "solusdt"); err != nil {
		t.Fatalf("AddSymbol: %v", err)
	}
	if err := m.RemoveSymbol(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("RemoveSymbol: %v", err)
	}
	got, _ = m.Watchlist(ctx)
	if len(got) != 2 || got[0] != "ETHUSDT" || got[1] != "SOLUSDT" {
		t.Fatalf("Watchlist = %v, want [ETHUSDT SOLUSDT]", got)
	}
}

func TestMemorySnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	if _, err := m.Snapshot(ctx, "BTCUSDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Snapshot on empty store: err = %v, want ErrNotFound", err)
	}

	snap := &models.Snapshot{Symbol: "BTCUSDT", Mark: 50000, TrafficLight: models.Yellow}
	if err := m.PutSnapshot(ctx, snap); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	got, err := m.Snapshot(ctx, "btcusdt")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got.Mark != 50000 || got.TrafficLight != models.Yellow {
		t.Fatalf("Snapshot = %+v", got)
	}

	// Returned snapshot is a copy; mutating it must not leak back.
	got.Mark = 1
	again, _ := m.Snapshot(ctx, "BTCUSDT")
	if again.Mark != 50000 {
		t.Fatalf("snapshot aliased: mark = %v", again.Mark)
	}
}

func TestMemoryRange(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)

	for _, ts := range []int64{100, 300, 200, 300} {
		if err := m.AppendPoint(ctx, "BTCUSDT", models.MetricMark, ts, float64(ts)); err != nil {
			t.Fatalf("AppendPoint: %v", err)
		}
	}

	points, err := m.Range(ctx, "BTCUSDT", models.MetricMark, 0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("len = %d, want 4 (duplicates kept)", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].TS < points[i-1].TS {
			t.Fatalf("points not ascending: %v", points)
		}
	}

	points, _ = m.Range(ctx, "BTCUSDT", models.MetricMark, 200)
	if len(points) != 3 || points[0].TS != 200 {
		t.Fatalf("Range since 200 = %v", points)
	}

	points, _ = m.Range(ctx, "BTCUSDT", "funding", 0)
	if len(points) != 0 {
		t.Fatalf("unknown metric returned points: %v", points)
	}
}

func TestMemoryRetention(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	base := time.Now()
	m.now = func() time.Time { return base }

	old := base.Add(-2 * time.Hour).UnixMilli()
	fresh := base.Add(-time.Minute).UnixMilli()

	if err := m.AppendPoint(ctx, "BTCUSDT", models.MetricOI, old, 1); err != nil {
		t.Fatalf("AppendPoint: %v", err)
	}
	if err := m.AppendPoint(ctx, "BTCUSDT", models.MetricOI, fresh, 2); err != nil {
		t.Fatalf("AppendPoint: %v", err)
	}

	points, err := m.Range(ctx, "BTCUSDT", models.MetricOI, 0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(points) != 1 || points[0].TS != fresh {
		t.Fatalf("retention did not trim: %v", points)
	}
}
