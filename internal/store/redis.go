package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shortradar/internal/models"
)

// Redis key layout. Timeseries are sorted sets scored by the point
// timestamp with the point itself as the member, so range queries map
// directly onto ZRANGEBYSCORE.
const (
	keyWatchlist      = "srr:watchlist"
	keySnapshotPrefix = "srr:snapshot:"
	keySeriesPrefix   = "srr:ts:"
)

// Redis implements Store on a Redis instance.
type Redis struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedis connects to the Redis instance at url (redis:// form), verifies
// connectivity and returns the store. Points older than retention are
// trimmed as new ones are appended.
func NewRedis(ctx context.Context, url string, retention time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Redis{rdb: rdb, retention: retention, now: time.Now}, nil
}

func snapshotKey(symbol string) string {
	return keySnapshotPrefix + strings.ToUpper(symbol)
}

func tsKey(symbol, metric string) string {
	return keySeriesPrefix + strings.ToUpper(symbol) + ":" + metric
}

func (r *Redis) Watchlist(ctx context.Context) ([]string, error) {
	symbols, err := r.rdb.SMembers(ctx, keyWatchlist).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: watchlist: %w", err)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (r *Redis) AddSymbol(ctx context.Context, symbol string) error {
	if err := r.rdb.SAdd(ctx, keyWatchlist, strings.ToUpper(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: add symbol: %w", err)
	}
	return nil
}

func (r *Redis) RemoveSymbol(ctx context.Context, symbol string) error {
	if err := r.rdb.SRem(ctx, keyWatchlist, strings.ToUpper(symbol)).Err(); err != nil {
		return fmt.Errorf("redis: remove symbol: %w", err)
	}
	return nil
}

func (r *Redis) EnsureDefaultWatchlist(ctx context.Context, defaults []string) error {
	n, err := r.rdb.SCard(ctx, keyWatchlist).Result()
	if err != nil {
		return fmt.Errorf("redis: watchlist size: %w", err)
	}
	if n > 0 {
		return nil
	}

	members := make([]interface{}, 0, len(defaults))
	for _, s := range defaults {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			members = append(members, s)
		}
	}
	if len(members) == 0 {
		return nil
	}
	if err := r.rdb.SAdd(ctx, keyWatchlist, members...).Err(); err != nil {
		return fmt.Errorf("redis: seed watchlist: %w", err)
	}
	return nil
}

func (r *Redis) PutSnapshot(ctx context.Context, snap *models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Symbol, err)
	}
	if err := r.rdb.Set(ctx, snapshotKey(snap.Symbol), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	raw, err := r.rdb.Get(ctx, snapshotKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get snapshot %s: %w", symbol, err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal snapshot %s: %w", symbol, err)
	}
	return &snap, nil
}

func (r *Redis) AppendPoint(ctx context.Context, symbol, metric string, ts int64, value float64) error {
	key := tsKey(symbol, metric)
	member := fmt.Sprintf("[%d,%s]", ts, strconv.FormatFloat(value, 'g', -1, 64))

	if err := r.rdb.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: member}).Err(); err != nil {
		return fmt.Errorf("redis: append %s/%s: %w", symbol, metric, err)
	}

	if r.retention > 0 {
		cutoff := r.now().Add(-r.retention).UnixMilli()
		if err := r.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff-1, 10)).Err(); err != nil {
			return fmt.Errorf("redis: trim %s/%s: %w", symbol, metric, err)
		}
	}
	return nil
}

func (r *Redis) Range(ctx context.Context, symbol, metric string, since int64) ([]models.TimeseriesPoint, error) {
	members, err := r.rdb.ZRangeByScore(ctx, tsKey(symbol, metric), &redis.ZRangeBy{
		Min: strconv.FormatInt(since, 10),
		Max: strconv.FormatInt(r.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range %s/%s: %w", symbol, metric, err)
	}

	points := make([]models.TimeseriesPoint, 0, len(members))
	for _, m := range members {
		var pair [2]json.Number
		if err := json.Unmarshal([]byte(m), &pair); err != nil {
			return nil, fmt.Errorf("redis: decode point %s/%s: %w", symbol, metric, err)
		}
		ts, err := pair[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("redis: decode point ts %s/%s: %w", symbol, metric, err)
		}
		val, err := pair[1].Float64()
		if err != nil {
			return nil, fmt.Errorf("redis: decode point value %s/%s: %w", symbol, metric, err)
		}
		points = append(points, models.TimeseriesPoint{TS: ts, Value: val})
	}
	return points, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
