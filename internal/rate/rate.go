// Package rate implements the exchange rate cache (spec component B): a
// short-TTL cache in front of an external USD→X rate source, falling back
// to a static table when the upstream is unavailable.
//
// Grounded on the namespaced Get/Set/TTL idiom of
// anthonyalando8-pxyz/shared/utils/cache/cache_util.go and the
// Redis-backed rule cache in
// accounting-service/internal/pkg/fee_calculator.go (cache key, 5-minute
// TTL there, 30s here per spec).
package rate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
)

// Source is the external rate provider (spec.md §6 RateSource).
type Source interface {
	Fetch(ctx context.Context) (map[string]decimal.Decimal, error)
}

const (
	namespace = "rate"
	ttl       = 30 * time.Second
)

// fallback is the hard-coded table consulted when both cache and
// upstream fail to supply a corridor.
var fallback = map[string]decimal.Decimal{
	"MXN": decimal.NewFromFloat(17.20),
	"NGN": decimal.NewFromFloat(750.00),
	"PHP": decimal.NewFromFloat(56.50),
	"INR": decimal.NewFromFloat(83.30),
	"BRL": decimal.NewFromFloat(5.40),
}

// store is the slice of redis.Client used by Cache; narrowed to an
// interface so unit tests can substitute an in-memory fake instead of
// spinning up Redis.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// Cache wraps a Redis client and an upstream Source, implementing the
// consult-cache / fetch-on-miss / fall-back-on-failure behavior of
// spec.md §4.2.
type Cache struct {
	client store
	source Source
	logger *slog.Logger
}

func NewCache(client *redis.Client, source Source, logger *slog.Logger) *Cache {
	return &Cache{client: client, source: source, logger: logger}
}

// NewCacheForTest builds a Cache over an arbitrary store implementation,
// letting unit tests substitute an in-memory fake for Redis.
func NewCacheForTest(client store, source Source, logger *slog.Logger) *Cache {
	return &Cache{client: client, source: source, logger: logger}
}

func key(to string) string {
	return namespace + ":USD:" + to
}

// Rate returns the USD→to exchange rate, consulting the cache first, then
// the upstream source, then the static fallback. Thread-safe; concurrent
// misses may each fetch upstream (no single-flight, as the spec allows).
func (c *Cache) Rate(ctx context.Context, to string) (decimal.Decimal, error) {
	if cached, err := c.client.Get(ctx, key(to)).Result(); err == nil {
		if d, parseErr := decimal.NewFromString(cached); parseErr == nil {
			return d, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "rate cache read failed", "error", err, "to", to)
	}

	rates, err := c.source.Fetch(ctx)
	if err == nil {
		if d, ok := rates[to]; ok {
			if setErr := c.client.Set(ctx, key(to), d.String(), ttl).Err(); setErr != nil {
				c.logger.WarnContext(ctx, "rate cache write failed", "error", setErr, "to", to)
			}
			return d, nil
		}
	} else {
		c.logger.WarnContext(ctx, "upstream rate source unavailable, using fallback table", "error", err, "to", to)
	}

	if d, ok := fallback[to]; ok {
		return d, nil
	}

	return decimal.Zero, apperr.New(apperr.KindRateUnavailable, "no rate available for "+to)
}

// StaticFallback exposes the fallback table for callers (e.g. tests) that
// need to assert against the same constants without duplicating them.
func StaticFallback(to string) (decimal.Decimal, bool) {
	d, ok := fallback[to]
	return d, ok
}

// NoopSource is the out-of-the-box RateSource: it always fails, pushing
// every lookup onto the static fallback table until a real upstream rate
// API client (the out-of-scope collaborator named in spec.md §6) is
// wired in its place.
type NoopSource struct{}

func (NoopSource) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, apperr.New(apperr.KindRateUnavailable, "no upstream rate source configured")
}

