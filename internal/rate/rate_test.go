package rate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suncoastpay/orchestrator/internal/apperr"
	"github.com/suncoastpay/orchestrator/internal/rate"
)

// fakeStore is a minimal in-memory stand-in for *redis.Client, narrowed to
// the Get/Set surface rate.Cache actually uses.
type fakeStore struct {
	values map[string]string
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.values[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	f.values[key] = value.(string)
	cmd.SetVal("OK")
	return cmd
}

type fakeSource struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f fakeSource) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.rates, f.err
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCache_MissThenHit(t *testing.T) {
	store := newFakeStore()
	source := fakeSource{rates: map[string]decimal.Decimal{"MXN": decimal.NewFromFloat(17.234)}}
	c := rate.NewCacheForTest(store, &source, silentLogger())

	got, err := c.Rate(context.Background(), "MXN")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(17.234).Equal(got))

	// Second call should hit the warmed cache even if the source now fails.
	source.err = errors.New("upstream down")
	got2, err := c.Rate(context.Background(), "MXN")
	require.NoError(t, err)
	assert.True(t, got.Equal(got2))
}

func TestCache_FallsBackOnUpstreamFailure(t *testing.T) {
	store := newFakeStore()
	source := fakeSource{err: errors.New("upstream down")}
	c := rate.NewCacheForTest(store, source, silentLogger())

	got, err := c.Rate(context.Background(), "NGN")
	require.NoError(t, err)
	fallback, ok := rate.StaticFallback("NGN")
	require.True(t, ok)
	assert.True(t, fallback.Equal(got))
}

func TestCache_UnavailableWhenCorridorUnknown(t *testing.T) {
	store := newFakeStore()
	source := fakeSource{err: errors.New("upstream down")}
	c := rate.NewCacheForTest(store, source, silentLogger())

	_, err := c.Rate(context.Background(), "EUR")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRateUnavailable, apperr.KindOf(err))
}
