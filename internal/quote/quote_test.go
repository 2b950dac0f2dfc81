package quote_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suncoastpay/orchestrator/internal/fee"
	"github.com/suncoastpay/orchestrator/internal/quote"
	"github.com/suncoastpay/orchestrator/internal/rate"
)

type emptyStore struct{}

func (emptyStore) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	cmd.SetErr(goredis.Nil)
	return cmd
}

func (emptyStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

type fixedSource struct {
	rates map[string]decimal.Decimal
}

func (f fixedSource) Fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.rates, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuote_ACH_MXN_Inclusive(t *testing.T) {
	rates := rate.NewCacheForTest(emptyStore{}, fixedSource{rates: map[string]decimal.Decimal{"MXN": decimal.NewFromFloat(17.20)}}, silentLogger())
	svc := quote.NewService(rates)

	q, err := svc.Quote(context.Background(), decimal.NewFromInt(100), fee.MethodACH, fee.CorridorMXN, fee.ModeInclusive)
	require.NoError(t, err)

	assert.True(t, q.ExchangeRate.Equal(decimal.NewFromFloat(17.20)))
	assert.True(t, q.Fees.Onramp.IsZero())
	assert.True(t, q.DestinationAmount.GreaterThan(decimal.Zero))
	assert.WithinDuration(t, time.Now().UTC().Add(60*time.Second), q.ExpiresAt, 2*time.Second)
}

func TestQuote_Card_NGN_Additive_ChargesOnrampFee(t *testing.T) {
	rates := rate.NewCacheForTest(emptyStore{}, fixedSource{rates: map[string]decimal.Decimal{"NGN": decimal.NewFromFloat(750.00)}}, silentLogger())
	svc := quote.NewService(rates)

	q, err := svc.Quote(context.Background(), decimal.NewFromInt(100), fee.MethodCard, fee.CorridorNGN, fee.ModeAdditive)
	require.NoError(t, err)

	assert.True(t, q.Fees.Onramp.GreaterThan(decimal.Zero))
	assert.True(t, q.Fees.TotalCharged.GreaterThan(q.Amount), "additive mode charges fees on top of the sent amount")
}

func TestQuote_PropagatesFeeEngineValidationError(t *testing.T) {
	rates := rate.NewCacheForTest(emptyStore{}, fixedSource{}, silentLogger())
	svc := quote.NewService(rates)

	_, err := svc.Quote(context.Background(), decimal.NewFromInt(1), fee.MethodACH, fee.CorridorMXN, fee.ModeInclusive)
	assert.Error(t, err)
}

func TestQuote_FallsBackToStaticRateWhenSourceFails(t *testing.T) {
	rates := rate.NewCacheForTest(emptyStore{}, rate.NoopSource{}, silentLogger())
	svc := quote.NewService(rates)

	q, err := svc.Quote(context.Background(), decimal.NewFromInt(100), fee.MethodACH, fee.CorridorMXN, fee.ModeInclusive)
	require.NoError(t, err)

	fallback, ok := rate.StaticFallback("MXN")
	require.True(t, ok)
	assert.True(t, q.ExchangeRate.Equal(fallback))
}
