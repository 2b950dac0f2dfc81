// Package quote implements the Quote Service (spec component D):
// stateless composition of the Fee Engine and the exchange rate cache
// into a single offer with a short expiry window. Grounded on the fee
// and rate packages' own Compute/Rate calls; no persistence, per
// spec.md §4.4.
package quote

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/fee"
	"github.com/suncoastpay/orchestrator/internal/rate"
)

const window = 60 * time.Second

// Quote is the offer returned to the caller: a fee breakdown, the live
// exchange rate, and the resulting destination amount, valid until
// ExpiresAt.
type Quote struct {
	ID                uuid.UUID
	Amount            decimal.Decimal
	Method            fee.Method
	Corridor          fee.Corridor
	HandlingMode      fee.HandlingMode
	Fees              fee.Breakdown
	ExchangeRate      decimal.Decimal
	DestinationAmount decimal.Decimal
	EffectiveRate     decimal.Decimal
	ExpiresAt         time.Time
}

// Service composes the Fee Engine and the rate Cache.
type Service struct {
	rates *rate.Cache
}

func NewService(rates *rate.Cache) *Service {
	return &Service{rates: rates}
}

// Quote mints a fresh quote id and expiry, computes the fee breakdown and
// consults the live exchange rate, deriving the destination amount and
// effective rate per spec.md §4.4.
func (s *Service) Quote(ctx context.Context, amount decimal.Decimal, method fee.Method, corridor fee.Corridor, mode fee.HandlingMode) (*Quote, error) {
	breakdown, err := fee.Compute(amount, method, corridor, mode)
	if err != nil {
		return nil, err
	}

	r, err := s.rates.Rate(ctx, string(corridor))
	if err != nil {
		return nil, err
	}

	destAmount := fee.DestinationAmount(breakdown.UsdcSent, r)
	effective := fee.EffectiveRate(destAmount, amount)

	return &Quote{
		ID:                uuid.New(),
		Amount:            amount,
		Method:            method,
		Corridor:          corridor,
		HandlingMode:      mode,
		Fees:              breakdown,
		ExchangeRate:      r,
		DestinationAmount: destAmount,
		EffectiveRate:     effective,
		ExpiresAt:         time.Now().UTC().Add(window),
	}, nil
}
