package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
)

// StubOnramp is a deterministic in-memory OnrampProvider for tests: it
// succeeds unless FailUserIDs names the caller, in which case it returns
// a ProviderFailure. UsdcReceived mirrors the requested amount, as if the
// onramp fee had already been deducted by the caller.
type StubOnramp struct {
	FailUserIDs map[string]bool
}

func NewStubOnramp() *StubOnramp {
	return &StubOnramp{FailUserIDs: map[string]bool{}}
}

func (s *StubOnramp) Charge(ctx context.Context, req OnrampChargeRequest) (OnrampChargeResult, error) {
	if s.FailUserIDs[req.UserID] {
		return OnrampChargeResult{}, apperr.New(apperr.KindProviderFailure, "onramp provider declined charge")
	}
	return OnrampChargeResult{
		TxID:         "onramp_" + uuid.NewString(),
		UsdcReceived: req.Amount,
		Status:       "settled",
	}, nil
}

// StubOfframp is a deterministic in-memory OfframpProvider for tests.
type StubOfframp struct {
	FailUserIDs map[string]bool
	Rates       map[string]decimal.Decimal
}

func NewStubOfframp() *StubOfframp {
	return &StubOfframp{FailUserIDs: map[string]bool{}, Rates: map[string]decimal.Decimal{}}
}

func (s *StubOfframp) Settle(ctx context.Context, req OfframpSettleRequest) (OfframpSettleResult, error) {
	if s.FailUserIDs[req.UserID] {
		return OfframpSettleResult{}, apperr.New(apperr.KindProviderFailure, "offramp provider declined settlement")
	}
	rate, ok := s.Rates[req.Currency]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return OfframpSettleResult{
		TxID:        "offramp_" + uuid.NewString(),
		LocalAmount: req.Usdc.Mul(rate).Round(2),
		Currency:    req.Currency,
		Status:      "settled",
	}, nil
}

// StubBalanceOracle is a deterministic in-memory BalanceOracle for tests.
type StubBalanceOracle struct {
	Balances map[string]decimal.Decimal
	Default  decimal.Decimal
}

func NewStubBalanceOracle() *StubBalanceOracle {
	return &StubBalanceOracle{Balances: map[string]decimal.Decimal{}, Default: decimal.NewFromInt(1_000_000)}
}

func (s *StubBalanceOracle) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if b, ok := s.Balances[userID]; ok {
		return b, nil
	}
	return s.Default, nil
}
