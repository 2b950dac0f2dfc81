// Package provider defines the external settlement interfaces the
// orchestrator consumes (spec.md §6 "Provider contracts (consumed)"):
// onramp, offramp, and a balance oracle. No network code lives here —
// the deterministic in-memory stubs in stub.go, used by the tests and by
// the cmd binaries, are the only implementations, matching the seam
// anthonyalando8-pxyz draws between its own wallet-settlement ports and
// the HTTP/gRPC clients that implement them.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/fee"
)

// OnrampChargeRequest is the input to OnrampProvider.Charge.
type OnrampChargeRequest struct {
	Amount decimal.Decimal
	Method fee.Method
	UserID string
}

// OnrampChargeResult is the onramp provider's response.
type OnrampChargeResult struct {
	TxID         string
	UsdcReceived decimal.Decimal
	Status       string
	Timestamp    time.Time
}

// OnrampProvider charges the caller's chosen funding method and returns
// the USDC received net of the provider's own settlement.
type OnrampProvider interface {
	Charge(ctx context.Context, req OnrampChargeRequest) (OnrampChargeResult, error)
}

// OfframpSettleRequest is the input to OfframpProvider.Settle.
type OfframpSettleRequest struct {
	Usdc     decimal.Decimal
	Currency string
	UserID   string
}

// OfframpSettleResult is the offramp provider's response.
type OfframpSettleResult struct {
	TxID        string
	LocalAmount decimal.Decimal
	Currency    string
	Status      string
	Timestamp   time.Time
}

// OfframpProvider converts settled USDC into the destination currency in
// the recipient's account.
type OfframpProvider interface {
	Settle(ctx context.Context, req OfframpSettleRequest) (OfframpSettleResult, error)
}

// BalanceOracle reports a user's available balance, consulted ahead of
// confirm to reject with InsufficientBalance before any state mutation.
type BalanceOracle interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}
