// Package api implements the HTTP API (spec component J): the three
// mutating endpoints (quote, initiate, confirm) wrapped in the
// idempotency middleware where required, plus request/response DTOs.
// Grounded on the go-chi router conventions of
// anthonyalando8-pxyz/services/common-services/fx-services/payment-service/internal/router/router.go,
// adapted from zap to the teacher's log/slog.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/event"
	"github.com/suncoastpay/orchestrator/internal/fee"
	"github.com/suncoastpay/orchestrator/internal/model"
	"github.com/suncoastpay/orchestrator/internal/provider"
	"github.com/suncoastpay/orchestrator/internal/quote"
)

// Handlers holds the collaborators the API surface needs: the Quote
// Service, the Payment/JobQueue stores, and the balance oracle consulted
// at confirm.
type Handlers struct {
	quotes   *quote.Service
	payments *db.PaymentRepository
	jobs     *db.JobQueueRepository
	balances provider.BalanceOracle
	logger   *slog.Logger
}

func NewHandlers(quotes *quote.Service, payments *db.PaymentRepository, jobs *db.JobQueueRepository, balances provider.BalanceOracle, logger *slog.Logger) *Handlers {
	return &Handlers{quotes: quotes, payments: payments, jobs: jobs, balances: balances, logger: logger}
}

// UserID extracts the caller's opaque user id from the X-User-Id header.
// Authentication itself is an out-of-scope collaborator per spec.md §1.
func UserID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

type quoteRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	DestinationCurrency string        `json:"destination_currency"`
	PaymentMethod     string          `json:"payment_method"`
	FeeHandling       string          `json:"fee_handling"`
}

type feesResponse struct {
	InputAmount string `json:"input_amount"`
	Fees        struct {
		Onramp     string `json:"onramp"`
		Corridor   string `json:"corridor"`
		Platform   string `json:"platform"`
		NetworkGas string `json:"network_gas"`
		Total      string `json:"total"`
	} `json:"fees"`
	UsdcSent          string `json:"usdc_sent"`
	DestinationAmount string `json:"destination_amount"`
	EffectiveRate     string `json:"effective_rate"`
}

type quoteResponse struct {
	QuoteID      uuid.UUID    `json:"quote_id"`
	ExpiresAt    time.Time    `json:"expires_at"`
	ExchangeRate string       `json:"exchange_rate"`
	Breakdown    feesResponse `json:"breakdown"`
	Margin       string       `json:"margin"`
}

// Quote handles POST /api/v1/quote.
func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	mode := fee.ModeInclusive
	if req.FeeHandling != "" {
		mode = fee.HandlingMode(req.FeeHandling)
	}

	q, err := h.quotes.Quote(r.Context(), req.Amount, fee.Method(req.PaymentMethod), fee.Corridor(req.DestinationCurrency), mode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := quoteResponse{
		QuoteID:      q.ID,
		ExpiresAt:    q.ExpiresAt,
		ExchangeRate: q.ExchangeRate.String(),
		Margin:       q.Fees.Total.DivRound(q.Amount, 6).String(),
	}
	resp.Breakdown.InputAmount = q.Amount.String()
	resp.Breakdown.Fees.Onramp = q.Fees.Onramp.String()
	resp.Breakdown.Fees.Corridor = q.Fees.Corridor.String()
	resp.Breakdown.Fees.Platform = q.Fees.Platform.String()
	resp.Breakdown.Fees.NetworkGas = q.Fees.NetworkGas.String()
	resp.Breakdown.Fees.Total = q.Fees.Total.String()
	resp.Breakdown.UsdcSent = q.Fees.UsdcSent.String()
	resp.Breakdown.DestinationAmount = q.DestinationAmount.String()
	resp.Breakdown.EffectiveRate = q.EffectiveRate.String()

	writeJSON(w, http.StatusOK, resp)
}

type initiateRequest struct {
	QuoteID             *uuid.UUID      `json:"quote_id,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	DestinationCurrency string          `json:"destination_currency"`
	PaymentMethod       string          `json:"payment_method"`
	FeeHandling         string          `json:"fee_handling"`
}

type initiateResponse struct {
	PaymentID        uuid.UUID    `json:"payment_id"`
	Status           model.Status `json:"status"`
	QuoteExpiresAt   time.Time    `json:"quote_expires_at"`
}

// Initiate handles POST /api/v1/initiate. The idempotency middleware
// wraps this handler at mount time (spec.md §4.5).
func (h *Handlers) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID, err := uuid.Parse(UserID(r))
	if err != nil {
		writeError(w, h.logger, apperr.New(apperr.KindInvalidInput, "X-User-Id header must be a UUID"))
		return
	}

	mode := fee.ModeInclusive
	if req.FeeHandling != "" {
		mode = fee.HandlingMode(req.FeeHandling)
	}
	method := fee.Method(req.PaymentMethod)
	corridor := fee.Corridor(req.DestinationCurrency)

	q, err := h.quotes.Quote(r.Context(), req.Amount, method, corridor, mode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	quoteID := q.ID
	if req.QuoteID != nil {
		quoteID = *req.QuoteID
	}

	now := time.Now().UTC()
	payment := &model.Payment{
		ID:                uuid.New(),
		UserID:            userID,
		SourceCurrency:    "USD",
		DestCurrency:      string(corridor),
		Amount:            req.Amount,
		Method:            model.Method(method),
		HandlingMode:      model.HandlingMode(mode),
		Fees: model.FeeBreakdown{
			Onramp:     q.Fees.Onramp,
			Corridor:   q.Fees.Corridor,
			Platform:   q.Fees.Platform,
			NetworkGas: q.Fees.NetworkGas,
			Total:      q.Fees.Total,
		},
		ExchangeRate:      q.ExchangeRate,
		DestinationAmount: q.DestinationAmount,
		UsdcSent:          q.Fees.UsdcSent,
		QuoteID:           &quoteID,
		QuoteExpiresAt:    q.ExpiresAt,
		Status:            model.StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if _, err := h.payments.CreateInitiated(r.Context(), payment); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, initiateResponse{
		PaymentID:      payment.ID,
		Status:         payment.Status,
		QuoteExpiresAt: payment.QuoteExpiresAt,
	})
}

type confirmRequest struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

type confirmResponse struct {
	PaymentID  uuid.UUID    `json:"payment_id"`
	Status     model.Status `json:"status"`
	Processing bool         `json:"processing"`
}

// Confirm handles POST /api/v1/confirm. The idempotency middleware wraps
// this handler at mount time (spec.md §4.5).
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := h.payments.GetByID(r.Context(), req.PaymentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if payment.QuoteExpired(time.Now().UTC()) {
		writeError(w, h.logger, apperr.New(apperr.KindQuoteExpired, "quote has expired, request a new quote"))
		return
	}

	balance, err := h.balances.Balance(r.Context(), payment.UserID.String())
	if err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInternal, "balance oracle lookup failed", err))
		return
	}
	if balance.LessThan(payment.Amount) {
		writeError(w, h.logger, apperr.New(apperr.KindInsufficientBalance, "insufficient balance for this payment"))
		return
	}

	updated, _, err := h.payments.Transition(r.Context(), payment.ID, model.StatusConfirmed, event.Empty(), nil)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.jobs.EnqueuePaymentJob(r.Context(), updated.ID); err != nil {
		writeError(w, h.logger, apperr.Wrap(apperr.KindInternal, "failed to enqueue payment job", err))
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		PaymentID:  updated.ID,
		Status:     updated.Status,
		Processing: true,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, h.logger, apperr.New(apperr.KindInvalidInput, "malformed request body"))
		return false
	}
	return true
}
