package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/suncoastpay/orchestrator/internal/model"
	"github.com/suncoastpay/orchestrator/internal/payload"
)

const apiVersion = "2026-01-01"

// BuildEnvelope assembles the payload envelope for p's current status
// (spec.md §4.7 step 1): event id, event type, api version, created_at,
// and a data block with the payment's identity, status, amounts, fee
// breakdown, and lifecycle timestamps.
func BuildEnvelope(p *model.Payment) payload.WebhookEnvelope {
	return payload.WebhookEnvelope{
		EventID:    uuid.New(),
		EventType:  p.Status.EventType(),
		APIVersion: apiVersion,
		CreatedAt:  time.Now().UTC(),
		Data: payload.WebhookData{
			PaymentID:    p.ID,
			Status:       string(p.Status),
			Amount:       p.Amount.String(),
			DestCurrency: p.DestCurrency,
			ExchangeRate: p.ExchangeRate.String(),
			Fees: payload.WebhookFees{
				Onramp:     p.Fees.Onramp.String(),
				Corridor:   p.Fees.Corridor.String(),
				Platform:   p.Fees.Platform.String(),
				NetworkGas: p.Fees.NetworkGas.String(),
				Total:      p.Fees.Total.String(),
			},
			UsdcSent:          p.UsdcSent.String(),
			DestinationAmount: p.DestinationAmount.String(),
			OnrampTxID:        p.OnrampTxID,
			OfframpTxID:       p.OfframpTxID,
			CreatedAt:         p.CreatedAt,
			UpdatedAt:         p.UpdatedAt,
			CompletedAt:       p.CompletedAt,
		},
	}
}
