// Package payload defines the webhook payload envelope delivered to the
// configured sink (spec.md §4.7 step 1). The provider request/response
// wire shapes live in internal/provider instead, next to the interfaces
// they implement.
//
// Adapted from the teacher's flat Payment/Callback wire payload
// (internal/payload/payload.go) into the richer nested envelope spec.md
// §4.7 requires.
package payload

import (
	"time"

	"github.com/google/uuid"
)

// WebhookFees mirrors the payment's immutable fee snapshot for the
// webhook data block.
type WebhookFees struct {
	Onramp     string `json:"onramp"`
	Corridor   string `json:"corridor"`
	Platform   string `json:"platform"`
	NetworkGas string `json:"networkGas"`
	Total      string `json:"total"`
}

// WebhookData is the `data` block of the webhook envelope (spec.md
// §4.7 step 1).
type WebhookData struct {
	PaymentID         uuid.UUID    `json:"paymentId"`
	Status            string       `json:"status"`
	Amount            string       `json:"amount"`
	DestCurrency      string       `json:"destCurrency"`
	ExchangeRate      string       `json:"exchangeRate"`
	Fees              WebhookFees  `json:"fees"`
	UsdcSent          string       `json:"usdcSent"`
	DestinationAmount string       `json:"destinationAmount"`
	OnrampTxID        *string      `json:"onrampTxId,omitempty"`
	OfframpTxID       *string      `json:"offrampTxId,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
}

// WebhookEnvelope is the full signed payload body delivered to the sink
// URL (spec.md §4.7 step 1).
type WebhookEnvelope struct {
	EventID   uuid.UUID   `json:"eventId"`
	EventType string      `json:"eventType"`
	APIVersion string     `json:"apiVersion"`
	CreatedAt time.Time   `json:"createdAt"`
	Data      WebhookData `json:"data"`
}
