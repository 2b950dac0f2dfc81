// Package model defines the durable domain entities of the orchestrator:
// Payment, Event, and WebhookDelivery, plus the payment status enum and
// its transition table. Adapted from the teacher's flat Payload/
// PaymentEvent value types (internal/model/model.go) into the payment
// domain this system actually serves.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
)

// Status is one of the 11 states of the payment state machine (spec.md
// §4.3).
type Status string

const (
	StatusQuoted           Status = "QUOTED"
	StatusInitiated        Status = "INITIATED"
	StatusConfirmed        Status = "CONFIRMED"
	StatusOnrampPending    Status = "ONRAMP_PENDING"
	StatusOnrampCompleted  Status = "ONRAMP_COMPLETED"
	StatusOnrampFailed     Status = "ONRAMP_FAILED"
	StatusOfframpPending   Status = "OFFRAMP_PENDING"
	StatusOfframpCompleted Status = "OFFRAMP_COMPLETED"
	StatusOfframpFailed    Status = "OFFRAMP_FAILED"
	StatusCompleted        Status = "COMPLETED"
	StatusFailed           Status = "FAILED"
)

// IsTerminal reports whether status is one from which no further
// transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventType is the dotted lower-case form of a status used on Event
// records and webhook deliveries (e.g. "onramp.pending").
func (s Status) EventType() string {
	switch s {
	case StatusQuoted:
		return "payment.quoted"
	case StatusInitiated:
		return "payment.initiated"
	case StatusConfirmed:
		return "payment.confirmed"
	case StatusOnrampPending:
		return "onramp.pending"
	case StatusOnrampCompleted:
		return "onramp.completed"
	case StatusOnrampFailed:
		return "onramp.failed"
	case StatusOfframpPending:
		return "offramp.pending"
	case StatusOfframpCompleted:
		return "offramp.completed"
	case StatusOfframpFailed:
		return "offramp.failed"
	case StatusCompleted:
		return "payment.completed"
	case StatusFailed:
		return "payment.failed"
	default:
		return "payment.unknown"
	}
}

// transitions enumerates the permitted edges of spec.md §4.3. A status not
// present as a key has no permitted outgoing transitions.
var transitions = map[Status][]Status{
	StatusInitiated:        {StatusConfirmed},
	StatusConfirmed:        {StatusOnrampPending},
	StatusOnrampPending:    {StatusOnrampCompleted, StatusOnrampFailed},
	StatusOnrampCompleted:  {StatusOfframpPending},
	StatusOfframpPending:   {StatusOfframpCompleted, StatusOfframpFailed},
	StatusOfframpCompleted: {StatusCompleted},
	StatusOnrampFailed:     {StatusFailed},
	StatusOfframpFailed:    {StatusFailed},
}

// ValidateTransition returns apperr.KindInvalidStateTransition if moving
// from `from` to `to` is not a permitted edge.
func ValidateTransition(from, to Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.New(apperr.KindInvalidStateTransition,
		"cannot transition from "+string(from)+" to "+string(to))
}

// Method is the payment method used to fund the onramp leg. Stored
// explicitly on Payment rather than reconstructed from onramp_fee == 0,
// resolving the first Open Question of spec.md §9.
type Method string

const (
	MethodACH  Method = "ach"
	MethodCard Method = "card"
)

// HandlingMode controls whether fees are deducted from the sent amount or
// charged on top of it.
type HandlingMode string

const (
	ModeInclusive HandlingMode = "inclusive"
	ModeAdditive  HandlingMode = "additive"
)

// FeeBreakdown is the immutable fee snapshot captured at Payment
// creation.
type FeeBreakdown struct {
	Onramp     decimal.Decimal
	Corridor   decimal.Decimal
	Platform   decimal.Decimal
	NetworkGas decimal.Decimal
	Total      decimal.Decimal
}

// Payment is the aggregate root of spec.md §3.
type Payment struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	SourceCurrency      string // always "USD"
	DestCurrency        string
	Amount              decimal.Decimal
	Method              Method
	HandlingMode        HandlingMode
	Fees                FeeBreakdown
	ExchangeRate        decimal.Decimal
	DestinationAmount   decimal.Decimal
	UsdcSent            decimal.Decimal
	QuoteID             *uuid.UUID
	QuoteExpiresAt      time.Time
	Status              Status
	OnrampTxID          *string
	OfframpTxID         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// QuoteExpired reports whether the payment's quote window has lapsed as
// of `now`. Enforced at confirm, not by a background timer (spec.md §5).
func (p *Payment) QuoteExpired(now time.Time) bool {
	return now.After(p.QuoteExpiresAt)
}

// Event is an append-only record of a status transition (spec.md §3).
type Event struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Type      string
	Status    Status
	Metadata  EventMetadata
	Timestamp time.Time
}

// EventMetadata is schemaless per spec.md §9's design note; modeled as a
// free-form map keyed by event-specific fields rather than a single
// heterogeneous struct, so each event type supplies only what it needs.
type EventMetadata map[string]interface{}

// DeliveryStatus is the lifecycle of a WebhookDelivery row.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// WebhookDelivery is a single durable record per attempt group (spec.md
// §9 resolves the teacher's duplicate-row behavior into exactly one row
// mutated across retries).
type WebhookDelivery struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	EventType      string
	Payload        []byte
	Signature      string
	Status         DeliveryStatus
	Attempts       int
	MaxAttempts    int
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	ResponseStatus *int
	ResponseBody   *string
	CreatedAt      time.Time
}
