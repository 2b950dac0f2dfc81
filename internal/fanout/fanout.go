// Package fanout implements the Event Fan-out component (spec component
// K): long-lived per-payment and per-user SSE streams over the durable
// Event Log, tailed by polling rather than a pub-sub subscription.
//
// Grounded on smallbiznis-valora/internal/server/meter_live_events.go's
// flush loop, heartbeat ticker, and SSE headers, adapted from gin to
// plain net/http and from an in-process subscription to a poll-the-store
// tail (spec.md §4.8: "500ms poll tick against the Event Log").
package fanout

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/suncoastpay/orchestrator/internal/apperr"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/model"
)

const (
	pollInterval = 500 * time.Millisecond
	heartbeatInterval = 15 * time.Second
)

// Handlers serves the two SSE endpoints over the Event/Payment
// repositories.
type Handlers struct {
	events   *db.EventRepository
	payments *db.PaymentRepository
	logger   *slog.Logger
}

func NewHandlers(events *db.EventRepository, payments *db.PaymentRepository, logger *slog.Logger) *Handlers {
	return &Handlers{events: events, payments: payments, logger: logger}
}

type eventFrame struct {
	EventID   uuid.UUID            `json:"eventId"`
	PaymentID uuid.UUID            `json:"paymentId"`
	Type      string               `json:"type"`
	Status    model.Status         `json:"status"`
	Metadata  model.EventMetadata  `json:"metadata"`
	Timestamp time.Time            `json:"timestamp"`
}

type userEventFrame struct {
	eventFrame
	Amount       string       `json:"amount"`
	DestCurrency string       `json:"destCurrency"`
	PaymentStatus model.Status `json:"paymentStatus"`
	CreatedAt    time.Time    `json:"createdAt"`
}

func toFrame(e model.Event) eventFrame {
	return eventFrame{
		EventID:   e.ID,
		PaymentID: e.PaymentID,
		Type:      e.Type,
		Status:    e.Status,
		Metadata:  e.Metadata,
		Timestamp: e.Timestamp,
	}
}

func prepareSSE(w http.ResponseWriter) (http.Flusher, error) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apperr.New(apperr.KindInternal, "streaming unsupported by response writer")
	}
	w.WriteHeader(http.StatusOK)
	return flusher, nil
}

func writeFrame(w io.Writer, eventName string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
	return err
}

func writeHeartbeat(w io.Writer) error {
	_, err := io.WriteString(w, ": heartbeat\n\n")
	return err
}

// PaymentEvents handles GET /api/v1/events/:paymentId (spec.md §6): push
// stream framed `event: payment.event`, terminal frame
// `event: payment.complete` once the payment reaches a terminal status.
func (h *Handlers) PaymentEvents(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.payments.GetByID(ctx, paymentID); err != nil {
		status := apperr.HTTPStatus(apperr.KindOf(err))
		http.Error(w, "payment not found", status)
		return
	}

	flusher, err := prepareSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	backlog, err := h.events.ListByPayment(ctx, paymentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load event backlog", "error", err)
		return
	}

	var last time.Time
	for _, e := range backlog {
		if err := writeFrame(w, "payment.event", toFrame(e)); err != nil {
			return
		}
		last = e.Timestamp
	}
	flusher.Flush()

	if terminalReached(backlog) {
		_ = writeFrame(w, "payment.complete", map[string]string{"paymentId": paymentID.String()})
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := writeHeartbeat(w); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			fresh, err := h.events.ListByPaymentSince(ctx, paymentID, last)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to poll events", "error", err)
				continue
			}
			if len(fresh) == 0 {
				continue
			}
			for _, e := range fresh {
				if err := writeFrame(w, "payment.event", toFrame(e)); err != nil {
					return
				}
				last = e.Timestamp
			}
			flusher.Flush()
			if terminalReached(fresh) {
				_ = writeFrame(w, "payment.complete", map[string]string{"paymentId": paymentID.String()})
				flusher.Flush()
				return
			}
		}
	}
}

func terminalReached(events []model.Event) bool {
	for _, e := range events {
		if e.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// UserEvents handles GET /api/v1/events/user/:userId (spec.md §6): push
// stream framed `event: user.event`, spanning every payment owned by the
// user, never terminating.
func (h *Handlers) UserEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	flusher, err := prepareSSE(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	ids, err := h.payments.ListIDsByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list payments for user", "error", err)
		return
	}

	backlog, err := h.events.ListByPaymentsNewestFirst(ctx, ids)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load event backlog", "error", err)
		return
	}

	summaries, err := h.payments.ListSummariesByUser(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load payment summaries", "error", err)
		return
	}

	last := time.Time{}
	for _, e := range backlog {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
		if err := writeFrame(w, "user.event", enrich(e, summaries)); err != nil {
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := writeHeartbeat(w); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			ids, err := h.payments.ListIDsByUser(ctx, userID)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to list payments for user", "error", err)
				continue
			}
			fresh, err := h.events.ListByPaymentsSince(ctx, ids, last)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to poll events", "error", err)
				continue
			}
			if len(fresh) == 0 {
				continue
			}
			summaries, err := h.payments.ListSummariesByUser(ctx, userID)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to load payment summaries", "error", err)
				continue
			}
			for _, e := range fresh {
				if e.Timestamp.After(last) {
					last = e.Timestamp
				}
				if err := writeFrame(w, "user.event", enrich(e, summaries)); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

func enrich(e model.Event, summaries map[uuid.UUID]db.PaymentSummary) userEventFrame {
	frame := userEventFrame{eventFrame: toFrame(e)}
	if s, ok := summaries[e.PaymentID]; ok {
		frame.Amount = s.Amount.String()
		frame.DestCurrency = s.DestCurrency
		frame.PaymentStatus = s.Status
		frame.CreatedAt = s.CreatedAt
	}
	return frame
}
