package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suncoastpay/orchestrator/internal/model"
)

// EventRepository is the read side of the Event Log (spec.md §2
// component F) used by the fan-out endpoints to fetch the initial burst
// and to poll for new rows past a high-water mark.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// ListByPayment returns every event for paymentID, oldest first.
func (r *EventRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, type, status, metadata, "timestamp"
		FROM event WHERE payment_id = $1 ORDER BY "timestamp"`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByPaymentSince returns events for paymentID strictly newer than
// after, oldest first — the fan-out poll query.
func (r *EventRepository) ListByPaymentSince(ctx context.Context, paymentID uuid.UUID, after time.Time) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, type, status, metadata, "timestamp"
		FROM event WHERE payment_id = $1 AND "timestamp" > $2 ORDER BY "timestamp"`, paymentID, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByPaymentsSince returns events across any of the given payment ids
// newer than after, oldest first — the per-user fan-out poll query.
func (r *EventRepository) ListByPaymentsSince(ctx context.Context, paymentIDs []uuid.UUID, after time.Time) ([]model.Event, error) {
	if len(paymentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, type, status, metadata, "timestamp"
		FROM event WHERE payment_id = ANY($1) AND "timestamp" > $2 ORDER BY "timestamp"`, paymentIDs, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByPaymentsNewestFirst is the initial burst for the per-user stream
// (spec.md §4.8: "all events across those payments, newest-first").
func (r *EventRepository) ListByPaymentsNewestFirst(ctx context.Context, paymentIDs []uuid.UUID) ([]model.Event, error) {
	if len(paymentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, payment_id, type, status, metadata, "timestamp"
		FROM event WHERE payment_id = ANY($1) ORDER BY "timestamp" DESC`, paymentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

type eventRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows eventRows) ([]model.Event, error) {
	var out []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Type, &e.Status, &e.Metadata, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
