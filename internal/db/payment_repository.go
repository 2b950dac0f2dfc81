package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
	"github.com/suncoastpay/orchestrator/internal/model"
)

// PaymentRepository is the Payment Store (spec.md §2 component E),
// combined with the state-machine atomicity §4.3 requires: every status
// mutation writes the Payment row, appends one Event, and enqueues one
// webhook job as a single Postgres transaction. Grounded on the
// BeginTx/Commit/Rollback shape of internal/db/repository.go and
// internal/callback/processor.go's row-level SELECT ... FOR UPDATE.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// CreateInitiated inserts a new Payment in INITIATED status and appends
// its first event ("payment.initiated") plus the matching webhook job, as
// one transaction. The Payment Store's uniqueness on quote_id is what
// prevents a concurrent idempotency race from double-creating a payment
// for the same quote (spec.md §4.5).
func (r *PaymentRepository) CreateInitiated(ctx context.Context, p *model.Payment) (*model.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO payment (
			id, user_id, source_currency, dest_currency, amount, method, handling_mode,
			fee_onramp, fee_corridor, fee_platform, fee_network_gas, fee_total,
			exchange_rate, destination_amount, usdc_sent,
			quote_id, quote_expires_at, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		p.ID, p.UserID, p.SourceCurrency, p.DestCurrency, p.Amount, p.Method, p.HandlingMode,
		p.Fees.Onramp, p.Fees.Corridor, p.Fees.Platform, p.Fees.NetworkGas, p.Fees.Total,
		p.ExchangeRate, p.DestinationAmount, p.UsdcSent,
		p.QuoteID, p.QuoteExpiresAt, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errorsAsPgErr(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.Wrap(apperr.KindInternal, "duplicate payment for quote", err)
		}
		return nil, err
	}

	ev, err := insertEvent(ctx, tx, p.ID, p.Status, model.EventMetadata{})
	if err != nil {
		return nil, err
	}

	if err := enqueueWebhookJob(ctx, tx, p.ID, p.Status.EventType()); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetByID loads a payment row for plain reads (no lock).
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx, selectPaymentColumns+" FROM payment WHERE id = $1", id)
	p, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "payment not found")
		}
		return nil, err
	}
	return p, nil
}

// ListIDsByUser returns every payment id owned by userID, newest first.
func (r *PaymentRepository) ListIDsByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM payment WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListSummariesByUser returns the lightweight payment projection the
// per-user fan-out enriches each event with.
func (r *PaymentRepository) ListSummariesByUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]PaymentSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, amount, dest_currency, status, created_at
		FROM payment WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[uuid.UUID]PaymentSummary{}
	for rows.Next() {
		var s PaymentSummary
		if err := rows.Scan(&s.ID, &s.Amount, &s.DestCurrency, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// PaymentSummary is the minimal projection embedded in per-user fan-out
// frames (spec.md §4.8).
type PaymentSummary struct {
	ID           uuid.UUID
	Amount       decimal.Decimal
	DestCurrency string
	Status       model.Status
	CreatedAt    time.Time
}

// Transition loads the payment row FOR UPDATE, validates the move from
// its current status to `to`, applies `mutate` (e.g. to set onramp_tx_id
// before the row is rewritten), and then — in the same transaction —
// updates the row, appends the Event, and enqueues the webhook job. All
// three writes commit together or none do, satisfying spec.md §4.3's
// atomicity requirement.
func (r *PaymentRepository) Transition(
	ctx context.Context,
	paymentID uuid.UUID,
	to model.Status,
	metadata model.EventMetadata,
	mutate func(p *model.Payment),
) (*model.Payment, *model.Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, selectPaymentColumns+" FROM payment WHERE id = $1 FOR UPDATE", paymentID)
	p, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, apperr.New(apperr.KindNotFound, "payment not found")
		}
		return nil, nil, err
	}

	if err := model.ValidateTransition(p.Status, to); err != nil {
		return nil, nil, err
	}

	if mutate != nil {
		mutate(p)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	if to.IsTerminal() {
		completedAt := p.UpdatedAt
		p.CompletedAt = &completedAt
	}

	_, err = tx.Exec(ctx, `
		UPDATE payment SET status = $1, onramp_tx_id = $2, offramp_tx_id = $3,
			updated_at = $4, completed_at = $5 WHERE id = $6`,
		p.Status, p.OnrampTxID, p.OfframpTxID, p.UpdatedAt, p.CompletedAt, p.ID,
	)
	if err != nil {
		return nil, nil, err
	}

	ev, err := insertEvent(ctx, tx, p.ID, p.Status, metadata)
	if err != nil {
		return nil, nil, err
	}

	if err := enqueueWebhookJob(ctx, tx, p.ID, p.Status.EventType()); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return p, ev, nil
}

const selectPaymentColumns = `SELECT
	id, user_id, source_currency, dest_currency, amount, method, handling_mode,
	fee_onramp, fee_corridor, fee_platform, fee_network_gas, fee_total,
	exchange_rate, destination_amount, usdc_sent,
	quote_id, quote_expires_at, status, onramp_tx_id, offramp_tx_id,
	created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var p model.Payment
	var quoteID *uuid.UUID
	err := row.Scan(
		&p.ID, &p.UserID, &p.SourceCurrency, &p.DestCurrency, &p.Amount, &p.Method, &p.HandlingMode,
		&p.Fees.Onramp, &p.Fees.Corridor, &p.Fees.Platform, &p.Fees.NetworkGas, &p.Fees.Total,
		&p.ExchangeRate, &p.DestinationAmount, &p.UsdcSent,
		&quoteID, &p.QuoteExpiresAt, &p.Status, &p.OnrampTxID, &p.OfframpTxID,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	p.QuoteID = quoteID
	p.Fees.Total = p.Fees.Onramp.Add(p.Fees.Corridor).Add(p.Fees.Platform).Add(p.Fees.NetworkGas)
	return &p, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, status model.Status, metadata model.EventMetadata) (*model.Event, error) {
	ev := &model.Event{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Type:      status.EventType(),
		Status:    status,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
	_, err := tx.Exec(ctx, `INSERT INTO event (id, payment_id, type, status, metadata, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ev.ID, ev.PaymentID, ev.Type, ev.Status, metadataOrEmpty(metadata), ev.Timestamp)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func metadataOrEmpty(m model.EventMetadata) model.EventMetadata {
	if m == nil {
		return model.EventMetadata{}
	}
	return m
}

func errorsAsPgErr(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			*target = pgErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
