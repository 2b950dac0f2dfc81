package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suncoastpay/orchestrator/internal/model"
)

// WebhookRepository persists WebhookDelivery rows: one row per attempt
// group, mutated across retries (spec.md §9 resolves the teacher's
// duplicate-row-per-exception-branch behavior into this single-row
// model). Grounded on internal/callback/processor.go's
// SelectForUpdateByID / Update pair.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

// Create inserts the frozen payload+signature. The webhook Processor
// calls it the first time it processes a (payment, event type) job, not
// when the job is enqueued; later attempts reuse the stored row.
func (r *WebhookRepository) Create(ctx context.Context, d *model.WebhookDelivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_delivery (id, payment_id, event_type, payload, signature, status, attempts, max_attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.PaymentID, d.EventType, d.Payload, d.Signature, d.Status, d.Attempts, d.MaxAttempts, d.CreatedAt)
	return err
}

// BeginTx exposes a raw transaction for callers (the webhook worker) that
// need SELECT ... FOR UPDATE semantics across a send+update pair.
func (r *WebhookRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// SelectForUpdate loads a delivery row with a row lock, serializing
// concurrent retry attempts for the same delivery.
func (r *WebhookRepository) SelectForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.WebhookDelivery, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, payment_id, event_type, payload, signature, status, attempts, max_attempts,
			last_attempt_at, next_retry_at, response_status, response_body, created_at
		FROM webhook_delivery WHERE id = $1 FOR UPDATE`, id)

	var d model.WebhookDelivery
	err := row.Scan(&d.ID, &d.PaymentID, &d.EventType, &d.Payload, &d.Signature, &d.Status,
		&d.Attempts, &d.MaxAttempts, &d.LastAttemptAt, &d.NextRetryAt, &d.ResponseStatus, &d.ResponseBody, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecordDelivered marks the delivery as successfully sent.
func (r *WebhookRepository) RecordDelivered(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, respStatus int, respBody string) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE webhook_delivery
		SET status = $1, attempts = $2, last_attempt_at = $3, next_retry_at = NULL,
			response_status = $4, response_body = $5
		WHERE id = $6`,
		model.DeliveryDelivered, attempts, now, &respStatus, &respBody, id)
	return err
}

// RecordRetry marks the delivery as failed-but-retryable and schedules
// the next attempt using the caller-computed backoff delay.
func (r *WebhookRepository) RecordRetry(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, delay time.Duration, lastErr string) error {
	now := time.Now().UTC()
	next := now.Add(delay)
	_, err := tx.Exec(ctx, `
		UPDATE webhook_delivery
		SET status = $1, attempts = $2, last_attempt_at = $3, next_retry_at = $4, response_body = $5
		WHERE id = $6`,
		model.DeliveryFailed, attempts, now, next, &lastErr, id)
	return err
}

// RecordExhausted marks the delivery as permanently failed after
// max_attempts retries (spec.md §4.7 step 3).
func (r *WebhookRepository) RecordExhausted(ctx context.Context, tx pgx.Tx, id uuid.UUID, attempts int, lastErr string) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE webhook_delivery
		SET status = $1, attempts = $2, last_attempt_at = $3, next_retry_at = NULL, response_body = $4
		WHERE id = $5`,
		model.DeliveryExhausted, attempts, now, &lastErr, id)
	return err
}

// FindByPaymentAndEventType looks up the existing delivery for a
// (paymentID, eventType) pair, used by the webhook worker to resume a
// redelivered Kafka job against the same row instead of creating a
// duplicate.
func (r *WebhookRepository) FindByPaymentAndEventType(ctx context.Context, paymentID uuid.UUID, eventType string) (*model.WebhookDelivery, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, payment_id, event_type, payload, signature, status, attempts, max_attempts,
			last_attempt_at, next_retry_at, response_status, response_body, created_at
		FROM webhook_delivery WHERE payment_id = $1 AND event_type = $2
		ORDER BY created_at DESC LIMIT 1`, paymentID, eventType)

	var d model.WebhookDelivery
	err := row.Scan(&d.ID, &d.PaymentID, &d.EventType, &d.Payload, &d.Signature, &d.Status,
		&d.Attempts, &d.MaxAttempts, &d.LastAttemptAt, &d.NextRetryAt, &d.ResponseStatus, &d.ResponseBody, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
