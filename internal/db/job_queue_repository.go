package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suncoastpay/orchestrator/internal/message"
)

// Job kinds staged in job_queue (SUPPLEMENTED FEATURES: Kafka has no
// native attempt/backoff bookkeeping, so a Postgres staging table
// provides it, mirroring the teacher's callback_message table).
const (
	KindPaymentProcessing = "payment-processing"
	KindWebhookDelivery   = "webhook-delivery"
)

// JobRow is an unpublished-or-retryable row in job_queue.
type JobRow struct {
	ID          uuid.UUID
	Kind        string
	Payload     []byte
	Attempts    int
	MaxAttempts int
	ScheduledAt time.Time
}

// enqueuePaymentJob stages a payment-processing job for paymentID. The
// job_queue row id is generated here and carried in the payload itself
// (message.PaymentJob.JobID) so the worker can requeue this exact row on
// a processing failure rather than only a publish failure.
func enqueuePaymentJob(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
	id := uuid.New()
	payload, err := json.Marshal(message.PaymentJob{JobID: id, PaymentID: paymentID})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO job_queue (id, kind, payload) VALUES ($1, $2, $3)`,
		id, KindPaymentProcessing, payload)
	return err
}

// enqueueWebhookJob stages a webhook-delivery job for the given event
// type on paymentID. Called from inside the same transaction that writes
// the Payment status update and the Event row (spec.md §4.3 atomicity).
func enqueueWebhookJob(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID, eventType string) error {
	id := uuid.New()
	payload, err := json.Marshal(message.WebhookJob{JobID: id, PaymentID: paymentID, EventType: eventType})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO job_queue (id, kind, payload) VALUES ($1, $2, $3)`,
		id, KindWebhookDelivery, payload)
	return err
}

// JobQueueRepository is the job staging table's repository: fetch due
// rows, mark them published, reschedule on publish failure, and requeue
// on processing failure. Grounded on internal/callback/producer.go's
// GetUnprocessedCallbacks/Update pair and internal/callback/processor.go's
// UpdateScheduledAtAndAttemptsByID.
type JobQueueRepository struct {
	pool *pgxpool.Pool
}

func NewJobQueueRepository(pool *pgxpool.Pool) *JobQueueRepository {
	return &JobQueueRepository{pool: pool}
}

// EnqueuePaymentJob stages a payment-processing job outside of any
// existing transaction (used by /confirm, which has no other write to
// join).
func (r *JobQueueRepository) EnqueuePaymentJob(ctx context.Context, paymentID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := enqueuePaymentJob(ctx, tx, paymentID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FetchDue returns up to limit unpublished rows of the given kind whose
// scheduled_at has elapsed and whose attempts are still below
// max_attempts, oldest first.
func (r *JobQueueRepository) FetchDue(ctx context.Context, kind string, limit int) ([]JobRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, payload, attempts, max_attempts, scheduled_at
		FROM job_queue
		WHERE kind = $1 AND published_at IS NULL AND scheduled_at <= now() AND attempts < max_attempts
		ORDER BY scheduled_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		var j JobRow
		if err := rows.Scan(&j.ID, &j.Kind, &j.Payload, &j.Attempts, &j.MaxAttempts, &j.ScheduledAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkPublished records that a row was handed off to Kafka successfully.
func (r *JobQueueRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE job_queue SET published_at = now() WHERE id = $1`, id)
	return err
}

// Reschedule records attempts and the last error and pushes scheduled_at
// out by the caller-supplied delay. Once attempts reaches max_attempts the
// row is left unpublished and FetchDue no longer returns it, so it is not
// retried automatically — an operator alert, not a silent drop. Used only by the publish loop
// itself (internal/queue.Producer), whose failures happen before
// published_at is ever set.
func (r *JobQueueRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, delay time.Duration, lastErr string) error {
	nextAt := time.Now().UTC().Add(delay)
	_, err := r.pool.Exec(ctx, `
		UPDATE job_queue SET attempts = $1, scheduled_at = $2, error = $3
		WHERE id = $4`, attempts, nextAt, lastErr, id)
	return err
}

// GetByID loads a single row by its job_queue id, used by the
// orchestrator and webhook workers to read the attempt count at the
// point of a processing failure.
func (r *JobQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*JobRow, error) {
	var j JobRow
	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, payload, attempts, max_attempts, scheduled_at
		FROM job_queue WHERE id = $1`, id).
		Scan(&j.ID, &j.Kind, &j.Payload, &j.Attempts, &j.MaxAttempts, &j.ScheduledAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// RequeueForRetry clears published_at and pushes scheduled_at out by
// delay, making the row visible to FetchDue again so the producer
// republishes it to Kafka. This is the redelivery mechanism for a job
// that failed during processing, after Kafka already had it — distinct
// from Reschedule, which only ever runs before published_at is set.
func (r *JobQueueRepository) RequeueForRetry(ctx context.Context, id uuid.UUID, attempts int, delay time.Duration, lastErr string) error {
	nextAt := time.Now().UTC().Add(delay)
	_, err := r.pool.Exec(ctx, `
		UPDATE job_queue SET published_at = NULL, attempts = $1, scheduled_at = $2, error = $3
		WHERE id = $4`, attempts, nextAt, lastErr, id)
	return err
}
