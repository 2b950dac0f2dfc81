package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/suncoastpay/orchestrator/internal/config"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/logcontext"
	"github.com/suncoastpay/orchestrator/internal/message"
	"github.com/suncoastpay/orchestrator/internal/model"
)

var (
	deliveredCounter = metrics.GetOrCreateCounter(`webhook_delivery_total{result="delivered"}`)
	retriedCounter   = metrics.GetOrCreateCounter(`webhook_delivery_total{result="retried"}`)
	exhaustedCounter = metrics.GetOrCreateCounter(`webhook_delivery_total{result="exhausted"}`)
)

const backoffBase = 2 * time.Second
const maxAttemptsDefault = 3

// Processor consumes webhook-delivery jobs, bounded to a fixed number of
// concurrent deliveries, same semaphore idiom as
// internal/callback/processor.go's Processor. On a non-2xx or transport
// failure it requeues the originating job_queue row so the delivery is
// actually retried, rather than only recording next_retry_at bookkeeping
// that nothing reads.
type Processor struct {
	payments    *db.PaymentRepository
	webhooks    *db.WebhookRepository
	jobs        *db.JobQueueRepository
	sender      *Sender
	sem         chan struct{}
	secret      string
	sinkURL     string
	enabled     bool
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
}

func NewProcessor(payments *db.PaymentRepository, webhooks *db.WebhookRepository, jobs *db.JobQueueRepository, sender *Sender, cfg config.Webhook, secret string, logger *slog.Logger) *Processor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = maxAttemptsDefault
	}
	delay := time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	if delay <= 0 {
		delay = backoffBase
	}
	return &Processor{
		payments:    payments,
		webhooks:    webhooks,
		jobs:        jobs,
		sender:      sender,
		sem:         make(chan struct{}, concurrency),
		secret:      secret,
		sinkURL:     cfg.SinkURL,
		enabled:     cfg.Enabled,
		maxAttempts: maxAttempts,
		backoffBase: delay,
		logger:      logger,
	}
}

// HandleMessage unmarshals a webhook-delivery job payload and delivers
// it. Intended as the process callback passed to internal/queue.Consume.
func (p *Processor) HandleMessage(ctx context.Context, raw []byte) error {
	var job message.WebhookJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return err
	}
	return p.Process(ctx, job)
}

// Process delivers (or retries the delivery of) the webhook for
// job.PaymentID / job.EventType, bounded by the worker's concurrency
// semaphore.
func (p *Processor) Process(ctx context.Context, job message.WebhookJob) error {
	if !p.enabled {
		p.logger.DebugContext(ctx, "webhook delivery disabled, skipping", "paymentId", job.PaymentID)
		return nil
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", job.PaymentID.String()))
	ctx = logcontext.AppendCtx(ctx, slog.String("eventType", job.EventType))

	payment, err := p.payments.GetByID(ctx, job.PaymentID)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to load payment for webhook delivery", "error", err)
		return err
	}

	delivery, err := p.webhooks.FindByPaymentAndEventType(ctx, job.PaymentID, job.EventType)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			p.logger.ErrorContext(ctx, "failed to look up existing webhook delivery", "error", err)
			return err
		}
		delivery, err = p.createDelivery(ctx, payment, job.EventType)
		if err != nil {
			return err
		}
	}

	return p.attempt(ctx, job.JobID, delivery)
}

func (p *Processor) createDelivery(ctx context.Context, payment *model.Payment, eventType string) (*model.WebhookDelivery, error) {
	envelope := BuildEnvelope(payment)
	envelope.EventType = eventType

	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	d := &model.WebhookDelivery{
		ID:          uuid.New(),
		PaymentID:   payment.ID,
		EventType:   eventType,
		Payload:     body,
		Signature:   Sign(p.secret, body),
		Status:      model.DeliveryPending,
		MaxAttempts: p.maxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.webhooks.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// attempt sends d once and records the outcome. jobID is the originating
// job_queue row; on a retryable failure it is requeued so the producer
// republishes the delivery job, which is what actually causes the retry
// to happen (the delivery row's next_retry_at is bookkeeping only). A
// zero jobID (Process invoked outside the queue) skips the requeue.
func (p *Processor) attempt(ctx context.Context, jobID uuid.UUID, d *model.WebhookDelivery) error {
	tx, err := p.webhooks.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	locked, err := p.webhooks.SelectForUpdate(ctx, tx, d.ID)
	if err != nil {
		return err
	}

	attempts := locked.Attempts + 1

	result, sendErr := p.sender.Send(ctx, p.logger, p.sinkURL, locked.Payload, locked.Signature)
	switch {
	case sendErr == nil && IsSuccess(result.StatusCode):
		if err := p.webhooks.RecordDelivered(ctx, tx, locked.ID, attempts, result.StatusCode, result.Body); err != nil {
			return err
		}
		deliveredCounter.Inc()
		return commitOrRollback(ctx, tx)

	case sendErr == nil:
		sendErr = nonSuccessErr(result.StatusCode, result.Body)
	}

	if attempts >= locked.MaxAttempts {
		if err := p.webhooks.RecordExhausted(ctx, tx, locked.ID, attempts, sendErr.Error()); err != nil {
			return err
		}
		exhaustedCounter.Inc()
		if err := commitOrRollback(ctx, tx); err != nil {
			return err
		}
		return sendErr
	}

	delay := time.Duration(1<<uint(attempts-1)) * p.backoffBase
	if err := p.webhooks.RecordRetry(ctx, tx, locked.ID, attempts, delay, sendErr.Error()); err != nil {
		return err
	}
	if err := commitOrRollback(ctx, tx); err != nil {
		return err
	}
	retriedCounter.Inc()

	if jobID != uuid.Nil {
		if err := p.jobs.RequeueForRetry(ctx, jobID, attempts, delay, sendErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "failed to requeue webhook job for retry", "error", err)
		}
	}
	return sendErr
}

func commitOrRollback(ctx context.Context, tx interface {
	Commit(context.Context) error
	Rollback(context.Context) error
}) error {
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return nil
}
