// Package orchestrator implements the Payment Orchestrator Worker (spec
// component H): consumes payment-processing jobs and drives a payment
// through onramp -> offramp -> completed, one state transition at a
// time, resuming from whatever non-terminal checkpoint the payment is
// already in on re-delivery.
//
// Grounded on internal/callback/processor.go's semaphore-bounded
// goroutine-per-message shape (generalized from an unbounded
// `parallelism = 1000` channel to the spec's fixed concurrency of 5) and
// internal/callback/producer.go's attempt-scaled reschedule idiom, here
// doubling the delay on each attempt.
package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suncoastpay/orchestrator/internal/apperr"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/event"
	"github.com/suncoastpay/orchestrator/internal/fee"
	"github.com/suncoastpay/orchestrator/internal/logcontext"
	"github.com/suncoastpay/orchestrator/internal/message"
	"github.com/suncoastpay/orchestrator/internal/model"
	"github.com/suncoastpay/orchestrator/internal/provider"
)

const defaultBackoffBase = 1 * time.Second
const defaultMaxAttempts = 3

// Worker consumes payment-processing jobs and runs each payment's state
// machine forward, bounded to a fixed number of concurrent payments. On
// a processing failure it requeues the originating job_queue row (up to
// maxAttempts) instead of failing the payment outright, mirroring the
// teacher's processor/producer coupling.
type Worker struct {
	payments    *db.PaymentRepository
	jobs        *db.JobQueueRepository
	onramp      provider.OnrampProvider
	offramp     provider.OfframpProvider
	sem         chan struct{}
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
}

func NewWorker(payments *db.PaymentRepository, jobs *db.JobQueueRepository, onramp provider.OnrampProvider, offramp provider.OfframpProvider, concurrency, maxAttempts int, backoffBase time.Duration, logger *slog.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if backoffBase <= 0 {
		backoffBase = defaultBackoffBase
	}
	return &Worker{
		payments:    payments,
		jobs:        jobs,
		onramp:      onramp,
		offramp:     offramp,
		sem:         make(chan struct{}, concurrency),
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
	}
}

// HandleMessage unmarshals a payment-processing job payload and runs the
// payment forward. Intended as the process callback passed to
// internal/queue.Consume.
func (w *Worker) HandleMessage(ctx context.Context, raw []byte) error {
	var job message.PaymentJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return err
	}
	return w.Process(ctx, job.JobID, job.PaymentID)
}

// Process drives paymentID's state machine forward from whatever
// checkpoint it is currently in, blocking until the worker's concurrency
// semaphore admits it. jobID is the originating job_queue row, used to
// requeue the job for retry on a processing failure; it may be the zero
// UUID when Process is invoked directly outside of the queue (tests,
// backfills), in which case a failure is terminal rather than retried.
func (w *Worker) Process(ctx context.Context, jobID, paymentID uuid.UUID) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))
	ctx = logcontext.AppendCtx(ctx, slog.String("paymentId", paymentID.String()))

	p, err := w.payments.GetByID(ctx, paymentID)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to load payment", "error", err)
		return err
	}

	// spec.md §4.6 step 1, extended per the resolved checkpoint Open
	// Question: CONFIRMED starts the pipeline; ONRAMP_PENDING/
	// OFFRAMP_PENDING resume it; anything terminal or _FAILED is a no-op
	// skip (idempotent re-delivery).
	switch p.Status {
	case model.StatusConfirmed, model.StatusOnrampPending, model.StatusOfframpPending:
	default:
		w.logger.InfoContext(ctx, "skipping payment not in a resumable state", "status", p.Status)
		return nil
	}

	if p.Status == model.StatusConfirmed {
		p, err = w.toOnrampPending(ctx, paymentID)
		if err != nil {
			return w.fail(ctx, jobID, paymentID, model.StatusOnrampFailed, err)
		}
	}

	if p.Status == model.StatusOnrampPending {
		p, err = w.runOnramp(ctx, p)
		if err != nil {
			return w.fail(ctx, jobID, paymentID, model.StatusOnrampFailed, err)
		}
	}

	if p.Status == model.StatusOfframpPending {
		_, err = w.runOfframp(ctx, p)
		if err != nil {
			return w.fail(ctx, jobID, paymentID, model.StatusOfframpFailed, err)
		}
	}

	return nil
}

func (w *Worker) toOnrampPending(ctx context.Context, paymentID uuid.UUID) (*model.Payment, error) {
	p, _, err := w.payments.Transition(ctx, paymentID, model.StatusOnrampPending, event.Empty(), nil)
	return p, err
}

func (w *Worker) runOnramp(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	// Method is recovered from the stored onramp fee (0 => ach else card),
	// per spec.md §4.6 step 3.
	method := fee.MethodACH
	if !p.Fees.Onramp.IsZero() {
		method = fee.MethodCard
	}

	result, err := w.onramp.Charge(ctx, provider.OnrampChargeRequest{
		Amount: p.Amount,
		Method: method,
		UserID: p.UserID.String(),
	})
	if err != nil {
		return nil, err
	}

	p, _, err = w.payments.Transition(ctx, p.ID, model.StatusOnrampCompleted, event.ForOnrampCompleted(result.TxID), func(p *model.Payment) {
		p.OnrampTxID = &result.TxID
	})
	if err != nil {
		return nil, err
	}

	p, _, err = w.payments.Transition(ctx, p.ID, model.StatusOfframpPending, event.Empty(), nil)
	return p, err
}

func (w *Worker) runOfframp(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	result, err := w.offramp.Settle(ctx, provider.OfframpSettleRequest{
		Usdc:     p.UsdcSent,
		Currency: p.DestCurrency,
		UserID:   p.UserID.String(),
	})
	if err != nil {
		return nil, err
	}

	p, _, err = w.payments.Transition(ctx, p.ID, model.StatusOfframpCompleted, event.ForOfframpCompleted(result.TxID), func(p *model.Payment) {
		p.OfframpTxID = &result.TxID
	})
	if err != nil {
		return nil, err
	}

	p, _, err = w.payments.Transition(ctx, p.ID, model.StatusCompleted, event.Empty(), nil)
	return p, err
}

// fail handles a processing error for paymentID. While jobID still has
// retries left it requeues the job_queue row with an exponential backoff
// delay and leaves the payment in its current resumable pending status,
// so the next delivery picks the same checkpoint back up (spec.md §4.6:
// up to 3 attempts with exponential backoff). Once retries are exhausted
// (or jobID is unset, i.e. Process was invoked outside the queue) it
// transitions the payment through failedState's _FAILED counterpart and
// then to FAILED (spec.md §4.6 step 6), terminally.
func (w *Worker) fail(ctx context.Context, jobID, paymentID uuid.UUID, failedState model.Status, cause error) error {
	reason := cause.Error()

	if jobID != uuid.Nil {
		if requeued, err := w.requeue(ctx, jobID, reason); err != nil {
			w.logger.ErrorContext(ctx, "failed to inspect job for retry", "error", err)
		} else if requeued {
			w.logger.WarnContext(ctx, "payment processing failed, requeued for retry", "error", cause, "failedState", failedState)
			return cause
		}
	}

	w.logger.ErrorContext(ctx, "payment processing failed, attempts exhausted", "error", cause, "failedState", failedState)

	metadata := event.ForOnrampFailed(reason)
	if failedState == model.StatusOfframpFailed {
		metadata = event.ForOfframpFailed(reason)
	}
	if _, _, err := w.payments.Transition(ctx, paymentID, failedState, metadata, nil); err != nil {
		w.logger.ErrorContext(ctx, "failed to record failed substate", "error", err)
	}
	if _, _, err := w.payments.Transition(ctx, paymentID, model.StatusFailed, event.Empty(), nil); err != nil {
		w.logger.ErrorContext(ctx, "failed to record terminal failure", "error", err)
	}

	if _, ok := apperr.As(cause); ok {
		return cause
	}
	return apperr.Wrap(apperr.KindProviderFailure, "payment processing failed", cause)
}

// requeue reports whether jobID still had an attempt budget left and, if
// so, pushes it out by an exponential backoff so the job_queue producer
// republishes it. A false result means the caller must fail terminally.
func (w *Worker) requeue(ctx context.Context, jobID uuid.UUID, reason string) (bool, error) {
	row, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}

	attempts := row.Attempts + 1
	if attempts >= w.maxAttempts {
		return false, nil
	}

	delay := time.Duration(1<<uint(attempts-1)) * w.backoffBase
	if err := w.jobs.RequeueForRetry(ctx, jobID, attempts, delay, reason); err != nil {
		return false, err
	}
	return true, nil
}
