package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/model"
	"github.com/suncoastpay/orchestrator/internal/orchestrator"
	"github.com/suncoastpay/orchestrator/internal/provider"
	"github.com/suncoastpay/orchestrator/tests/testhelpers"
)

const testMaxAttempts = 3

type WorkerTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	payments    *db.PaymentRepository
	jobs        *db.JobQueueRepository
	ctx         context.Context
}

func (s *WorkerTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	db.RunMigrations(pgContainer.ConnectionString, "../../../migrations")

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.payments = db.NewPaymentRepository(pool)
	s.jobs = db.NewJobQueueRepository(pool)
}

func (s *WorkerTestSuite) TearDownSuite() {
	s.pool.Close()
	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *WorkerTestSuite) SetupTest() {
	for _, table := range []string{"webhook_delivery", "event", "job_queue", "payment"} {
		if _, err := s.pool.Exec(s.ctx, "DELETE FROM "+table); err != nil {
			log.Fatalf("error truncating %s: %s", table, err)
		}
	}
}

func (s *WorkerTestSuite) newConfirmedPayment(userID uuid.UUID) *model.Payment {
	now := time.Now().UTC()
	p := &model.Payment{
		ID:                uuid.New(),
		UserID:            userID,
		SourceCurrency:    "USD",
		DestCurrency:      "MXN",
		Amount:            decimal.NewFromInt(100),
		Method:            model.MethodACH,
		HandlingMode:      model.ModeInclusive,
		Fees:              model.FeeBreakdown{Onramp: decimal.Zero, Corridor: decimal.NewFromFloat(1), Platform: decimal.NewFromFloat(1), NetworkGas: decimal.NewFromFloat(0.05)},
		ExchangeRate:      decimal.NewFromFloat(17.2),
		DestinationAmount: decimal.NewFromFloat(1685.8),
		UsdcSent:          decimal.NewFromFloat(97.95),
		QuoteExpiresAt:    now.Add(time.Minute),
		Status:            model.StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := s.payments.CreateInitiated(s.ctx, p)
	require.NoError(s.T(), err)

	_, _, err = s.payments.Transition(s.ctx, p.ID, model.StatusConfirmed, nil, nil)
	require.NoError(s.T(), err)

	return p
}

// enqueuePaymentJob stages a real job_queue row for paymentID and returns
// its id, so tests can exercise the requeue-on-failure path the same way
// a redelivered Kafka message would.
func (s *WorkerTestSuite) enqueuePaymentJob(paymentID uuid.UUID) uuid.UUID {
	require.NoError(s.T(), s.jobs.EnqueuePaymentJob(s.ctx, paymentID))

	rows, err := s.jobs.FetchDue(s.ctx, db.KindPaymentProcessing, 10)
	require.NoError(s.T(), err)
	for _, r := range rows {
		require.NoError(s.T(), s.jobs.MarkPublished(s.ctx, r.ID))
	}
	for _, r := range rows {
		var payload struct {
			PaymentID uuid.UUID `json:"paymentId"`
		}
		require.NoError(s.T(), json.Unmarshal(r.Payload, &payload))
		if payload.PaymentID == paymentID {
			return r.ID
		}
	}
	require.FailNow(s.T(), "job row not found for payment", paymentID)
	return uuid.Nil
}

func (s *WorkerTestSuite) newWorker(onramp provider.OnrampProvider, offramp provider.OfframpProvider) *orchestrator.Worker {
	return orchestrator.NewWorker(s.payments, s.jobs, onramp, offramp, 5, testMaxAttempts, time.Millisecond, slog.Default())
}

func (s *WorkerTestSuite) TestProcess_DrivesPaymentToCompleted() {
	t := s.T()

	p := s.newConfirmedPayment(uuid.New())

	onramp := provider.NewStubOnramp()
	offramp := provider.NewStubOfframp()
	worker := s.newWorker(onramp, offramp)

	err := worker.Process(s.ctx, uuid.Nil, p.ID)
	assert.NoError(t, err)

	loaded, err := s.payments.GetByID(s.ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
	assert.NotNil(t, loaded.OnrampTxID)
	assert.NotNil(t, loaded.OfframpTxID)
	assert.NotNil(t, loaded.CompletedAt)
}

// TestProcess_OnrampFailureRequeuesUntilAttemptsExhausted drives the same
// job through Process testMaxAttempts times with an always-failing
// onramp: every attempt but the last must requeue the job_queue row and
// leave the payment in its resumable ONRAMP_PENDING checkpoint, and only
// the final attempt may transition it to FAILED (spec.md §4.6: up to 3
// attempts with exponential backoff).
func (s *WorkerTestSuite) TestProcess_OnrampFailureRequeuesUntilAttemptsExhausted() {
	t := s.T()

	userID := uuid.New()
	p := s.newConfirmedPayment(userID)
	jobID := s.enqueuePaymentJob(p.ID)

	onramp := provider.NewStubOnramp()
	onramp.FailUserIDs[userID.String()] = true
	offramp := provider.NewStubOfframp()
	worker := s.newWorker(onramp, offramp)

	for attempt := 1; attempt <= testMaxAttempts; attempt++ {
		err := worker.Process(s.ctx, jobID, p.ID)
		assert.Error(t, err)

		loaded, loadErr := s.payments.GetByID(s.ctx, p.ID)
		require.NoError(t, loadErr)

		if attempt < testMaxAttempts {
			assert.Equal(t, model.StatusOnrampPending, loaded.Status, "attempt %d should requeue, not fail terminally", attempt)

			row, rowErr := s.jobs.GetByID(s.ctx, jobID)
			require.NoError(t, rowErr)
			assert.Equal(t, attempt, row.Attempts)

			var publishedAt *time.Time
			require.NoError(t, s.pool.QueryRow(s.ctx, `SELECT published_at FROM job_queue WHERE id = $1`, jobID).Scan(&publishedAt))
			assert.Nil(t, publishedAt, "requeued row must be unpublished so FetchDue sees it again")
		} else {
			assert.Equal(t, model.StatusFailed, loaded.Status, "final attempt should fail terminally")
		}
	}
}

// TestProcess_OnrampFailureRequeuesJobForRedelivery proves the requeued
// row is actually fetchable again by the producer's own query, i.e. that
// a processing failure really causes redelivery rather than a one-shot
// attempt.
func (s *WorkerTestSuite) TestProcess_OnrampFailureRequeuesJobForRedelivery() {
	t := s.T()

	userID := uuid.New()
	p := s.newConfirmedPayment(userID)
	jobID := s.enqueuePaymentJob(p.ID)

	onramp := provider.NewStubOnramp()
	onramp.FailUserIDs[userID.String()] = true
	offramp := provider.NewStubOfframp()
	worker := s.newWorker(onramp, offramp)

	err := worker.Process(s.ctx, jobID, p.ID)
	assert.Error(t, err)

	_, err = s.pool.Exec(s.ctx, `UPDATE job_queue SET scheduled_at = now() - interval '1 second' WHERE id = $1`, jobID)
	require.NoError(t, err)

	due, err := s.jobs.FetchDue(s.ctx, db.KindPaymentProcessing, 10)
	require.NoError(t, err)

	var redelivered bool
	for _, row := range due {
		if row.ID == jobID {
			redelivered = true
		}
	}
	assert.True(t, redelivered, "requeued job must be fetchable again for republishing")
}

func (s *WorkerTestSuite) TestProcess_ResumesFromOnrampPendingCheckpoint() {
	t := s.T()

	p := s.newConfirmedPayment(uuid.New())
	_, _, err := s.payments.Transition(s.ctx, p.ID, model.StatusOnrampPending, nil, nil)
	require.NoError(t, err)

	onramp := provider.NewStubOnramp()
	offramp := provider.NewStubOfframp()
	worker := s.newWorker(onramp, offramp)

	err = worker.Process(s.ctx, uuid.Nil, p.ID)
	assert.NoError(t, err)

	loaded, err := s.payments.GetByID(s.ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded.Status)
}

func (s *WorkerTestSuite) TestProcess_SkipsTerminalPayment() {
	t := s.T()

	p := s.newConfirmedPayment(uuid.New())
	onramp := provider.NewStubOnramp()
	offramp := provider.NewStubOfframp()
	worker := s.newWorker(onramp, offramp)

	require.NoError(t, worker.Process(s.ctx, uuid.Nil, p.ID))

	// A redelivered job for the now-COMPLETED payment must be a no-op, not
	// an error and not a rejected transition.
	err := worker.Process(s.ctx, uuid.Nil, p.ID)
	assert.NoError(t, err)
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}
