package db

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/model"
	"github.com/suncoastpay/orchestrator/tests/testhelpers"
)

type PaymentRepositoryTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	payments    *db.PaymentRepository
	webhooks    *db.WebhookRepository
	ctx         context.Context
}

func (s *PaymentRepositoryTestSuite) SetupSuite() {
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
	s.webhooks = db.NewWebhookRepository(pool)
}

func (s *PaymentRepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *PaymentRepositoryTestSuite) SetupTest() {
	for _, table := range []string{"webhook_delivery", "event", "payment"} {
		if _, err := s.pool.Exec(s.ctx, "DELETE FROM "+table); err != nil {
			log.Fatalf("error truncating %s: %s", table, err)
		}
	}
}

func (s *PaymentRepositoryTestSuite) newPayment() *model.Payment {
	now := time.Now().UTC()
	return &model.Payment{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		SourceCurrency:    "USD",
		DestCurrency:      "MXN",
		Amount:            decimal.NewFromInt(100),
		Method:            model.MethodACH,
		HandlingMode:      model.ModeInclusive,
		Fees:              model.FeeBreakdown{Onramp: decimal.Zero, Corridor: decimal.NewFromFloat(1.5), Platform: decimal.NewFromFloat(0.5), NetworkGas: decimal.NewFromFloat(0.1)},
		ExchangeRate:      decimal.NewFromFloat(17.2),
		DestinationAmount: decimal.NewFromFloat(1685.8),
		UsdcSent:          decimal.NewFromFloat(97.9),
		QuoteExpiresAt:    now.Add(time.Minute),
		Status:            model.StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (s *PaymentRepositoryTestSuite) TestCreateInitiated_WritesPaymentAndEventAndJob() {
	t := s.T()

	p := s.newPayment()
	ev, err := s.payments.CreateInitiated(s.ctx, p)
	assert.NoError(t, err)
	assert.Equal(t, "payment.initiated", ev.Type)

	loaded, err := s.payments.GetByID(s.ctx, p.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusInitiated, loaded.Status)
	assert.True(t, p.Amount.Equal(loaded.Amount))

	var jobCount int
	err = s.pool.QueryRow(s.ctx, "SELECT count(*) FROM job_queue WHERE kind = 'payment-processing'").Scan(&jobCount)
	assert.NoError(t, err)
	assert.Equal(t, 0, jobCount, "payment-processing job is only enqueued on transition to CONFIRMED")

	err = s.pool.QueryRow(s.ctx, "SELECT count(*) FROM job_queue WHERE kind = 'webhook-delivery'").Scan(&jobCount)
	assert.NoError(t, err)
	assert.Equal(t, 1, jobCount)
}

func (s *PaymentRepositoryTestSuite) TestTransition_AppliesMutateAndAppendsEvent() {
	t := s.T()

	p := s.newPayment()
	_, err := s.payments.CreateInitiated(s.ctx, p)
	assert.NoError(t, err)

	txID := "onramp-tx-1"
	updated, ev, err := s.payments.Transition(s.ctx, p.ID, model.StatusConfirmed, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Equal(t, "payment.confirmed", ev.Type)

	updated, _, err = s.payments.Transition(s.ctx, p.ID, model.StatusOnrampPending, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusOnrampPending, updated.Status)

	updated, _, err = s.payments.Transition(s.ctx, p.ID, model.StatusOnrampCompleted, nil, func(p *model.Payment) {
		p.OnrampTxID = &txID
	})
	assert.NoError(t, err)
	assert.Equal(t, &txID, updated.OnrampTxID)
}

func (s *PaymentRepositoryTestSuite) TestTransition_RejectsInvalidEdge() {
	t := s.T()

	p := s.newPayment()
	_, err := s.payments.CreateInitiated(s.ctx, p)
	assert.NoError(t, err)

	_, _, err = s.payments.Transition(s.ctx, p.ID, model.StatusCompleted, nil, nil)
	assert.Error(t, err)
}

func (s *PaymentRepositoryTestSuite) TestWebhookRepository_CreateAndSelectForUpdate() {
	t := s.T()

	p := s.newPayment()
	_, err := s.payments.CreateInitiated(s.ctx, p)
	assert.NoError(t, err)

	d := &model.WebhookDelivery{
		ID:          uuid.New(),
		PaymentID:   p.ID,
		EventType:   "payment.initiated",
		Payload:     []byte(`{"event":"payment.initiated"}`),
		Signature:   "deadbeef",
		Status:      model.DeliveryPending,
		Attempts:    0,
		MaxAttempts: 3,
		CreatedAt:   time.Now().UTC(),
	}
	assert.NoError(t, s.webhooks.Create(s.ctx, d))

	tx, err := s.webhooks.BeginTx(s.ctx)
	assert.NoError(t, err)
	defer tx.Rollback(s.ctx)

	loaded, err := s.webhooks.SelectForUpdate(s.ctx, tx, d.ID)
	assert.NoError(t, err)
	assert.Equal(t, d.PaymentID, loaded.PaymentID)

	respStatus := 200
	respBody := "ok"
	assert.NoError(t, s.webhooks.RecordDelivered(s.ctx, tx, d.ID, 1, respStatus, respBody))
	assert.NoError(t, tx.Commit(s.ctx))

	found, err := s.webhooks.FindByPaymentAndEventType(s.ctx, p.ID, "payment.initiated")
	assert.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, found.Status)
	assert.Equal(t, 1, found.Attempts)
	assert.NotNil(t, found.ResponseStatus)
	assert.Equal(t, 200, *found.ResponseStatus)
}

func TestPaymentRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentRepositoryTestSuite))
}
