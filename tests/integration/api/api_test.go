package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/suncoastpay/orchestrator/internal/api"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/fanout"
	"github.com/suncoastpay/orchestrator/internal/idempotency"
	"github.com/suncoastpay/orchestrator/internal/provider"
	"github.com/suncoastpay/orchestrator/internal/quote"
	"github.com/suncoastpay/orchestrator/internal/rate"
	"github.com/suncoastpay/orchestrator/tests/testhelpers"
)

// memRedis is an in-memory stand-in for *redis.Client covering the
// Get/Set/SetNX surface both rate.Cache and idempotency.Store need, so
// these API tests don't also require a Redis container.
type memRedis struct {
	values map[string]string
}

func newMemRedis() *memRedis { return &memRedis{values: map[string]string{}} }

func (m *memRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	if v, ok := m.values[key]; ok {
		cmd.SetVal(v)
		return cmd
	}
	cmd.SetErr(goredis.Nil)
	return cmd
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	if b, ok := value.([]byte); ok {
		m.values[key] = string(b)
	} else {
		m.values[key] = fmt.Sprintf("%v", value)
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	if _, exists := m.values[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	m.values[key] = fmt.Sprintf("%v", value)
	cmd.SetVal(true)
	return cmd
}

type APITestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	server      *httptest.Server
	ctx         context.Context
}

func (s *APITestSuite) SetupSuite() {
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

	logger := slog.Default()
	payments := db.NewPaymentRepository(pool)
	jobs := db.NewJobQueueRepository(pool)
	events := db.NewEventRepository(pool)

	rates := rate.NewCacheForTest(newMemRedis(), rate.NoopSource{}, logger)
	quotes := quote.NewService(rates)
	balances := provider.NewStubBalanceOracle()

	idem := idempotency.NewStoreForTest(newMemRedis(), logger)
	handlers := api.NewHandlers(quotes, payments, jobs, balances, logger)
	streams := fanout.NewHandlers(events, payments, logger)

	router := api.NewRouter(handlers, idem, streams)
	s.server = httptest.NewServer(router)
}

func (s *APITestSuite) TearDownSuite() {
	s.server.Close()
	s.pool.Close()
	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *APITestSuite) SetupTest() {
	for _, table := range []string{"webhook_delivery", "event", "payment"} {
		if _, err := s.pool.Exec(s.ctx, "DELETE FROM "+table); err != nil {
			log.Fatalf("error truncating %s: %s", table, err)
		}
	}
}

func (s *APITestSuite) post(path, userID, idemKey string, body map[string]interface{}) *http.Response {
	raw, err := json.Marshal(body)
	require.NoError(s.T(), err)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(raw))
	require.NoError(s.T(), err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.T(), err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, dst))
}

func (s *APITestSuite) TestHappyPath_ACH_MXN_Inclusive_InitiateThenConfirm() {
	t := s.T()
	userID := uuid.New().String()

	quoteResp := s.post("/api/v1/quote", "", "", map[string]interface{}{
		"amount":               "100",
		"destination_currency": "MXN",
		"payment_method":       "ach",
		"fee_handling":         "inclusive",
	})
	assert.Equal(t, http.StatusOK, quoteResp.StatusCode)

	initResp := s.post("/api/v1/initiate", userID, uuid.New().String(), map[string]interface{}{
		"amount":               "100",
		"destination_currency": "MXN",
		"payment_method":       "ach",
		"fee_handling":         "inclusive",
	})
	require.Equal(t, http.StatusOK, initResp.StatusCode)

	var initiated struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	decodeJSON(t, initResp, &initiated)
	assert.Equal(t, "INITIATED", initiated.Status)

	confirmResp := s.post("/api/v1/confirm", userID, uuid.New().String(), map[string]interface{}{
		"payment_id": initiated.PaymentID,
	})
	require.Equal(t, http.StatusOK, confirmResp.StatusCode)

	var confirmed struct {
		Status     string `json:"status"`
		Processing bool   `json:"processing"`
	}
	decodeJSON(t, confirmResp, &confirmed)
	assert.Equal(t, "CONFIRMED", confirmed.Status)
	assert.True(t, confirmed.Processing)
}

func (s *APITestSuite) TestIdempotentReplay_SameKeySameBody() {
	t := s.T()
	userID := uuid.New().String()
	key := uuid.New().String()
	body := map[string]interface{}{
		"amount":               "100",
		"destination_currency": "NGN",
		"payment_method":       "card",
		"fee_handling":         "additive",
	}

	first := s.post("/api/v1/initiate", userID, key, body)
	require.Equal(t, http.StatusOK, first.StatusCode)
	var firstResp struct{ PaymentID string `json:"payment_id"` }
	decodeJSON(t, first, &firstResp)

	second := s.post("/api/v1/initiate", userID, key, body)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))

	var secondResp struct{ PaymentID string `json:"payment_id"` }
	decodeJSON(t, second, &secondResp)
	assert.Equal(t, firstResp.PaymentID, secondResp.PaymentID, "replay must not create a second payment")
}

func (s *APITestSuite) TestIdempotencyConflict_SameKeyDifferentBody() {
	t := s.T()
	userID := uuid.New().String()
	key := uuid.New().String()

	first := s.post("/api/v1/initiate", userID, key, map[string]interface{}{
		"amount":               "100",
		"destination_currency": "MXN",
		"payment_method":       "ach",
		"fee_handling":         "inclusive",
	})
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := s.post("/api/v1/initiate", userID, key, map[string]interface{}{
		"amount":               "200",
		"destination_currency": "MXN",
		"payment_method":       "ach",
		"fee_handling":         "inclusive",
	})
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func (s *APITestSuite) TestConfirm_RejectsExpiredQuote() {
	t := s.T()
	userID := uuid.New().String()

	initResp := s.post("/api/v1/initiate", userID, uuid.New().String(), map[string]interface{}{
		"amount":               "100",
		"destination_currency": "MXN",
		"payment_method":       "ach",
		"fee_handling":         "inclusive",
	})
	require.Equal(t, http.StatusOK, initResp.StatusCode)

	var initiated struct{ PaymentID string `json:"payment_id"` }
	decodeJSON(t, initResp, &initiated)

	_, err := s.pool.Exec(s.ctx, `UPDATE payment SET quote_expires_at = now() - interval '1 minute' WHERE id = $1`, initiated.PaymentID)
	require.NoError(t, err)

	confirmResp := s.post("/api/v1/confirm", userID, uuid.New().String(), map[string]interface{}{
		"payment_id": initiated.PaymentID,
	})
	assert.Equal(t, http.StatusBadRequest, confirmResp.StatusCode)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
