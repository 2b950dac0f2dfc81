// Command api serves the HTTP API (spec component J): quote, initiate,
// confirm, and the two SSE fan-out endpoints. Split out of the teacher's
// single monolithic main.go into one binary per worker role, grounded on
// the multi-binary apps/* layout of smallbiznis-valora.
package main

import (
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/suncoastpay/orchestrator/internal/api"
	"github.com/suncoastpay/orchestrator/internal/config"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/fanout"
	"github.com/suncoastpay/orchestrator/internal/idempotency"
	"github.com/suncoastpay/orchestrator/internal/logging"
	"github.com/suncoastpay/orchestrator/internal/metrics"
	"github.com/suncoastpay/orchestrator/internal/provider"
	"github.com/suncoastpay/orchestrator/internal/quote"
	"github.com/suncoastpay/orchestrator/internal/rate"
)

func main() {
	config.LoadDotEnv()
	cfg := config.MustLoadConfig(".")
	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.ConnStr()
	db.RunMigrations(connStr, "migrations")

	pool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	payments := db.NewPaymentRepository(pool)
	jobs := db.NewJobQueueRepository(pool)
	events := db.NewEventRepository(pool)

	rates := rate.NewCache(redisClient, rate.NoopSource{}, logger)
	quotes := quote.NewService(rates)
	balances := provider.NewStubBalanceOracle()

	idem := idempotency.NewStore(redisClient, logger)
	handlers := api.NewHandlers(quotes, payments, jobs, balances, logger)
	streams := fanout.NewHandlers(events, payments, logger)

	router := api.NewRouter(handlers, idem, streams)

	logger.Info("starting api server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, router))
}
