// Command orchestrator runs the Payment Orchestrator Worker (spec
// component H): consumes payment-processing jobs off Kafka and drives
// each payment's state machine forward.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/suncoastpay/orchestrator/internal/config"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/logging"
	"github.com/suncoastpay/orchestrator/internal/metrics"
	"github.com/suncoastpay/orchestrator/internal/orchestrator"
	"github.com/suncoastpay/orchestrator/internal/provider"
	"github.com/suncoastpay/orchestrator/internal/queue"
)

func main() {
	config.LoadDotEnv()
	cfg := config.MustLoadConfig(".")
	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connStr := db.ConnStr()
	pool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	payments := db.NewPaymentRepository(pool)
	jobs := db.NewJobQueueRepository(pool)

	onramp := provider.NewStubOnramp()
	offramp := provider.NewStubOfframp()

	backoffBase := time.Duration(cfg.Orchestrator.BackoffBaseMs) * time.Millisecond
	worker := orchestrator.NewWorker(payments, jobs, onramp, offramp, cfg.Orchestrator.Concurrency, cfg.Orchestrator.MaxAttempts, backoffBase, logger)

	reader := queue.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.PaymentProcessing, cfg.Kafka.Reader.GroupID)
	defer reader.Close()

	logger.Info("starting payment orchestrator worker")
	queue.Consume(ctx, reader, cfg.Kafka.Topic.PaymentProcessing, logger, worker.HandleMessage)
}
