// Command job-producer drains the job_queue staging table (spec
// component G) into the two Kafka topics on a fixed poll interval.
// Grounded on internal/callback/producer.go, run here as its own process
// per smallbiznis-valora's one-binary-per-role convention.
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

	repo := db.NewJobQueueRepository(pool)

	pollInterval := time.Duration(cfg.JobProducer.PollingIntervalMs) * time.Millisecond
	retryDelay := time.Duration(cfg.JobProducer.RescheduleDelayMs) * time.Millisecond

	paymentWriter := queue.NewWriter(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.PaymentProcessing)
	defer paymentWriter.Close()
	paymentProducer := queue.NewProducer(repo, paymentWriter, db.KindPaymentProcessing,
		pollInterval, cfg.JobProducer.FetchSize, retryDelay, cfg.JobProducer.MaxPublishAttempts, logger)
	paymentProducer.Start(ctx)

	webhookWriter := queue.NewWriter(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.WebhookDelivery)
	defer webhookWriter.Close()
	webhookProducer := queue.NewProducer(repo, webhookWriter, db.KindWebhookDelivery,
		pollInterval, cfg.JobProducer.FetchSize, retryDelay, cfg.JobProducer.MaxPublishAttempts, logger)
	webhookProducer.Start(ctx)

	logger.Info("starting job producer")
	<-ctx.Done()
	logger.Info("job producer shutting down")
}
