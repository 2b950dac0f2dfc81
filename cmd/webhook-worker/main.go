// Command webhook-worker runs the Webhook Delivery Worker (spec
// component I): consumes webhook-delivery jobs off Kafka, signs and
// delivers the payload envelope, and records the outcome.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/suncoastpay/orchestrator/internal/config"
	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/logging"
	"github.com/suncoastpay/orchestrator/internal/metrics"
	"github.com/suncoastpay/orchestrator/internal/queue"
	"github.com/suncoastpay/orchestrator/internal/webhook"
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
	webhooks := db.NewWebhookRepository(pool)
	jobs := db.NewJobQueueRepository(pool)

	secret := config.GetRequired("WEBHOOK_SHARED_SECRET")
	sender := webhook.NewSender(cfg.Webhook)
	processor := webhook.NewProcessor(payments, webhooks, jobs, sender, cfg.Webhook, secret, logger)

	reader := queue.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.WebhookDelivery, cfg.Kafka.Reader.GroupID)
	defer reader.Close()

	logger.Info("starting webhook delivery worker", "enabled", cfg.Webhook.Enabled)
	queue.Consume(ctx, reader, cfg.Kafka.Topic.WebhookDelivery, logger, processor.HandleMessage)
}
