package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/suncoastpay/orchestrator/internal/db"
	"github.com/suncoastpay/orchestrator/internal/logcontext"
)

var (
	producerErrorFetchingCounter = metrics.GetOrCreateCounter(`job_producer_total{result="fetching_failed"}`)
	producerErrorKafkaCounter    = metrics.GetOrCreateCounter(`job_producer_total{result="publish_failed"}`)
	producerSuccessCounter       = metrics.GetOrCreateCounter(`job_producer_total{result="success"}`)

	producerDurationHistogram = metrics.GetOrCreateHistogram(`job_producer_duration_milliseconds`)

	producerJobsPublishedCounter   = metrics.GetOrCreateCounter(`job_producer_jobs_total{result="published"}`)
	producerJobsMaxAttemptsCounter = metrics.GetOrCreateCounter(`job_producer_jobs_total{result="max_attempts_reached"}`)
	producerJobsRescheduledCounter = metrics.GetOrCreateCounter(`job_producer_jobs_total{result="rescheduled"}`)
)

// Producer drains job_queue rows of one kind into the matching Kafka
// topic on a fixed poll interval, bumping attempts and backing off on
// publish failure. Grounded on internal/callback/producer.go, generalized
// from its single callback_message table to either job_queue kind.
type Producer struct {
	repo               *db.JobQueueRepository
	writer             *kafka.Writer
	kind               string
	pollingInterval    time.Duration
	fetchSize          int
	retryDelay         time.Duration
	maxPublishAttempts int
	logger             *slog.Logger
}

func NewProducer(repo *db.JobQueueRepository, writer *kafka.Writer, kind string, pollingInterval time.Duration, fetchSize int, retryDelay time.Duration, maxPublishAttempts int, logger *slog.Logger) *Producer {
	return &Producer{
		repo:               repo,
		writer:             writer,
		kind:               kind,
		pollingInterval:    pollingInterval,
		fetchSize:          fetchSize,
		retryDelay:         retryDelay,
		maxPublishAttempts: maxPublishAttempts,
		logger:             logger,
	}
}

// Start runs the polling loop in a background goroutine until ctx is
// cancelled.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.pollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.process(ctx)
			case <-ctx.Done():
				p.logger.InfoContext(ctx, "context done, stopping job producer", "kind", p.kind)
				return
			}
		}
	}()
}

func (p *Producer) process(ctx context.Context) {
	start := time.Now()
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", uuid.New().String()))
	ctx = logcontext.AppendCtx(ctx, slog.String("kind", p.kind))

	jobs, err := p.repo.FetchDue(ctx, p.kind, p.fetchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "error fetching due jobs", "error", err)
		producerErrorFetchingCounter.Inc()
		return
	}

	if len(jobs) == 0 {
		producerSuccessCounter.Inc()
		return
	}

	messages := make([]kafka.Message, len(jobs))
	for i, j := range jobs {
		messages[i] = kafka.Message{Key: []byte(j.ID.String()), Value: j.Payload}
	}

	writeErr := p.writer.WriteMessages(ctx, messages...)
	if writeErr != nil {
		p.logger.ErrorContext(ctx, "error writing messages to kafka", "error", writeErr)
		producerErrorKafkaCounter.Inc()
	}

	for _, j := range jobs {
		jobCtx := logcontext.AppendCtx(ctx, slog.String("jobId", j.ID.String()))
		attempts := j.Attempts + 1

		if writeErr != nil {
			if attempts >= j.MaxAttempts {
				p.logger.WarnContext(jobCtx, "max publish attempts reached for job")
				_ = p.repo.Reschedule(jobCtx, j.ID, attempts, 0, writeErr.Error())
				producerJobsMaxAttemptsCounter.Inc()
				continue
			}
			if err := p.repo.Reschedule(jobCtx, j.ID, attempts, time.Duration(attempts)*p.retryDelay, writeErr.Error()); err != nil {
				p.logger.ErrorContext(jobCtx, "error rescheduling job", "error", err)
			}
			producerJobsRescheduledCounter.Inc()
			continue
		}

		if err := p.repo.MarkPublished(jobCtx, j.ID); err != nil {
			p.logger.ErrorContext(jobCtx, "error marking job published", "error", err)
			continue
		}
		producerJobsPublishedCounter.Inc()
	}

	producerDurationHistogram.Update(float64(time.Since(start).Milliseconds()))
}
