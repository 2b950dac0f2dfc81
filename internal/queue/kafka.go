// Package queue wraps segmentio/kafka-go readers and writers for the two
// durable topics (payment-processing, webhook-delivery) and the producer
// that drains the job_queue staging table into Kafka. Grounded on
// internal/kafka/reader.go and internal/kafka/writer.go, generalized
// from the teacher's two fixed message types to a single generic byte
// payload topic.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"

	"github.com/suncoastpay/orchestrator/internal/config"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100
)

// NewWriter builds a Kafka writer for topic, batching and requiring acks
// from the full ISR, same as the teacher's internal/kafka/writer.go.
func NewWriter(broker, topic string) *kafka.Writer {
	batchSize := config.GetEnvInt("KAFKA_WRITER_BATCH_SIZE", defaultBatchSize)
	batchTimeout := config.GetEnvInt("KAFKA_WRITER_BATCH_TIMEOUT", defaultBatchTimeout)

	return &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		Balancer:               &kafka.ReferenceHash{},
		BatchSize:              batchSize,
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           time.Duration(batchTimeout) * time.Millisecond,
		Async:                  false,
		AllowAutoTopicCreation: false,
	}
}

// NewReader builds a Kafka consumer group reader for topic.
func NewReader(broker, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(broker, ","),
		GroupID: groupID,
		Topic:   topic,
	})
}

// topicMetrics mirrors the teacher's per-topic counter set (read_error,
// process_error, success; there is no unmarshal_error counter, since
// payloads reach process as raw bytes), keyed by topic name rather than
// a fixed payment_event/callback_message pair.
type topicMetrics struct {
	ReadErrorCounter    *metrics.Counter
	ProcessErrorCounter *metrics.Counter
	SuccessCounter      *metrics.Counter
}

func metricsFor(topic string) topicMetrics {
	return topicMetrics{
		ReadErrorCounter:    metrics.GetOrCreateCounter(fmt.Sprintf(`queue_reader_total{result="read_error",topic=%q}`, topic)),
		ProcessErrorCounter: metrics.GetOrCreateCounter(fmt.Sprintf(`queue_reader_total{result="process_error",topic=%q}`, topic)),
		SuccessCounter:      metrics.GetOrCreateCounter(fmt.Sprintf(`queue_reader_total{result="success",topic=%q}`, topic)),
	}
}

// Consume reads from reader until ctx is cancelled, invoking process for
// each message's raw bytes, mirroring the teacher's readMessages loop. A
// process error is logged and counted but does not stop the loop.
// ReadMessage commits each message's offset as it is read, so a failed
// message is not read again here; it is retried only if process has
// requeued its job_queue row for the producer to republish.
func Consume(ctx context.Context, reader *kafka.Reader, topic string, logger *slog.Logger, process func(context.Context, []byte) error) {
	m := metricsFor(topic)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "error reading message", "error", err, "topic", topic)
			m.ReadErrorCounter.Inc()
			continue
		}

		if err := process(ctx, msg.Value); err != nil {
			logger.ErrorContext(ctx, "error processing message", "error", err, "topic", topic)
			m.ProcessErrorCounter.Inc()
			continue
		}
		m.SuccessCounter.Inc()
	}
}
