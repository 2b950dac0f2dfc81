// Package message defines the two Kafka job payload shapes consumed by
// the workers (spec.md §2 component G). Adapted from the teacher's
// PaymentEvent/Callback message DTOs (internal/message/message.go).
package message

import "github.com/google/uuid"

// PaymentJob is the payload of a payment-processing job: the Payment
// Orchestrator Worker loads the payment by id and resumes from its
// current status (spec.md §4.6). JobID identifies the originating
// job_queue row so a processing failure can requeue that same row for
// redelivery instead of being lost once Kafka has handed it off.
type PaymentJob struct {
	JobID     uuid.UUID `json:"jobId"`
	PaymentID uuid.UUID `json:"paymentId"`
}

// WebhookJob is the payload of a webhook-delivery job. JobID identifies
// the originating job_queue row, same purpose as PaymentJob.JobID.
type WebhookJob struct {
	JobID     uuid.UUID `json:"jobId"`
	PaymentID uuid.UUID `json:"paymentId"`
	EventType string    `json:"eventType"`
}
