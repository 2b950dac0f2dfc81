// Package event builds the schemaless metadata attached to each Event
// record. The teacher's event package (internal/event/processor.go) only
// ever produced a {id, status} callback payload from a Kafka message;
// here it is repurposed into a per-event-type metadata builder: one
// constructor per event type, each returning a model.EventMetadata, which
// is a single map[string]interface{}. The keys and value types of that
// map are not checked per event type.
package event

import (
	"github.com/suncoastpay/orchestrator/internal/model"
)

// ForOnrampCompleted builds the metadata recorded when the onramp leg
// succeeds.
func ForOnrampCompleted(txID string) model.EventMetadata {
	return model.EventMetadata{"onrampTxId": txID}
}

// ForOnrampFailed builds the metadata recorded when the onramp leg fails.
func ForOnrampFailed(reason string) model.EventMetadata {
	return model.EventMetadata{"reason": reason}
}

// ForOfframpCompleted builds the metadata recorded when the offramp leg
// succeeds.
func ForOfframpCompleted(txID string) model.EventMetadata {
	return model.EventMetadata{"offrampTxId": txID}
}

// ForOfframpFailed builds the metadata recorded when the offramp leg
// fails.
func ForOfframpFailed(reason string) model.EventMetadata {
	return model.EventMetadata{"reason": reason}
}

// Empty is used for transitions that carry no extra metadata
// (payment.initiated, payment.confirmed, payment.completed, payment.failed).
func Empty() model.EventMetadata {
	return model.EventMetadata{}
}
