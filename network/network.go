package network

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"dagledger/models"
)

// EventType tags inbound messages delivered by the transport layer. The
// core is transport-agnostic: it consumes events and emits broadcasts
// through the Broadcaster interface only.
type EventType string

const (
	EventNewTransaction    EventType = "new_transaction"
	EventValidationRequest EventType = "validation_request"
	EventDAGSyncRequest    EventType = "dag_sync_request"
)

// Event is an inbound message with an opaque payload.
type Event struct {
	Type       EventType           `json:"type"`
	Payload    jsoniter.RawMessage `json:"payload"`
	ReceivedAt time.Time           `json:"received_at"`
}

// Broadcaster publishes ledger activity to peers.
type Broadcaster interface {
	BroadcastTransaction(tx *models.Transaction) error
	BroadcastValidationResult(result *models.ValidationResult) error
}

// NopBroadcaster drops everything; used when no transport is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastTransaction(*models.Transaction) error           { return nil }
func (NopBroadcaster) BroadcastValidationResult(*models.ValidationResult) error { return nil }
