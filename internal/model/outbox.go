package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Change event types carried through the outbox.
const (
	EventEmailMessageUpdated    = "email_message.updated"
	EventWhatsAppMessageUpdated = "whatsapp_message.updated"
)

// OutboxEvent is one pending change notification. It is written in the
// same transaction as the record update it describes and published to
// the broker by the outbox processor.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Topic        string          `db:"topic" json:"topic"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// EmailChangeTopic is the per-conversation topic email change events are
// published on. Scoping the topic to the conversation gives subscribers
// a server-side filter: they subscribe to exactly the conversations they
// display.
func EmailChangeTopic(conversationID uuid.UUID) string {
	return fmt.Sprintf("email_messages.changed.%s", conversationID)
}

// WhatsAppChangeTopic is the single topic all WhatsApp change events are
// published on; subscribers filter by conversation id client-side.
func WhatsAppChangeTopic() string {
	return "whatsapp_messages.changed"
}
