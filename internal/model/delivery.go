package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies one messaging medium. Each channel keeps its own
// status vocabulary and its own table; external message identifiers are
// only unique within a channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Canonical email statuses. Status columns are stored as plain strings
// because unmapped provider events are recorded verbatim as a
// best-effort status.
const (
	EmailStatusSent         = "sent"
	EmailStatusDelivered    = "delivered"
	EmailStatusOpened       = "opened"
	EmailStatusBounced      = "bounced"
	EmailStatusFailed       = "failed"
	EmailStatusSpam         = "spam"
	EmailStatusUnsubscribed = "unsubscribed"
)

// Canonical WhatsApp statuses.
const (
	WhatsAppStatusPending   = "pending"
	WhatsAppStatusSent      = "sent"
	WhatsAppStatusDelivered = "delivered"
	WhatsAppStatusRead      = "read"
	WhatsAppStatusFailed    = "failed"
)

// EmailMessage is one email send attempt. A resend creates a new row;
// rows are never deleted by this service.
type EmailMessage struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ConversationID    uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	RecipientEmail    string     `db:"recipient_email" json:"recipient_email"`
	ExternalMessageID *string    `db:"external_message_id" json:"external_message_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	SentAt            time.Time  `db:"sent_at" json:"sent_at"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	OpenedAt          *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	BouncedAt         *time.Time `db:"bounced_at" json:"bounced_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// WhatsAppMessage is one WhatsApp send attempt.
type WhatsAppMessage struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ConversationID    uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	RecipientPhone    string     `db:"recipient_phone" json:"recipient_phone"`
	ExternalMessageID *string    `db:"external_message_id" json:"external_message_id,omitempty"`
	Status            string     `db:"status" json:"status"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	SentAt            time.Time  `db:"sent_at" json:"sent_at"`
	DeliveredAt       *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ReadAt            *time.Time `db:"read_at" json:"read_at,omitempty"`
	FailedAt          *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// TimestampField names the single nullable timestamp column a transition
// stamps. Stamping is first-write-only; a later event never moves a
// timestamp that is already set.
type TimestampField string

const (
	TimestampNone      TimestampField = ""
	TimestampDelivered TimestampField = "delivered_at"
	TimestampOpened    TimestampField = "opened_at"
	TimestampRead      TimestampField = "read_at"
	TimestampBounced   TimestampField = "bounced_at"
	TimestampFailed    TimestampField = "failed_at"
)

// StatusTransition is the normalized outcome of one provider event,
// ready to be applied to a record as a single atomic update.
type StatusTransition struct {
	Status         string
	TimestampField TimestampField
	OccurredAt     time.Time
	ErrorMessage   *string
}

// View returns the channel-agnostic projection viewers consume.
func (m *EmailMessage) View() *DeliveryView {
	return &DeliveryView{
		Channel:        ChannelEmail,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Recipient:      m.RecipientEmail,
		Status:         m.Status,
		ErrorMessage:   m.ErrorMessage,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		EngagedAt:      m.OpenedAt,
		CreatedAt:      m.CreatedAt,
	}
}

// View returns the channel-agnostic projection viewers consume.
func (m *WhatsAppMessage) View() *DeliveryView {
	return &DeliveryView{
		Channel:        ChannelWhatsApp,
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Recipient:      m.RecipientPhone,
		Status:         m.Status,
		ErrorMessage:   m.ErrorMessage,
		SentAt:         m.SentAt,
		DeliveredAt:    m.DeliveredAt,
		EngagedAt:      m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}

// DeliveryView is the read-side shape served to live viewers: one entry
// per conversation, always backed by a single record, never a merge of
// several records.
type DeliveryView struct {
	Channel        Channel    `json:"channel"`
	MessageID      uuid.UUID  `json:"message_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	Recipient      string     `json:"recipient"`
	Status         string     `json:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	EngagedAt      *time.Time `json:"engaged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
