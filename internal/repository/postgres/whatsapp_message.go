package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/repository"
)

const whatsappMessageColumns = `
	id, conversation_id, recipient_phone, external_message_id, status,
	error_message, sent_at, delivered_at, read_at, failed_at,
	created_at, updated_at
`

type whatsappMessageRepository struct {
	BaseRepository
	outbox repository.OutboxRepository
}

func NewWhatsAppMessageRepository(base BaseRepository, outbox repository.OutboxRepository) repository.WhatsAppMessageRepository {
	return &whatsappMessageRepository{BaseRepository: base, outbox: outbox}
}

func (r *whatsappMessageRepository) Create(ctx context.Context, msg *model.WhatsAppMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	query := `
		INSERT INTO whatsapp_messages (
			id, conversation_id, recipient_phone, external_message_id,
			status, sent_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`
	now := time.Now()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.Status == "" {
		msg.Status = model.WhatsAppStatusPending
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.RecipientPhone,
		msg.ExternalMessageID,
		msg.Status,
		msg.SentAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create whatsapp message: %w", err)
	}
	return nil
}

func (r *whatsappMessageRepository) Get(ctx context.Context, id uuid.UUID) (*model.WhatsAppMessage, error) {
	query := `SELECT ` + whatsappMessageColumns + ` FROM whatsapp_messages WHERE id = $1`

	var msg model.WhatsAppMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("whatsapp message %s not found", id)
		}
		return nil, fmt.Errorf("failed to get whatsapp message: %w", err)
	}
	return &msg, nil
}

func (r *whatsappMessageRepository) FindByExternalID(ctx context.Context, externalID string) (*model.WhatsAppMessage, error) {
	query := `
		SELECT ` + whatsappMessageColumns + `
		FROM whatsapp_messages
		WHERE external_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var msg model.WhatsAppMessage
	if err := r.db.GetContext(ctx, &msg, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find whatsapp message by external id: %w", err)
	}
	return &msg, nil
}

// ApplyTransition mirrors the email variant: one atomic UPDATE with
// first-write-only timestamps, change event written in the same
// transaction.
func (r *whatsappMessageRepository) ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.WhatsAppMessage, error) {
	var deliveredAt, readAt, failedAt *time.Time
	switch tr.TimestampField {
	case model.TimestampDelivered:
		deliveredAt = &tr.OccurredAt
	case model.TimestampRead:
		readAt = &tr.OccurredAt
	case model.TimestampFailed:
		failedAt = &tr.OccurredAt
	}

	query := `
		UPDATE whatsapp_messages
		SET status = $2,
			error_message = COALESCE($3, error_message),
			delivered_at = COALESCE(delivered_at, $4),
			read_at = COALESCE(read_at, $5),
			failed_at = COALESCE(failed_at, $6),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + whatsappMessageColumns

	var updated model.WhatsAppMessage
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, query,
			id, tr.Status, tr.ErrorMessage, deliveredAt, readAt, failedAt,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("whatsapp message %s not found", id)
			}
			return fmt.Errorf("failed to update whatsapp message: %w", err)
		}

		payload, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("failed to marshal change event: %w", err)
		}
		return r.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			EventType: model.EventWhatsAppMessageUpdated,
			Topic:     model.WhatsAppChangeTopic(),
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *whatsappMessageRepository) LatestByConversations(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error) {
	if len(conversationIDs) == 0 {
		return map[uuid.UUID]*model.WhatsAppMessage{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT DISTINCT ON (conversation_id) `+whatsappMessageColumns+`
		FROM whatsapp_messages
		WHERE conversation_id IN (?)
		ORDER BY conversation_id, created_at DESC, id DESC
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build latest-by-conversation query: %w", err)
	}
	query = r.db.Rebind(query)

	var msgs []*model.WhatsAppMessage
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch latest whatsapp messages: %w", err)
	}

	result := make(map[uuid.UUID]*model.WhatsAppMessage, len(msgs))
	for _, m := range msgs {
		result[m.ConversationID] = m
	}
	return result, nil
}
