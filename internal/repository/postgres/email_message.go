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

const emailMessageColumns = `
	id, conversation_id, recipient_email, external_message_id, status,
	error_message, sent_at, delivered_at, opened_at, bounced_at, failed_at,
	created_at, updated_at
`

type emailMessageRepository struct {
	BaseRepository
	outbox repository.OutboxRepository
}

func NewEmailMessageRepository(base BaseRepository, outbox repository.OutboxRepository) repository.EmailMessageRepository {
	return &emailMessageRepository{BaseRepository: base, outbox: outbox}
}

func (r *emailMessageRepository) Create(ctx context.Context, msg *model.EmailMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	query := `
		INSERT INTO email_messages (
			id, conversation_id, recipient_email, external_message_id,
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
		msg.Status = model.EmailStatusSent
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = now
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.RecipientEmail,
		msg.ExternalMessageID,
		msg.Status,
		msg.SentAt,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email message: %w", err)
	}
	return nil
}

func (r *emailMessageRepository) Get(ctx context.Context, id uuid.UUID) (*model.EmailMessage, error) {
	query := `SELECT ` + emailMessageColumns + ` FROM email_messages WHERE id = $1`

	var msg model.EmailMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email message %s not found", id)
		}
		return nil, fmt.Errorf("failed to get email message: %w", err)
	}
	return &msg, nil
}

func (r *emailMessageRepository) FindByExternalID(ctx context.Context, externalID string) (*model.EmailMessage, error) {
	query := `
		SELECT ` + emailMessageColumns + `
		FROM email_messages
		WHERE external_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var msg model.EmailMessage
	if err := r.db.GetContext(ctx, &msg, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find email message by external id: %w", err)
	}
	return &msg, nil
}

// ApplyTransition updates the record as one atomic statement. COALESCE
// keeps every timestamp first-write-only, so replaying a duplicate
// webhook cannot move a timestamp that is already set. The change event
// is appended to the outbox inside the same transaction.
func (r *emailMessageRepository) ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.EmailMessage, error) {
	var deliveredAt, openedAt, bouncedAt, failedAt *time.Time
	switch tr.TimestampField {
	case model.TimestampDelivered:
		deliveredAt = &tr.OccurredAt
	case model.TimestampOpened:
		openedAt = &tr.OccurredAt
	case model.TimestampBounced:
		bouncedAt = &tr.OccurredAt
	case model.TimestampFailed:
		failedAt = &tr.OccurredAt
	}

	query := `
		UPDATE email_messages
		SET status = $2,
			error_message = COALESCE($3, error_message),
			delivered_at = COALESCE(delivered_at, $4),
			opened_at = COALESCE(opened_at, $5),
			bounced_at = COALESCE(bounced_at, $6),
			failed_at = COALESCE(failed_at, $7),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + emailMessageColumns

	var updated model.EmailMessage
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, query,
			id, tr.Status, tr.ErrorMessage, deliveredAt, openedAt, bouncedAt, failedAt,
		); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("email message %s not found", id)
			}
			return fmt.Errorf("failed to update email message: %w", err)
		}

		payload, err := json.Marshal(&updated)
		if err != nil {
			return fmt.Errorf("failed to marshal change event: %w", err)
		}
		return r.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			EventType: model.EventEmailMessageUpdated,
			Topic:     model.EmailChangeTopic(updated.ConversationID),
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// LatestByConversations returns the most recently created record per
// conversation id. Ties on created_at break by id to keep the choice
// deterministic.
func (r *emailMessageRepository) LatestByConversations(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error) {
	if len(conversationIDs) == 0 {
		return map[uuid.UUID]*model.EmailMessage{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT DISTINCT ON (conversation_id) `+emailMessageColumns+`
		FROM email_messages
		WHERE conversation_id IN (?)
		ORDER BY conversation_id, created_at DESC, id DESC
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build latest-by-conversation query: %w", err)
	}
	query = r.db.Rebind(query)

	var msgs []*model.EmailMessage
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch latest email messages: %w", err)
	}

	result := make(map[uuid.UUID]*model.EmailMessage, len(msgs))
	for _, m := range msgs {
		result[m.ConversationID] = m
	}
	return result, nil
}
