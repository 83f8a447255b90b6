package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/hireflowhq/delivery-api/internal/model"
)

// All repository interfaces in one file
type (
	// EmailMessageRepository stores one row per email send attempt.
	EmailMessageRepository interface {
		Create(ctx context.Context, msg *model.EmailMessage) error
		Get(ctx context.Context, id uuid.UUID) (*model.EmailMessage, error)
		// FindByExternalID looks a record up by the provider-assigned
		// message identifier. Returns (nil, nil) when no record matches:
		// webhooks routinely race ahead of the local insert and the
		// caller discards such events silently.
		FindByExternalID(ctx context.Context, externalID string) (*model.EmailMessage, error)
		// ApplyTransition updates status, reason and the transition's one
		// timestamp as a single atomic statement, appends the change
		// event to the outbox in the same transaction, and returns the
		// updated row. Timestamps already set are never overwritten.
		ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.EmailMessage, error)
		// LatestByConversations returns the most recently created record
		// per conversation id, for the given set.
		LatestByConversations(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error)
	}

	// WhatsAppMessageRepository stores one row per WhatsApp send attempt.
	WhatsAppMessageRepository interface {
		Create(ctx context.Context, msg *model.WhatsAppMessage) error
		Get(ctx context.Context, id uuid.UUID) (*model.WhatsAppMessage, error)
		FindByExternalID(ctx context.Context, externalID string) (*model.WhatsAppMessage, error)
		ApplyTransition(ctx context.Context, id uuid.UUID, tr *model.StatusTransition) (*model.WhatsAppMessage, error)
		LatestByConversations(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error)
	}

	// OutboxRepository queues change events for the outbox processor.
	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		BeginTx(ctx context.Context) (*sqlx.Tx, error)
		// GetPendingEventsWithLock selects due events FOR UPDATE SKIP
		// LOCKED inside the caller's transaction, so the row locks are
		// held until the matching status updates commit and concurrent
		// workers cannot pick up the same batch.
		GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
