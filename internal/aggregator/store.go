package aggregator

import (
	"context"

	"github.com/google/uuid"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/repository"
)

// RepoStore adapts the message repositories to the tracker's bulk-fetch
// contract.
type RepoStore struct {
	Emails    repository.EmailMessageRepository
	WhatsApps repository.WhatsAppMessageRepository
}

func (s RepoStore) LatestEmailByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error) {
	return s.Emails.LatestByConversations(ctx, ids)
}

func (s RepoStore) LatestWhatsAppByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error) {
	return s.WhatsApps.LatestByConversations(ctx, ids)
}
