package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/messaging"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "aggregator")

type fakeStore struct {
	email    map[uuid.UUID]*model.EmailMessage
	whatsapp map[uuid.UUID]*model.WhatsAppMessage
	err      error
	fetches  int
}

func (s *fakeStore) LatestEmailByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[uuid.UUID]*model.EmailMessage)
	for _, id := range ids {
		if m, ok := s.email[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (s *fakeStore) LatestWhatsAppByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[uuid.UUID]*model.WhatsAppMessage)
	for _, id := range ids {
		if m, ok := s.whatsapp[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

// fakeBroker delivers published messages synchronously to subscribers.
type fakeBroker struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string][]chan []byte)}
}

func (b *fakeBroker) Publish(ctx context.Context, topic string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		ch <- payload
	}
	return nil
}

func (b *fakeBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) subscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func emailMsg(convID uuid.UUID, status string, createdAt time.Time) *model.EmailMessage {
	return &model.EmailMessage{
		ID:             uuid.New(),
		ConversationID: convID,
		RecipientEmail: "candidate@example.com",
		Status:         status,
		SentAt:         createdAt,
		CreatedAt:      createdAt,
	}
}

func publishEmailChange(t *testing.T, b *fakeBroker, msg *model.EmailMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), model.EmailChangeTopic(msg.ConversationID), messaging.Message{
		Type:    model.EventEmailMessageUpdated,
		Payload: json.RawMessage(payload),
	}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTrackerSeedsFromBulkFetch(t *testing.T) {
	convA := uuid.New()
	convB := uuid.New()
	store := &fakeStore{email: map[uuid.UUID]*model.EmailMessage{
		convA: emailMsg(convA, model.EmailStatusDelivered, time.Now()),
	}}
	tracker := NewTracker(store, newFakeBroker(), model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convA, convB}))

	assert.False(t, tracker.Loading())
	snap := tracker.Snapshot()
	require.Contains(t, snap, convA)
	assert.Equal(t, model.EmailStatusDelivered, snap[convA].Status)
	assert.NotContains(t, snap, convB)
}

func TestTrackerAppliesChangeEvents(t *testing.T) {
	convA := uuid.New()
	store := &fakeStore{email: map[uuid.UUID]*model.EmailMessage{
		convA: emailMsg(convA, model.EmailStatusSent, time.Now()),
	}}
	broker := newFakeBroker()
	tracker := NewTracker(store, broker, model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convA}))

	updated := emailMsg(convA, model.EmailStatusOpened, time.Now())
	publishEmailChange(t, broker, updated)

	waitFor(t, func() bool {
		snap := tracker.Snapshot()
		return snap[convA] != nil && snap[convA].Status == model.EmailStatusOpened
	})
}

func TestTrackerEventForOneConversationLeavesOthersUntouched(t *testing.T) {
	convA := uuid.New()
	convB := uuid.New()
	store := &fakeStore{email: map[uuid.UUID]*model.EmailMessage{
		convA: emailMsg(convA, model.EmailStatusSent, time.Now()),
		convB: emailMsg(convB, model.EmailStatusSent, time.Now()),
	}}
	broker := newFakeBroker()
	tracker := NewTracker(store, broker, model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convA, convB}))
	before := tracker.Snapshot()[convB]

	publishEmailChange(t, broker, emailMsg(convA, model.EmailStatusDelivered, time.Now()))

	waitFor(t, func() bool {
		snap := tracker.Snapshot()
		return snap[convA] != nil && snap[convA].Status == model.EmailStatusDelivered
	})

	after := tracker.Snapshot()[convB]
	assert.Equal(t, before, after)
}

func TestTrackerWhatsAppFiltersClientSide(t *testing.T) {
	tracked := uuid.New()
	other := uuid.New()
	store := &fakeStore{whatsapp: map[uuid.UUID]*model.WhatsAppMessage{}}
	broker := newFakeBroker()
	tracker := NewTracker(store, broker, model.ChannelWhatsApp, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{tracked}))

	// Both events arrive on the shared topic; only the tracked
	// conversation lands in the projection.
	for _, convID := range []uuid.UUID{tracked, other} {
		msg := &model.WhatsAppMessage{
			ID:             uuid.New(),
			ConversationID: convID,
			RecipientPhone: "+14155550100",
			Status:         model.WhatsAppStatusDelivered,
			CreatedAt:      time.Now(),
		}
		payload, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, broker.Publish(context.Background(), model.WhatsAppChangeTopic(), messaging.Message{
			Type:    model.EventWhatsAppMessageUpdated,
			Payload: json.RawMessage(payload),
		}))
	}

	waitFor(t, func() bool {
		return tracker.Snapshot()[tracked] != nil
	})
	assert.NotContains(t, tracker.Snapshot(), other)
}

func TestTrackerRetrackReseedsAndRefilters(t *testing.T) {
	convA := uuid.New()
	convB := uuid.New()
	store := &fakeStore{email: map[uuid.UUID]*model.EmailMessage{
		convA: emailMsg(convA, model.EmailStatusDelivered, time.Now()),
		convB: emailMsg(convB, model.EmailStatusSent, time.Now()),
	}}
	broker := newFakeBroker()
	tracker := NewTracker(store, broker, model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convA}))
	require.Contains(t, tracker.Snapshot(), convA)

	// Changing the tracked set tears down and re-seeds; the old
	// conversation disappears from the projection.
	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convB}))
	assert.Equal(t, 2, store.fetches)
	snap := tracker.Snapshot()
	assert.NotContains(t, snap, convA)
	require.Contains(t, snap, convB)

	// Events for the dropped conversation no longer apply.
	publishEmailChange(t, broker, emailMsg(convA, model.EmailStatusOpened, time.Now()))
	time.Sleep(50 * time.Millisecond)
	assert.NotContains(t, tracker.Snapshot(), convA)
}

func TestTrackerSeedFailureDegradesToEmpty(t *testing.T) {
	store := &fakeStore{err: assert.AnError}
	tracker := NewTracker(store, newFakeBroker(), model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{uuid.New()}))

	assert.False(t, tracker.Loading())
	assert.Empty(t, tracker.Snapshot())
}

func TestTrackerUpdatesStream(t *testing.T) {
	convA := uuid.New()
	store := &fakeStore{email: map[uuid.UUID]*model.EmailMessage{}}
	broker := newFakeBroker()
	tracker := NewTracker(store, broker, model.ChannelEmail, logger.NewLogger(nil), testMetrics)
	defer tracker.Close()

	require.NoError(t, tracker.Track(context.Background(), []uuid.UUID{convA}))

	publishEmailChange(t, broker, emailMsg(convA, model.EmailStatusDelivered, time.Now()))

	select {
	case view := <-tracker.Updates():
		assert.Equal(t, convA, view.ConversationID)
		assert.Equal(t, model.EmailStatusDelivered, view.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}
}
