// Package aggregator maintains per-viewer live projections of delivery
// status: at most one record per conversation, the most recently created
// one, updated in place as change events arrive.
package aggregator

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/messaging"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

// Store is the bulk-fetch seed the tracker starts from.
type Store interface {
	LatestEmailByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.EmailMessage, error)
	LatestWhatsAppByConversations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.WhatsAppMessage, error)
}

// Tracker is one viewer's subscription to a bounded set of conversation
// ids on one channel. It is a scoped resource: acquired by Track,
// released by Close, never shared between viewers.
//
// Email change events arrive on per-conversation topics, so the broker
// does the filtering; WhatsApp events arrive on a single shared topic
// and are filtered here by conversation id.
type Tracker struct {
	store   Store
	broker  messaging.Broker
	channel model.Channel
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	records map[uuid.UUID]*model.DeliveryView
	tracked map[uuid.UUID]struct{}
	loading bool
	cancel  context.CancelFunc

	updates chan *model.DeliveryView
}

func NewTracker(store Store, broker messaging.Broker, channel model.Channel, logger *logger.Logger, metrics *metrics.Metrics) *Tracker {
	return &Tracker{
		store:   store,
		broker:  broker,
		channel: channel,
		logger:  logger,
		metrics: metrics,
		records: make(map[uuid.UUID]*model.DeliveryView),
		tracked: make(map[uuid.UUID]struct{}),
		updates: make(chan *model.DeliveryView, 64),
	}
}

// Track replaces the tracked conversation set. Any previous subscription
// is torn down in full and the projection is re-seeded; the filter is
// never diffed incrementally. Safe to call again with a changed set.
func (t *Tracker) Track(ctx context.Context, conversationIDs []uuid.UUID) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.metrics.TrackerSubscriptions.Dec()
	}

	subCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.loading = true
	t.records = make(map[uuid.UUID]*model.DeliveryView)
	t.tracked = make(map[uuid.UUID]struct{}, len(conversationIDs))
	for _, id := range conversationIDs {
		t.tracked[id] = struct{}{}
	}
	t.mu.Unlock()

	t.metrics.TrackerSubscriptions.Inc()

	seed, err := t.fetchSeed(subCtx, conversationIDs)

	t.mu.Lock()
	t.loading = false
	if err == nil {
		t.records = seed
	}
	t.mu.Unlock()

	if err != nil {
		// Degrade to "no live status" rather than failing the viewer.
		t.logger.Error(err, "Failed to seed delivery tracker", "channel", string(t.channel))
	}

	return t.subscribe(subCtx, conversationIDs)
}

func (t *Tracker) fetchSeed(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.DeliveryView, error) {
	seed := make(map[uuid.UUID]*model.DeliveryView, len(ids))
	switch t.channel {
	case model.ChannelEmail:
		latest, err := t.store.LatestEmailByConversations(ctx, ids)
		if err != nil {
			return nil, err
		}
		for convID, msg := range latest {
			seed[convID] = msg.View()
		}
	case model.ChannelWhatsApp:
		latest, err := t.store.LatestWhatsAppByConversations(ctx, ids)
		if err != nil {
			return nil, err
		}
		for convID, msg := range latest {
			seed[convID] = msg.View()
		}
	}
	return seed, nil
}

func (t *Tracker) subscribe(ctx context.Context, conversationIDs []uuid.UUID) error {
	var topics []string
	switch t.channel {
	case model.ChannelEmail:
		for _, id := range conversationIDs {
			topics = append(topics, model.EmailChangeTopic(id))
		}
	case model.ChannelWhatsApp:
		topics = append(topics, model.WhatsAppChangeTopic())
	}

	for _, topic := range topics {
		msgs, err := t.broker.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go t.consume(ctx, msgs)
	}
	return nil
}

func (t *Tracker) consume(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			t.apply(raw)
		}
	}
}

// apply replaces the tracked conversation's entry with the incoming
// record unconditionally, trusting the store's identifier-level
// ordering. Each event touches exactly one key.
func (t *Tracker) apply(raw []byte) {
	view, err := t.decode(raw)
	if err != nil {
		t.metrics.TrackerEventsTotal.WithLabelValues(string(t.channel), "decode_error").Inc()
		t.logger.Error(err, "Failed to decode change event", "channel", string(t.channel))
		return
	}

	t.mu.Lock()
	if _, ok := t.tracked[view.ConversationID]; !ok {
		t.mu.Unlock()
		t.metrics.TrackerEventsTotal.WithLabelValues(string(t.channel), "filtered").Inc()
		return
	}
	t.records[view.ConversationID] = view
	t.mu.Unlock()

	t.metrics.TrackerEventsTotal.WithLabelValues(string(t.channel), "applied").Inc()

	select {
	case t.updates <- view:
	default:
		// A slow consumer drops live updates; the snapshot stays correct.
		t.metrics.TrackerEventsTotal.WithLabelValues(string(t.channel), "dropped").Inc()
	}
}

func (t *Tracker) decode(raw []byte) (*model.DeliveryView, error) {
	var envelope struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}

	// Payloads published by the outbox processor are marshalled raw
	// JSON; tolerate a bare record too.
	body := envelope.Payload
	if len(body) == 0 {
		body = raw
	}

	switch t.channel {
	case model.ChannelEmail:
		var msg model.EmailMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, err
		}
		return msg.View(), nil
	default:
		var msg model.WhatsAppMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, err
		}
		return msg.View(), nil
	}
}

// Snapshot returns a copy of the projection; callers may read it freely
// while events keep arriving.
func (t *Tracker) Snapshot() map[uuid.UUID]*model.DeliveryView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[uuid.UUID]*model.DeliveryView, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// Loading reports whether the initial bulk fetch is still outstanding.
func (t *Tracker) Loading() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loading
}

// Updates streams applied change events to one consumer (the SSE
// handler). Events overflowing the buffer are dropped, not blocked on.
func (t *Tracker) Updates() <-chan *model.DeliveryView {
	return t.updates
}

// Close releases the subscription immediately. Subscriptions are scarce
// external resources; a viewer navigating away must not leak one.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
		t.metrics.TrackerSubscriptions.Dec()
	}
}
