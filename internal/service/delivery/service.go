// Package delivery applies normalized provider webhook events to stored
// delivery records. Ingestion is stateless and safe under concurrent,
// duplicated, out-of-order deliveries: correctness rests on the store's
// atomic update and the forward-only status check here.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hireflowhq/delivery-api/internal/model"
	"github.com/hireflowhq/delivery-api/internal/normalizer"
	"github.com/hireflowhq/delivery-api/internal/repository"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

// EmailEvent is one raw event from the email provider. The provider may
// batch several per webhook call. Every field is optional on the wire.
type EmailEvent struct {
	Event     string `json:"event"`
	Email     string `json:"email"`
	MessageID string `json:"message-id"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
}

// WhatsAppEvent is the single event the WhatsApp provider sends per
// webhook call. Timestamp is raw because the provider has shipped both
// epoch seconds and RFC 3339 strings.
type WhatsAppEvent struct {
	MessageID   string          `json:"messageId"`
	Status      string          `json:"status"`
	Destination string          `json:"destination"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	Error       *WhatsAppError  `json:"error,omitempty"`
}

type WhatsAppError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Outcome classifies what happened to one ingested event. Skips are
// normal operation, not errors; only a store failure surfaces as error.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeBestEffort       Outcome = "best_effort"
	OutcomeSkippedNoID      Outcome = "skipped_no_id"
	OutcomeSkippedUnknownID Outcome = "skipped_unknown_id"
	OutcomeSkippedStale     Outcome = "skipped_stale"
	OutcomeFailed           Outcome = "failed"
)

type Service struct {
	emails    repository.EmailMessageRepository
	whatsapps repository.WhatsAppMessageRepository
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	emails repository.EmailMessageRepository,
	whatsapps repository.WhatsAppMessageRepository,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		emails:    emails,
		whatsapps: whatsapps,
		logger:    logger,
		metrics:   metrics,
	}
}

// ApplyEmailEvent processes one email provider event. A missing or
// unknown message identifier discards the event without error: webhooks
// race ahead of local inserts, and test-mode events reference records
// that never existed here. Events are never turned into new records.
func (s *Service) ApplyEmailEvent(ctx context.Context, ev *EmailEvent) (Outcome, error) {
	outcome, err := s.applyEmailEvent(ctx, ev)
	s.metrics.WebhookEventsTotal.WithLabelValues(string(model.ChannelEmail), string(outcome)).Inc()
	return outcome, err
}

func (s *Service) applyEmailEvent(ctx context.Context, ev *EmailEvent) (Outcome, error) {
	if ev.MessageID == "" {
		s.logger.Warn("Discarding email event without message id", "event", ev.Event)
		return OutcomeSkippedNoID, nil
	}

	rec, err := s.emails.FindByExternalID(ctx, ev.MessageID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to look up email message: %w", err)
	}
	if rec == nil {
		s.logger.Debug("No email message for webhook event",
			"message_id", ev.MessageID, "event", ev.Event)
		return OutcomeSkippedUnknownID, nil
	}

	occurredAt := parseEventTime(ev.Date)
	current := emailEffectiveStatus(rec)

	tr, known := normalizer.EmailTransition(ev.Event)
	if !known {
		// Outside the known vocabulary: store the raw event name as a
		// best-effort status so new provider event types degrade
		// gracefully instead of being rejected. No timestamp is stamped.
		if normalizer.EmailIsTerminal(current) {
			s.logger.Warn("Ignoring unmapped email event on terminal record",
				"event", ev.Event, "message_id", ev.MessageID, "status", rec.Status)
			return OutcomeSkippedStale, nil
		}
		s.logger.Warn("Storing unmapped email event verbatim",
			"event", ev.Event, "message_id", ev.MessageID)
		if _, err := s.emails.ApplyTransition(ctx, rec.ID, &model.StatusTransition{
			Status:     strings.ToLower(strings.TrimSpace(ev.Event)),
			OccurredAt: occurredAt,
		}); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to store best-effort status: %w", err)
		}
		return OutcomeBestEffort, nil
	}

	if !normalizer.EmailShouldApply(current, tr.Status) {
		s.logger.Debug("Ignoring stale email event",
			"event", ev.Event, "message_id", ev.MessageID,
			"current", current, "incoming", tr.Status)
		return OutcomeSkippedStale, nil
	}

	transition := &model.StatusTransition{
		Status:         tr.Status,
		TimestampField: tr.TimestampField,
		OccurredAt:     occurredAt,
	}
	if tr.DefaultReason != "" {
		reason := ev.Reason
		if reason == "" {
			reason = tr.DefaultReason
		}
		transition.ErrorMessage = &reason
	}

	if _, err := s.emails.ApplyTransition(ctx, rec.ID, transition); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to apply email transition: %w", err)
	}
	return OutcomeApplied, nil
}

// ApplyWhatsAppEvent processes the WhatsApp provider's status callback.
// Semantics mirror ApplyEmailEvent.
func (s *Service) ApplyWhatsAppEvent(ctx context.Context, ev *WhatsAppEvent) (Outcome, error) {
	outcome, err := s.applyWhatsAppEvent(ctx, ev)
	s.metrics.WebhookEventsTotal.WithLabelValues(string(model.ChannelWhatsApp), string(outcome)).Inc()
	return outcome, err
}

func (s *Service) applyWhatsAppEvent(ctx context.Context, ev *WhatsAppEvent) (Outcome, error) {
	if ev.MessageID == "" {
		s.logger.Warn("Discarding whatsapp event without message id", "status", ev.Status)
		return OutcomeSkippedNoID, nil
	}

	rec, err := s.whatsapps.FindByExternalID(ctx, ev.MessageID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to look up whatsapp message: %w", err)
	}
	if rec == nil {
		s.logger.Debug("No whatsapp message for webhook event",
			"message_id", ev.MessageID, "status", ev.Status)
		return OutcomeSkippedUnknownID, nil
	}

	occurredAt := parseRawEventTime(ev.Timestamp)
	current := whatsappEffectiveStatus(rec)

	tr, known := normalizer.WhatsAppTransition(ev.Status)
	if !known {
		if normalizer.WhatsAppIsTerminal(current) {
			s.logger.Warn("Ignoring unmapped whatsapp status on terminal record",
				"status", ev.Status, "message_id", ev.MessageID, "current", rec.Status)
			return OutcomeSkippedStale, nil
		}
		s.logger.Warn("Storing unmapped whatsapp status verbatim",
			"status", ev.Status, "message_id", ev.MessageID)
		if _, err := s.whatsapps.ApplyTransition(ctx, rec.ID, &model.StatusTransition{
			Status:     strings.ToLower(strings.TrimSpace(ev.Status)),
			OccurredAt: occurredAt,
		}); err != nil {
			return OutcomeFailed, fmt.Errorf("failed to store best-effort status: %w", err)
		}
		return OutcomeBestEffort, nil
	}

	if !normalizer.WhatsAppShouldApply(current, tr.Status) {
		s.logger.Debug("Ignoring stale whatsapp event",
			"status", ev.Status, "message_id", ev.MessageID,
			"current", current, "incoming", tr.Status)
		return OutcomeSkippedStale, nil
	}

	transition := &model.StatusTransition{
		Status:         tr.Status,
		TimestampField: tr.TimestampField,
		OccurredAt:     occurredAt,
	}
	if tr.DefaultReason != "" {
		reason := tr.DefaultReason
		if ev.Error != nil && ev.Error.Message != "" {
			reason = ev.Error.Message
		}
		transition.ErrorMessage = &reason
	}

	if _, err := s.whatsapps.ApplyTransition(ctx, rec.ID, transition); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to apply whatsapp transition: %w", err)
	}
	return OutcomeApplied, nil
}

// emailEffectiveStatus resolves the lifecycle position the forward-only
// check compares against. A best-effort unmapped status ranks zero, but
// the record's first-write-only timestamps still evidence the highest
// canonical stage reached, so a late duplicate of an earlier event
// cannot regress the record through an unmapped status.
func emailEffectiveStatus(m *model.EmailMessage) string {
	candidates := []string{m.Status}
	if m.DeliveredAt != nil {
		candidates = append(candidates, model.EmailStatusDelivered)
	}
	if m.OpenedAt != nil {
		candidates = append(candidates, model.EmailStatusOpened)
	}
	if m.BouncedAt != nil {
		candidates = append(candidates, model.EmailStatusBounced)
	}
	if m.FailedAt != nil {
		candidates = append(candidates, model.EmailStatusFailed)
	}
	return normalizer.EmailHighestStatus(candidates...)
}

func whatsappEffectiveStatus(m *model.WhatsAppMessage) string {
	candidates := []string{m.Status}
	if m.DeliveredAt != nil {
		candidates = append(candidates, model.WhatsAppStatusDelivered)
	}
	if m.ReadAt != nil {
		candidates = append(candidates, model.WhatsAppStatusRead)
	}
	if m.FailedAt != nil {
		candidates = append(candidates, model.WhatsAppStatusFailed)
	}
	return normalizer.WhatsAppHighestStatus(candidates...)
}

var eventTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseEventTime accepts the handful of date formats the providers have
// been observed sending; anything unparseable falls back to receipt
// time, which keeps timestamps best-effort rather than fatal.
func parseEventTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Now().UTC()
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}

// parseRawEventTime handles the WhatsApp provider's timestamp field,
// which arrives either as a JSON number (epoch seconds) or a quoted
// string.
func parseRawEventTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Now().UTC()
	}
	trimmed := bytes.Trim(bytes.TrimSpace(raw), `"`)
	return parseEventTime(string(trimmed))
}
