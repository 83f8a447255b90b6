package normalizer

import (
	"strings"

	"github.com/hireflowhq/delivery-api/internal/model"
)

// whatsappTransitions maps provider status strings 1:1 onto canonical
// statuses, except "undelivered" which is a failure. Lookup is
// case-insensitive: providers have shipped both "READ" and "read".
var whatsappTransitions = map[string]Transition{
	"pending":     {Status: model.WhatsAppStatusPending, TimestampField: model.TimestampNone},
	"sent":        {Status: model.WhatsAppStatusSent, TimestampField: model.TimestampNone},
	"delivered":   {Status: model.WhatsAppStatusDelivered, TimestampField: model.TimestampDelivered},
	"read":        {Status: model.WhatsAppStatusRead, TimestampField: model.TimestampRead},
	"failed":      {Status: model.WhatsAppStatusFailed, TimestampField: model.TimestampFailed, DefaultReason: "message could not be delivered"},
	"undelivered": {Status: model.WhatsAppStatusFailed, TimestampField: model.TimestampFailed, DefaultReason: "message could not be delivered"},
}

// whatsappRanks orders the canonical WhatsApp lifecycle
// pending -> sent -> delivered -> read, with failed as the independent
// terminal branch. Read and failed are both terminal.
var whatsappRanks = ranks{
	order: map[string]int{
		model.WhatsAppStatusPending:   1,
		model.WhatsAppStatusSent:      2,
		model.WhatsAppStatusDelivered: 3,
		model.WhatsAppStatusRead:      4,
		model.WhatsAppStatusFailed:    4,
	},
	terminal: 4,
}

// WhatsAppTransition resolves a provider status string, ignoring case.
// The second return is false for statuses outside the known vocabulary.
func WhatsAppTransition(status string) (Transition, bool) {
	t, ok := whatsappTransitions[strings.ToLower(strings.TrimSpace(status))]
	return t, ok
}

// WhatsAppShouldApply reports whether a transition to next is a forward
// move from the current status.
func WhatsAppShouldApply(current, next string) bool {
	return whatsappRanks.shouldApply(current, next)
}

// WhatsAppIsTerminal reports whether status accepts no further canonical
// transitions.
func WhatsAppIsTerminal(status string) bool {
	return whatsappRanks.isTerminal(status)
}

// WhatsAppHighestStatus returns the highest-ranked of the given
// statuses, first one winning ties.
func WhatsAppHighestStatus(statuses ...string) string {
	return whatsappRanks.highest(statuses)
}
