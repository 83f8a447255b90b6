package normalizer

import (
	"strings"

	"github.com/hireflowhq/delivery-api/internal/model"
)

// emailTransitions maps the email provider's webhook event names onto
// canonical statuses. Several provider events collapse into one
// canonical status (hard and soft bounces are both "bounced").
var emailTransitions = map[string]Transition{
	"delivered":     {Status: model.EmailStatusDelivered, TimestampField: model.TimestampDelivered},
	"opened":        {Status: model.EmailStatusOpened, TimestampField: model.TimestampOpened},
	"unique_opened": {Status: model.EmailStatusOpened, TimestampField: model.TimestampOpened},
	"hard_bounce":   {Status: model.EmailStatusBounced, TimestampField: model.TimestampBounced, DefaultReason: "recipient address rejected the message"},
	"soft_bounce":   {Status: model.EmailStatusBounced, TimestampField: model.TimestampBounced, DefaultReason: "recipient mailbox temporarily unavailable"},
	"blocked":       {Status: model.EmailStatusFailed, TimestampField: model.TimestampFailed, DefaultReason: "message blocked by provider"},
	"invalid_email": {Status: model.EmailStatusFailed, TimestampField: model.TimestampFailed, DefaultReason: "invalid recipient address"},
	"error":         {Status: model.EmailStatusFailed, TimestampField: model.TimestampFailed, DefaultReason: "provider reported a send error"},
	"spam":          {Status: model.EmailStatusSpam, TimestampField: model.TimestampFailed, DefaultReason: "recipient marked the message as spam"},
	"complaint":     {Status: model.EmailStatusSpam, TimestampField: model.TimestampFailed, DefaultReason: "recipient filed a complaint"},
	"unsubscribed":  {Status: model.EmailStatusUnsubscribed, TimestampField: model.TimestampNone},
}

// emailRanks orders the canonical email lifecycle. The success path is
// sent -> delivered -> opened; the four failure branches are terminal.
var emailRanks = ranks{
	order: map[string]int{
		model.EmailStatusSent:         1,
		model.EmailStatusDelivered:    2,
		model.EmailStatusOpened:       3,
		model.EmailStatusBounced:      4,
		model.EmailStatusFailed:       4,
		model.EmailStatusSpam:         4,
		model.EmailStatusUnsubscribed: 4,
	},
	terminal: 4,
}

// EmailTransition resolves a provider event name to its canonical
// transition. The second return is false for event names outside the
// known vocabulary; callers record those verbatim as a best-effort
// status instead of rejecting the event.
func EmailTransition(event string) (Transition, bool) {
	t, ok := emailTransitions[strings.ToLower(strings.TrimSpace(event))]
	return t, ok
}

// EmailShouldApply reports whether a transition to next is a forward
// move from the current status.
func EmailShouldApply(current, next string) bool {
	return emailRanks.shouldApply(current, next)
}

// EmailIsTerminal reports whether status accepts no further canonical
// transitions.
func EmailIsTerminal(status string) bool {
	return emailRanks.isTerminal(status)
}

// EmailHighestStatus returns the highest-ranked of the given statuses,
// first one winning ties. Unmapped statuses rank zero, so a record's
// stamped timestamps can restore the lifecycle floor an unmapped
// best-effort status would otherwise discard.
func EmailHighestStatus(statuses ...string) string {
	return emailRanks.highest(statuses)
}
