package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hireflowhq/delivery-api/internal/model"
)

func TestEmailTransition(t *testing.T) {
	tests := []struct {
		event     string
		status    string
		timestamp model.TimestampField
		reason    bool
	}{
		{"delivered", model.EmailStatusDelivered, model.TimestampDelivered, false},
		{"opened", model.EmailStatusOpened, model.TimestampOpened, false},
		{"unique_opened", model.EmailStatusOpened, model.TimestampOpened, false},
		{"hard_bounce", model.EmailStatusBounced, model.TimestampBounced, true},
		{"soft_bounce", model.EmailStatusBounced, model.TimestampBounced, true},
		{"blocked", model.EmailStatusFailed, model.TimestampFailed, true},
		{"invalid_email", model.EmailStatusFailed, model.TimestampFailed, true},
		{"error", model.EmailStatusFailed, model.TimestampFailed, true},
		{"spam", model.EmailStatusSpam, model.TimestampFailed, true},
		{"complaint", model.EmailStatusSpam, model.TimestampFailed, true},
		{"unsubscribed", model.EmailStatusUnsubscribed, model.TimestampNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			tr, ok := EmailTransition(tt.event)
			assert.True(t, ok)
			assert.Equal(t, tt.status, tr.Status)
			assert.Equal(t, tt.timestamp, tr.TimestampField)
			if tt.reason {
				assert.NotEmpty(t, tr.DefaultReason)
			} else {
				assert.Empty(t, tr.DefaultReason)
			}
		})
	}
}

func TestEmailTransitionUnknownEvent(t *testing.T) {
	_, ok := EmailTransition("proxy_open")
	assert.False(t, ok)

	_, ok = EmailTransition("")
	assert.False(t, ok)
}

func TestEmailTransitionIgnoresCaseAndSpace(t *testing.T) {
	tr, ok := EmailTransition(" Delivered ")
	assert.True(t, ok)
	assert.Equal(t, model.EmailStatusDelivered, tr.Status)
}

func TestEmailShouldApply(t *testing.T) {
	// Forward moves.
	assert.True(t, EmailShouldApply(model.EmailStatusSent, model.EmailStatusDelivered))
	assert.True(t, EmailShouldApply(model.EmailStatusDelivered, model.EmailStatusOpened))
	assert.True(t, EmailShouldApply(model.EmailStatusSent, model.EmailStatusBounced))

	// Backward and duplicate moves are ignored.
	assert.False(t, EmailShouldApply(model.EmailStatusDelivered, model.EmailStatusSent))
	assert.False(t, EmailShouldApply(model.EmailStatusDelivered, model.EmailStatusDelivered))
	assert.False(t, EmailShouldApply(model.EmailStatusOpened, model.EmailStatusDelivered))

	// Terminal statuses accept nothing.
	assert.False(t, EmailShouldApply(model.EmailStatusBounced, model.EmailStatusOpened))
	assert.False(t, EmailShouldApply(model.EmailStatusSpam, model.EmailStatusDelivered))
	assert.False(t, EmailShouldApply(model.EmailStatusUnsubscribed, model.EmailStatusFailed))

	// A best-effort raw status ranks zero, so canonical events recover.
	assert.True(t, EmailShouldApply("proxy_open", model.EmailStatusDelivered))
}

func TestEmailIsTerminal(t *testing.T) {
	assert.True(t, EmailIsTerminal(model.EmailStatusBounced))
	assert.True(t, EmailIsTerminal(model.EmailStatusFailed))
	assert.True(t, EmailIsTerminal(model.EmailStatusSpam))
	assert.True(t, EmailIsTerminal(model.EmailStatusUnsubscribed))
	assert.False(t, EmailIsTerminal(model.EmailStatusSent))
	assert.False(t, EmailIsTerminal(model.EmailStatusOpened))
	assert.False(t, EmailIsTerminal("proxy_open"))
}

func TestEmailHighestStatus(t *testing.T) {
	assert.Equal(t, model.EmailStatusOpened,
		EmailHighestStatus("proxy_open", model.EmailStatusDelivered, model.EmailStatusOpened))
	assert.Equal(t, model.EmailStatusBounced,
		EmailHighestStatus("proxy_open", model.EmailStatusBounced))

	// First argument wins ties, so a canonical stored status survives.
	assert.Equal(t, model.EmailStatusOpened,
		EmailHighestStatus(model.EmailStatusOpened, model.EmailStatusOpened))
	assert.Equal(t, "proxy_open", EmailHighestStatus("proxy_open"))
}
