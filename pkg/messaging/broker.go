package messaging

import (
	"context"
)

// Broker is the change notification channel: record updates are
// published per topic and fan-out to any number of subscribers is the
// broker's concern, not the publisher's.
type Broker interface {
	Publish(ctx context.Context, topic string, message interface{}) error
	// Subscribe delivers raw message payloads until ctx is cancelled.
	// Cancelling ctx releases the underlying connection and closes the
	// returned channel.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}

// Message is the wire envelope published on change topics.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
