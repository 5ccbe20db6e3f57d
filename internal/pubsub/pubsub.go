package pubsub

import (
	"context"
	"encoding/json"
)

// Topic carries every relay delivery between instances.
const Topic = "relay.deliveries"

// Delivery is one outbound frame addressed to a set of rooms. Payload is the
// already-encoded wire frame so every instance forwards identical bytes.
type Delivery struct {
	Rooms   []string        `json:"rooms"`
	Payload json.RawMessage `json:"payload"`
	// Except names a connection that must not receive the frame (typing echo).
	Except string `json:"except,omitempty"`
}

// Handler processes a received delivery.
type Handler func(ctx context.Context, d Delivery) error

// Broker fans deliveries out to every subscribed relay instance.
type Broker interface {
	Publish(ctx context.Context, d Delivery) error
	// Subscribe registers handler and returns once the subscription is live.
	// Messages are handled on a background goroutine until ctx is done or
	// the broker is closed.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}
