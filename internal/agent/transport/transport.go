// Package transport moves sealed agent messages between named peers.
package transport

import "context"

// Handler receives an inbound message and the name of the peer that sent it.
type Handler func(ctx context.Context, msg []byte, sender string)

// Transport is best effort: Send returns once the peer accepted the bytes, not once they were
// processed. Sending to a name that was never connected fails with sentinel.ErrUnknownDestination.
type Transport interface {
	// Connect makes name routable at address.
	Connect(ctx context.Context, name, address string) error
	Send(ctx context.Context, destination string, msg []byte) error
	// Handle registers the inbound handler. A nil handler stops delivery.
	Handle(h Handler)
}
