// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; the pipeline, the agent protocol and their loggers read them
// without importing net/http.
//
//	requestID := requestcontext.RequestID(ctx)
//	peer := requestcontext.Peer(ctx)
package requestcontext

import "context"

type (
	requestIDKey struct{}
	clientIPKey  struct{}
	peerKey      struct{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// ClientIP retrieves the caller's address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects the caller's address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// Peer retrieves the transport name of the agent a message came from.
func Peer(ctx context.Context) string {
	if name, ok := ctx.Value(peerKey{}).(string); ok {
		return name
	}
	return ""
}

// WithPeer records the sending agent's transport name.
func WithPeer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, peerKey{}, name)
}
