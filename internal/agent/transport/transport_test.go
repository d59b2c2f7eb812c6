package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/pkg/platform/circuit"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/requestcontext"
)

type received struct {
	mu    sync.Mutex
	msgs  []string
	peers []string
}

func (r *received) handler(ctx context.Context, msg []byte, sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, string(msg))
	r.peers = append(r.peers, requestcontext.Peer(ctx)+"/"+sender)
}

func (r *received) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...), append([]string(nil), r.peers...)
}

func TestMemoryHubDeliversInOrder(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	alice, bob := hub.Endpoint("alice"), hub.Endpoint("bob")

	var got received
	bob.Handle(got.handler)

	ctx := context.Background()
	require.NoError(t, alice.Connect(ctx, "bob", ""))
	require.NoError(t, alice.Send(ctx, "bob", []byte("one")))
	require.NoError(t, alice.Send(ctx, "bob", []byte("two")))

	assert.Eventually(t, func() bool {
		msgs, _ := got.snapshot()
		return len(msgs) == 2
	}, time.Second, 5*time.Millisecond)
	msgs, peers := got.snapshot()
	assert.Equal(t, []string{"one", "two"}, msgs)
	assert.Equal(t, "alice/alice", peers[0])
}

func TestMemoryUnknownDestination(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	alice := hub.Endpoint("alice")

	err := alice.Send(context.Background(), "nobody", []byte("x"))
	assert.ErrorIs(t, err, sentinel.ErrUnknownDestination)
	assert.ErrorIs(t, alice.Connect(context.Background(), "nobody", ""), sentinel.ErrUnknownDestination)
}

func TestHTTPRoundTrip(t *testing.T) {
	var got received
	bob := NewHTTP("bob", "")
	bob.Handle(got.handler)
	r := chi.NewRouter()
	bob.Register(r)
	server := httptest.NewServer(r)
	defer server.Close()

	alice := NewHTTP("alice", "http://alice.example")
	ctx := context.Background()
	require.NoError(t, alice.Connect(ctx, "bob", server.URL))
	require.NoError(t, alice.Send(ctx, "bob", []byte("hello")))

	msgs, peers := got.snapshot()
	assert.Equal(t, []string{"hello"}, msgs)
	assert.Equal(t, []string{"alice/alice"}, peers)

	// bob learned where to answer alice from the request headers
	bob.mu.RLock()
	assert.Equal(t, "http://alice.example", bob.routes["alice"])
	bob.mu.RUnlock()
}

func TestHTTPUnknownDestination(t *testing.T) {
	err := NewHTTP("alice", "").Send(context.Background(), "bob", []byte("x"))
	assert.ErrorIs(t, err, sentinel.ErrUnknownDestination)
}

func TestHTTPBreakerOpensOnServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	alice := NewHTTP("alice", "", WithBreakerOptions(circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)))
	ctx := context.Background()
	require.NoError(t, alice.Connect(ctx, "bob", server.URL))
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, alice.Send(ctx, "bob", []byte("x")), sentinel.ErrUnavailable)
	}
	err := alice.Send(ctx, "bob", []byte("x"))
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Contains(t, err.Error(), "circuit open")
}
