package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"idledger/pkg/platform/circuit"
	"idledger/pkg/platform/httputil"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/requestcontext"
)

const (
	// HeaderSender names the sending agent.
	HeaderSender = "X-Agent-Sender"
	// HeaderEndpoint is where the sending agent accepts replies.
	HeaderEndpoint = "X-Agent-Endpoint"

	messagesPath    = "/agent/messages"
	maxMessageBytes = 1 << 20
	contentTypeJWS  = "application/jose"
)

// HTTP delivers messages as POST bodies. Every destination has its own circuit breaker.
type HTTP struct {
	name     string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
	breaker  []circuit.Option

	mu       sync.RWMutex
	routes   map[string]string
	breakers map[string]*circuit.Breaker
	handler  Handler
}

type HTTPOption func(*HTTP)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = c }
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(t *HTTP) { t.logger = logger }
}

// WithBreakerOptions configures the per-destination circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) HTTPOption {
	return func(t *HTTP) { t.breaker = opts }
}

// NewHTTP creates a transport for the agent called name, reachable at endpoint.
func NewHTTP(name, endpoint string, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
		routes:   make(map[string]string),
		breakers: make(map[string]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register mounts the inbound route.
func (t *HTTP) Register(r chi.Router) {
	r.Post(messagesPath, t.handleInbound)
}

func (t *HTTP) Connect(_ context.Context, name, address string) error {
	if address == "" {
		return fmt.Errorf("connect %s: no address: %w", name, sentinel.ErrUnknownDestination)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes[name] = strings.TrimRight(address, "/")
	if _, ok := t.breakers[name]; !ok {
		t.breakers[name] = circuit.New("agent:"+name, t.breaker...)
	}
	return nil
}

func (t *HTTP) Send(ctx context.Context, destination string, msg []byte) error {
	t.mu.RLock()
	address, ok := t.routes[destination]
	breaker := t.breakers[destination]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", destination, sentinel.ErrUnknownDestination)
	}
	if !breaker.Allow() {
		return fmt.Errorf("send to %s: circuit open: %w", destination, sentinel.ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address+messagesPath, bytes.NewReader(msg))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJWS)
	req.Header.Set(HeaderSender, t.name)
	if t.endpoint != "" {
		req.Header.Set(HeaderEndpoint, t.endpoint)
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.recordFailure(ctx, breaker, destination, err)
		return fmt.Errorf("send to %s: %w", destination, errors.Join(sentinel.ErrUnavailable, err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMessageBytes))

	if resp.StatusCode >= http.StatusInternalServerError {
		t.recordFailure(ctx, breaker, destination, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("send to %s: status %d: %w", destination, resp.StatusCode, sentinel.ErrUnavailable)
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		t.logger.InfoContext(ctx, "agent circuit closed", "destination", destination)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send to %s: rejected with status %d", destination, resp.StatusCode)
	}
	return nil
}

func (t *HTTP) Handle(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *HTTP) recordFailure(ctx context.Context, b *circuit.Breaker, destination string, err error) {
	if _, change := b.RecordFailure(); change.Opened {
		t.logger.WarnContext(ctx, "agent circuit opened", "destination", destination, "error", err)
	}
}

func (t *HTTP) handleInbound(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sender := strings.TrimSpace(r.Header.Get(HeaderSender))
	if sender == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + HeaderSender})
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "message too large"})
		return
	}
	if endpoint := strings.TrimSpace(r.Header.Get(HeaderEndpoint)); endpoint != "" {
		_ = t.Connect(ctx, sender, endpoint)
	}

	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h == nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "agent is not accepting messages"})
		return
	}
	h(requestcontext.WithPeer(ctx, sender), body, sender)
	w.WriteHeader(http.StatusAccepted)
}
