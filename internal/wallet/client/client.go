// Package client talks to a ledger node over its HTTP API on behalf of a wallet.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"idledger/internal/ledger/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/circuit"
	"idledger/pkg/platform/sentinel"
)

const maxResponseBytes = 4 << 20

// Outcome is the node's answer to a write. Exactly one field is set.
type Outcome struct {
	Reply *models.Reply
	Ack   *models.Ack
	Nack  *models.Nack
}

// Wallet is the part of a wallet Sync drives.
type Wallet interface {
	PreparePending() ([]*models.Txn, error)
	HandleReply(ctx context.Context, reply *models.Reply) error
	HandleNack(ctx context.Context, nack *models.Nack) error
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker
	poller  Poller
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func WithPoller(p Poller) Option {
	return func(cl *Client) { cl.poller = p }
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// New creates a client for the node at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuit.New("ledger-node"),
		poller:  DefaultPoller,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts a signed write. Rejections come back as an Outcome with Nack set, not as an error;
// errors are transport or decoding failures.
func (c *Client) Submit(ctx context.Context, txn *models.Txn) (*Outcome, error) {
	status, body, err := c.post(ctx, "/txns", txn)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
		var reply models.Reply
		if err := json.Unmarshal(body, &reply); err != nil {
			return nil, fmt.Errorf("decode reply: %w", err)
		}
		return &Outcome{Reply: &reply}, nil
	case http.StatusAccepted:
		var ack models.Ack
		if err := json.Unmarshal(body, &ack); err != nil {
			return nil, fmt.Errorf("decode ack: %w", err)
		}
		return &Outcome{Ack: &ack}, nil
	}
	var nack models.Nack
	if err := json.Unmarshal(body, &nack); err != nil || nack.Code == "" {
		e := decodeError(status, body)
		nack = *models.NackFor(txn, e)
	}
	return &Outcome{Nack: &nack}, nil
}

// Query posts a read. State not committed yet surfaces as CodeNotYetAvailable.
func (c *Client) Query(ctx context.Context, txn *models.Txn) (*models.Reply, error) {
	status, body, err := c.post(ctx, "/query", txn)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeError(status, body)
	}
	var reply models.Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return &reply, nil
}

// PollQuery repeats Query until the state is committed or the poller gives up.
func (c *Client) PollQuery(ctx context.Context, txn *models.Txn) (*models.Reply, error) {
	var reply *models.Reply
	err := c.poller.Poll(ctx, func(ctx context.Context) error {
		r, err := c.Query(ctx, txn)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Sync submits everything the wallet has pending, in order, and folds each outcome back into it.
// An acknowledged write whose reply did not arrive stays prepared. Transport failures stop the
// batch; rejections do not.
func (c *Client) Sync(ctx context.Context, w Wallet) error {
	txns, err := w.PreparePending()
	if err != nil {
		return err
	}
	var errs []error
	for _, txn := range txns {
		out, err := c.Submit(ctx, txn)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		switch {
		case out.Reply != nil:
			if err := w.HandleReply(ctx, out.Reply); err != nil {
				errs = append(errs, err)
			}
		case out.Nack != nil:
			errs = append(errs, w.HandleNack(ctx, out.Nack))
		default:
			c.logger.InfoContext(ctx, "write acknowledged, reply pending",
				"identifier", txn.Identifier,
				"req_id", txn.ReqID,
				"txn_id", out.Ack.TxnID,
			)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) post(ctx context.Context, path string, v any) (int, []byte, error) {
	if !c.breaker.Allow() {
		return 0, nil, fmt.Errorf("node %s: circuit open: %w", c.baseURL, sentinel.ErrUnavailable)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "node circuit opened", "node", c.baseURL, "error", err)
		}
		return 0, nil, fmt.Errorf("post %s: %w", path, errors.Join(sentinel.ErrUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		c.breaker.RecordFailure()
	} else if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "node circuit closed", "node", c.baseURL)
	}
	return resp.StatusCode, body, nil
}

type errorBody struct {
	Error       string   `json:"error"`
	Description string   `json:"error_description"`
	Fields      []string `json:"fields"`
}

func decodeError(status int, body []byte) error {
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return dErrors.Newf(dErrors.CodeInternal, "node answered %d %s", status, http.StatusText(status))
	}
	msg := e.Description
	if msg == "" {
		msg = e.Error
	}
	return dErrors.New(dErrors.Code(e.Error), msg).WithFields(e.Fields...)
}
