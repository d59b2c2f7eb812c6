// Package wallet holds client-side ledger state: signing keys, known identities, attributes,
// credential definitions and credentials, plus the queue of requests on their way to the ledger.
//
// A request moves pending -> prepared -> applied (a reply assigned its seqNo) or abandoned. A
// missing seqNo is the only "not committed" marker; the wallet never guesses one.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"idledger/internal/ledger/models"
	"idledger/internal/ledger/txlog"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/audit"
	"idledger/pkg/signing"
)

var (
	// ErrClosed is returned by every operation on a closed wallet.
	ErrClosed = errors.New("wallet is closed")
	// ErrUnmatchedReply means a reply arrived for a request the wallet has no prepared entry for.
	// It is recoverable: the reply is logged and dropped.
	ErrUnmatchedReply = errors.New("no prepared request matches reply")
)

type replyHandler func(w *Wallet, p *Prepared, reply *models.Reply) error

// Wallet is safe for concurrent use; all state is serialized under one mutex.
type Wallet struct {
	mu   sync.Mutex
	name string
	open bool

	signers   map[string]*signing.Signer
	defaultID string
	reqIDs    map[string]int64

	identities  map[string]*Identity
	attributes  map[string]*Attribute
	credDefs    map[string]*CredentialDefinition
	issuerKeys  map[string]*IssuerKey
	credentials map[string]*Credential

	pending  []pendingRequest
	prepared map[models.RequestKey]*Prepared
	handlers map[models.TxnType]replyHandler

	now     func() time.Time
	logger  *slog.Logger
	auditor audit.Emitter
}

// Option configures a Wallet.
type Option func(*Wallet)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wallet) { w.logger = logger }
}

// WithAuditor records unmatched replies and abandoned requests.
func WithAuditor(a audit.Emitter) Option {
	return func(w *Wallet) { w.auditor = a }
}

func WithClock(now func() time.Time) Option {
	return func(w *Wallet) { w.now = now }
}

// New creates an open wallet.
func New(name string, opts ...Option) *Wallet {
	w := &Wallet{
		name:        name,
		open:        true,
		signers:     make(map[string]*signing.Signer),
		reqIDs:      make(map[string]int64),
		identities:  make(map[string]*Identity),
		attributes:  make(map[string]*Attribute),
		credDefs:    make(map[string]*CredentialDefinition),
		issuerKeys:  make(map[string]*IssuerKey),
		credentials: make(map[string]*Credential),
		prepared:    make(map[models.RequestKey]*Prepared),
		handlers: map[models.TxnType]replyHandler{
			models.TypeNym:       (*Wallet).applyNym,
			models.TypeAttrib:    (*Wallet).applyAttrib,
			models.TypeCredDef:   (*Wallet).applyCredDef,
			models.TypeIssuerKey: (*Wallet).applyIssuerKey,
		},
		now:     time.Now,
		logger:  slog.Default(),
		auditor: audit.Nop{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wallet) Name() string { return w.name }

// Open reopens a closed wallet. Keys and cached state survive a close; queues do not.
func (w *Wallet) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
}

// Close drops pending and prepared requests and refuses further use until Open.
func (w *Wallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrClosed
	}
	if n := len(w.prepared); n > 0 {
		w.logger.Warn("closing wallet with unconfirmed requests", "wallet", w.name, "prepared", n)
	}
	w.pending = nil
	w.prepared = make(map[models.RequestKey]*Prepared)
	w.open = false
	return nil
}

// AddSigner makes identifier material managed by the wallet. The first signer becomes the default.
func (w *Wallet) AddSigner(s *signing.Signer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signers[s.Identifier()] = s
	if w.defaultID == "" {
		w.defaultID = s.Identifier()
	}
	if _, ok := w.identities[s.Identifier()]; !ok {
		w.identities[s.Identifier()] = &Identity{Identifier: s.Identifier(), Verkey: s.Verkey()}
	}
}

// NewIdentifier creates and manages a fresh signer.
func (w *Wallet) NewIdentifier() (*signing.Signer, error) {
	s, err := signing.GenerateSigner()
	if err != nil {
		return nil, err
	}
	w.AddSigner(s)
	return s, nil
}

// Signer returns the managed signer for identifier.
func (w *Wallet) Signer(identifier string) (*signing.Signer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.signers[identifier]
	return s, ok
}

func (w *Wallet) DefaultID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.defaultID
}

// Submit queues txn for signing and returns the number of pending requests. An empty identifier
// means the default one; the request id is assigned here.
func (w *Wallet) Submit(txn *models.Txn) (int, error) {
	return w.submit(txn, "", nil)
}

func (w *Wallet) submit(txn *models.Txn, correlation string, entity any) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return 0, ErrClosed
	}
	cp := txn.Clone()
	if cp.Identifier == "" {
		cp.Identifier = w.defaultID
	}
	if _, ok := w.signers[cp.Identifier]; !ok {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "identifier %s is not managed by this wallet", cp.Identifier).
			WithFields(models.FieldIdentifier)
	}
	cp.ReqID = w.nextReqID(cp.Identifier)
	if correlation == "" {
		correlation = correlationFor(cp)
	}
	w.pending = append(w.pending, pendingRequest{txn: cp, correlation: correlation, entity: entity})
	return len(w.pending), nil
}

// nextReqID is time based so a wallet reopened after a restart never reuses a request id.
func (w *Wallet) nextReqID(identifier string) int64 {
	next := w.reqIDs[identifier] + 1
	if base := w.now().UnixMicro(); base > next {
		next = base
	}
	w.reqIDs[identifier] = next
	return next
}

// PreparePending signs every pending request in submission order and moves them to the prepared
// map. The returned order is the submission order; later requests may depend on earlier ones.
func (w *Wallet) PreparePending() ([]*models.Txn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil, ErrClosed
	}
	out := make([]*models.Txn, 0, len(w.pending))
	for i, p := range w.pending {
		signer := w.signers[p.txn.Identifier]
		sig, err := signer.SignCanonical(p.txn.SigningPayload())
		if err != nil {
			w.pending = w.pending[i:]
			return out, fmt.Errorf("sign request %s: %w", p.txn.Key(), err)
		}
		signed := p.txn.Clone()
		signed.Signature = sig
		w.prepared[signed.Key()] = &Prepared{Txn: signed, Correlation: p.correlation, SubmittedAt: w.now(), Entity: p.entity}
		out = append(out, signed.Clone())
	}
	w.pending = nil
	return out, nil
}

// HandleReply folds a committed reply into local state. Write replies must carry a valid
// inclusion proof. A reply with no prepared entry returns ErrUnmatchedReply after logging it.
func (w *Wallet) HandleReply(ctx context.Context, reply *models.Reply) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrClosed
	}
	key := reply.Key()
	p, ok := w.prepared[key]
	if !ok {
		w.logger.WarnContext(ctx, "reply matches no prepared request",
			"wallet", w.name,
			"identifier", reply.Identifier,
			"req_id", reply.ReqID,
			"seq_no", reply.SeqNo,
		)
		w.emit(ctx, audit.Event{
			Action:  string(audit.EventReplyUnmatched),
			Subject: reply.Identifier,
			Reason:  key.String(),
		})
		return fmt.Errorf("%w: %s", ErrUnmatchedReply, key)
	}
	handler, ok := w.handlers[p.Txn.Type]
	if !ok {
		return dErrors.Newf(dErrors.CodeBadRequest, "no reply handler for %s", p.Txn.Type)
	}
	if err := txlog.VerifyReply(reply); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidSignature, "reply proof does not verify")
	}
	if err := handler(w, p, reply); err != nil {
		return err
	}
	delete(w.prepared, key)
	w.logger.InfoContext(ctx, "request committed",
		"wallet", w.name,
		"type", string(p.Txn.Type),
		"identifier", key.Identifier,
		"req_id", key.ReqID,
		"seq_no", reply.SeqNo,
	)
	return nil
}

// HandleNack drops the prepared entry a rejection answers and returns the rejection as an error.
func (w *Wallet) HandleNack(ctx context.Context, nack *models.Nack) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := models.RequestKey{Identifier: nack.Identifier, ReqID: nack.ReqID}
	if _, ok := w.prepared[key]; !ok {
		w.logger.WarnContext(ctx, "nack matches no prepared request", "wallet", w.name, "request", key.String())
	}
	delete(w.prepared, key)
	w.logger.InfoContext(ctx, "request rejected",
		"wallet", w.name,
		"identifier", nack.Identifier,
		"req_id", nack.ReqID,
		"code", nack.Code,
		"post_commit", nack.PostCommit,
	)
	return nack.Err()
}

// Abandon drops prepared requests submitted before deadline and returns their keys in order.
func (w *Wallet) Abandon(ctx context.Context, deadline time.Time) []models.RequestKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	var dropped []models.RequestKey
	for key, p := range w.prepared {
		if p.SubmittedAt.Before(deadline) {
			dropped = append(dropped, key)
			delete(w.prepared, key)
		}
	}
	sort.Slice(dropped, func(i, j int) bool {
		if dropped[i].Identifier != dropped[j].Identifier {
			return dropped[i].Identifier < dropped[j].Identifier
		}
		return dropped[i].ReqID < dropped[j].ReqID
	})
	for _, key := range dropped {
		w.logger.WarnContext(ctx, "request abandoned", "wallet", w.name, "identifier", key.Identifier, "req_id", key.ReqID)
		w.emit(ctx, audit.Event{Action: string(audit.EventRequestAbandoned), Subject: key.Identifier, Reason: key.String()})
	}
	return dropped
}

// PendingCount returns the number of requests not yet signed.
func (w *Wallet) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Prepared returns a copy of the prepared entry for key.
func (w *Wallet) Prepared(key models.RequestKey) (*Prepared, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.prepared[key]
	if !ok {
		return nil, false
	}
	return &Prepared{Txn: p.Txn.Clone(), Correlation: p.Correlation, SubmittedAt: p.SubmittedAt, Entity: p.Entity}, true
}

func (w *Wallet) PreparedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prepared)
}

func (w *Wallet) emit(ctx context.Context, event audit.Event) {
	if err := w.auditor.Emit(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to emit audit event", "action", string(event.Action), "error", err)
	}
}

func correlationFor(t *models.Txn) string {
	switch t.Type {
	case models.TypeNym:
		return nymKey(t.Dest)
	case models.TypeCredDef:
		if cd, err := t.CredDef(); err == nil {
			return credDefKey(t.Identifier, cd.Name, cd.Version)
		}
	case models.TypeIssuerKey:
		return issuerKeyKey(t.Identifier, t.Ref)
	}
	return t.Key().String()
}

// PrepareQuery stamps a read request with the default identifier and a fresh request id and
// signs it. Queries never enter the pending queue.
func (w *Wallet) PrepareQuery(txn *models.Txn) (*models.Txn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return nil, ErrClosed
	}
	if !txn.Type.IsReadOnly() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a query", txn.Type).WithFields(models.FieldType)
	}
	cp := txn.Clone()
	if cp.Identifier == "" {
		cp.Identifier = w.defaultID
	}
	signer, ok := w.signers[cp.Identifier]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "identifier %s is not managed by this wallet", cp.Identifier).
			WithFields(models.FieldIdentifier)
	}
	cp.ReqID = w.nextReqID(cp.Identifier)
	sig, err := signer.SignCanonical(cp.SigningPayload())
	if err != nil {
		return nil, fmt.Errorf("sign query: %w", err)
	}
	cp.Signature = sig
	return cp, nil
}
