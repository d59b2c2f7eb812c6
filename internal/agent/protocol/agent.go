// Package protocol runs the agent side of links: invitations, ledger sync, and the signed
// message exchange through which claims are offered, issued and proved.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"idledger/internal/agent/invitation"
	"idledger/internal/agent/metrics"
	"idledger/internal/agent/models"
	"idledger/internal/agent/store"
	"idledger/internal/agent/transport"
	"idledger/internal/wallet"
	"idledger/pkg/domain"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/audit"
	"idledger/pkg/signing"
)

const defaultRequestDeadline = 2 * time.Minute

type outstanding struct {
	msgType  models.MsgType
	linkName string
	sentAt   time.Time
}

// Agent owns one identifier's links. Inbound messages arrive through its transport; outbound
// requests are tracked until answered or abandoned.
type Agent struct {
	name      string
	endpoint  string
	wallet    *wallet.Wallet
	signer    *signing.Signer
	store     store.Store
	transport transport.Transport
	reader    *ledgerReader
	engine    CryptoEngine

	Issuer   Issuer
	Prover   Prover
	Verifier Verifier

	deadline time.Duration
	now      func() time.Time
	logger   *slog.Logger
	auditor  audit.Emitter
	metrics  *metrics.Metrics

	// mu serializes read-modify-write of links.
	mu sync.Mutex

	outMu       sync.Mutex
	outstanding map[string]outstanding

	handlers map[models.MsgType]handlerFunc
}

type Option func(*Agent)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

func WithAuditor(e audit.Emitter) Option {
	return func(a *Agent) { a.auditor = e }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithEndpoint is the address this agent advertises in invitations and acceptances.
func WithEndpoint(endpoint string) Option {
	return func(a *Agent) { a.endpoint = endpoint }
}

// WithRequestDeadline bounds how long an outbound request may wait before Abandon drops it.
func WithRequestDeadline(d time.Duration) Option {
	return func(a *Agent) { a.deadline = d }
}

func WithIssuer(i Issuer) Option {
	return func(a *Agent) { a.Issuer = i }
}

func WithProver(p Prover) Option {
	return func(a *Agent) { a.Prover = p }
}

func WithVerifier(v Verifier) Option {
	return func(a *Agent) { a.Verifier = v }
}

// New creates an agent acting as the wallet's default identifier. Unless overridden, it proves
// with the wallet's credentials and verifies against issuer keys read from ledger. It issues
// nothing until given an Issuer.
func New(name string, w *wallet.Wallet, st store.Store, tr transport.Transport, ledger Ledger,
	engine CryptoEngine, opts ...Option) (*Agent, error) {
	signer, ok := w.Signer(w.DefaultID())
	if !ok {
		return nil, fmt.Errorf("agent %s: wallet %s has no signing identifier", name, w.Name())
	}
	a := &Agent{
		name:        name,
		wallet:      w,
		signer:      signer,
		store:       st,
		transport:   tr,
		engine:      engine,
		deadline:    defaultRequestDeadline,
		now:         time.Now,
		logger:      slog.Default(),
		auditor:     audit.Nop{},
		outstanding: make(map[string]outstanding),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reader = &ledgerReader{wallet: w, ledger: ledger, metrics: a.metrics}
	if a.Prover == nil && engine != nil {
		p := NewWalletProver(w, engine, ledger, a.metrics)
		p.now = a.now
		a.Prover = p
	}
	if a.Verifier == nil && engine != nil {
		a.Verifier = NewLedgerVerifier(w, engine, ledger, a.metrics)
	}
	a.handlers = map[models.MsgType]handlerFunc{
		models.MsgAcceptInvite:     (*Agent).onAcceptInvite,
		models.MsgAvailClaimList:   (*Agent).onAvailClaimList,
		models.MsgRequestClaim:     (*Agent).onRequestClaim,
		models.MsgClaim:            (*Agent).onClaim,
		models.MsgClaimProof:       (*Agent).onClaimProof,
		models.MsgClaimProofStatus: (*Agent).onClaimProofStatus,
		models.MsgError:            (*Agent).onError,
	}
	return a, nil
}

func (a *Agent) Name() string { return a.name }

// Identifier is the agent's ledger identifier and its transport name.
func (a *Agent) Identifier() string { return a.signer.Identifier() }

// Open starts accepting inbound messages.
func (a *Agent) Open() {
	a.transport.Handle(a.Handle)
}

// Close stops accepting inbound messages. Links stay in the store.
func (a *Agent) Close() {
	a.transport.Handle(nil)
}

// CreateInvitation records an outstanding invitation under a fresh nonce and returns the signed
// file to hand out of band.
func (a *Agent) CreateInvitation(ctx context.Context, name string, requests []models.ProofRequest) (*invitation.File, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invitation name is required").WithFields("name")
	}
	nonce := domain.NewNonce().String()
	f, err := invitation.New(a.signer, name, nonce, a.endpoint, requests)
	if err != nil {
		return nil, err
	}
	inv := &models.Invitation{
		Name:            name,
		LocalIdentifier: a.Identifier(),
		Nonce:           nonce,
		Endpoint:        a.endpoint,
		ProofRequests:   requests,
		CreatedAt:       a.now(),
	}
	if err := a.store.SaveInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invitation: %w", err)
	}
	a.logger.InfoContext(ctx, "invitation created", "agent", a.name, "link", name, "nonce", nonce)
	return f, nil
}

// LoadInvitation creates an unaccepted link from an invitation file. Loading the same
// invitation again returns the existing link.
func (a *Agent) LoadInvitation(ctx context.Context, f *invitation.File) (*models.Link, error) {
	payload, err := f.Payload()
	if err != nil {
		return nil, fmt.Errorf("encode invitation: %w", err)
	}
	li := f.LinkInvitation
	link := &models.Link{
		Name:              li.Name,
		LocalIdentifier:   a.Identifier(),
		RemoteIdentifier:  li.Identifier,
		RemoteEndpoint:    li.Endpoint,
		Nonce:             li.Nonce,
		Status:            models.StatusUnaccepted,
		ProofRequests:     f.ClaimRequests,
		InvitationSig:     f.Sig,
		InvitationPayload: payload,
		CreatedAt:         a.now(),
	}
	stored, created, err := a.store.CreateLink(ctx, link)
	if err != nil {
		return nil, err
	}
	if created {
		a.logger.InfoContext(ctx, "link created", "agent", a.name, "link", li.Name, "remote", li.Identifier)
		a.emit(ctx, audit.Event{Action: string(audit.EventLinkCreated), Subject: li.Name, ActorID: li.Identifier, Nonce: li.Nonce})
	}
	if err := a.transport.Connect(ctx, stored.RemoteIdentifier, stored.RemoteEndpoint); err != nil {
		a.logger.WarnContext(ctx, "remote agent is not reachable yet", "link", stored.Name, "error", err)
	}
	return stored, nil
}

// SyncLink reads the remote identity from the ledger, checks the invitation signature against
// it and marks the link synced.
func (a *Agent) SyncLink(ctx context.Context, name string) (*models.Link, error) {
	link, err := a.store.LinkByName(ctx, name)
	if err != nil {
		return nil, err
	}
	nym, err := a.reader.Nym(ctx, link.RemoteIdentifier)
	if err != nil {
		return nil, err
	}
	if nym.Verkey == "" {
		return nil, dErrors.Newf(dErrors.CodeInvalidSignature, "%s has no verkey on the ledger", link.RemoteIdentifier)
	}
	if link.InvitationSig != "" {
		if err := signing.Verify(nym.Verkey, link.InvitationPayload, link.InvitationSig); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidSignature, "invitation signature does not verify")
		}
	}
	return a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		l.RemoteVerkey = nym.Verkey
		l.Status = l.Status.Advance(models.StatusSynced)
		l.LastSynced = a.now()
		return nil
	})
}

// AcceptInvitation syncs the link if needed and tells the inviter where to reach us.
func (a *Agent) AcceptInvitation(ctx context.Context, name string) (*models.Link, error) {
	link, err := a.store.LinkByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if link.RemoteVerkey == "" {
		if link, err = a.SyncLink(ctx, name); err != nil {
			return nil, err
		}
	}
	msg, err := newMessage(models.MsgAcceptInvite, models.AcceptInviteBody{Endpoint: a.endpoint})
	if err != nil {
		return nil, err
	}
	if err := a.request(ctx, link, msg); err != nil {
		return nil, err
	}
	return link, nil
}

// RequestClaim asks the remote to issue a claim. A claim the remote never offered is still
// requested; the remote answers with an error envelope.
func (a *Agent) RequestClaim(ctx context.Context, linkName string, ref models.ClaimRef) error {
	link, err := a.store.LinkByName(ctx, linkName)
	if err != nil {
		return err
	}
	body := models.RequestClaimBody{Name: ref.Name, Version: ref.Version}
	if claim, ok := link.AvailableClaim(ref); ok && a.Prover != nil {
		if body.Commitment, err = a.Prover.Commit(ctx, link, claim); err != nil {
			return err
		}
	}
	msg, err := newMessage(models.MsgRequestClaim, body)
	if err != nil {
		return err
	}
	return a.request(ctx, link, msg)
}

// SendProof answers one of the link's proof requests.
func (a *Agent) SendProof(ctx context.Context, linkName string, ref models.ClaimRef) error {
	link, err := a.store.LinkByName(ctx, linkName)
	if err != nil {
		return err
	}
	idx, ok := link.ProofRequest(ref)
	if !ok {
		return dErrors.Newf(dErrors.CodeBadRequest, "link %s has no proof request %s %s", linkName, ref.Name, ref.Version)
	}
	if a.Prover == nil {
		return dErrors.New(dErrors.CodeInternal, "agent has no prover")
	}
	body, err := a.Prover.Prove(ctx, link, link.ProofRequests[idx])
	if err != nil {
		return err
	}
	msg, err := newMessage(models.MsgClaimProof, body)
	if err != nil {
		return err
	}
	return a.request(ctx, link, msg)
}

func (a *Agent) Link(ctx context.Context, name string) (*models.Link, error) {
	return a.store.LinkByName(ctx, name)
}

func (a *Agent) Links(ctx context.Context) ([]*models.Link, error) {
	return a.store.ListLinks(ctx)
}

// Outstanding counts requests still waiting for an answer.
func (a *Agent) Outstanding() int {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	return len(a.outstanding)
}

// Abandon drops requests that waited longer than the request deadline and returns their ids.
// Abandoned requests are not retried.
func (a *Agent) Abandon(ctx context.Context) []string {
	cutoff := a.now().Add(-a.deadline)
	a.outMu.Lock()
	var dropped []string
	expired := make(map[string]outstanding)
	for id, o := range a.outstanding {
		if o.sentAt.Before(cutoff) {
			dropped = append(dropped, id)
			expired[id] = o
			delete(a.outstanding, id)
		}
	}
	a.outMu.Unlock()

	sort.Strings(dropped)
	for _, id := range dropped {
		o := expired[id]
		a.logger.WarnContext(ctx, "agent request abandoned", "agent", a.name, "link", o.linkName, "type", o.msgType, "id", id)
		a.emit(ctx, audit.Event{
			Action:    string(audit.EventRequestAbandoned),
			Subject:   o.linkName,
			Reason:    string(o.msgType),
			RequestID: id,
		})
	}
	return dropped
}

// request sends msg on link and tracks it until a reply names it.
func (a *Agent) request(ctx context.Context, link *models.Link, msg *models.Message) error {
	msg.Nonce = link.Nonce
	raw, err := models.Seal(a.signer, msg, a.now())
	if err != nil {
		return fmt.Errorf("seal %s: %w", msg.Type, err)
	}
	a.outMu.Lock()
	a.outstanding[msg.ID] = outstanding{msgType: msg.Type, linkName: link.Name, sentAt: a.now()}
	a.outMu.Unlock()

	if err := a.deliver(ctx, link.RemoteIdentifier, msg.Type, raw); err != nil {
		a.outMu.Lock()
		delete(a.outstanding, msg.ID)
		a.outMu.Unlock()
		return err
	}
	return nil
}

func (a *Agent) deliver(ctx context.Context, dest string, msgType models.MsgType, raw []byte) error {
	if err := a.transport.Send(ctx, dest, raw); err != nil {
		a.metrics.IncrementSent(string(msgType), "failed")
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	a.metrics.IncrementSent(string(msgType), "sent")
	return nil
}

func (a *Agent) answered(replyTo string) {
	if replyTo == "" {
		return
	}
	a.outMu.Lock()
	delete(a.outstanding, replyTo)
	a.outMu.Unlock()
}

// mutateLink applies fn to the stored link and records any status change.
func (a *Agent) mutateLink(ctx context.Context, nonce string, fn func(*models.Link) error) (*models.Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	link, err := a.store.LinkByNonce(ctx, nonce)
	if err != nil {
		return nil, err
	}
	before := link.Status
	if err := fn(link); err != nil {
		return nil, err
	}
	if err := a.store.UpdateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("update link %s: %w", link.Name, err)
	}
	if link.Status != before {
		a.metrics.IncrementTransition(string(link.Status))
		a.logger.InfoContext(ctx, "link status changed",
			"agent", a.name,
			"link", link.Name,
			"from", before,
			"to", link.Status,
		)
		action := audit.EventLinkSynced
		if link.Status == models.StatusAccepted {
			action = audit.EventLinkAccepted
		}
		a.emit(ctx, audit.Event{Action: string(action), Subject: link.Name, ActorID: link.RemoteIdentifier, Nonce: link.Nonce})
	}
	return link, nil
}

func (a *Agent) emit(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = a.now()
	}
	if err := a.auditor.Emit(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func newMessage(t models.MsgType, body any) (*models.Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", t, err)
	}
	return &models.Message{Type: t, Body: raw}, nil
}
