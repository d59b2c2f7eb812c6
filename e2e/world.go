// Package e2e drives a node and HTTP agents through the BDD features in features/.
package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"idledger/internal/agent/engine"
	"idledger/internal/agent/invitation"
	agentmodels "idledger/internal/agent/models"
	"idledger/internal/agent/protocol"
	"idledger/internal/agent/store"
	"idledger/internal/agent/transport"
	"idledger/internal/ledger/genesis"
	"idledger/internal/ledger/graph"
	graphstore "idledger/internal/ledger/graph/store"
	"idledger/internal/ledger/handler"
	"idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/pipeline"
	"idledger/internal/ledger/txlog"
	"idledger/internal/wallet"
	"idledger/internal/wallet/client"
	"idledger/pkg/signing"
)

var transcriptValues = map[string]string{
	"student_name": "Alice Garcia",
	"degree":       "Bachelor of Science, Marketing",
	"year":         "2015",
}

type actor struct {
	signer *signing.Signer
	wallet *wallet.Wallet
}

type runningAgent struct {
	agent   *protocol.Agent
	catalog *protocol.Catalog
	server  *httptest.Server
}

// World is the state one scenario runs against.
type World struct {
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	orderer *ordering.Local
	graph   *graph.Graph
	node    *httptest.Server
	client  *client.Client

	mu         sync.Mutex
	actors     map[string]*actor
	agents     map[string]*runningAgent
	lastWrite  error
	invitation *invitation.File
}

func NewWorld() *World {
	return &World{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		actors: make(map[string]*actor),
		agents: make(map[string]*runningAgent),
	}
}

// Close stops every server the scenario started.
func (w *World) Close() {
	for _, a := range w.agents {
		a.agent.Close()
		a.server.Close()
	}
	if w.node != nil {
		w.node.Close()
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.orderer != nil {
		_ = w.orderer.Close()
	}
}

func (w *World) actor(name string) *actor {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.actors[name]; ok {
		return a
	}
	signer, err := signing.NewSigner(signing.SeedFromString("e2e-" + name))
	if err != nil {
		panic(err)
	}
	wl := wallet.New(name, wallet.WithLogger(w.logger))
	wl.AddSigner(signer)
	a := &actor{signer: signer, wallet: wl}
	w.actors[name] = a
	return a
}

func (w *World) StartLedger(trustee, steward string) error {
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.orderer = ordering.NewLocal(64)
	w.graph = graph.New(graphstore.NewInMemoryStore(), graph.WithLogger(w.logger))
	replies := pipeline.NewReplies()
	p := pipeline.New(w.graph, txlog.NewInMemoryLog(), w.orderer,
		pipeline.WithLogger(w.logger), pipeline.WithReplier(replies))
	if _, err := p.Bootstrap(w.ctx, []*models.Txn{
		genesis.Nym(w.actor(trustee).signer, models.RoleTrustee),
		genesis.Nym(w.actor(steward).signer, models.RoleSteward),
	}); err != nil {
		return err
	}
	go func() { _ = w.orderer.Run(w.ctx, p.OnOrdered) }()

	r := chi.NewRouter()
	handler.New(p, replies, 2*time.Second, w.logger).Register(r)
	w.node = httptest.NewServer(r)
	w.client = w.newClient()
	return nil
}

func (w *World) newClient() *client.Client {
	return client.New(w.node.URL,
		client.WithPoller(client.Poller{Interval: 10 * time.Millisecond, Deadline: 2 * time.Second}),
		client.WithLogger(w.logger),
	)
}

func (w *World) AddIdentity(actorName, target string, role models.Role) error {
	a, t := w.actor(actorName), w.actor(target)
	var rp *models.Role
	if role != models.RoleNone {
		rp = models.RolePtr(role)
	}
	if _, err := a.wallet.AddNym(t.signer.Identifier(), t.signer.Verkey(), rp); err != nil {
		return err
	}
	w.lastWrite = w.client.Sync(w.ctx, a.wallet)
	return nil
}

func (w *World) LastWriteError() error { return w.lastWrite }

func (w *World) IdentifierOf(name string) string { return w.actor(name).signer.Identifier() }

// NameOf maps an identifier back to the actor that owns it.
func (w *World) NameOf(identifier string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for name, a := range w.actors {
		if a.signer.Identifier() == identifier {
			return name
		}
	}
	return identifier
}

// Nym reads an identity through the node API, signed by the reader's wallet.
func (w *World) Nym(ctx context.Context, reader, name string) (*models.NymData, error) {
	query, err := w.actor(reader).wallet.PrepareQuery(&models.Txn{Type: models.TypeGetNym, Dest: w.IdentifierOf(name)})
	if err != nil {
		return nil, err
	}
	reply, err := w.client.PollQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	var nym models.NymData
	if err := json.Unmarshal(reply.Data, &nym); err != nil {
		return nil, err
	}
	return &nym, nil
}

func (w *World) SponsorOf(ctx context.Context, name string) (string, error) {
	sponsor, err := w.graph.GetSponsorFor(ctx, w.IdentifierOf(name))
	if err != nil {
		return "", err
	}
	return w.NameOf(sponsor), nil
}

func (w *World) OnLedger(ctx context.Context, name string) (bool, error) {
	return w.graph.HasNym(ctx, w.IdentifierOf(name))
}

// StartAgent onboards name through the first steward and serves it over HTTP.
func (w *World) StartAgent(name string, role models.Role, steward string) error {
	if err := w.AddIdentity(steward, name, role); err != nil {
		return err
	}
	if w.lastWrite != nil {
		return fmt.Errorf("onboard %s: %w", name, w.lastWrite)
	}

	a := w.actor(name)
	r := chi.NewRouter()
	server := httptest.NewServer(r)
	tr := transport.NewHTTP(a.signer.Identifier(), server.URL, transport.WithLogger(w.logger))
	tr.Register(r)

	eng := engine.New()
	catalog := protocol.NewCatalog(eng)
	agent, err := protocol.New(name, a.wallet, store.NewInMemoryStore(), tr, w.newClient(), eng,
		protocol.WithLogger(w.logger),
		protocol.WithEndpoint(server.URL),
		protocol.WithIssuer(catalog),
	)
	if err != nil {
		server.Close()
		return err
	}
	agent.Open()
	w.agents[name] = &runningAgent{agent: agent, catalog: catalog, server: server}
	return nil
}

func (w *World) agent(name string) (*runningAgent, error) {
	a, ok := w.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q is not running", name)
	}
	return a, nil
}

// OfferTranscript publishes the claim's definition through the issuer's wallet and offers it on link.
func (w *World) OfferTranscript(ctx context.Context, issuerName, claim, version, link string) error {
	issuer, err := w.agent(issuerName)
	if err != nil {
		return err
	}
	pub, secret, err := engine.GenerateKeys()
	if err != nil {
		return err
	}
	attrs := make([]string, 0, len(transcriptValues))
	for k := range transcriptValues {
		attrs = append(attrs, k)
	}
	a := w.actor(issuerName)
	seqNo, err := issuer.catalog.Publish(ctx, a.wallet, w.client,
		wallet.CredentialDefinition{Name: claim, Version: version, AttrNames: attrs, Type: "CL"}, pub, secret)
	if err != nil {
		return err
	}
	issuer.catalog.Offer(link, agentmodels.AvailableClaim{
		Name: claim, Version: version, Issuer: a.signer.Identifier(), CredDefSeqNo: seqNo, Attributes: attrs,
	}, transcriptValues)
	return nil
}

// Invite creates an invitation and keeps its file for the invitee to load.
func (w *World) Invite(ctx context.Context, inviter, link string, requests []agentmodels.ProofRequest) error {
	a, err := w.agent(inviter)
	if err != nil {
		return err
	}
	f, err := a.agent.CreateInvitation(ctx, link, requests)
	if err != nil {
		return err
	}
	raw, err := f.Marshal()
	if err != nil {
		return err
	}
	w.invitation, err = invitation.ParseBytes(raw)
	return err
}

func (w *World) InvitationNonce() string {
	if w.invitation == nil {
		return ""
	}
	return w.invitation.LinkInvitation.Nonce
}

func (w *World) LoadAndAccept(ctx context.Context, invitee string) error {
	a, err := w.agent(invitee)
	if err != nil {
		return err
	}
	if w.invitation == nil {
		return errors.New("no invitation was created")
	}
	if _, err := a.agent.LoadInvitation(ctx, w.invitation); err != nil {
		return err
	}
	_, err = a.agent.AcceptInvitation(ctx, w.invitation.LinkInvitation.Name)
	return err
}

func (w *World) Link(ctx context.Context, agentName, link string) (*agentmodels.Link, error) {
	a, err := w.agent(agentName)
	if err != nil {
		return nil, err
	}
	return a.agent.Link(ctx, link)
}

func (w *World) LinkByNonce(ctx context.Context, agentName, nonce string) (*agentmodels.Link, error) {
	a, err := w.agent(agentName)
	if err != nil {
		return nil, err
	}
	links, err := a.agent.Links(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if l.Nonce == nonce {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%s has no link for nonce %s", agentName, nonce)
}

func (w *World) RequestClaim(ctx context.Context, agentName, link, claim, version string) error {
	a, err := w.agent(agentName)
	if err != nil {
		return err
	}
	return a.agent.RequestClaim(ctx, link, agentmodels.ClaimRef{Name: claim, Version: version})
}

func (w *World) SendProof(ctx context.Context, agentName, link, name, version string) error {
	a, err := w.agent(agentName)
	if err != nil {
		return err
	}
	return a.agent.SendProof(ctx, link, agentmodels.ClaimRef{Name: name, Version: version})
}

// Eventually polls cond until it holds or two seconds pass, returning cond's last error.
func Eventually(cond func() error) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := cond()
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}
