package protocol_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idledger/internal/agent/engine"
	"idledger/internal/agent/invitation"
	"idledger/internal/agent/models"
	"idledger/internal/agent/protocol"
	"idledger/internal/agent/protocol/mocks"
	"idledger/internal/agent/store"
	"idledger/internal/agent/transport"
	"idledger/internal/ledger/genesis"
	"idledger/internal/ledger/graph"
	graphstore "idledger/internal/ledger/graph/store"
	ledgermodels "idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/pipeline"
	"idledger/internal/ledger/txlog"
	"idledger/internal/wallet"
	"idledger/internal/wallet/client"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/audit"
	"idledger/pkg/platform/audit/publisher"
	auditmemory "idledger/pkg/platform/audit/store/memory"
	"idledger/pkg/signing"
)

const linkName = "Faber College"

var (
	transcript = models.ClaimRef{Name: "Transcript", Version: "1.2"}
	enrollment = models.ProofRequest{Name: "Enrollment", Version: "1.0", Attributes: []string{"student_name", "degree"}}
	values     = map[string]string{"student_name": "Alice Garcia", "degree": "Bachelor of Science, Marketing", "year": "2015"}
)

// pipelineLedger polls an in-process node the way wallet/client polls one over HTTP.
type pipelineLedger struct {
	p      *pipeline.Pipeline
	poller client.Poller
}

func (l pipelineLedger) PollQuery(ctx context.Context, query *ledgermodels.Txn) (*ledgermodels.Reply, error) {
	var reply *ledgermodels.Reply
	err := l.poller.Poll(ctx, func(ctx context.Context) error {
		r, err := l.p.Query(ctx, query)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	return reply, err
}

type AgentSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	orderer  *ordering.Local
	pipeline *pipeline.Pipeline
	replies  *pipeline.Replies
	ledger   pipelineLedger
	hub      *transport.Hub

	faberSigner, aliceSigner *signing.Signer
	faberWallet, aliceWallet *wallet.Wallet
	faberAudit, aliceAudit   *auditmemory.InMemoryStore
	catalog                  *protocol.Catalog
	credDefSeqNo             int64
}

func TestAgentSuite(t *testing.T) {
	suite.Run(t, new(AgentSuite))
}

func (s *AgentSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx, s.cancel = context.WithCancel(context.Background())

	trustee := s.signer("trustee")
	s.faberSigner = s.signer("faber")
	s.aliceSigner = s.signer("alice")

	s.orderer = ordering.NewLocal(16)
	s.replies = pipeline.NewReplies()
	g := graph.New(graphstore.NewInMemoryStore(), graph.WithLogger(s.logger))
	s.pipeline = pipeline.New(g, txlog.NewInMemoryLog(), s.orderer,
		pipeline.WithLogger(s.logger), pipeline.WithReplier(s.replies))
	_, err := s.pipeline.Bootstrap(s.ctx, []*ledgermodels.Txn{
		genesis.Nym(trustee, ledgermodels.RoleTrustee),
		genesis.Nym(s.faberSigner, ledgermodels.RoleSponsor),
		genesis.Nym(s.aliceSigner, ledgermodels.RoleUser),
	})
	s.Require().NoError(err)
	go func() { _ = s.orderer.Run(s.ctx, s.pipeline.OnOrdered) }()
	s.ledger = pipelineLedger{p: s.pipeline, poller: client.Poller{Interval: 5 * time.Millisecond, Deadline: time.Second}}

	s.faberWallet = wallet.New("faber", wallet.WithLogger(s.logger))
	s.faberWallet.AddSigner(s.faberSigner)
	s.aliceWallet = wallet.New("alice", wallet.WithLogger(s.logger))
	s.aliceWallet.AddSigner(s.aliceSigner)
	s.faberAudit = auditmemory.NewInMemoryStore()
	s.aliceAudit = auditmemory.NewInMemoryStore()
	s.hub = transport.NewHub()

	// Faber publishes the Transcript schema and its issuer key.
	_, err = s.faberWallet.AddCredentialDefinition(wallet.CredentialDefinition{
		Name: transcript.Name, Version: transcript.Version, AttrNames: []string{"student_name", "degree", "year"}, Type: "CL",
	})
	s.Require().NoError(err)
	s.flush(s.faberWallet)
	cd, err := s.faberWallet.CredentialDefinition(s.faberSigner.Identifier(), transcript.Name, transcript.Version)
	s.Require().NoError(err)
	s.credDefSeqNo = cd.SeqNo

	pub, secret, err := engine.KeysFromSeed(signing.SeedFromString("faber-transcript-key"))
	s.Require().NoError(err)
	_, err = s.faberWallet.AddIssuerKey(wallet.IssuerKey{CredDefSeqNo: cd.SeqNo, Data: pub})
	s.Require().NoError(err)
	s.flush(s.faberWallet)

	s.catalog = protocol.NewCatalog(engine.New())
	s.catalog.AddKeys(cd.SeqNo, pub, secret)
}

func (s *AgentSuite) TearDownTest() {
	s.hub.Close()
	s.cancel()
	_ = s.orderer.Close()
}

func (s *AgentSuite) signer(seed string) *signing.Signer {
	signer, err := signing.NewSigner(signing.SeedFromString(seed))
	s.Require().NoError(err)
	return signer
}

func (s *AgentSuite) flush(w *wallet.Wallet) {
	s.Require().NoError(pipelineSyncer{s}.Sync(s.ctx, w))
}

// pipelineSyncer submits a wallet's queued writes straight to the in-process pipeline.
type pipelineSyncer struct{ s *AgentSuite }

func (p pipelineSyncer) Sync(ctx context.Context, w client.Wallet) error {
	txns, err := w.PreparePending()
	if err != nil {
		return err
	}
	for _, txn := range txns {
		outcome, cancel := p.s.replies.Expect(txn.Key())
		if _, err := p.s.pipeline.Submit(ctx, txn); err != nil {
			cancel()
			return err
		}
		select {
		case out := <-outcome:
			cancel()
			if out.Nack != nil {
				return w.HandleNack(ctx, out.Nack)
			}
			if err := w.HandleReply(ctx, out.Reply); err != nil {
				return err
			}
		case <-time.After(2 * time.Second):
			cancel()
			return fmt.Errorf("no outcome for %s", txn.Key())
		}
	}
	return nil
}

func (s *AgentSuite) newAgents(faberEngine, aliceEngine protocol.CryptoEngine, aliceOpts ...protocol.Option) (*protocol.Agent, *protocol.Agent) {
	faber, err := protocol.New("faber", s.faberWallet, store.NewInMemoryStore(),
		s.hub.Endpoint(s.faberSigner.Identifier()), s.ledger, faberEngine,
		protocol.WithIssuer(s.catalog),
		protocol.WithLogger(s.logger),
		protocol.WithAuditor(publisher.NewPublisher(s.faberAudit)),
	)
	s.Require().NoError(err)
	alice, err := protocol.New("alice", s.aliceWallet, store.NewInMemoryStore(),
		s.hub.Endpoint(s.aliceSigner.Identifier()), s.ledger, aliceEngine,
		append([]protocol.Option{
			protocol.WithLogger(s.logger),
			protocol.WithAuditor(publisher.NewPublisher(s.aliceAudit)),
		}, aliceOpts...)...,
	)
	s.Require().NoError(err)
	faber.Open()
	alice.Open()
	return faber, alice
}

// invite hands Faber's invitation to Alice the way a file would travel.
func (s *AgentSuite) invite(faber, alice *protocol.Agent) *models.Link {
	f, err := faber.CreateInvitation(s.ctx, linkName, []models.ProofRequest{enrollment})
	s.Require().NoError(err)
	raw, err := f.Marshal()
	s.Require().NoError(err)
	parsed, err := invitation.ParseBytes(raw)
	s.Require().NoError(err)
	link, err := alice.LoadInvitation(s.ctx, parsed)
	s.Require().NoError(err)
	return link
}

func (s *AgentSuite) linkOf(a *protocol.Agent) *models.Link {
	link, err := a.Link(s.ctx, linkName)
	if err != nil {
		return nil
	}
	return link
}

func (s *AgentSuite) waitFor(cond func() bool, msg string) {
	s.Require().Eventually(cond, 2*time.Second, 5*time.Millisecond, msg)
}

func (s *AgentSuite) connect(faber, alice *protocol.Agent) {
	s.invite(faber, alice)
	_, err := alice.AcceptInvitation(s.ctx, linkName)
	s.Require().NoError(err)
	s.waitFor(func() bool {
		l := s.linkOf(alice)
		return l != nil && l.Status == models.StatusAccepted
	}, "alice's link never became accepted")
}

func (s *AgentSuite) TestInvitationToProof() {
	s.catalog.Offer(linkName, models.AvailableClaim{
		Name: transcript.Name, Version: transcript.Version,
		Issuer: s.faberSigner.Identifier(), CredDefSeqNo: s.credDefSeqNo,
		Attributes: []string{"student_name", "degree", "year"},
	}, values)
	faber, alice := s.newAgents(engine.New(), engine.New())

	link := s.invite(faber, alice)
	s.Equal(models.StatusUnaccepted, link.Status)

	synced, err := alice.SyncLink(s.ctx, linkName)
	s.Require().NoError(err)
	s.Equal(models.StatusSynced, synced.Status)
	s.Equal(s.faberSigner.Verkey(), synced.RemoteVerkey)

	_, err = alice.AcceptInvitation(s.ctx, linkName)
	s.Require().NoError(err)
	s.waitFor(func() bool {
		l := s.linkOf(alice)
		return l.Status == models.StatusAccepted && len(l.AvailableClaims) == 1
	}, "claims were never offered")
	s.Equal(models.StatusAccepted, s.linkOf(faber).Status)
	s.Equal(s.aliceSigner.Identifier(), s.linkOf(faber).RemoteIdentifier)

	s.Require().NoError(alice.RequestClaim(s.ctx, linkName, transcript))
	s.waitFor(func() bool { return len(s.linkOf(alice).ReceivedClaims) == 1 }, "claim never arrived")
	cred, err := s.aliceWallet.Credential(transcript.Name, transcript.Version)
	s.Require().NoError(err)
	s.Equal("Alice Garcia", cred.Values["student_name"])

	s.Require().NoError(alice.SendProof(s.ctx, linkName, models.ClaimRef{Name: enrollment.Name, Version: enrollment.Version}))
	s.waitFor(func() bool { return s.linkOf(alice).ProofRequests[0].Fulfilled }, "proof was never accepted")
	s.True(s.linkOf(faber).ProofRequests[0].Fulfilled)
	s.Nil(s.linkOf(alice).LastError)
	s.Zero(alice.Outstanding())

	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventClaimIssued), 1)
	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventProofVerified), 1)
	s.Len(s.aliceAudit.ListByAction(s.ctx, audit.EventLinkSynced), 1)
}

func (s *AgentSuite) TestClaimNotYetAvailable() {
	faber, alice := s.newAgents(engine.New(), engine.New())
	s.connect(faber, alice)
	s.Empty(s.linkOf(alice).AvailableClaims)

	s.Require().NoError(alice.RequestClaim(s.ctx, linkName, transcript))
	s.waitFor(func() bool { return s.linkOf(alice).LastError != nil }, "error envelope never arrived")

	lastErr := s.linkOf(alice).LastError
	s.Equal(string(dErrors.CodeClaimUnavailable), lastErr.Code)
	s.Equal("claim not yet available", lastErr.Reason)
	s.Equal(models.MsgRequestClaim, lastErr.InReplyTo)
	s.Empty(s.linkOf(alice).ReceivedClaims)
	s.Zero(alice.Outstanding())
	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventClaimRefused), 1)
}

func (s *AgentSuite) seal(signer *signing.Signer, msgType models.MsgType, nonce string, body any) []byte {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	sealed, err := models.Seal(signer, &models.Message{Type: msgType, Nonce: nonce, Body: raw}, time.Now())
	s.Require().NoError(err)
	return sealed
}

func (s *AgentSuite) TestDuplicateFirstMessageCreatesOneLink() {
	faber, alice := s.newAgents(engine.New(), engine.New())
	link := s.invite(faber, alice)

	accept := s.seal(s.aliceSigner, models.MsgAcceptInvite, link.Nonce, models.AcceptInviteBody{})
	faber.Handle(s.ctx, accept, s.aliceSigner.Identifier())
	faber.Handle(s.ctx, accept, s.aliceSigner.Identifier())

	links, err := faber.Links(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(links, 1)
	s.Equal(models.StatusAccepted, links[0].Status)
	s.True(links[0].Inviter)
	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventLinkCreated), 1)
	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventLinkAccepted), 1)
}

func (s *AgentSuite) TestUnknownNonceNeverCreatesLink() {
	faber, _ := s.newAgents(engine.New(), engine.New())

	faber.Handle(s.ctx, s.seal(s.aliceSigner, models.MsgAcceptInvite, "no-such-nonce", models.AcceptInviteBody{}), s.aliceSigner.Identifier())

	links, err := faber.Links(s.ctx)
	s.Require().NoError(err)
	s.Empty(links)
	rejected := s.faberAudit.ListByAction(s.ctx, audit.EventMessageRejected)
	s.Require().Len(rejected, 1)
	s.Equal(string(dErrors.CodeUnknownLink), rejected[0].Code)
}

func (s *AgentSuite) TestUnknownTypeAnsweredWithProtocolError() {
	faber, alice := s.newAgents(engine.New(), engine.New())
	s.connect(faber, alice)
	nonce := s.linkOf(alice).Nonce

	faber.Handle(s.ctx, s.seal(s.aliceSigner, "GOSSIP", nonce, map[string]string{}), s.aliceSigner.Identifier())

	s.waitFor(func() bool { return s.linkOf(alice).LastError != nil }, "protocol error never arrived")
	s.Equal(string(dErrors.CodeProtocol), s.linkOf(alice).LastError.Code)
}

func (s *AgentSuite) TestStrangerCannotUseBoundNonce() {
	faber, alice := s.newAgents(engine.New(), engine.New())
	s.connect(faber, alice)
	mallory := s.signer("mallory")
	s.hub.Endpoint(mallory.Identifier())

	body := models.RequestClaimBody{Name: transcript.Name, Version: transcript.Version}
	faber.Handle(s.ctx, s.seal(mallory, models.MsgRequestClaim, s.linkOf(faber).Nonce, body), mallory.Identifier())

	rejected := s.faberAudit.ListByAction(s.ctx, audit.EventMessageRejected)
	s.Require().Len(rejected, 1)
	s.Equal(string(dErrors.CodeInvalidSignature), rejected[0].Code)
	s.Equal(s.aliceSigner.Identifier(), s.linkOf(faber).RemoteIdentifier)
}

func (s *AgentSuite) TestAbandonUnansweredRequest() {
	faber, alice := s.newAgents(engine.New(), engine.New(), protocol.WithRequestDeadline(time.Millisecond))
	s.invite(faber, alice)
	faber.Close()

	_, err := alice.AcceptInvitation(s.ctx, linkName)
	s.Require().NoError(err)
	s.Equal(1, alice.Outstanding())

	var dropped []string
	s.waitFor(func() bool {
		dropped = append(dropped, alice.Abandon(s.ctx)...)
		return len(dropped) == 1
	}, "request was never abandoned")
	s.Zero(alice.Outstanding())
	s.Len(s.aliceAudit.ListByAction(s.ctx, audit.EventRequestAbandoned), 1)
	s.Equal(models.StatusSynced, s.linkOf(alice).Status)
}

func (s *AgentSuite) TestRejectedProofIsReported() {
	ctrl := gomock.NewController(s.T())
	faberEngine := mocks.NewMockCryptoEngine(ctrl)
	aliceEngine := mocks.NewMockCryptoEngine(ctrl)

	s.catalog = protocol.NewCatalog(faberEngine)
	s.catalog.AddKeys(s.credDefSeqNo, json.RawMessage(`{"verkey":"k"}`), json.RawMessage(`{"seed":"s"}`))
	s.catalog.Offer(linkName, models.AvailableClaim{
		Name: transcript.Name, Version: transcript.Version,
		Issuer: s.faberSigner.Identifier(), CredDefSeqNo: s.credDefSeqNo,
	}, values)
	faber, alice := s.newAgents(faberEngine, aliceEngine)
	s.connect(faber, alice)
	nonce := s.linkOf(alice).Nonce

	commitment := json.RawMessage(`{"digest":"c"}`)
	aliceEngine.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(commitment, json.RawMessage(`{"secret":"b"}`), nil)
	faberEngine.EXPECT().IssueCredential(gomock.Any(), commitment, values, gomock.Any(), gomock.Any()).
		Return(json.RawMessage(`{"cred":1}`), nil)
	aliceEngine.EXPECT().ExtendCredential(gomock.Any(), json.RawMessage(`{"cred":1}`), json.RawMessage(`{"secret":"b"}`)).
		Return(json.RawMessage(`{"cred":2}`), nil)

	s.Require().NoError(alice.RequestClaim(s.ctx, linkName, transcript))
	s.waitFor(func() bool { return len(s.linkOf(alice).ReceivedClaims) == 1 }, "claim never arrived")

	aliceEngine.EXPECT().BuildProof(gomock.Any(), enrollment, gomock.Len(1), nonce).Return(json.RawMessage(`{"proof":1}`), nil)
	faberEngine.EXPECT().VerifyProof(gomock.Any(), gomock.Len(1), json.RawMessage(`{"proof":1}`), nonce,
		map[string]string{"student_name": "Alice Garcia", "degree": "Bachelor of Science, Marketing"}).
		Return(false, nil)

	s.Require().NoError(alice.SendProof(s.ctx, linkName, models.ClaimRef{Name: enrollment.Name, Version: enrollment.Version}))
	s.waitFor(func() bool { return s.linkOf(alice).LastError != nil }, "proof status never arrived")
	s.False(s.linkOf(alice).ProofRequests[0].Fulfilled)
	s.False(s.linkOf(faber).ProofRequests[0].Fulfilled)
	s.Len(s.faberAudit.ListByAction(s.ctx, audit.EventProofRejected), 1)
}

func (s *AgentSuite) TestPublishRegistersIssuerKeys() {
	catalog := protocol.NewCatalog(engine.New())
	pub, secret, err := engine.GenerateKeys()
	s.Require().NoError(err)
	job := wallet.CredentialDefinition{Name: "Job-Certificate", Version: "0.2", AttrNames: []string{"employee_status"}, Type: "CL"}

	seqNo, err := catalog.Publish(s.ctx, s.faberWallet, pipelineSyncer{s}, job, pub, secret)
	s.Require().NoError(err)
	s.Greater(seqNo, s.credDefSeqNo)
	ik, err := s.faberWallet.IssuerKey(s.faberSigner.Identifier(), seqNo)
	s.Require().NoError(err)
	s.NotZero(ik.SeqNo)

	catalog.Offer("Acme Corp", models.AvailableClaim{
		Name: job.Name, Version: job.Version, Issuer: s.faberSigner.Identifier(), CredDefSeqNo: seqNo,
	}, map[string]string{"employee_status": "Permanent"})
	commitment, _, err := engine.New().Commit(s.ctx, pub)
	s.Require().NoError(err)
	claim, err := catalog.Issue(s.ctx, &models.Link{Name: "Acme Corp"},
		models.RequestClaimBody{Name: job.Name, Version: job.Version, Commitment: commitment})
	s.Require().NoError(err)
	s.Equal(seqNo, claim.CredDefSeqNo)
	s.Equal("Permanent", claim.Values["employee_status"])
}
