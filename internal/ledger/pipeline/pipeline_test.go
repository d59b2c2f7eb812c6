package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idledger/internal/ledger/genesis"
	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/graph/store"
	"idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	orderingmocks "idledger/internal/ledger/ordering/mocks"
	"idledger/internal/ledger/txlog"
	txlogmocks "idledger/internal/ledger/txlog/mocks"
	dErrors "idledger/pkg/domain-errors"
	audit "idledger/pkg/platform/audit"
	"idledger/pkg/platform/audit/publisher"
	auditmemory "idledger/pkg/platform/audit/store/memory"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

var ppTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type PipelineSuite struct {
	suite.Suite
	ctx     context.Context
	logger  *slog.Logger
	ctrl    *gomock.Controller
	orderer *orderingmocks.MockOrderer
	queue   []*models.Txn

	graph    *graph.Graph
	log      *txlog.InMemoryLog
	replies  *Replies
	auditLog *auditmemory.InMemoryStore
	pipeline *Pipeline
	reqID    int64

	trustee *signing.Signer
	steward *signing.Signer
	sponsor *signing.Signer
	user    *signing.Signer
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctrl = gomock.NewController(s.T())
	s.orderer = orderingmocks.NewMockOrderer(s.ctrl)
	s.queue = nil
	s.orderer.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, txn *models.Txn) error {
		s.queue = append(s.queue, txn.Clone())
		return nil
	}).AnyTimes()

	s.trustee = s.signer("trustee")
	s.steward = s.signer("steward")
	s.sponsor = s.signer("sponsor")
	s.user = s.signer("user")

	s.graph = graph.New(store.NewInMemoryStore(), graph.WithLogger(s.logger))
	s.log = txlog.NewInMemoryLog()
	s.replies = NewReplies()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.pipeline = New(s.graph, s.log, s.orderer,
		WithLogger(s.logger),
		WithReplier(s.replies),
		WithAuditor(publisher.NewPublisher(s.auditLog)),
	)
	applied, err := s.pipeline.Bootstrap(s.ctx, s.genesis())
	s.Require().NoError(err)
	s.Require().True(applied)
}

func (s *PipelineSuite) genesis() []*models.Txn {
	return []*models.Txn{
		genesis.Nym(s.trustee, models.RoleTrustee),
		genesis.Nym(s.steward, models.RoleSteward),
	}
}

func (s *PipelineSuite) signer(name string) *signing.Signer {
	signer, err := signing.NewSigner(signing.SeedFromString(name))
	s.Require().NoError(err)
	return signer
}

func (s *PipelineSuite) sign(actor *signing.Signer, txn *models.Txn) *models.Txn {
	s.reqID++
	txn.Identifier = actor.Identifier()
	txn.ReqID = s.reqID
	sig, err := actor.SignCanonical(txn.SigningPayload())
	s.Require().NoError(err)
	txn.Signature = sig
	return txn
}

func (s *PipelineSuite) nym(actor, target *signing.Signer, role models.Role) *models.Txn {
	return s.sign(actor, &models.Txn{
		Type:   models.TypeNym,
		Dest:   target.Identifier(),
		Verkey: target.Verkey(),
		Role:   models.RolePtr(role),
	})
}

// drain delivers every queued submission in submission order.
func (s *PipelineSuite) drain() {
	queued := s.queue
	s.queue = nil
	for i, txn := range queued {
		s.Require().NoError(s.pipeline.OnOrdered(s.ctx, ordering.Ordered{Txn: txn, PPTime: ppTime, Position: int64(i + 1)}))
	}
}

// commit submits, orders and returns the reply delivered to the submitter.
func (s *PipelineSuite) commit(txn *models.Txn) *models.Reply {
	outcome, cancel := s.replies.Expect(txn.Key())
	defer cancel()
	_, err := s.pipeline.Submit(s.ctx, txn)
	s.Require().NoError(err)
	s.drain()
	select {
	case out := <-outcome:
		s.Require().Nil(out.Nack, "unexpected nack")
		return out.Reply
	default:
		s.FailNow("no reply delivered")
		return nil
	}
}

func (s *PipelineSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *PipelineSuite) TestStewardCreatesSponsorWhoSponsorsUser() {
	reply := s.commit(s.nym(s.steward, s.sponsor, models.RoleSponsor))
	s.NoError(txlog.VerifyReply(reply))
	s.Equal(ppTime.Unix(), reply.Result.TxnTime)

	role, err := s.graph.GetRole(s.ctx, s.sponsor.Identifier())
	s.Require().NoError(err)
	s.Equal(models.RoleSponsor, role)
	sponsorOfSponsor, err := s.graph.GetSponsorFor(s.ctx, s.sponsor.Identifier())
	s.Require().NoError(err)
	s.Empty(sponsorOfSponsor)

	s.commit(s.nym(s.sponsor, s.user, models.RoleUser))
	sponsor, err := s.graph.GetSponsorFor(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Equal(s.sponsor.Identifier(), sponsor)

	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventTxnCommitted), 2)
}

func (s *PipelineSuite) TestUserCannotCreateSponsor() {
	s.commit(s.nym(s.steward, s.sponsor, models.RoleSponsor))
	s.commit(s.nym(s.sponsor, s.user, models.RoleUser))
	target := s.signer("target")

	_, err := s.pipeline.Submit(s.ctx, s.nym(s.user, target, models.RoleSponsor))
	s.requireCode(err, dErrors.CodeUnauthorized)
	s.Empty(s.queue)

	exists, err := s.graph.HasNym(s.ctx, target.Identifier())
	s.Require().NoError(err)
	s.False(exists)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventTxnRejected), 1)
}

func (s *PipelineSuite) TestSubmitRejectsBadSignature() {
	txn := s.nym(s.steward, s.sponsor, models.RoleSponsor)
	txn.Verkey = s.user.Verkey()
	_, err := s.pipeline.Submit(s.ctx, txn)
	s.requireCode(err, dErrors.CodeInvalidSignature)

	unsigned := s.nym(s.steward, s.sponsor, models.RoleSponsor)
	unsigned.Signature = ""
	_, err = s.pipeline.Submit(s.ctx, unsigned)
	s.requireCode(err, dErrors.CodeInvalidSignature)
	s.Empty(s.queue)
}

func (s *PipelineSuite) TestSubmitRejectsQueries() {
	_, err := s.pipeline.Submit(s.ctx, s.sign(s.steward, &models.Txn{Type: models.TypeGetNym, Dest: s.steward.Identifier()}))
	s.requireCode(err, dErrors.CodeBadRequest)
}

func (s *PipelineSuite) TestLostRaceIsRejectedAfterOrdering() {
	other := s.signer("steward2")
	s.commit(s.nym(s.trustee, other, models.RoleSteward))

	first := s.nym(s.steward, s.user, models.RoleUser)
	second := s.nym(other, s.user, models.RoleUser)
	firstOut, cancelFirst := s.replies.Expect(first.Key())
	defer cancelFirst()
	secondOut, cancelSecond := s.replies.Expect(second.Key())
	defer cancelSecond()

	_, err := s.pipeline.Submit(s.ctx, first)
	s.Require().NoError(err)
	_, err = s.pipeline.Submit(s.ctx, second)
	s.Require().NoError(err)
	s.drain()

	s.NotNil((<-firstOut).Reply)
	out := <-secondOut
	s.Require().NotNil(out.Nack)
	s.True(out.Nack.PostCommit)
	s.Equal(string(dErrors.CodeConflict), out.Nack.Code)
	s.Contains(out.Nack.Reason, "already exists")

	sponsor, err := s.graph.GetSponsorFor(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Equal(s.steward.Identifier(), sponsor)
	size, err := s.log.Size(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(4), size)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventTxnRejectedPostCommit), 1)
}

func (s *PipelineSuite) TestAttribIsHashedInLogOnly() {
	s.commit(s.nym(s.steward, s.user, models.RoleUser))
	raw := `{"email":"alice@example.com"}`
	reply := s.commit(s.sign(s.steward, &models.Txn{Type: models.TypeAttrib, Dest: s.user.Identifier(), Raw: raw}))

	s.Equal(signing.SHA256Hex([]byte(raw)), reply.Result.Raw)
	s.NoError(txlog.VerifyReply(reply))

	entry, err := s.log.Get(s.ctx, reply.SeqNo)
	s.Require().NoError(err)
	s.NotContains(string(entry.Payload), "alice@example.com")

	attr, err := s.pipeline.Query(s.ctx, s.sign(s.user, &models.Txn{Type: models.TypeGetAttr, Dest: s.user.Identifier(), Raw: "email"}))
	s.Require().NoError(err)
	var data models.AttrData
	s.Require().NoError(json.Unmarshal(attr.Data, &data))
	s.Equal(raw, data.Raw)
	s.Equal(reply.SeqNo, data.SeqNo)

	history, err := s.pipeline.Query(s.ctx, s.sign(s.user, &models.Txn{Type: models.TypeGetTxns, Dest: s.user.Identifier()}))
	s.Require().NoError(err)
	var txns []*models.Txn
	s.Require().NoError(json.Unmarshal(history.Data, &txns))
	s.Require().Len(txns, 2)
	s.Equal(models.TypeNym, txns[0].Type)
	s.Equal(reply.Result.Raw, txns[1].Raw)
	s.Equal(reply.Result.Signature, txns[1].Signature)
}

func (s *PipelineSuite) TestRedeliveryIsIdempotent() {
	txn := s.nym(s.steward, s.user, models.RoleUser)
	_, err := s.pipeline.Submit(s.ctx, txn)
	s.Require().NoError(err)
	s.Require().Len(s.queue, 1)
	ordered := ordering.Ordered{Txn: s.queue[0], PPTime: ppTime}
	s.queue = nil

	s.Require().NoError(s.pipeline.OnOrdered(s.ctx, ordered))
	out, cancel := s.replies.Expect(txn.Key())
	defer cancel()
	s.Require().NoError(s.pipeline.OnOrdered(s.ctx, ordered))

	replay := (<-out).Reply
	s.Require().NotNil(replay)
	s.Equal(int64(3), replay.SeqNo)
	s.NoError(txlog.VerifyReply(replay))
	size, err := s.log.Size(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), size)
}

func (s *PipelineSuite) TestResubmittingCommittedRequestResendsReply() {
	txn := s.nym(s.steward, s.user, models.RoleUser)
	first := s.commit(txn)

	out, cancel := s.replies.Expect(txn.Key())
	defer cancel()
	ack, err := s.pipeline.Submit(s.ctx, txn)
	s.Require().NoError(err)
	s.Equal(first.Result.TxnID, ack.TxnID)
	s.Empty(s.queue)
	s.Equal(first.SeqNo, (<-out).Reply.SeqNo)
}

func (s *PipelineSuite) TestResubmittingCommittedCredDefResendsReply() {
	s.commit(s.nym(s.steward, s.sponsor, models.RoleSponsor))
	credDef := s.sign(s.sponsor, &models.Txn{
		Type: models.TypeCredDef,
		Data: json.RawMessage(`{"attrNames":["name"],"name":"T","type":"CL","version":"1"}`),
	})
	first := s.commit(credDef)

	out, cancel := s.replies.Expect(credDef.Key())
	defer cancel()
	ack, err := s.pipeline.Submit(s.ctx, credDef)
	s.Require().NoError(err)
	s.Equal(first.Result.TxnID, ack.TxnID)
	s.Empty(s.queue)
	s.Equal(first.SeqNo, (<-out).Reply.SeqNo)

	again := s.sign(s.sponsor, &models.Txn{
		Type: models.TypeCredDef,
		Data: json.RawMessage(`{"attrNames":["name"],"name":"T","type":"CL","version":"1"}`),
	})
	_, err = s.pipeline.Submit(s.ctx, again)
	s.requireCode(err, dErrors.CodeConflict)
	s.Empty(s.queue)
}

func (s *PipelineSuite) TestCredDefRoundTrip() {
	s.commit(s.nym(s.steward, s.sponsor, models.RoleSponsor))
	data := json.RawMessage(`{"attrNames":["name","age"],"name":"Transcript","type":"CL","version":"1.2"}`)
	committed := s.commit(s.sign(s.sponsor, &models.Txn{Type: models.TypeCredDef, Data: data}))

	reply, err := s.pipeline.Query(s.ctx, s.sign(s.user, &models.Txn{
		Type: models.TypeGetCredDef,
		Dest: s.sponsor.Identifier(),
		Data: models.MustData(models.CredDefData{Name: "Transcript", Version: "1.2"}),
	}))
	s.Require().NoError(err)
	var got models.Txn
	s.Require().NoError(json.Unmarshal(reply.Data, &got))
	s.Equal(committed.Result.TxnID, got.TxnID)
	s.Equal(committed.Result.Signature, got.Signature)
	s.JSONEq(string(data), string(got.Data))
	s.Equal(committed.SeqNo, got.SeqNo)

	s.commit(s.sign(s.sponsor, &models.Txn{Type: models.TypeIssuerKey, Ref: committed.SeqNo, Data: json.RawMessage(`{"n":"123"}`)}))
	keyReply, err := s.pipeline.Query(s.ctx, s.sign(s.user, &models.Txn{Type: models.TypeGetIssuerKey, Dest: s.sponsor.Identifier(), Ref: committed.SeqNo}))
	s.Require().NoError(err)
	var key models.IssuerKeyData
	s.Require().NoError(json.Unmarshal(keyReply.Data, &key))
	s.JSONEq(`{"n":"123"}`, string(key.Data))
}

func (s *PipelineSuite) TestQueryNotYetCommitted() {
	_, err := s.pipeline.Query(s.ctx, s.sign(s.steward, &models.Txn{Type: models.TypeGetNym, Dest: s.user.Identifier()}))
	s.requireCode(err, dErrors.CodeNotYetAvailable)
	s.True(dErrors.CodeOf(err).Retryable())

	reply, err := s.pipeline.Query(s.ctx, s.sign(s.steward, &models.Txn{Type: models.TypeGetNym, Dest: s.steward.Identifier()}))
	s.Require().NoError(err)
	var nym models.NymData
	s.Require().NoError(json.Unmarshal(reply.Data, &nym))
	s.Equal(models.RoleSteward, nym.Role)
	s.Equal(int64(2), nym.SeqNo)
}

func (s *PipelineSuite) TestBootstrapIsDeterministic() {
	again, err := s.pipeline.Bootstrap(s.ctx, s.genesis())
	s.Require().NoError(err)
	s.False(again)

	otherGraph := graph.New(store.NewInMemoryStore(), graph.WithLogger(s.logger))
	otherLog := txlog.NewInMemoryLog()
	other := New(otherGraph, otherLog, s.orderer, WithLogger(s.logger))
	applied, err := other.Bootstrap(s.ctx, s.genesis())
	s.Require().NoError(err)
	s.True(applied)

	for _, t := range models.WriteTypes() {
		want, err := s.graph.GetTransactionsByType(s.ctx, t)
		s.Require().NoError(err)
		got, err := otherGraph.GetTransactionsByType(s.ctx, t)
		s.Require().NoError(err)
		s.Equal(want, got, t)
	}
	want, err := s.log.Receipt(s.ctx, 2)
	s.Require().NoError(err)
	got, err := otherLog.Receipt(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(want.RootHash, got.RootHash)
}

func (s *PipelineSuite) TestInfrastructureFailureLeavesNoTrace() {
	log := txlogmocks.NewMockLog(s.ctrl)
	p := New(s.graph, log, s.orderer, WithLogger(s.logger))
	txn := s.nym(s.steward, s.user, models.RoleUser)
	txn.TxnID = txn.ComputeTxnID()

	log.EXPECT().FindByTxnID(gomock.Any(), txn.TxnID).Return(nil, sentinel.ErrNotFound)
	log.EXPECT().Append(gomock.Any(), txn.TxnID, gomock.Any()).Return(nil, errors.New("disk full"))

	s.Require().NoError(p.OnOrdered(s.ctx, ordering.Ordered{Txn: txn, PPTime: ppTime}))
	exists, err := s.graph.HasNym(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PipelineSuite) TestLocalOrdererEndToEnd() {
	local := ordering.NewLocal(8)
	p := New(s.graph, s.log, local, WithLogger(s.logger), WithReplier(s.replies))
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- local.Run(ctx, p.OnOrdered) }()

	txn := s.nym(s.steward, s.sponsor, models.RoleSponsor)
	out, stop := s.replies.Expect(txn.Key())
	defer stop()
	_, err := p.Submit(ctx, txn)
	s.Require().NoError(err)

	select {
	case o := <-out:
		s.Require().NotNil(o.Reply)
		s.Equal(int64(3), o.Reply.SeqNo)
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for reply")
	}
	s.Require().NoError(local.Close())
	s.NoError(<-done)
}
