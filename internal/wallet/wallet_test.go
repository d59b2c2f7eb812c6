package wallet

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"idledger/internal/ledger/genesis"
	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/graph/store"
	"idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/pipeline"
	"idledger/internal/ledger/txlog"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/audit"
	"idledger/pkg/platform/audit/publisher"
	auditmemory "idledger/pkg/platform/audit/store/memory"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

type WalletSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	orderer  *ordering.Local
	pipeline *pipeline.Pipeline
	replies  *pipeline.Replies
	auditLog *auditmemory.InMemoryStore
	now      time.Time

	trustee *signing.Signer
	wallet  *Wallet
}

func TestWalletSuite(t *testing.T) {
	suite.Run(t, new(WalletSuite))
}

func (s *WalletSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	trustee, err := signing.NewSigner(signing.SeedFromString("trustee"))
	s.Require().NoError(err)
	s.trustee = trustee

	s.orderer = ordering.NewLocal(16)
	s.replies = pipeline.NewReplies()
	g := graph.New(store.NewInMemoryStore(), graph.WithLogger(logger))
	s.pipeline = pipeline.New(g, txlog.NewInMemoryLog(), s.orderer,
		pipeline.WithLogger(logger), pipeline.WithReplier(s.replies))
	_, err = s.pipeline.Bootstrap(s.ctx, []*models.Txn{genesis.Nym(trustee, models.RoleTrustee)})
	s.Require().NoError(err)
	go func() { _ = s.orderer.Run(s.ctx, s.pipeline.OnOrdered) }()

	s.auditLog = auditmemory.NewInMemoryStore()
	s.wallet = New("trustee-wallet",
		WithLogger(logger),
		WithAuditor(publisher.NewPublisher(s.auditLog)),
		WithClock(func() time.Time { return s.now }),
	)
	s.wallet.AddSigner(trustee)
}

func (s *WalletSuite) TearDownTest() {
	s.cancel()
	_ = s.orderer.Close()
}

// flush sends every prepared request to the node in order and folds the outcomes back.
func (s *WalletSuite) flush() []error {
	txns, err := s.wallet.PreparePending()
	s.Require().NoError(err)
	var errs []error
	for _, txn := range txns {
		outcome, cancel := s.replies.Expect(txn.Key())
		if _, err := s.pipeline.Submit(s.ctx, txn); err != nil {
			cancel()
			errs = append(errs, s.wallet.HandleNack(s.ctx, models.NackFor(txn, err)))
			continue
		}
		select {
		case out := <-outcome:
			if out.Nack != nil {
				errs = append(errs, s.wallet.HandleNack(s.ctx, out.Nack))
			} else {
				errs = append(errs, s.wallet.HandleReply(s.ctx, out.Reply))
			}
		case <-time.After(2 * time.Second):
			s.FailNow("no outcome for " + txn.Key().String())
		}
		cancel()
	}
	return errs
}

func (s *WalletSuite) TestNymIsCommittedOnlyByReply() {
	user, err := signing.NewSigner(signing.SeedFromString("user"))
	s.Require().NoError(err)

	n, err := s.wallet.AddNym(user.Identifier(), user.Verkey(), models.RolePtr(models.RoleUser))
	s.Require().NoError(err)
	s.Equal(1, n)

	id, err := s.wallet.Identity(user.Identifier())
	s.Require().NoError(err)
	s.Zero(id.SeqNo, "no seqNo before the reply")

	s.Require().Equal([]error{nil}, s.flush())

	id, err = s.wallet.Identity(user.Identifier())
	s.Require().NoError(err)
	s.Equal(int64(2), id.SeqNo)
	s.Equal(models.RoleUser, *id.Role)
	s.Zero(s.wallet.PreparedCount())
}

func (s *WalletSuite) TestPreparePendingKeepsSubmissionOrder() {
	sponsor, err := signing.NewSigner(signing.SeedFromString("sponsor"))
	s.Require().NoError(err)
	_, err = s.wallet.AddNym(sponsor.Identifier(), sponsor.Verkey(), models.RolePtr(models.RoleSponsor))
	s.Require().NoError(err)
	_, err = s.wallet.AddAttribute(Attribute{Name: "endpoint", Value: "http://sponsor", Dest: sponsor.Identifier()})
	s.Require().NoError(err)

	txns, err := s.wallet.PreparePending()
	s.Require().NoError(err)
	s.Require().Len(txns, 2)
	s.Equal(models.TypeNym, txns[0].Type)
	s.Equal(models.TypeAttrib, txns[1].Type)
	s.Less(txns[0].ReqID, txns[1].ReqID)
	s.NoError(signing.VerifyCanonical(s.trustee.Verkey(), txns[1].SigningPayload(), txns[1].Signature))
	s.Zero(s.wallet.PendingCount())
	s.Equal(2, s.wallet.PreparedCount())
}

func (s *WalletSuite) TestEncryptedAttributeNeverLeavesInPlaintext() {
	_, err := s.wallet.AddAttribute(Attribute{Name: "ssn", Value: "123-45-6789", Form: models.FormEnc})
	s.Require().NoError(err)

	txns, err := s.wallet.PreparePending()
	s.Require().NoError(err)
	s.Require().Len(txns, 1)
	s.NotContains(txns[0].Enc, "123-45-6789")
	s.Empty(txns[0].Raw)

	_, err = s.wallet.DecryptAttribute(s.trustee.Identifier(), "ssn")
	s.ErrorIs(err, sentinel.ErrNotFound, "nothing is cached before the reply")

	outcome, cancel := s.replies.Expect(txns[0].Key())
	defer cancel()
	_, err = s.pipeline.Submit(s.ctx, txns[0])
	s.Require().NoError(err)
	s.Require().NoError(s.wallet.HandleReply(s.ctx, (<-outcome).Reply))

	plain, err := s.wallet.DecryptAttribute(s.trustee.Identifier(), "ssn")
	s.Require().NoError(err)
	s.Equal("123-45-6789", plain)
}

func (s *WalletSuite) TestAttributeAndCredentialDefinitionSeqNos() {
	_, err := s.wallet.AddAttribute(Attribute{Name: "name", Value: "Acme"})
	s.Require().NoError(err)
	_, err = s.wallet.AddCredentialDefinition(CredentialDefinition{Name: "Degree", Version: "1.0", AttrNames: []string{"name", "year"}, Type: "CL"})
	s.Require().NoError(err)
	s.Require().Equal([]error{nil, nil}, s.flush())

	attr, err := s.wallet.Attribute(s.trustee.Identifier(), "name")
	s.Require().NoError(err)
	s.Equal(int64(2), attr.SeqNo)

	cd, err := s.wallet.CredentialDefinition(s.trustee.Identifier(), "Degree", "1.0")
	s.Require().NoError(err)
	s.Equal(int64(3), cd.SeqNo)

	_, err = s.wallet.AddIssuerKey(IssuerKey{CredDefSeqNo: cd.SeqNo, Data: models.MustData(map[string]string{"n": "123"})})
	s.Require().NoError(err)
	s.Require().Equal([]error{nil}, s.flush())

	ik, err := s.wallet.IssuerKey(s.trustee.Identifier(), cd.SeqNo)
	s.Require().NoError(err)
	s.Equal(int64(4), ik.SeqNo)
}

func (s *WalletSuite) TestReplyStampsOnlyItsOwnAttributeValue() {
	_, err := s.wallet.AddAttribute(Attribute{Name: "age", Value: "30"})
	s.Require().NoError(err)
	_, err = s.wallet.AddAttribute(Attribute{Name: "age", Value: "31"})
	s.Require().NoError(err)
	txns, err := s.wallet.PreparePending()
	s.Require().NoError(err)
	s.Require().Len(txns, 2)

	_, err = s.wallet.Attribute(s.trustee.Identifier(), "age")
	s.ErrorIs(err, sentinel.ErrNotFound)

	outcome, cancel := s.replies.Expect(txns[0].Key())
	defer cancel()
	_, err = s.pipeline.Submit(s.ctx, txns[0])
	s.Require().NoError(err)
	first := (<-outcome).Reply
	s.Require().NoError(s.wallet.HandleReply(s.ctx, first))

	attr, err := s.wallet.Attribute(s.trustee.Identifier(), "age")
	s.Require().NoError(err)
	s.Equal("30", attr.Value)
	s.Equal(first.SeqNo, attr.SeqNo)
	s.Equal(1, s.wallet.PreparedCount(), "second write is still uncommitted")

	outcome, cancel2 := s.replies.Expect(txns[1].Key())
	defer cancel2()
	_, err = s.pipeline.Submit(s.ctx, txns[1])
	s.Require().NoError(err)
	second := (<-outcome).Reply
	s.Require().NoError(s.wallet.HandleReply(s.ctx, second))

	attr, err = s.wallet.Attribute(s.trustee.Identifier(), "age")
	s.Require().NoError(err)
	s.Equal("31", attr.Value)
	s.Equal(second.SeqNo, attr.SeqNo)
	s.Greater(second.SeqNo, first.SeqNo)
}

func (s *WalletSuite) TestRejectionDropsPreparedEntry() {
	stranger, err := signing.NewSigner(signing.SeedFromString("stranger"))
	s.Require().NoError(err)
	target, err := signing.NewSigner(signing.SeedFromString("target"))
	s.Require().NoError(err)
	s.wallet.AddSigner(stranger)

	_, err = s.wallet.Submit(&models.Txn{Type: models.TypeNym, Identifier: stranger.Identifier(), Dest: target.Identifier()})
	s.Require().NoError(err)

	errs := s.flush()
	s.Require().Len(errs, 1)
	s.Error(errs[0])
	s.Zero(s.wallet.PreparedCount())
	_, err = s.wallet.Identity(target.Identifier())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *WalletSuite) TestUnmatchedReplyIsRecoverable() {
	reply := &models.Reply{Type: models.TypeNym, Identifier: s.trustee.Identifier(), ReqID: 99, SeqNo: 5}
	err := s.wallet.HandleReply(s.ctx, reply)
	s.ErrorIs(err, ErrUnmatchedReply)

	events := s.auditLog.ListByAction(s.ctx, audit.EventReplyUnmatched)
	s.Require().Len(events, 1)
	s.Equal(s.trustee.Identifier(), events[0].Subject)

	// the wallet keeps working afterwards
	_, err = s.wallet.AddAttribute(Attribute{Name: "name", Value: "Acme"})
	s.NoError(err)
}

func (s *WalletSuite) TestReplyWithBadProofIsRejected() {
	_, err := s.wallet.AddAttribute(Attribute{Name: "name", Value: "Acme"})
	s.Require().NoError(err)
	txns, err := s.wallet.PreparePending()
	s.Require().NoError(err)

	forged := &models.Reply{
		Type:       models.TypeAttrib,
		Identifier: txns[0].Identifier,
		ReqID:      txns[0].ReqID,
		Result:     txns[0],
		SeqNo:      2,
		RootHash:   signing.SHA256Hex([]byte("forged")),
		TreeSize:   2,
	}
	err = s.wallet.HandleReply(s.ctx, forged)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidSignature))
	s.Equal(1, s.wallet.PreparedCount(), "a bad reply does not settle the request")
}

func (s *WalletSuite) TestAbandonDropsExpiredRequests() {
	_, err := s.wallet.AddAttribute(Attribute{Name: "old", Value: "1"})
	s.Require().NoError(err)
	_, err = s.wallet.PreparePending()
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)
	_, err = s.wallet.AddAttribute(Attribute{Name: "new", Value: "2"})
	s.Require().NoError(err)
	_, err = s.wallet.PreparePending()
	s.Require().NoError(err)

	dropped := s.wallet.Abandon(s.ctx, s.now.Add(-30*time.Second))
	s.Require().Len(dropped, 1)
	s.Equal(1, s.wallet.PreparedCount())
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventRequestAbandoned), 1)
}

func (s *WalletSuite) TestClosedWalletRefusesWork() {
	s.Require().NoError(s.wallet.Close())
	_, err := s.wallet.Submit(&models.Txn{Type: models.TypeAttrib, Raw: `{"a":"b"}`})
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(s.wallet.Close(), ErrClosed)

	s.wallet.Open()
	_, err = s.wallet.Submit(&models.Txn{Type: models.TypeAttrib, Raw: `{"a":"b"}`})
	s.NoError(err)
}

func TestSubmitRejectsUnmanagedIdentifier(t *testing.T) {
	w := New("empty")
	_, err := w.Submit(&models.Txn{Type: models.TypeAttrib, Identifier: "nobody", Raw: `{"a":"b"}`})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestCredentialsAreListedInOrder(t *testing.T) {
	w := New("holder")
	w.AddCredential(Credential{Name: "Transcript", Version: "1.0"})
	w.AddCredential(Credential{Name: "Degree", Version: "2.0"})
	w.AddCredential(Credential{Name: "Degree", Version: "1.0"})

	got := w.Credentials()
	require.Len(t, got, 3)
	assert.Equal(t, "Degree", got[0].Name)
	assert.Equal(t, "1.0", got[0].Version)
	assert.Equal(t, "Transcript", got[2].Name)

	_, err := w.Credential("Missing", "1.0")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSealOpen(t *testing.T) {
	sealed, key, err := seal(`{"k":"v"}`)
	require.NoError(t, err)
	plain, err := open(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, plain)

	key[0] ^= 0xff
	_, err = open(sealed, key)
	assert.ErrorIs(t, err, errOpen)
}
