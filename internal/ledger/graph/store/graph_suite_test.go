package store_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/graph/store"
	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

// GraphSuite exercises the identity graph over a concrete store.
type GraphSuite struct {
	suite.Suite
	newStore func() graph.Store

	ctx   context.Context
	store graph.Store
	graph *graph.Graph
	seq   int64

	trustee *signing.Signer
	steward *signing.Signer
	sponsor *signing.Signer
	user    *signing.Signer
}

func TestInMemoryGraphSuite(t *testing.T) {
	suite.Run(t, &GraphSuite{newStore: func() graph.Store { return store.NewInMemoryStore() }})
}

func (s *GraphSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
	s.graph = graph.New(s.store, graph.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.seq = 0
	s.trustee = s.signer("trustee")
	s.steward = s.signer("steward")
	s.sponsor = s.signer("sponsor")
	s.user = s.signer("user")
}

func (s *GraphSuite) signer(name string) *signing.Signer {
	signer, err := signing.NewSigner(signing.SeedFromString(name))
	s.Require().NoError(err)
	return signer
}

func (s *GraphSuite) stamp(txn *models.Txn) *models.Txn {
	s.seq++
	if txn.ReqID == 0 {
		txn.ReqID = s.seq
	}
	txn.TxnID = txn.ComputeTxnID()
	txn.SeqNo = s.seq
	txn.TxnTime = 1700000000 + s.seq
	return txn
}

func (s *GraphSuite) apply(txn *models.Txn) *models.Txn {
	s.Require().NoError(s.graph.Apply(s.ctx, txn))
	return txn
}

func (s *GraphSuite) genesisTrustee() *models.Txn {
	return s.apply(s.stamp(&models.Txn{
		Type:   models.TypeNym,
		Dest:   s.trustee.Identifier(),
		Verkey: s.trustee.Verkey(),
		Role:   models.RolePtr(models.RoleTrustee),
	}))
}

func (s *GraphSuite) nym(actor, target *signing.Signer, role models.Role) *models.Txn {
	return s.apply(s.stamp(&models.Txn{
		Type:       models.TypeNym,
		Identifier: actor.Identifier(),
		Dest:       target.Identifier(),
		Verkey:     target.Verkey(),
		Role:       models.RolePtr(role),
	}))
}

func (s *GraphSuite) seedHierarchy() {
	s.genesisTrustee()
	s.nym(s.trustee, s.steward, models.RoleSteward)
	s.nym(s.steward, s.sponsor, models.RoleSponsor)
	s.nym(s.sponsor, s.user, models.RoleUser)
}

func (s *GraphSuite) TestGenesisNymHasNoIncomingEdge() {
	genesis := s.genesisTrustee()

	edges, err := s.store.EdgesTo(s.ctx, graph.EdgeAddsNym, s.trustee.Identifier())
	s.Require().NoError(err)
	s.Empty(edges)

	txn, err := s.graph.GetAddNymTransaction(s.ctx, s.trustee.Identifier())
	s.Require().NoError(err)
	s.Equal(genesis.TxnID, txn.TxnID)
	s.Equal("", txn.Identifier)
	s.Require().NotNil(txn.Role)
	s.Equal(models.RoleTrustee, *txn.Role)

	sponsor, err := s.graph.GetSponsorFor(s.ctx, s.trustee.Identifier())
	s.Require().NoError(err)
	s.Empty(sponsor)
}

func (s *GraphSuite) TestSponsorIsRecordedOnlyForPlainIdentities() {
	s.seedHierarchy()

	sponsorOfSponsor, err := s.graph.GetSponsorFor(s.ctx, s.sponsor.Identifier())
	s.Require().NoError(err)
	s.Empty(sponsorOfSponsor, "a steward-created sponsor has no sponsor")

	sponsorOfUser, err := s.graph.GetSponsorFor(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Equal(s.sponsor.Identifier(), sponsorOfUser)

	role, err := s.graph.GetRole(s.ctx, s.sponsor.Identifier())
	s.Require().NoError(err)
	s.Equal(models.RoleSponsor, role)
}

func (s *GraphSuite) TestReapplyingIsANoOp() {
	s.seedHierarchy()
	attr := s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.user.Identifier(), Raw: `{"endpoint":"http://u"}`}))
	cd := s.apply(s.stamp(&models.Txn{Type: models.TypeCredDef, Identifier: s.sponsor.Identifier(),
		Data: models.MustData(models.CredDefData{Name: "Transcript", Version: "1.0", AttrNames: []string{"name"}})}))
	key := s.apply(s.stamp(&models.Txn{Type: models.TypeIssuerKey, Identifier: s.sponsor.Identifier(), Ref: cd.SeqNo,
		Data: models.MustData(map[string]string{"N": "1"})}))
	rotation := s.apply(s.stamp(&models.Txn{Type: models.TypeNym, Identifier: s.user.Identifier(), Dest: s.user.Identifier(),
		Verkey: s.signer("rotated").Verkey()}))

	before := s.snapshot()
	for _, txn := range []*models.Txn{attr, cd, key, rotation} {
		s.NoError(s.graph.Apply(s.ctx, txn), "second apply of %s", txn.Type)
	}
	user, err := s.graph.GetNym(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.NoError(s.graph.AddNym(s.ctx, s.stampedCopy(user)))
	s.Equal(before, s.snapshot())
}

// stampedCopy rebuilds the creation transaction of nym, as a replayed delivery would carry it.
func (s *GraphSuite) stampedCopy(nym *models.Nym) *models.Txn {
	txn, err := s.graph.GetAddNymTransaction(s.ctx, nym.Nym)
	s.Require().NoError(err)
	return txn
}

func (s *GraphSuite) snapshot() map[models.TxnType][]*models.Txn {
	out := make(map[models.TxnType][]*models.Txn)
	for _, t := range models.WriteTypes() {
		txns, err := s.graph.GetTransactionsByType(s.ctx, t)
		s.Require().NoError(err)
		out[t] = txns
	}
	return out
}

func (s *GraphSuite) TestRoundTripRestoresWireFields() {
	s.seedHierarchy()
	alias := s.signer("alias")
	withRef := s.apply(s.stamp(&models.Txn{
		Type:       models.TypeNym,
		Identifier: s.steward.Identifier(),
		Dest:       alias.Identifier(),
		Reference:  s.user.Identifier(),
		Role:       models.RolePtr(models.RoleNone),
	}))
	noRole := s.apply(s.stamp(&models.Txn{Type: models.TypeNym, Identifier: s.sponsor.Identifier(), Dest: s.signer("plain").Identifier()}))
	hashAttr := s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.sponsor.Identifier(), Dest: s.user.Identifier(),
		Hash: signing.SHA256Hex([]byte("secret"))}))
	data := []byte(`{"version":"2.0","name":"Degree","attrNames":["a","b"],"type":"CL"}`)
	cd := s.apply(s.stamp(&models.Txn{Type: models.TypeCredDef, Identifier: s.steward.Identifier(), Data: data}))

	got, err := s.graph.GetTransactionsForIds(s.ctx, []string{withRef.TxnID, noRole.TxnID, hashAttr.TxnID, cd.TxnID})
	s.Require().NoError(err)
	s.Require().Len(got, 4)

	s.Equal(withRef, got[0])
	s.Require().NotNil(got[0].Role, "explicit empty role survives")
	s.Nil(got[1].Role, "absent role stays absent")
	s.Equal(noRole, got[1])
	s.Equal(hashAttr, got[2])
	s.Equal(s.user.Identifier(), got[2].Dest)
	s.Equal(string(data), string(got[3].Data), "nested payload is byte-identical")

	aliases, err := s.store.EdgesTo(s.ctx, graph.EdgeAliasOf, s.user.Identifier())
	s.Require().NoError(err)
	s.Len(aliases, 1)
}

func (s *GraphSuite) TestUpdateNymAndTransactionsForNym() {
	s.seedHierarchy()
	rotated := s.signer("rotated")
	rotation := s.apply(s.stamp(&models.Txn{Type: models.TypeNym, Identifier: s.user.Identifier(), Dest: s.user.Identifier(), Verkey: rotated.Verkey()}))
	attr := s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.user.Identifier(), Raw: `{"email":"u@example.com"}`}))
	demotion := s.apply(s.stamp(&models.Txn{Type: models.TypeNym, Identifier: s.trustee.Identifier(), Dest: s.user.Identifier(), Role: models.RolePtr(models.RoleNone)}))

	nym, err := s.graph.GetNym(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Equal(rotated.Verkey(), nym.Verkey)
	s.Equal(models.RoleNone, nym.Role)
	s.Equal(s.sponsor.Identifier(), nym.Sponsor)

	creation, err := s.graph.GetAddNymTransaction(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Equal(s.user.Verkey(), creation.Verkey, "creation keeps the original verkey")

	txns, err := s.graph.GetTransactionsForNym(s.ctx, s.user.Identifier())
	s.Require().NoError(err)
	s.Require().Len(txns, 4)
	s.Equal(creation.TxnID, txns[0].TxnID)
	s.Equal(rotation, txns[1])
	s.Equal(attr.TxnID, txns[2].TxnID)
	s.Equal(demotion, txns[3])
}

func (s *GraphSuite) TestAttributeLookup() {
	s.seedHierarchy()
	s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.user.Identifier(), Raw: `{"endpoint":"http://old"}`}))
	latest := s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.user.Identifier(), Raw: `{"endpoint":"http://new"}`}))
	enc := s.apply(s.stamp(&models.Txn{Type: models.TypeAttrib, Identifier: s.user.Identifier(), Enc: "c2VhbGVk"}))

	a, err := s.graph.GetAttribute(s.ctx, s.user.Identifier(), models.FormRaw, "endpoint")
	s.Require().NoError(err)
	s.Equal(latest.TxnID, a.TxnID)

	a, err = s.graph.GetAttribute(s.ctx, s.user.Identifier(), models.FormEnc, "c2VhbGVk")
	s.Require().NoError(err)
	s.Equal(enc.TxnID, a.TxnID)

	_, err = s.graph.GetAttribute(s.ctx, s.user.Identifier(), models.FormRaw, "phone")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *GraphSuite) TestCredentialDefinitionsAndIssuerKeys() {
	s.seedHierarchy()
	cd := s.apply(s.stamp(&models.Txn{Type: models.TypeCredDef, Identifier: s.sponsor.Identifier(),
		Data: models.MustData(models.CredDefData{Name: "Transcript", Version: "1.0", AttrNames: []string{"name", "gpa"}, Type: "CL"})}))
	s.apply(s.stamp(&models.Txn{Type: models.TypeIssuerKey, Identifier: s.sponsor.Identifier(), Ref: cd.SeqNo,
		Data: models.MustData(map[string]string{"N": "1"})}))

	got, err := s.graph.GetCredentialDefinition(s.ctx, s.sponsor.Identifier(), "Transcript", "1.0")
	s.Require().NoError(err)
	s.Equal([]string{"name", "gpa"}, got.AttrNames)
	s.Equal(cd.SeqNo, got.Meta.SeqNo)

	bySeq, err := s.graph.GetCredentialDefinitionBySeqNo(s.ctx, cd.SeqNo)
	s.Require().NoError(err)
	s.Equal(got.Name, bySeq.Name)

	key, err := s.graph.GetIssuerKey(s.ctx, s.sponsor.Identifier(), cd.SeqNo)
	s.Require().NoError(err)
	s.JSONEq(`{"N":"1"}`, string(key.Data))

	_, err = s.graph.GetCredentialDefinition(s.ctx, s.steward.Identifier(), "Transcript", "1.0")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *GraphSuite) TestConflictingCreateIsRejected() {
	s.seedHierarchy()
	other := s.stamp(&models.Txn{Type: models.TypeNym, Identifier: s.trustee.Identifier(), Dest: s.user.Identifier(), Verkey: s.user.Verkey()})
	err := s.graph.AddNym(s.ctx, other)
	s.ErrorIs(err, sentinel.ErrConflict)
}
