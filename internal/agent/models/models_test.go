package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/signing"
)

func signer(t *testing.T, name string) *signing.Signer {
	t.Helper()
	s, err := signing.NewSigner(signing.SeedFromString(name))
	require.NoError(t, err)
	return s
}

func TestEnvelopeRoundTrip(t *testing.T) {
	alice := signer(t, "alice")
	raw, err := Seal(alice, &Message{Type: MsgAcceptInvite, Nonce: "N1"}, time.Now())
	require.NoError(t, err)

	peeked, err := Peek(raw)
	require.NoError(t, err)
	assert.Equal(t, alice.Verkey(), peeked.Verkey)

	msg, err := Open(raw, alice.Verkey())
	require.NoError(t, err)
	assert.Equal(t, MsgAcceptInvite, msg.Type)
	assert.Equal(t, "N1", msg.Nonce)
	assert.Equal(t, alice.Identifier(), msg.Identifier)
	assert.NotEmpty(t, msg.ID)
}

func TestEnvelopeRejectsWrongKey(t *testing.T) {
	raw, err := Seal(signer(t, "alice"), &Message{Type: MsgClaim, Nonce: "N1"}, time.Now())
	require.NoError(t, err)

	_, err = Open(raw, signer(t, "mallory").Verkey())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func TestEnvelopeRejectsGarbage(t *testing.T) {
	_, err := Peek([]byte("not a token"))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeProtocol))
}

func TestLockedTypes(t *testing.T) {
	for _, typ := range []MsgType{MsgAcceptInvite, MsgAvailClaimList, MsgRequestClaim, MsgClaim, MsgClaimProof} {
		assert.True(t, typ.Locked(), typ)
	}
	assert.False(t, MsgError.Locked())
	assert.False(t, MsgClaimProofStatus.Locked())
}

func TestStatusOnlyAdvances(t *testing.T) {
	assert.Equal(t, StatusSynced, StatusUnaccepted.Advance(StatusSynced))
	assert.Equal(t, StatusAccepted, StatusAccepted.Advance(StatusSynced))
}
