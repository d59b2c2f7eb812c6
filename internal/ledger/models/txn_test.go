package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/pkg/signing"
)

func TestParseTxnRecordsUnknownFields(t *testing.T) {
	txn, err := ParseTxn([]byte(`{"type":"NYM","identifier":"abc","reqId":1,"dest":"x","colour":"red","alias":"bob"}`))
	require.NoError(t, err)

	assert.Equal(t, TypeNym, txn.Type)
	assert.Equal(t, "x", txn.Dest)
	assert.Equal(t, []string{"alias", "colour"}, txn.UnknownFields())
}

func TestRolePresenceSurvivesWire(t *testing.T) {
	t.Run("absent role", func(t *testing.T) {
		txn, err := ParseTxn([]byte(`{"type":"NYM","dest":"x"}`))
		require.NoError(t, err)
		assert.Nil(t, txn.Role)
	})

	t.Run("explicit empty role", func(t *testing.T) {
		txn, err := ParseTxn([]byte(`{"type":"NYM","dest":"x","role":""}`))
		require.NoError(t, err)
		require.NotNil(t, txn.Role)
		assert.Equal(t, RoleNone, *txn.Role)

		out, err := json.Marshal(txn)
		require.NoError(t, err)
		assert.Contains(t, string(out), `"role":""`)
	})
}

func TestWithHashedPayload(t *testing.T) {
	raw := `{"endpoint":"http://127.0.0.1:5555"}`
	txn := &Txn{Type: TypeAttrib, Identifier: "a", Dest: "b", Raw: raw}

	hashed := txn.WithHashedPayload()

	assert.Equal(t, signing.SHA256Hex([]byte(raw)), hashed.Raw)
	assert.Equal(t, raw, txn.Raw, "original must stay un-hashed")

	form, _, n := hashed.Payload()
	assert.Equal(t, FormRaw, form)
	assert.Equal(t, 1, n)

	nym := &Txn{Type: TypeNym, Dest: "b", Raw: "ignored"}
	assert.Equal(t, "ignored", nym.WithHashedPayload().Raw)
}

func TestSigningPayloadDropsCommitFields(t *testing.T) {
	txn := &Txn{Type: TypeNym, Identifier: "a", ReqID: 3, Signature: "sig", TxnID: "t", SeqNo: 9, TxnTime: 100, Dest: "b"}
	p := txn.SigningPayload()

	assert.Empty(t, p.Signature)
	assert.Empty(t, p.TxnID)
	assert.Zero(t, p.SeqNo)
	assert.Zero(t, p.TxnTime)
	assert.Equal(t, "b", p.Dest)
	assert.Equal(t, "sig", txn.Signature)
}

func TestRawAttributeName(t *testing.T) {
	assert.Equal(t, "endpoint", RawAttributeName(`{"endpoint":"x"}`))
	assert.Empty(t, RawAttributeName(`{"a":1,"b":2}`))
	assert.Empty(t, RawAttributeName(`not json`))
}
