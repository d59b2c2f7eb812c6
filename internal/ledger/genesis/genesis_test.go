package genesis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/internal/ledger/models"
	"idledger/pkg/signing"
)

func TestLoadAssignsStableIDs(t *testing.T) {
	trustee, err := signing.NewSigner(signing.SeedFromString("trustee1"))
	require.NoError(t, err)
	steward, err := signing.NewSigner(signing.SeedFromString("steward1"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []*models.Txn{
		Nym(trustee, models.RoleTrustee),
		Nym(steward, models.RoleSteward),
	}))
	text := "# pool genesis\n\n" + buf.String()

	first, err := Load(strings.NewReader(text))
	require.NoError(t, err)
	second, err := Load(strings.NewReader(text))
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first[0].TxnID, second[0].TxnID)
	assert.NotEqual(t, first[0].TxnID, first[1].TxnID)
	assert.Equal(t, trustee.Identifier(), first[0].Dest)
	assert.Equal(t, models.RoleSteward, *first[1].Role)
}

func TestNymIDIsDerivedFromIdentity(t *testing.T) {
	trustee, err := signing.NewSigner(signing.SeedFromString("trustee1"))
	require.NoError(t, err)

	first := Nym(trustee, models.RoleTrustee)
	assert.Len(t, first.TxnID, 64)
	assert.Equal(t, first.TxnID, Nym(trustee, models.RoleTrustee).TxnID)
	assert.NotEqual(t, first.TxnID, Nym(trustee, models.RoleSteward).TxnID)
}

func TestLoadKeepsExplicitID(t *testing.T) {
	txns, err := Load(strings.NewReader(`{"type":"NYM","dest":"V4SGRU86Z58d6TV7PBUe6f","txnId":"fixed"}`))
	require.NoError(t, err)
	assert.Equal(t, "fixed", txns[0].TxnID)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"malformed json", `{"type":`},
		{"unknown field", `{"type":"NYM","dest":"x","color":"red"}`},
		{"query type", `{"type":"GET_NYM","dest":"x"}`},
		{"invalid type", `{"type":"POOL_UPGRADE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.line))
			assert.ErrorContains(t, err, "genesis line 1")
		})
	}
}
