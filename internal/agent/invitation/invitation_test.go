package invitation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/internal/agent/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/signing"
)

func TestSignedInvitationRoundTrip(t *testing.T) {
	faber, err := signing.NewSigner(signing.SeedFromString("faber"))
	require.NoError(t, err)

	f, err := New(faber, "Faber College", "N1", "http://faber:7000", []models.ProofRequest{
		{Name: "Transcript", Version: "1.2", Attributes: []string{"degree", "status"}},
	})
	require.NoError(t, err)
	raw, err := f.Marshal()
	require.NoError(t, err)

	parsed, err := ParseBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "N1", parsed.LinkInvitation.Nonce)
	assert.Equal(t, faber.Identifier(), parsed.LinkInvitation.Identifier)
	require.Len(t, parsed.ClaimRequests, 1)
	assert.NoError(t, parsed.Verify(faber.Verkey()))
}

func TestTamperedInvitationFailsVerification(t *testing.T) {
	faber, err := signing.NewSigner(signing.SeedFromString("faber"))
	require.NoError(t, err)
	f, err := New(faber, "Faber College", "N1", "", nil)
	require.NoError(t, err)

	f.LinkInvitation.Nonce = "N2"
	err = f.Verify(faber.Verkey())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSignature))
}

func TestParseRejectsIncompleteInvitations(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"missing nonce", `{"link-invitation":{"name":"x","identifier":"Th7MpTaRZVRYnPiabds81Y"},"sig":"s"}`, "nonce"},
		{"missing sig", `{"link-invitation":{"name":"x","identifier":"Th7MpTaRZVRYnPiabds81Y","nonce":"N"}}`, "sig"},
		{"unknown key", `{"link-invitation":{"name":"x","identifier":"Th7MpTaRZVRYnPiabds81Y","nonce":"N"},"sig":"s","extra":1}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			if tt.field != "" {
				assert.Contains(t, dErrors.FieldsOf(err), tt.field)
			}
		})
	}
}
