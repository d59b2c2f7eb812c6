// Package invitation reads and writes link invitation files.
//
//	{
//	  "link-invitation": {"name": "...", "identifier": "...", "nonce": "...", "endpoint": "..."},
//	  "claim-requests": [{"name": "...", "version": "...", "attributes": ["..."]}],
//	  "sig": "..."
//	}
//
// sig is a detached signature over the canonical link-invitation object. It can only be checked
// once the inviter's verkey is read from the ledger.
package invitation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"idledger/internal/agent/models"
	"idledger/pkg/domain"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/signing"
)

// LinkInvitation is the signed part of an invitation.
type LinkInvitation struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Nonce      string `json:"nonce"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// File is the whole invitation document.
type File struct {
	LinkInvitation LinkInvitation        `json:"link-invitation"`
	ClaimRequests  []models.ProofRequest `json:"claim-requests,omitempty"`
	Sig            string                `json:"sig"`
}

// Payload is the canonical byte form the signature covers.
func (f *File) Payload() ([]byte, error) {
	return signing.Canonical(f.LinkInvitation)
}

// Verify checks the detached signature against the inviter's verkey.
func (f *File) Verify(verkey string) error {
	if err := signing.VerifyCanonical(verkey, f.LinkInvitation, f.Sig); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidSignature, "invitation signature does not verify")
	}
	return nil
}

// Parse decodes and checks the shape of an invitation. The signature is not checked here.
func Parse(r io.Reader) (*File, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invitation is not valid JSON")
	}
	var missing []string
	if f.LinkInvitation.Name == "" {
		missing = append(missing, "name")
	}
	if f.LinkInvitation.Identifier == "" {
		missing = append(missing, "identifier")
	}
	if f.LinkInvitation.Nonce == "" {
		missing = append(missing, "nonce")
	}
	if f.Sig == "" {
		missing = append(missing, "sig")
	}
	if len(missing) > 0 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invitation is missing %v", missing).WithFields(missing...)
	}
	if _, err := domain.ParseIdentifier(f.LinkInvitation.Identifier); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invitation identifier is malformed").WithFields("identifier")
	}
	for _, req := range f.ClaimRequests {
		if req.Name == "" || req.Version == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "claim requests need a name and version").WithFields("claim-requests")
		}
	}
	return &f, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) (*File, error) {
	return Parse(bytes.NewReader(b))
}

// LoadFile reads an invitation from disk.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open invitation: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

// New builds and signs an invitation.
func New(signer *signing.Signer, name, nonce, endpoint string, requests []models.ProofRequest) (*File, error) {
	f := &File{
		LinkInvitation: LinkInvitation{Name: name, Identifier: signer.Identifier(), Nonce: nonce, Endpoint: endpoint},
		ClaimRequests:  requests,
	}
	sig, err := signer.SignCanonical(f.LinkInvitation)
	if err != nil {
		return nil, fmt.Errorf("sign invitation: %w", err)
	}
	f.Sig = sig
	return f, nil
}

// Marshal encodes the invitation for handing out of band.
func (f *File) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}
