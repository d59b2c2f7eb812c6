package models

import (
	"encoding/json"
	"fmt"
)

// MsgType is the closed set of agent message kinds.
type MsgType string

const (
	MsgAcceptInvite     MsgType = "ACCEPT_INVITE"
	MsgAvailClaimList   MsgType = "AVAIL_CLAIM_LIST"
	MsgRequestClaim     MsgType = "REQUEST_CLAIM"
	MsgClaim            MsgType = "CLAIM"
	MsgClaimProof       MsgType = "CLAIM_PROOF"
	MsgClaimProofStatus MsgType = "CLAIM_PROOF_STATUS"
	MsgError            MsgType = "ERROR"
)

// Locked reports whether a message must resolve its link by nonce through get-or-create after
// signature verification. Other known types only look up an existing link.
func (t MsgType) Locked() bool {
	switch t {
	case MsgAcceptInvite, MsgAvailClaimList, MsgRequestClaim, MsgClaim, MsgClaimProof:
		return true
	}
	return false
}

// Message is the signed unit exchanged between agents.
type Message struct {
	Type       MsgType `json:"type"`
	ID         string  `json:"id"`
	Identifier string  `json:"identifier"`
	Verkey     string  `json:"verkey,omitempty"`
	Nonce      string  `json:"nonce"`
	// ReplyTo is the id of the message this one answers.
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// Decode unmarshals the body into v.
func (m *Message) Decode(v any) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("%s carries no body", m.Type)
	}
	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode %s body: %w", m.Type, err)
	}
	return nil
}

// AcceptInviteBody tells the inviter where to reach the invitee.
type AcceptInviteBody struct {
	Endpoint string `json:"endpoint,omitempty"`
}

type AvailClaimListBody struct {
	Claims []AvailableClaim `json:"claims"`
}

// RequestClaimBody carries the requester's blinded commitment.
type RequestClaimBody struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Commitment json.RawMessage `json:"commitment,omitempty"`
}

// ClaimBody is an issued claim. Material is the crypto engine's opaque credential.
type ClaimBody struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Issuer       string            `json:"issuer"`
	CredDefSeqNo int64             `json:"credDefSeqNo"`
	Values       map[string]string `json:"values"`
	Material     json.RawMessage   `json:"material"`
}

// CredentialRef points the verifier at the ledger records a proof was built against.
type CredentialRef struct {
	Issuer       string `json:"issuer"`
	CredDefSeqNo int64  `json:"credDefSeqNo"`
}

type ClaimProofBody struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Proof       json.RawMessage   `json:"proof"`
	Revealed    map[string]string `json:"revealed"`
	Credentials []CredentialRef   `json:"credentials"`
}

type ClaimProofStatusBody struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Accepted bool   `json:"accepted"`
}

// ErrorBody is the payload of a signed error envelope.
type ErrorBody struct {
	Code      string  `json:"code"`
	Reason    string  `json:"reason"`
	InReplyTo MsgType `json:"inReplyTo,omitempty"`
}
