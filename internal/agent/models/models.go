// Package models defines links between agents and the messages they exchange over them.
package models

import (
	"encoding/json"
	"time"
)

// LinkStatus tracks how far a link got. Links only move forward.
type LinkStatus string

const (
	// StatusUnaccepted: the invitation is loaded but the remote is not resolved on the ledger.
	StatusUnaccepted LinkStatus = "unaccepted"
	// StatusSynced: the remote identity and verkey were read from the ledger.
	StatusSynced LinkStatus = "synced"
	// StatusAccepted: the remote acknowledged the link over the transport.
	StatusAccepted LinkStatus = "accepted"
)

var statusRank = map[LinkStatus]int{StatusUnaccepted: 0, StatusSynced: 1, StatusAccepted: 2}

// Advance returns the later of s and next.
func (s LinkStatus) Advance(next LinkStatus) LinkStatus {
	if statusRank[next] > statusRank[s] {
		return next
	}
	return s
}

// ClaimRef names a claim by schema.
type ClaimRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AvailableClaim is a claim an issuer offers on a link.
type AvailableClaim struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Issuer       string   `json:"issuer"`
	CredDefSeqNo int64    `json:"credDefSeqNo"`
	Attributes   []string `json:"attributes,omitempty"`
}

func (c AvailableClaim) Ref() ClaimRef { return ClaimRef{Name: c.Name, Version: c.Version} }

// ReceivedClaim records a claim issued to us on a link. Values live in the wallet.
type ReceivedClaim struct {
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Issuer     string    `json:"issuer"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Predicate is a comparison the prover must satisfy without revealing the value.
type Predicate struct {
	Attribute string `json:"attribute"`
	Type      string `json:"type"`
	Value     int64  `json:"value"`
}

// ProofRequest is a request for a claim proof, listed in the invitation as a claim request.
type ProofRequest struct {
	Name       string      `json:"name"`
	Version    string      `json:"version"`
	Attributes []string    `json:"attributes"`
	Predicates []Predicate `json:"predicates,omitempty"`
	// Fulfilled is set by the verifier once a proof was accepted, and by the prover once told so.
	Fulfilled bool `json:"fulfilled,omitempty"`
}

// LinkError is the last error envelope received on a link.
type LinkError struct {
	Code      string    `json:"code"`
	Reason    string    `json:"reason"`
	InReplyTo MsgType   `json:"inReplyTo,omitempty"`
	At        time.Time `json:"at"`
}

// Link is the relationship between a local identifier and a remote party. The nonce is the only
// datum shared out of band; until the remote's first signed message, it is what binds the two.
type Link struct {
	Name             string     `json:"name"`
	LocalIdentifier  string     `json:"localIdentifier"`
	TrustAnchor      string     `json:"trustAnchor,omitempty"`
	RemoteIdentifier string     `json:"remoteIdentifier,omitempty"`
	RemoteVerkey     string     `json:"remoteVerkey,omitempty"`
	RemoteEndpoint   string     `json:"remoteEndpoint,omitempty"`
	Nonce            string     `json:"nonce"`
	Status           LinkStatus `json:"status"`
	// Inviter is true on the side that issued the invitation.
	Inviter bool `json:"inviter,omitempty"`

	ProofRequests   []ProofRequest   `json:"proofRequests,omitempty"`
	AvailableClaims []AvailableClaim `json:"availableClaims,omitempty"`
	ReceivedClaims  []ReceivedClaim  `json:"receivedClaims,omitempty"`

	// InvitationSig is the detached signature kept to verify once the remote verkey is known.
	InvitationSig     string          `json:"invitationSig,omitempty"`
	InvitationPayload json.RawMessage `json:"invitationPayload,omitempty"`

	LastError  *LinkError `json:"lastError,omitempty"`
	LastSynced time.Time  `json:"lastSynced,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Clone returns a deep copy.
func (l *Link) Clone() *Link {
	cp := *l
	cp.ProofRequests = append([]ProofRequest(nil), l.ProofRequests...)
	for i := range cp.ProofRequests {
		cp.ProofRequests[i].Attributes = append([]string(nil), l.ProofRequests[i].Attributes...)
		cp.ProofRequests[i].Predicates = append([]Predicate(nil), l.ProofRequests[i].Predicates...)
	}
	cp.AvailableClaims = append([]AvailableClaim(nil), l.AvailableClaims...)
	cp.ReceivedClaims = append([]ReceivedClaim(nil), l.ReceivedClaims...)
	cp.InvitationPayload = append(json.RawMessage(nil), l.InvitationPayload...)
	if l.LastError != nil {
		e := *l.LastError
		cp.LastError = &e
	}
	return &cp
}

// AvailableClaim finds an offered claim by schema.
func (l *Link) AvailableClaim(ref ClaimRef) (AvailableClaim, bool) {
	for _, c := range l.AvailableClaims {
		if c.Ref() == ref {
			return c, true
		}
	}
	return AvailableClaim{}, false
}

// ProofRequest finds a proof request by schema.
func (l *Link) ProofRequest(ref ClaimRef) (int, bool) {
	for i, r := range l.ProofRequests {
		if r.Name == ref.Name && r.Version == ref.Version {
			return i, true
		}
	}
	return -1, false
}

// Invitation is an outstanding invitation on the inviter's side, waiting for its first reply.
type Invitation struct {
	Name            string         `json:"name"`
	LocalIdentifier string         `json:"localIdentifier"`
	Nonce           string         `json:"nonce"`
	Endpoint        string         `json:"endpoint,omitempty"`
	ProofRequests   []ProofRequest `json:"proofRequests,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}
