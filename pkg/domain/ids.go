// Package domain holds the identifier types shared across the ledger, wallet and agent.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	dErrors "idledger/pkg/domain-errors"
)

// Identifier is a ledger identity: a base58 cryptonym (16 bytes) or a full verkey-sized DID (32 bytes).
type Identifier string

// TxnID is the deterministic id of a write request, stable across redelivery.
type TxnID string

// Nonce correlates the first signed response to an invitation before the remote identity is known.
type Nonce string

func (i Identifier) String() string { return string(i) }
func (t TxnID) String() string      { return string(t) }
func (n Nonce) String() string      { return string(n) }

// ParseIdentifier validates the identifier encoding.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identifier is not base58")
	}
	if len(raw) != 16 && len(raw) != 32 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "identifier must decode to 16 or 32 bytes, got %d", len(raw))
	}
	return Identifier(s), nil
}

// TxnIDFor derives the transaction id of a request from its submitter and request id.
func TxnIDFor(identifier string, reqID int64) TxnID {
	h := sha256.Sum256([]byte(identifier + ":" + strconv.FormatInt(reqID, 10)))
	return TxnID(hex.EncodeToString(h[:]))
}

// NewNonce returns a fresh random nonce.
func NewNonce() Nonce {
	return Nonce(uuid.NewString())
}

// ParseNonce rejects empty nonces.
func ParseNonce(s string) (Nonce, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nonce is required")
	}
	return Nonce(s), nil
}
