package wallet

import (
	"encoding/json"
	"time"

	"idledger/internal/ledger/models"
)

// Identity is a ledger identity the wallet knows about, managed or not.
type Identity struct {
	Identifier string
	Verkey     string
	Role       *models.Role
	Sponsor    string
	SeqNo      int64
}

// Attribute is an attribute the wallet wrote or learned. For encrypted attributes Value holds
// the plaintext and SecretKey the key it was sealed with; only the ciphertext is submitted.
type Attribute struct {
	Name      string
	Value     string
	Owner     string
	Dest      string
	Form      models.PayloadForm
	SecretKey []byte
	Sealed    string
	SeqNo     int64
}

// CredentialDefinition is a schema the wallet published or resolved.
type CredentialDefinition struct {
	Publisher string
	Name      string
	Version   string
	AttrNames []string
	Type      string
	SeqNo     int64
}

// IssuerKey is the public key published for a credential definition.
type IssuerKey struct {
	Publisher    string
	CredDefSeqNo int64
	Data         json.RawMessage
	SeqNo        int64
}

// Credential is a received claim. Material is the crypto engine's opaque credential.
type Credential struct {
	Name         string
	Version      string
	Issuer       string
	CredDefSeqNo int64
	Values       map[string]string
	Material     json.RawMessage
	IssuedAt     time.Time
}

// Prepared is a signed request awaiting its reply. Correlation names the local entity the reply
// folds into.
type Prepared struct {
	Txn         *models.Txn
	Correlation string
	SubmittedAt time.Time
	// Entity is the value this request writes. It reaches the local cache only when the reply
	// for this exact request arrives.
	Entity any
}

type pendingRequest struct {
	txn         *models.Txn
	correlation string
	entity      any
}
