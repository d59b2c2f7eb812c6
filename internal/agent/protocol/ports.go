package protocol

import (
	"context"
	"encoding/json"

	"idledger/internal/agent/models"
	ledgermodels "idledger/internal/ledger/models"
	"idledger/internal/wallet"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks CryptoEngine,Ledger

// CryptoEngine issues and verifies claims. Every key, commitment, credential and proof it
// produces is opaque to the agent.
type CryptoEngine interface {
	// Commit blinds a fresh holder secret for a claim request against an issuer key.
	Commit(ctx context.Context, issuerPublicKey json.RawMessage) (commitment, blinding json.RawMessage, err error)
	IssueCredential(ctx context.Context, commitment json.RawMessage, attributes map[string]string,
		issuerPublicKey, issuerSecretKey json.RawMessage) (json.RawMessage, error)
	// ExtendCredential completes an issued credential with the holder's blinding.
	ExtendCredential(ctx context.Context, credential, blinding json.RawMessage) (json.RawMessage, error)
	BuildProof(ctx context.Context, request models.ProofRequest, credentials []wallet.Credential,
		nonce string) (json.RawMessage, error)
	VerifyProof(ctx context.Context, issuerPublicKeys []json.RawMessage, proof json.RawMessage,
		nonce string, revealed map[string]string) (bool, error)
}

// Ledger answers signed read requests, retrying until the state is committed or a deadline
// passes. wallet/client.Client implements it over HTTP.
type Ledger interface {
	PollQuery(ctx context.Context, query *ledgermodels.Txn) (*ledgermodels.Reply, error)
}
