package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"idledger/internal/wallet"
	"idledger/internal/wallet/client"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/sentinel"
)

// Syncer flushes a wallet's queued writes to the ledger and folds the replies back in.
type Syncer interface {
	Sync(ctx context.Context, w client.Wallet) error
}

// Publish writes a credential definition and its issuer key through w, then registers the key
// pair so the catalog can issue against it. It returns the definition's seqNo.
func (c *Catalog) Publish(ctx context.Context, w *wallet.Wallet, syncer Syncer, def wallet.CredentialDefinition,
	public, secret json.RawMessage,
) (int64, error) {
	if def.Publisher == "" {
		def.Publisher = w.DefaultID()
	}
	seqNo, err := committedCredDef(w, def)
	if err != nil {
		return 0, err
	}
	if seqNo == 0 {
		if _, err := w.AddCredentialDefinition(def); err != nil {
			return 0, err
		}
		if err := syncer.Sync(ctx, w); err != nil {
			return 0, fmt.Errorf("publish credential definition: %w", err)
		}
		if seqNo, err = committedCredDef(w, def); err != nil {
			return 0, err
		}
		if seqNo == 0 {
			return 0, dErrors.Newf(dErrors.CodeNotYetAvailable, "credential definition %s %s not committed yet", def.Name, def.Version)
		}
	}

	if _, err := w.AddIssuerKey(wallet.IssuerKey{Publisher: def.Publisher, CredDefSeqNo: seqNo, Data: public}); err != nil {
		return 0, err
	}
	if err := syncer.Sync(ctx, w); err != nil {
		return 0, fmt.Errorf("publish issuer key: %w", err)
	}
	c.AddKeys(seqNo, public, secret)
	return seqNo, nil
}

func committedCredDef(w *wallet.Wallet, def wallet.CredentialDefinition) (int64, error) {
	cd, err := w.CredentialDefinition(def.Publisher, def.Name, def.Version)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cd.SeqNo, nil
}
