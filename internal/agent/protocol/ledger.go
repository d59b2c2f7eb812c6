package protocol

import (
	"context"
	"encoding/json"

	"idledger/internal/agent/metrics"
	ledgermodels "idledger/internal/ledger/models"
	"idledger/internal/wallet"
	dErrors "idledger/pkg/domain-errors"
)

// ledgerReader signs queries with the wallet's default identifier and folds results into it.
type ledgerReader struct {
	wallet  *wallet.Wallet
	ledger  Ledger
	metrics *metrics.Metrics
}

func (r *ledgerReader) read(ctx context.Context, query *ledgermodels.Txn, into any) error {
	if r.ledger == nil {
		return dErrors.New(dErrors.CodeNotYetAvailable, "no ledger configured")
	}
	signed, err := r.wallet.PrepareQuery(query)
	if err != nil {
		return err
	}
	reply, err := r.ledger.PollQuery(ctx, signed)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			r.metrics.IncrementPoll("timeout")
		} else {
			r.metrics.IncrementPoll("error")
		}
		return err
	}
	r.metrics.IncrementPoll("ok")
	if err := json.Unmarshal(reply.Data, into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode ledger reply")
	}
	return nil
}

func (r *ledgerReader) Nym(ctx context.Context, dest string) (*ledgermodels.NymData, error) {
	var nym ledgermodels.NymData
	if err := r.read(ctx, &ledgermodels.Txn{Type: ledgermodels.TypeGetNym, Dest: dest}, &nym); err != nil {
		return nil, err
	}
	r.wallet.LearnIdentity(&nym)
	return &nym, nil
}

func (r *ledgerReader) IssuerKey(ctx context.Context, issuer string, credDefSeqNo int64) (*ledgermodels.IssuerKeyData, error) {
	if ik, err := r.wallet.IssuerKey(issuer, credDefSeqNo); err == nil && ik.SeqNo > 0 {
		return &ledgermodels.IssuerKeyData{Publisher: ik.Publisher, Ref: ik.CredDefSeqNo, Data: ik.Data, SeqNo: ik.SeqNo}, nil
	}
	var data ledgermodels.IssuerKeyData
	query := &ledgermodels.Txn{Type: ledgermodels.TypeGetIssuerKey, Dest: issuer, Ref: credDefSeqNo}
	if err := r.read(ctx, query, &data); err != nil {
		return nil, err
	}
	r.wallet.LearnIssuerKey(&data)
	return &data, nil
}
