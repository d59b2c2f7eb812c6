package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"idledger/internal/ledger/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/sentinel"
)

// Query answers a read-only request straight from the graph. Lookups that match nothing return
// CodeNotYetAvailable: the write may simply not be committed yet.
func (p *Pipeline) Query(ctx context.Context, txn *models.Txn) (*models.Reply, error) {
	p.metrics.IncrementQuery(string(txn.Type))
	if err := p.validator.ValidateQuery(ctx, txn); err != nil {
		return nil, err
	}

	var (
		data  any
		seqNo int64
		err   error
	)
	switch txn.Type {
	case models.TypeGetNym:
		data, seqNo, err = p.getNym(ctx, txn)
	case models.TypeGetAttr:
		data, seqNo, err = p.getAttr(ctx, txn)
	case models.TypeGetTxns:
		data, err = p.getTxns(ctx, txn)
	case models.TypeGetCredDef:
		data, seqNo, err = p.getCredDef(ctx, txn)
	case models.TypeGetIssuerKey:
		data, seqNo, err = p.getIssuerKey(ctx, txn)
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a query", txn.Type).WithFields(models.FieldType)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotYetAvailable, "nothing committed for %s %s", txn.Type, txn.Dest).
			WithFields(models.FieldDest)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query graph")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode query result")
	}
	return &models.Reply{
		Type:       txn.Type,
		Identifier: txn.Identifier,
		ReqID:      txn.ReqID,
		Data:       raw,
		SeqNo:      seqNo,
	}, nil
}

func (p *Pipeline) getNym(ctx context.Context, txn *models.Txn) (*models.NymData, int64, error) {
	n, err := p.graph.GetNym(ctx, txn.Dest)
	if err != nil {
		return nil, 0, err
	}
	return &models.NymData{
		Dest:       n.Nym,
		Identifier: n.Origin.Identifier,
		Role:       n.Role,
		Verkey:     n.Verkey,
		Sponsor:    n.Sponsor,
		SeqNo:      n.Origin.SeqNo,
		TxnTime:    n.Origin.TxnTime,
	}, n.Origin.SeqNo, nil
}

func (p *Pipeline) getAttr(ctx context.Context, txn *models.Txn) (*models.AttrData, int64, error) {
	form, key, _ := txn.Payload()
	a, err := p.graph.GetAttribute(ctx, txn.Dest, form, key)
	if err != nil {
		return nil, 0, err
	}
	out := &models.AttrData{Dest: a.Owner, SeqNo: a.Meta.SeqNo}
	switch a.Form {
	case models.FormRaw:
		out.Raw = a.Value
	case models.FormEnc:
		out.Enc = a.Value
	case models.FormHash:
		out.Hash = a.Value
	}
	return out, a.Meta.SeqNo, nil
}

// getTxns replays the history of a nym as committed: attribute payloads come back hashed.
func (p *Pipeline) getTxns(ctx context.Context, txn *models.Txn) ([]*models.Txn, error) {
	txns, err := p.graph.GetTransactionsForNym(ctx, txn.Dest)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Txn, len(txns))
	for i, t := range txns {
		out[i] = t.WithHashedPayload()
	}
	return out, nil
}

func (p *Pipeline) getCredDef(ctx context.Context, txn *models.Txn) (*models.Txn, int64, error) {
	key, err := txn.CredDef()
	if err != nil {
		return nil, 0, err
	}
	cd, err := p.graph.GetCredentialDefinition(ctx, txn.Dest, key.Name, key.Version)
	if err != nil {
		return nil, 0, err
	}
	txns, err := p.graph.GetTransactionsForIds(ctx, []string{cd.Meta.TxnID})
	if err != nil {
		return nil, 0, err
	}
	if len(txns) != 1 {
		return nil, 0, sentinel.ErrNotFound
	}
	return txns[0], cd.Meta.SeqNo, nil
}

func (p *Pipeline) getIssuerKey(ctx context.Context, txn *models.Txn) (*models.IssuerKeyData, int64, error) {
	k, err := p.graph.GetIssuerKey(ctx, txn.Dest, txn.Ref)
	if err != nil {
		return nil, 0, err
	}
	return &models.IssuerKeyData{
		Publisher: k.Publisher,
		Ref:       k.CredDefSeqNo,
		Data:      k.Data,
		SeqNo:     k.Meta.SeqNo,
	}, k.Meta.SeqNo, nil
}
