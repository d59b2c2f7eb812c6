package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
)

// HasNym reports whether an identity vertex exists.
func (g *Graph) HasNym(ctx context.Context, nym string) (bool, error) {
	_, err := g.store.FindNym(ctx, nym)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetNym returns the current state of an identity.
func (g *Graph) GetNym(ctx context.Context, nym string) (*models.Nym, error) {
	return g.store.FindNym(ctx, nym)
}

// GetRole returns the current role of an identity.
func (g *Graph) GetRole(ctx context.Context, nym string) (models.Role, error) {
	n, err := g.store.FindNym(ctx, nym)
	if err != nil {
		return models.RoleNone, err
	}
	return n.Role, nil
}

// GetSponsorFor returns the identifier that sponsored nym, or "" when it has none.
func (g *Graph) GetSponsorFor(ctx context.Context, nym string) (string, error) {
	n, err := g.store.FindNym(ctx, nym)
	if err != nil {
		return "", err
	}
	return n.Sponsor, nil
}

// GetAddNymTransaction reconstructs the transaction that created nym. Genesis identities have no
// AddsNym edge, so the vertex's own origin record is the source.
func (g *Graph) GetAddNymTransaction(ctx context.Context, nym string) (*models.Txn, error) {
	n, err := g.store.FindNym(ctx, nym)
	if err != nil {
		return nil, err
	}
	return nymCreationTxn(n), nil
}

// GetAttribute finds the latest attribute of owner matching the lookup form. For raw, key is the
// attribute name; for enc and hash, key is the stored value.
func (g *Graph) GetAttribute(ctx context.Context, owner string, form models.PayloadForm, key string) (*models.Attribute, error) {
	attrs, err := g.store.ListAttributes(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := len(attrs) - 1; i >= 0; i-- {
		a := attrs[i]
		if a.Form != form {
			continue
		}
		if (form == models.FormRaw && a.Name() == key) || (form != models.FormRaw && a.Value == key) {
			return a, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// GetCredentialDefinition looks up a definition by its unique (publisher, name, version).
func (g *Graph) GetCredentialDefinition(ctx context.Context, publisher, name, version string) (*models.CredentialDefinition, error) {
	return g.store.FindCredDef(ctx, publisher, name, version)
}

// GetCredentialDefinitionBySeqNo looks up a definition by the sequence number it committed at.
func (g *Graph) GetCredentialDefinitionBySeqNo(ctx context.Context, seqNo int64) (*models.CredentialDefinition, error) {
	return g.store.FindCredDefBySeqNo(ctx, seqNo)
}

// GetIssuerKey returns the issuer key of publisher for a credential definition.
func (g *Graph) GetIssuerKey(ctx context.Context, publisher string, credDefSeqNo int64) (*models.IssuerKey, error) {
	return g.store.FindIssuerKey(ctx, publisher, credDefSeqNo)
}

// GetTransactionsByType reconstructs every committed transaction of a write type in seqNo order.
// ATTRIB payloads are returned as stored in the graph, un-hashed.
func (g *Graph) GetTransactionsByType(ctx context.Context, txnType models.TxnType) ([]*models.Txn, error) {
	var out []*models.Txn
	switch txnType {
	case models.TypeNym:
		nyms, err := g.store.ListNyms(ctx)
		if err != nil {
			return nil, err
		}
		for _, n := range nyms {
			out = append(out, nymCreationTxn(n))
		}
		updates, err := g.store.EdgesByClass(ctx, EdgeUpdatesNym)
		if err != nil {
			return nil, err
		}
		for _, e := range updates {
			out = append(out, nymUpdateTxn(e))
		}
	case models.TypeAttrib:
		attrs, err := g.store.ListAttributes(ctx, "")
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			out = append(out, attributeTxn(a))
		}
	case models.TypeCredDef:
		cds, err := g.store.ListCredDefs(ctx)
		if err != nil {
			return nil, err
		}
		for _, cd := range cds {
			out = append(out, credDefTxn(cd))
		}
	case models.TypeIssuerKey:
		keys, err := g.store.ListIssuerKeys(ctx)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			out = append(out, issuerKeyTxn(k))
		}
	default:
		return nil, fmt.Errorf("no transactions of type %s in graph", txnType)
	}
	sortBySeqNo(out)
	return out, nil
}

// GetTransactionsForIds returns the committed transactions with the given ids in seqNo order.
// Unknown ids are skipped.
func (g *Graph) GetTransactionsForIds(ctx context.Context, txnIDs []string) ([]*models.Txn, error) {
	wanted := make(map[string]struct{}, len(txnIDs))
	for _, id := range txnIDs {
		wanted[id] = struct{}{}
	}
	var out []*models.Txn
	for _, t := range models.WriteTypes() {
		txns, err := g.GetTransactionsByType(ctx, t)
		if err != nil {
			return nil, err
		}
		for _, txn := range txns {
			if _, ok := wanted[txn.TxnID]; ok {
				out = append(out, txn)
			}
		}
	}
	sortBySeqNo(out)
	return out, nil
}

// GetTransactionsForNym returns the creation, updates and attributes of nym in seqNo order.
func (g *Graph) GetTransactionsForNym(ctx context.Context, nym string) ([]*models.Txn, error) {
	n, err := g.store.FindNym(ctx, nym)
	if err != nil {
		return nil, err
	}
	ids := []string{n.Origin.TxnID}
	updates, err := g.store.EdgesTo(ctx, EdgeUpdatesNym, nym)
	if err != nil {
		return nil, err
	}
	for _, e := range updates {
		ids = append(ids, e.TxnID)
	}
	attrs, err := g.store.ListAttributes(ctx, nym)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		ids = append(ids, a.TxnID)
	}
	return g.GetTransactionsForIds(ctx, ids)
}

func nymCreationTxn(n *models.Nym) *models.Txn {
	t := &models.Txn{
		Type:      models.TypeNym,
		Dest:      n.Nym,
		Role:      cloneRole(n.OriginRole),
		Verkey:    n.OriginVerkey,
		Reference: n.Reference,
	}
	n.Origin.Apply(t)
	return t
}

func nymUpdateTxn(e *Edge) *models.Txn {
	t := &models.Txn{
		Type:   models.TypeNym,
		Dest:   e.To,
		Role:   cloneRole(e.Role),
		Verkey: e.Verkey,
	}
	e.Meta.Apply(t)
	return t
}

func attributeTxn(a *models.Attribute) *models.Txn {
	t := &models.Txn{Type: models.TypeAttrib}
	if a.HasDest {
		t.Dest = a.Owner
	}
	switch a.Form {
	case models.FormRaw:
		t.Raw = a.Value
	case models.FormEnc:
		t.Enc = a.Value
	case models.FormHash:
		t.Hash = a.Value
	}
	a.Meta.Apply(t)
	return t
}

func credDefTxn(cd *models.CredentialDefinition) *models.Txn {
	t := &models.Txn{Type: models.TypeCredDef, Data: append([]byte(nil), cd.Data...)}
	cd.Meta.Apply(t)
	return t
}

func issuerKeyTxn(k *models.IssuerKey) *models.Txn {
	t := &models.Txn{Type: models.TypeIssuerKey, Ref: k.CredDefSeqNo, Data: append([]byte(nil), k.Data...)}
	k.Meta.Apply(t)
	return t
}

func sortBySeqNo(txns []*models.Txn) {
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].SeqNo < txns[j].SeqNo })
}
