// Package graph projects the committed transaction log into queryable identity state.
//
// Every mutator is keyed by the originating transaction id and tolerates being invoked again
// with the same id: the second call finds the existing vertex or edge and returns nil. The
// graph is only mutated from the executed step of the pipeline, so a rejected transaction never
// leaves a trace here.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
)

// Store is the graph storage engine: vertex and edge creation, unique-index lookups and the
// traversals the queries need. Create methods return sentinel.ErrConflict when a unique index
// already holds an entry; Find methods return sentinel.ErrNotFound.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateNym(ctx context.Context, nym *models.Nym) error
	UpdateNym(ctx context.Context, nym *models.Nym) error
	FindNym(ctx context.Context, nym string) (*models.Nym, error)
	ListNyms(ctx context.Context) ([]*models.Nym, error)

	CreateAttribute(ctx context.Context, attr *models.Attribute) error
	FindAttribute(ctx context.Context, txnID string) (*models.Attribute, error)
	ListAttributes(ctx context.Context, owner string) ([]*models.Attribute, error)

	CreateCredDef(ctx context.Context, cd *models.CredentialDefinition) error
	FindCredDef(ctx context.Context, publisher, name, version string) (*models.CredentialDefinition, error)
	FindCredDefBySeqNo(ctx context.Context, seqNo int64) (*models.CredentialDefinition, error)
	ListCredDefs(ctx context.Context) ([]*models.CredentialDefinition, error)

	CreateIssuerKey(ctx context.Context, key *models.IssuerKey) error
	FindIssuerKey(ctx context.Context, publisher string, credDefSeqNo int64) (*models.IssuerKey, error)
	ListIssuerKeys(ctx context.Context) ([]*models.IssuerKey, error)

	CreateEdge(ctx context.Context, edge *Edge) error
	FindEdge(ctx context.Context, class EdgeClass, txnID string) (*Edge, error)
	EdgesTo(ctx context.Context, class EdgeClass, to string) ([]*Edge, error)
	EdgesByClass(ctx context.Context, class EdgeClass) ([]*Edge, error)
}

// Graph is the identity graph over a Store.
type Graph struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Graph)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// New constructs a Graph.
func New(store Store, opts ...Option) *Graph {
	g := &Graph{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Apply routes a committed write to its mutator. A NYM whose target exists under a different
// originating transaction is an update.
func (g *Graph) Apply(ctx context.Context, txn *models.Txn) error {
	switch txn.Type {
	case models.TypeNym:
		existing, err := g.store.FindNym(ctx, txn.Dest)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return g.AddNym(ctx, txn)
		case err != nil:
			return fmt.Errorf("find nym %s: %w", txn.Dest, err)
		case existing.Origin.TxnID == txn.TxnID:
			return g.AddNym(ctx, txn)
		default:
			return g.UpdateNym(ctx, txn)
		}
	case models.TypeAttrib:
		return g.AddAttribute(ctx, txn)
	case models.TypeCredDef:
		return g.AddCredentialDefinition(ctx, txn)
	case models.TypeIssuerKey:
		return g.AddIssuerKey(ctx, txn)
	default:
		return fmt.Errorf("graph cannot apply %s", txn.Type)
	}
}

// AddNym creates an identity vertex, its AddsNym edge when an actor created it, and an AliasOf
// edge when it references another identity. Genesis identities have no actor and no edge.
func (g *Graph) AddNym(ctx context.Context, txn *models.Txn) error {
	existing, err := g.store.FindNym(ctx, txn.Dest)
	if err == nil && existing.Origin.TxnID == txn.TxnID {
		g.skip(ctx, txn, EdgeAddsNym)
		return nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("find nym %s: %w", txn.Dest, err)
	}
	if err == nil {
		return fmt.Errorf("nym %s: %w", txn.Dest, sentinel.ErrConflict)
	}

	meta := models.MetaOf(txn)
	role := models.RoleNone
	if txn.Role != nil {
		role = *txn.Role
	}
	nym := &models.Nym{
		Nym:          txn.Dest,
		Verkey:       txn.Verkey,
		Role:         role,
		Reference:    txn.Reference,
		Origin:       meta,
		OriginRole:   cloneRole(txn.Role),
		OriginVerkey: txn.Verkey,
	}
	// Only plain identities record a sponsor: a steward creating a sponsor leaves none.
	if role.IsPlain() && txn.Identifier != "" {
		nym.Sponsor = txn.Identifier
	}

	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.CreateNym(ctx, nym); err != nil {
			return fmt.Errorf("create nym %s: %w", nym.Nym, err)
		}
		if txn.Identifier != "" {
			edge := newEdge(EdgeAddsNym, txn.Identifier, txn.Dest, meta)
			edge.Role = cloneRole(txn.Role)
			if err := g.createEdge(ctx, edge); err != nil {
				return err
			}
		}
		if txn.Reference != "" {
			if err := g.createEdge(ctx, newEdge(EdgeAliasOf, txn.Dest, txn.Reference, meta)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateNym applies a key rotation or role change to an existing identity.
func (g *Graph) UpdateNym(ctx context.Context, txn *models.Txn) error {
	if g.edgeExists(ctx, EdgeUpdatesNym, txn.TxnID) {
		g.skip(ctx, txn, EdgeUpdatesNym)
		return nil
	}
	nym, err := g.store.FindNym(ctx, txn.Dest)
	if err != nil {
		return fmt.Errorf("find nym %s: %w", txn.Dest, err)
	}
	if txn.Verkey != "" {
		nym.Verkey = txn.Verkey
	}
	if txn.Role != nil {
		nym.Role = *txn.Role
	}

	meta := models.MetaOf(txn)
	edge := newEdge(EdgeUpdatesNym, txn.Identifier, txn.Dest, meta)
	edge.Role = cloneRole(txn.Role)
	edge.Verkey = txn.Verkey

	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.UpdateNym(ctx, nym); err != nil {
			return fmt.Errorf("update nym %s: %w", nym.Nym, err)
		}
		return g.createEdge(ctx, edge)
	})
}

// AddAttribute stores an un-hashed attribute vertex linked to its owner and author.
func (g *Graph) AddAttribute(ctx context.Context, txn *models.Txn) error {
	if _, err := g.store.FindAttribute(ctx, txn.TxnID); err == nil {
		g.skip(ctx, txn, EdgeAddsAttribute)
		return nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("find attribute %s: %w", txn.TxnID, err)
	}

	form, value, _ := txn.Payload()
	meta := models.MetaOf(txn)
	attr := &models.Attribute{
		TxnID:   txn.TxnID,
		Owner:   txn.Target(),
		Author:  txn.Identifier,
		Form:    form,
		Value:   value,
		HasDest: txn.Dest != "",
		Meta:    meta,
	}
	adds := newEdge(EdgeAddsAttribute, attr.Author, attr.TxnID, meta)
	adds.TargetNym = attr.Owner
	has := newEdge(EdgeHasAttribute, attr.Owner, attr.TxnID, meta)

	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.CreateAttribute(ctx, attr); err != nil {
			return fmt.Errorf("create attribute %s: %w", attr.TxnID, err)
		}
		if err := g.createEdge(ctx, adds); err != nil {
			return err
		}
		return g.createEdge(ctx, has)
	})
}

// AddCredentialDefinition stores a credential definition vertex keyed by (publisher, name, version).
func (g *Graph) AddCredentialDefinition(ctx context.Context, txn *models.Txn) error {
	if g.edgeExists(ctx, EdgeAddsCredentialDef, txn.TxnID) {
		g.skip(ctx, txn, EdgeAddsCredentialDef)
		return nil
	}
	data, err := txn.CredDef()
	if err != nil {
		return err
	}
	meta := models.MetaOf(txn)
	cd := &models.CredentialDefinition{
		Publisher: txn.Identifier,
		Name:      data.Name,
		Version:   data.Version,
		AttrNames: append([]string(nil), data.AttrNames...),
		Type:      data.Type,
		Data:      append([]byte(nil), txn.Data...),
		Meta:      meta,
	}
	edge := newEdge(EdgeAddsCredentialDef, cd.Publisher, credDefVertexKey(cd.Publisher, cd.Name, cd.Version), meta)
	edge.Name = cd.Name
	edge.Version = cd.Version

	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.CreateCredDef(ctx, cd); err != nil {
			return fmt.Errorf("create cred def %s %s: %w", cd.Name, cd.Version, err)
		}
		return g.createEdge(ctx, edge)
	})
}

// AddIssuerKey stores the issuer key for the credential definition committed at txn.Ref.
func (g *Graph) AddIssuerKey(ctx context.Context, txn *models.Txn) error {
	if g.edgeExists(ctx, EdgeAddsIssuerKey, txn.TxnID) {
		g.skip(ctx, txn, EdgeAddsIssuerKey)
		return nil
	}
	meta := models.MetaOf(txn)
	key := &models.IssuerKey{
		Publisher:    txn.Identifier,
		CredDefSeqNo: txn.Ref,
		Data:         append([]byte(nil), txn.Data...),
		Meta:         meta,
	}
	edge := newEdge(EdgeAddsIssuerKey, key.Publisher, strconv.FormatInt(key.CredDefSeqNo, 10), meta)

	return g.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := g.store.CreateIssuerKey(ctx, key); err != nil {
			return fmt.Errorf("create issuer key %s/%d: %w", key.Publisher, key.CredDefSeqNo, err)
		}
		return g.createEdge(ctx, edge)
	})
}

// createEdge treats an existing edge with the same txn id as already applied.
func (g *Graph) createEdge(ctx context.Context, edge *Edge) error {
	err := g.store.CreateEdge(ctx, edge)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s edge: %w", edge.Class, err)
	}
	return nil
}

func (g *Graph) edgeExists(ctx context.Context, class EdgeClass, txnID string) bool {
	_, err := g.store.FindEdge(ctx, class, txnID)
	return err == nil
}

func (g *Graph) skip(ctx context.Context, txn *models.Txn, class EdgeClass) {
	g.logger.DebugContext(ctx, "graph mutation already applied",
		"txn_id", txn.TxnID,
		"edge_class", string(class),
	)
}

func cloneRole(r *models.Role) *models.Role {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
