package store

import (
	"context"
	"sort"
	"sync"

	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
)

type edgeKey struct {
	class graph.EdgeClass
	txnID string
}

type issuerKeyKey struct {
	publisher string
	ref       int64
}

// InMemoryStore keeps the graph in maps guarded by a RWMutex. Returned records are copies.
type InMemoryStore struct {
	mu         sync.RWMutex
	nyms       map[string]*models.Nym
	attrs      map[string]*models.Attribute
	attrOrder  []string
	credDefs   map[string]*models.CredentialDefinition
	issuerKeys map[issuerKeyKey]*models.IssuerKey
	edges      map[edgeKey]*graph.Edge
	edgeOrder  []edgeKey
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nyms:       make(map[string]*models.Nym),
		attrs:      make(map[string]*models.Attribute),
		credDefs:   make(map[string]*models.CredentialDefinition),
		issuerKeys: make(map[issuerKeyKey]*models.IssuerKey),
		edges:      make(map[edgeKey]*graph.Edge),
	}
}

// RunInTx runs fn directly. The graph has a single writer, so there is nothing to isolate.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *InMemoryStore) CreateNym(_ context.Context, nym *models.Nym) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nyms[nym.Nym]; ok {
		return sentinel.ErrConflict
	}
	s.nyms[nym.Nym] = copyNym(nym)
	return nil
}

func (s *InMemoryStore) UpdateNym(_ context.Context, nym *models.Nym) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nyms[nym.Nym]; !ok {
		return sentinel.ErrNotFound
	}
	s.nyms[nym.Nym] = copyNym(nym)
	return nil
}

func (s *InMemoryStore) FindNym(_ context.Context, nym string) (*models.Nym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nyms[nym]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyNym(n), nil
}

func (s *InMemoryStore) ListNyms(_ context.Context) ([]*models.Nym, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Nym, 0, len(s.nyms))
	for _, n := range s.nyms {
		out = append(out, copyNym(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin.SeqNo != out[j].Origin.SeqNo {
			return out[i].Origin.SeqNo < out[j].Origin.SeqNo
		}
		return out[i].Nym < out[j].Nym
	})
	return out, nil
}

func (s *InMemoryStore) CreateAttribute(_ context.Context, attr *models.Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attrs[attr.TxnID]; ok {
		return sentinel.ErrConflict
	}
	cp := *attr
	s.attrs[attr.TxnID] = &cp
	s.attrOrder = append(s.attrOrder, attr.TxnID)
	return nil
}

func (s *InMemoryStore) FindAttribute(_ context.Context, txnID string) (*models.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[txnID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAttributes returns attributes of owner, or all when owner is empty, in commit order.
func (s *InMemoryStore) ListAttributes(_ context.Context, owner string) ([]*models.Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attribute
	for _, id := range s.attrOrder {
		a := s.attrs[id]
		if owner != "" && a.Owner != owner {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Meta.SeqNo < out[j].Meta.SeqNo })
	return out, nil
}

func (s *InMemoryStore) CreateCredDef(_ context.Context, cd *models.CredentialDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cd.Publisher + "\x00" + cd.Name + "\x00" + cd.Version
	if _, ok := s.credDefs[key]; ok {
		return sentinel.ErrConflict
	}
	s.credDefs[key] = copyCredDef(cd)
	return nil
}

func (s *InMemoryStore) FindCredDef(_ context.Context, publisher, name, version string) (*models.CredentialDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cd, ok := s.credDefs[publisher+"\x00"+name+"\x00"+version]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCredDef(cd), nil
}

func (s *InMemoryStore) FindCredDefBySeqNo(_ context.Context, seqNo int64) (*models.CredentialDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cd := range s.credDefs {
		if cd.Meta.SeqNo == seqNo {
			return copyCredDef(cd), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListCredDefs(_ context.Context) ([]*models.CredentialDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CredentialDefinition, 0, len(s.credDefs))
	for _, cd := range s.credDefs {
		out = append(out, copyCredDef(cd))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.SeqNo < out[j].Meta.SeqNo })
	return out, nil
}

func (s *InMemoryStore) CreateIssuerKey(_ context.Context, key *models.IssuerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := issuerKeyKey{publisher: key.Publisher, ref: key.CredDefSeqNo}
	if _, ok := s.issuerKeys[k]; ok {
		return sentinel.ErrConflict
	}
	cp := *key
	cp.Data = append([]byte(nil), key.Data...)
	s.issuerKeys[k] = &cp
	return nil
}

func (s *InMemoryStore) FindIssuerKey(_ context.Context, publisher string, credDefSeqNo int64) (*models.IssuerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.issuerKeys[issuerKeyKey{publisher: publisher, ref: credDefSeqNo}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *InMemoryStore) ListIssuerKeys(_ context.Context) ([]*models.IssuerKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.IssuerKey, 0, len(s.issuerKeys))
	for _, k := range s.issuerKeys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.SeqNo < out[j].Meta.SeqNo })
	return out, nil
}

func (s *InMemoryStore) CreateEdge(_ context.Context, edge *graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{class: edge.Class, txnID: edge.TxnID}
	if _, ok := s.edges[k]; ok {
		return sentinel.ErrConflict
	}
	s.edges[k] = copyEdge(edge)
	s.edgeOrder = append(s.edgeOrder, k)
	return nil
}

func (s *InMemoryStore) FindEdge(_ context.Context, class graph.EdgeClass, txnID string) (*graph.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[edgeKey{class: class, txnID: txnID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEdge(e), nil
}

func (s *InMemoryStore) EdgesTo(_ context.Context, class graph.EdgeClass, to string) ([]*graph.Edge, error) {
	return s.filterEdges(func(e *graph.Edge) bool { return e.Class == class && e.To == to }), nil
}

func (s *InMemoryStore) EdgesByClass(_ context.Context, class graph.EdgeClass) ([]*graph.Edge, error) {
	return s.filterEdges(func(e *graph.Edge) bool { return e.Class == class }), nil
}

// Count returns the number of vertices and edges, for tests comparing graph state.
func (s *InMemoryStore) Count() (vertices, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nyms) + len(s.attrs) + len(s.credDefs) + len(s.issuerKeys), len(s.edges)
}

func (s *InMemoryStore) filterEdges(keep func(*graph.Edge) bool) []*graph.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graph.Edge
	for _, k := range s.edgeOrder {
		if e := s.edges[k]; keep(e) {
			out = append(out, copyEdge(e))
		}
	}
	return out
}

func copyNym(n *models.Nym) *models.Nym {
	cp := *n
	if n.OriginRole != nil {
		r := *n.OriginRole
		cp.OriginRole = &r
	}
	return &cp
}

func copyCredDef(cd *models.CredentialDefinition) *models.CredentialDefinition {
	cp := *cd
	cp.AttrNames = append([]string(nil), cd.AttrNames...)
	cp.Data = append([]byte(nil), cd.Data...)
	return &cp
}

func copyEdge(e *graph.Edge) *graph.Edge {
	cp := *e
	if e.Role != nil {
		r := *e.Role
		cp.Role = &r
	}
	return &cp
}
