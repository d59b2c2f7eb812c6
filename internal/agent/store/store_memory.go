package store

import (
	"context"
	"sort"
	"sync"

	"idledger/internal/agent/models"
	"idledger/pkg/platform/sentinel"
)

// InMemoryStore keeps links in maps under one lock.
type InMemoryStore struct {
	mu          sync.RWMutex
	invitations map[string]*models.Invitation
	links       map[string]*models.Link
	byName      map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		invitations: make(map[string]*models.Invitation),
		links:       make(map[string]*models.Link),
		byName:      make(map[string]string),
	}
}

func (s *InMemoryStore) SaveInvitation(_ context.Context, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	s.invitations[inv.Nonce] = &cp
	return nil
}

func (s *InMemoryStore) Invitation(_ context.Context, nonce string) (*models.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[nonce]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *InMemoryStore) CreateLink(_ context.Context, link *models.Link) (*models.Link, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.links[link.Nonce]; ok {
		return existing.Clone(), false, nil
	}
	if nonce, ok := s.byName[link.Name]; ok && nonce != link.Nonce {
		return nil, false, sentinel.ErrConflict
	}
	s.links[link.Nonce] = link.Clone()
	s.byName[link.Name] = link.Nonce
	return link.Clone(), true, nil
}

func (s *InMemoryStore) UpdateLink(_ context.Context, link *models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.Nonce]; !ok {
		return sentinel.ErrNotFound
	}
	s.links[link.Nonce] = link.Clone()
	return nil
}

func (s *InMemoryStore) LinkByNonce(_ context.Context, nonce string) (*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[nonce]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return link.Clone(), nil
}

func (s *InMemoryStore) LinkByName(ctx context.Context, name string) (*models.Link, error) {
	s.mu.RLock()
	nonce, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.LinkByNonce(ctx, nonce)
}

func (s *InMemoryStore) ListLinks(_ context.Context) ([]*models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
