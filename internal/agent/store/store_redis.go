package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"idledger/internal/agent/models"
	"idledger/pkg/platform/sentinel"
)

// RedisStore keeps links as JSON values. Keys:
//
//	<prefix>:invitation:<nonce>  outstanding invitation
//	<prefix>:link:<nonce>        link
//	<prefix>:link-name:<name>    nonce of the link called name
//	<prefix>:links               set of link nonces
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store namespaced under prefix, usually the agent name.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) SaveInvitation(ctx context.Context, inv *models.Invitation) error {
	b, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invitation: %w", err)
	}
	if err := s.client.Set(ctx, s.key("invitation", inv.Nonce), b, 0).Err(); err != nil {
		return fmt.Errorf("save invitation: %w", err)
	}
	return nil
}

func (s *RedisStore) Invitation(ctx context.Context, nonce string) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.get(ctx, s.key("invitation", nonce), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *RedisStore) CreateLink(ctx context.Context, link *models.Link) (*models.Link, bool, error) {
	b, err := json.Marshal(link)
	if err != nil {
		return nil, false, fmt.Errorf("encode link: %w", err)
	}
	linkKey := s.key("link", link.Nonce)
	created, err := s.client.SetNX(ctx, linkKey, b, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("create link: %w", err)
	}
	if !created {
		existing, err := s.LinkByNonce(ctx, link.Nonce)
		return existing, false, err
	}

	nameKey := s.key("link-name", link.Name)
	bound, err := s.client.SetNX(ctx, nameKey, link.Nonce, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("index link name: %w", err)
	}
	if !bound {
		owner, err := s.client.Get(ctx, nameKey).Result()
		if err != nil || owner != link.Nonce {
			s.client.Del(ctx, linkKey)
			return nil, false, sentinel.ErrConflict
		}
	}
	if err := s.client.SAdd(ctx, s.key("links"), link.Nonce).Err(); err != nil {
		return nil, false, fmt.Errorf("index link: %w", err)
	}
	return link.Clone(), true, nil
}

func (s *RedisStore) UpdateLink(ctx context.Context, link *models.Link) error {
	b, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	ok, err := s.client.SetXX(ctx, s.key("link", link.Nonce), b, 0).Result()
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) LinkByNonce(ctx context.Context, nonce string) (*models.Link, error) {
	var link models.Link
	if err := s.get(ctx, s.key("link", nonce), &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *RedisStore) LinkByName(ctx context.Context, name string) (*models.Link, error) {
	nonce, err := s.client.Get(ctx, s.key("link-name", name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup link name: %w", err)
	}
	return s.LinkByNonce(ctx, nonce)
}

func (s *RedisStore) ListLinks(ctx context.Context) ([]*models.Link, error) {
	nonces, err := s.client.SMembers(ctx, s.key("links")).Result()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	out := make([]*models.Link, 0, len(nonces))
	for _, nonce := range nonces {
		link, err := s.LinkByNonce(ctx, nonce)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
