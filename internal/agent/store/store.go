// Package store persists links and outstanding invitations, keyed by invitation nonce.
package store

import (
	"context"

	"idledger/internal/agent/models"
)

// Store is the link repository an agent runs on. Implementations return sentinel.ErrNotFound for
// missing records and sentinel.ErrConflict when a link name is already bound to another nonce.
type Store interface {
	SaveInvitation(ctx context.Context, inv *models.Invitation) error
	Invitation(ctx context.Context, nonce string) (*models.Invitation, error)

	// CreateLink stores link under its nonce unless a link already holds that nonce. It returns
	// the stored link and whether this call created it.
	CreateLink(ctx context.Context, link *models.Link) (*models.Link, bool, error)
	// UpdateLink replaces an existing link.
	UpdateLink(ctx context.Context, link *models.Link) error
	LinkByNonce(ctx context.Context, nonce string) (*models.Link, error)
	LinkByName(ctx context.Context, name string) (*models.Link, error)
	// ListLinks returns every link ordered by name.
	ListLinks(ctx context.Context) ([]*models.Link, error)
}
