// Package ordering adapts the external total-order broadcast. Every node hands writes to
// Submit and receives the same sequence from Run, in the same order. Submission order is
// not delivery order.
package ordering

import (
	"context"
	"errors"
	"time"

	"idledger/internal/ledger/models"
)

//go:generate mockgen -source=ordering.go -destination=mocks/mocks.go -package=mocks Orderer

// ErrClosed is returned by Submit after the orderer stopped.
var ErrClosed = errors.New("orderer closed")

// Ordered is a transaction as delivered by the ordering service.
type Ordered struct {
	Txn *models.Txn
	// PPTime is the ordering service's timestamp for the batch, used as the commit time.
	PPTime time.Time
	// Position is the adapter's delivery cursor, for logs.
	Position int64
}

// Handler executes an ordered transaction. A returned error stops delivery.
type Handler func(ctx context.Context, o Ordered) error

// Orderer is the ordering service contract.
type Orderer interface {
	Submit(ctx context.Context, txn *models.Txn) error
	Run(ctx context.Context, handler Handler) error
}
