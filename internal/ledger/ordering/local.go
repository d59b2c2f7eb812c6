package ordering

import (
	"context"
	"sync"
	"time"

	"idledger/internal/ledger/models"
)

// Local is an in-process sequencer for single-node deployments and tests. Submissions are
// delivered in arrival order.
type Local struct {
	queue chan *models.Txn
	now   func() time.Time

	closeOnce sync.Once
	done      chan struct{}
	pos       int64
}

type LocalOption func(*Local)

// WithClock overrides the batch timestamp source.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		l.now = now
	}
}

// NewLocal creates a sequencer buffering up to capacity undelivered submissions.
func NewLocal(capacity int, opts ...LocalOption) *Local {
	l := &Local{
		queue: make(chan *models.Txn, capacity),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit enqueues a copy of txn. It blocks while the buffer is full.
func (l *Local) Submit(ctx context.Context, txn *models.Txn) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.queue <- txn.Clone():
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers submissions until ctx is cancelled, Close is called or handler fails.
func (l *Local) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case txn := <-l.queue:
			l.pos++
			if err := handler(ctx, Ordered{Txn: txn, PPTime: l.now(), Position: l.pos}); err != nil {
				return err
			}
		}
	}
}

// Close stops delivery. Undelivered submissions are dropped.
func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
