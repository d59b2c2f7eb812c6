package client

import (
	"context"
	"time"

	dErrors "idledger/pkg/domain-errors"
)

// Poller retries an operation while it fails with a retryable code, up to Deadline.
type Poller struct {
	Interval time.Duration
	Deadline time.Duration
}

// DefaultPoller matches the agent's default ledger read settings.
var DefaultPoller = Poller{Interval: 250 * time.Millisecond, Deadline: 10 * time.Second}

// Poll calls fn until it succeeds, fails with a non-retryable error, or the deadline passes. Past
// the deadline the last error is returned wrapped as CodeTimeout.
func (p Poller) Poll(ctx context.Context, fn func(context.Context) error) error {
	interval, deadline := p.Interval, p.Deadline
	if interval <= 0 {
		interval = DefaultPoller.Interval
	}
	if deadline <= 0 {
		deadline = DefaultPoller.Deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "gave up waiting for ledger state")
		}
		if !dErrors.CodeOf(err).Retryable() {
			return err
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(err, dErrors.CodeTimeout, "gave up waiting for ledger state")
		case <-ticker.C:
		}
	}
}
