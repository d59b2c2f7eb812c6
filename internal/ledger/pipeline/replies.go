package pipeline

import (
	"context"
	"sync"

	"idledger/internal/ledger/models"
)

// Outcome is what a waiting submitter receives once its write is executed.
type Outcome struct {
	Reply *models.Reply
	Nack  *models.Nack
}

// Replies tracks connected submitters by request key and hands them their outcome.
type Replies struct {
	mu      sync.Mutex
	waiting map[models.RequestKey]chan Outcome
}

func NewReplies() *Replies {
	return &Replies{waiting: make(map[models.RequestKey]chan Outcome)}
}

// Expect registers interest in key. The returned cancel func must be called when the caller
// stops waiting.
func (r *Replies) Expect(key models.RequestKey) (<-chan Outcome, func()) {
	ch := make(chan Outcome, 1)
	r.mu.Lock()
	r.waiting[key] = ch
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.waiting[key] == ch {
			delete(r.waiting, key)
		}
	}
}

func (r *Replies) Reply(_ context.Context, reply *models.Reply) bool {
	return r.deliver(reply.Key(), Outcome{Reply: reply})
}

func (r *Replies) Reject(_ context.Context, nack *models.Nack) bool {
	return r.deliver(models.RequestKey{Identifier: nack.Identifier, ReqID: nack.ReqID}, Outcome{Nack: nack})
}

func (r *Replies) deliver(key models.RequestKey, out Outcome) bool {
	r.mu.Lock()
	ch, ok := r.waiting[key]
	if ok {
		delete(r.waiting, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}
