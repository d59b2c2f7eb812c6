// Package txlog is the append-only ordered transaction log. Each append yields a 1-based
// sequence number, the Merkle root over the log after the append and the audit path proving
// the entry's inclusion under that root.
package txlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

// ErrDuplicate is returned by Append when the transaction id is already in the log. The
// receipt of the existing entry is returned alongside it.
var ErrDuplicate = fmt.Errorf("transaction already appended: %w", sentinel.ErrAlreadyUsed)

// Receipt is what the log hands back for an appended entry.
type Receipt struct {
	SeqNo     int64
	RootHash  string
	AuditPath []string
	TreeSize  int64
}

// Entry is a stored log record.
type Entry struct {
	SeqNo      int64
	TxnID      string
	Payload    []byte
	RootHash   string
	AppendedAt time.Time
}

//go:generate mockgen -source=txlog.go -destination=mocks/mocks.go -package=mocks Log

// Log is the ledger append contract.
type Log interface {
	Append(ctx context.Context, txnID string, payload []byte) (*Receipt, error)
	// Receipt proves an existing entry against the tree head at its own seqNo.
	Receipt(ctx context.Context, seqNo int64) (*Receipt, error)
	Size(ctx context.Context) (int64, error)
	Get(ctx context.Context, seqNo int64) (*Entry, error)
	FindByTxnID(ctx context.Context, txnID string) (*Entry, error)
	Entries(ctx context.Context) ([]*Entry, error)
}

// EncodeTxn is the byte form a committed transaction is logged and proven under. The seqNo is
// excluded since the log assigns it.
func EncodeTxn(txn *models.Txn) ([]byte, error) {
	cp := txn.Clone()
	cp.SeqNo = 0
	b, err := signing.Canonical(cp)
	if err != nil {
		return nil, fmt.Errorf("encode txn: %w", err)
	}
	return b, nil
}

// VerifyReply checks that a reply's result is included under its root hash.
func VerifyReply(reply *models.Reply) error {
	if reply.Result == nil || reply.SeqNo < 1 {
		return fmt.Errorf("reply carries no committed result: %w", ErrInvalidProof)
	}
	data, err := EncodeTxn(reply.Result)
	if err != nil {
		return err
	}
	root, err := DecodeHash(reply.RootHash)
	if err != nil {
		return err
	}
	path, err := DecodePath(reply.AuditPath)
	if err != nil {
		return err
	}
	return VerifyInclusion(LeafHash(data), reply.SeqNo-1, reply.TreeSize, path, root)
}

// InMemoryLog keeps the log in a slice.
type InMemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
	byTxnID map[string]int64
	tree    *Tree
	now     func() time.Time
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		byTxnID: make(map[string]int64),
		tree:    NewTree(nil),
		now:     time.Now,
	}
}

func (l *InMemoryLog) Append(_ context.Context, txnID string, payload []byte) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seqNo, ok := l.byTxnID[txnID]; ok {
		rcpt, err := receiptFor(l.tree, seqNo)
		if err != nil {
			return nil, err
		}
		return rcpt, ErrDuplicate
	}
	index := l.tree.Append(payload)
	seqNo := index + 1
	rcpt, err := receiptFor(l.tree, seqNo)
	if err != nil {
		return nil, err
	}
	l.entries = append(l.entries, &Entry{
		SeqNo:      seqNo,
		TxnID:      txnID,
		Payload:    append([]byte(nil), payload...),
		RootHash:   rcpt.RootHash,
		AppendedAt: l.now(),
	})
	l.byTxnID[txnID] = seqNo
	return rcpt, nil
}

func (l *InMemoryLog) Receipt(_ context.Context, seqNo int64) (*Receipt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seqNo < 1 || seqNo > l.tree.Size() {
		return nil, sentinel.ErrNotFound
	}
	return receiptFor(l.tree, seqNo)
}

func (l *InMemoryLog) Size(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.entries)), nil
}

func (l *InMemoryLog) Get(_ context.Context, seqNo int64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seqNo < 1 || seqNo > int64(len(l.entries)) {
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(l.entries[seqNo-1]), nil
}

func (l *InMemoryLog) FindByTxnID(ctx context.Context, txnID string) (*Entry, error) {
	l.mu.RLock()
	seqNo, ok := l.byTxnID[txnID]
	l.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return l.Get(ctx, seqNo)
}

func (l *InMemoryLog) Entries(_ context.Context) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = copyEntry(e)
	}
	return out, nil
}

// receiptFor proves seqNo against the tree head at that seqNo.
func receiptFor(tree *Tree, seqNo int64) (*Receipt, error) {
	root, err := tree.Root(seqNo)
	if err != nil {
		return nil, err
	}
	path, err := tree.AuditPath(seqNo-1, seqNo)
	if err != nil {
		return nil, err
	}
	return &Receipt{
		SeqNo:     seqNo,
		RootHash:  EncodeHash(root),
		AuditPath: EncodePath(path),
		TreeSize:  seqNo,
	}, nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	cp.Payload = append([]byte(nil), e.Payload...)
	return &cp
}
