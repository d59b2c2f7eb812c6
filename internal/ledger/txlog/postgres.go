package txlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"idledger/pkg/platform/sentinel"
)

// Schema creates the log table.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_txns (
	seq_no      BIGINT PRIMARY KEY,
	txn_id      TEXT NOT NULL UNIQUE,
	payload     BYTEA NOT NULL,
	leaf_hash   BYTEA NOT NULL,
	root_hash   TEXT NOT NULL,
	appended_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresLog persists the log in PostgreSQL. The Merkle tree is rebuilt from stored leaf
// hashes when the log is opened; a node is the only writer of its own log.
type PostgresLog struct {
	db *pgxpool.Pool

	mu   sync.Mutex
	tree *Tree
}

// OpenPostgres ensures the schema and loads the tree.
func OpenPostgres(ctx context.Context, db *pgxpool.Pool) (*PostgresLog, error) {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	rows, err := db.Query(ctx, `SELECT leaf_hash FROM ledger_txns ORDER BY seq_no`)
	if err != nil {
		return nil, fmt.Errorf("load leaf hashes: %w", err)
	}
	defer rows.Close()
	var leaves [][]byte
	for rows.Next() {
		var h []byte
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan leaf hash: %w", err)
		}
		leaves = append(leaves, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load leaf hashes: %w", err)
	}
	return &PostgresLog{db: db, tree: NewTree(leaves)}, nil
}

func (l *PostgresLog) Append(ctx context.Context, txnID string, payload []byte) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var existing int64
	err := l.db.QueryRow(ctx, `SELECT seq_no FROM ledger_txns WHERE txn_id = $1`, txnID).Scan(&existing)
	switch {
	case err == nil:
		rcpt, err := receiptFor(l.tree, existing)
		if err != nil {
			return nil, err
		}
		return rcpt, ErrDuplicate
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("check txn id: %w", err)
	}

	leaf := LeafHash(payload)
	seqNo := l.tree.Size() + 1
	candidate := NewTree(append(l.tree.leaves[:len(l.tree.leaves):len(l.tree.leaves)], leaf))
	rcpt, err := receiptFor(candidate, seqNo)
	if err != nil {
		return nil, err
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO ledger_txns (seq_no, txn_id, payload, leaf_hash, root_hash) VALUES ($1, $2, $3, $4, $5)`,
		seqNo, txnID, payload, leaf, rcpt.RootHash)
	if err != nil {
		return nil, fmt.Errorf("insert ledger txn %d: %w", seqNo, err)
	}
	l.tree = candidate
	return rcpt, nil
}

func (l *PostgresLog) Receipt(_ context.Context, seqNo int64) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seqNo < 1 || seqNo > l.tree.Size() {
		return nil, sentinel.ErrNotFound
	}
	return receiptFor(l.tree, seqNo)
}

func (l *PostgresLog) Size(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_txns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger txns: %w", err)
	}
	return n, nil
}

const entryColumns = `seq_no, txn_id, payload, root_hash, appended_at`

func (l *PostgresLog) Get(ctx context.Context, seqNo int64) (*Entry, error) {
	return l.findOne(ctx, `SELECT `+entryColumns+` FROM ledger_txns WHERE seq_no = $1`, seqNo)
}

func (l *PostgresLog) FindByTxnID(ctx context.Context, txnID string) (*Entry, error) {
	return l.findOne(ctx, `SELECT `+entryColumns+` FROM ledger_txns WHERE txn_id = $1`, txnID)
}

func (l *PostgresLog) findOne(ctx context.Context, query string, arg any) (*Entry, error) {
	e, err := scanEntry(l.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find ledger txn: %w", err)
	}
	return e, nil
}

func (l *PostgresLog) Entries(ctx context.Context) ([]*Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_txns ORDER BY seq_no`)
	if err != nil {
		return nil, fmt.Errorf("list ledger txns: %w", err)
	}
	defer rows.Close()
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger txn: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e  Entry
		at time.Time
	)
	if err := row.Scan(&e.SeqNo, &e.TxnID, &e.Payload, &e.RootHash, &at); err != nil {
		return nil, err
	}
	e.AppendedAt = at
	return &e, nil
}
