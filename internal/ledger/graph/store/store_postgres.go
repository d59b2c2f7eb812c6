package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/platform/tx"
)

// Schema creates the graph tables. Payload columns are BYTEA so replayed transactions keep the
// exact submitted bytes.
const Schema = `
CREATE TABLE IF NOT EXISTS graph_nyms (
	nym           TEXT PRIMARY KEY,
	verkey        TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT '',
	sponsor       TEXT NOT NULL DEFAULT '',
	reference     TEXT NOT NULL DEFAULT '',
	origin        JSONB NOT NULL,
	origin_role   TEXT NULL,
	origin_verkey TEXT NOT NULL DEFAULT '',
	seq_no        BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS graph_attributes (
	txn_id   TEXT PRIMARY KEY,
	owner    TEXT NOT NULL,
	author   TEXT NOT NULL,
	form     TEXT NOT NULL,
	value    TEXT NOT NULL,
	has_dest BOOLEAN NOT NULL,
	meta     JSONB NOT NULL,
	seq_no   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS graph_attributes_owner_idx ON graph_attributes (owner, seq_no);
CREATE TABLE IF NOT EXISTS graph_cred_defs (
	publisher  TEXT NOT NULL,
	name       TEXT NOT NULL,
	version    TEXT NOT NULL,
	attr_names TEXT[] NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	data       BYTEA NOT NULL,
	meta       JSONB NOT NULL,
	seq_no     BIGINT NOT NULL,
	PRIMARY KEY (publisher, name, version)
);
CREATE INDEX IF NOT EXISTS graph_cred_defs_seq_idx ON graph_cred_defs (seq_no);
CREATE TABLE IF NOT EXISTS graph_issuer_keys (
	publisher       TEXT NOT NULL,
	cred_def_seq_no BIGINT NOT NULL,
	data            BYTEA NOT NULL,
	meta            JSONB NOT NULL,
	seq_no          BIGINT NOT NULL,
	PRIMARY KEY (publisher, cred_def_seq_no)
);
CREATE TABLE IF NOT EXISTS graph_edges (
	id          BIGSERIAL,
	class       TEXT NOT NULL,
	txn_id      TEXT NOT NULL,
	from_vertex TEXT NOT NULL,
	to_vertex   TEXT NOT NULL,
	role        TEXT NULL,
	verkey      TEXT NOT NULL DEFAULT '',
	target_nym  TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT '',
	meta        JSONB NOT NULL,
	PRIMARY KEY (class, txn_id)
);
CREATE INDEX IF NOT EXISTS graph_edges_to_idx ON graph_edges (class, to_vertex);
`

// PostgresStore persists the identity graph in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed graph store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the graph tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tx.Run(ctx, s.db, fn)
}

func (s *PostgresStore) CreateNym(ctx context.Context, nym *models.Nym) error {
	origin, err := json.Marshal(nym.Origin)
	if err != nil {
		return fmt.Errorf("marshal nym origin: %w", err)
	}
	query := `
		INSERT INTO graph_nyms (nym, verkey, role, sponsor, reference, origin, origin_role, origin_verkey, seq_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (nym) DO NOTHING
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		nym.Nym, nym.Verkey, string(nym.Role), nym.Sponsor, nym.Reference,
		origin, nullRole(nym.OriginRole), nym.OriginVerkey, nym.Origin.SeqNo)
	if err != nil {
		return fmt.Errorf("insert nym: %w", err)
	}
	return conflictIfNoRows(res)
}

func (s *PostgresStore) UpdateNym(ctx context.Context, nym *models.Nym) error {
	query := `UPDATE graph_nyms SET verkey = $2, role = $3, sponsor = $4 WHERE nym = $1`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query, nym.Nym, nym.Verkey, string(nym.Role), nym.Sponsor)
	if err != nil {
		return fmt.Errorf("update nym: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update nym rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const nymColumns = `nym, verkey, role, sponsor, reference, origin, origin_role, origin_verkey`

func (s *PostgresStore) FindNym(ctx context.Context, nym string) (*models.Nym, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+nymColumns+` FROM graph_nyms WHERE nym = $1`, nym)
	n, err := scanNym(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find nym: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListNyms(ctx context.Context) ([]*models.Nym, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `SELECT `+nymColumns+` FROM graph_nyms ORDER BY seq_no, nym`)
	if err != nil {
		return nil, fmt.Errorf("list nyms: %w", err)
	}
	defer rows.Close()
	var out []*models.Nym
	for rows.Next() {
		n, err := scanNym(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nym: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAttribute(ctx context.Context, attr *models.Attribute) error {
	meta, err := json.Marshal(attr.Meta)
	if err != nil {
		return fmt.Errorf("marshal attribute meta: %w", err)
	}
	query := `
		INSERT INTO graph_attributes (txn_id, owner, author, form, value, has_dest, meta, seq_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (txn_id) DO NOTHING
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		attr.TxnID, attr.Owner, attr.Author, string(attr.Form), attr.Value, attr.HasDest, meta, attr.Meta.SeqNo)
	if err != nil {
		return fmt.Errorf("insert attribute: %w", err)
	}
	return conflictIfNoRows(res)
}

const attrColumns = `txn_id, owner, author, form, value, has_dest, meta`

func (s *PostgresStore) FindAttribute(ctx context.Context, txnID string) (*models.Attribute, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT `+attrColumns+` FROM graph_attributes WHERE txn_id = $1`, txnID)
	a, err := scanAttribute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find attribute: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAttributes(ctx context.Context, owner string) ([]*models.Attribute, error) {
	query := `SELECT ` + attrColumns + ` FROM graph_attributes WHERE ($1 = '' OR owner = $1) ORDER BY seq_no`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}
	defer rows.Close()
	var out []*models.Attribute
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateCredDef(ctx context.Context, cd *models.CredentialDefinition) error {
	meta, err := json.Marshal(cd.Meta)
	if err != nil {
		return fmt.Errorf("marshal cred def meta: %w", err)
	}
	query := `
		INSERT INTO graph_cred_defs (publisher, name, version, attr_names, type, data, meta, seq_no)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (publisher, name, version) DO NOTHING
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		cd.Publisher, cd.Name, cd.Version, pq.Array(cd.AttrNames), cd.Type, []byte(cd.Data), meta, cd.Meta.SeqNo)
	if err != nil {
		return fmt.Errorf("insert cred def: %w", err)
	}
	return conflictIfNoRows(res)
}

const credDefColumns = `publisher, name, version, attr_names, type, data, meta`

func (s *PostgresStore) FindCredDef(ctx context.Context, publisher, name, version string) (*models.CredentialDefinition, error) {
	query := `SELECT ` + credDefColumns + ` FROM graph_cred_defs WHERE publisher = $1 AND name = $2 AND version = $3`
	return s.findCredDef(ctx, query, publisher, name, version)
}

func (s *PostgresStore) FindCredDefBySeqNo(ctx context.Context, seqNo int64) (*models.CredentialDefinition, error) {
	query := `SELECT ` + credDefColumns + ` FROM graph_cred_defs WHERE seq_no = $1`
	return s.findCredDef(ctx, query, seqNo)
}

func (s *PostgresStore) findCredDef(ctx context.Context, query string, args ...any) (*models.CredentialDefinition, error) {
	cd, err := scanCredDef(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cred def: %w", err)
	}
	return cd, nil
}

func (s *PostgresStore) ListCredDefs(ctx context.Context) ([]*models.CredentialDefinition, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `SELECT `+credDefColumns+` FROM graph_cred_defs ORDER BY seq_no`)
	if err != nil {
		return nil, fmt.Errorf("list cred defs: %w", err)
	}
	defer rows.Close()
	var out []*models.CredentialDefinition
	for rows.Next() {
		cd, err := scanCredDef(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cred def: %w", err)
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateIssuerKey(ctx context.Context, key *models.IssuerKey) error {
	meta, err := json.Marshal(key.Meta)
	if err != nil {
		return fmt.Errorf("marshal issuer key meta: %w", err)
	}
	query := `
		INSERT INTO graph_issuer_keys (publisher, cred_def_seq_no, data, meta, seq_no)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (publisher, cred_def_seq_no) DO NOTHING
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		key.Publisher, key.CredDefSeqNo, []byte(key.Data), meta, key.Meta.SeqNo)
	if err != nil {
		return fmt.Errorf("insert issuer key: %w", err)
	}
	return conflictIfNoRows(res)
}

func (s *PostgresStore) FindIssuerKey(ctx context.Context, publisher string, credDefSeqNo int64) (*models.IssuerKey, error) {
	query := `SELECT publisher, cred_def_seq_no, data, meta FROM graph_issuer_keys WHERE publisher = $1 AND cred_def_seq_no = $2`
	k, err := scanIssuerKey(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, publisher, credDefSeqNo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find issuer key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListIssuerKeys(ctx context.Context) ([]*models.IssuerKey, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT publisher, cred_def_seq_no, data, meta FROM graph_issuer_keys ORDER BY seq_no`)
	if err != nil {
		return nil, fmt.Errorf("list issuer keys: %w", err)
	}
	defer rows.Close()
	var out []*models.IssuerKey
	for rows.Next() {
		k, err := scanIssuerKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEdge(ctx context.Context, edge *graph.Edge) error {
	meta, err := json.Marshal(edge.Meta)
	if err != nil {
		return fmt.Errorf("marshal edge meta: %w", err)
	}
	query := `
		INSERT INTO graph_edges (class, txn_id, from_vertex, to_vertex, role, verkey, target_nym, name, version, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (class, txn_id) DO NOTHING
	`
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		string(edge.Class), edge.TxnID, edge.From, edge.To, nullRole(edge.Role),
		edge.Verkey, edge.TargetNym, edge.Name, edge.Version, meta)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return conflictIfNoRows(res)
}

const edgeColumns = `class, txn_id, from_vertex, to_vertex, role, verkey, target_nym, name, version, meta`

func (s *PostgresStore) FindEdge(ctx context.Context, class graph.EdgeClass, txnID string) (*graph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM graph_edges WHERE class = $1 AND txn_id = $2`
	e, err := scanEdge(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, string(class), txnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find edge: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) EdgesTo(ctx context.Context, class graph.EdgeClass, to string) ([]*graph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM graph_edges WHERE class = $1 AND to_vertex = $2 ORDER BY id`
	return s.listEdges(ctx, query, string(class), to)
}

func (s *PostgresStore) EdgesByClass(ctx context.Context, class graph.EdgeClass) ([]*graph.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM graph_edges WHERE class = $1 ORDER BY id`
	return s.listEdges(ctx, query, string(class))
}

func (s *PostgresStore) listEdges(ctx context.Context, query string, args ...any) ([]*graph.Edge, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()
	var out []*graph.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNym(row scanner) (*models.Nym, error) {
	var (
		n          models.Nym
		role       string
		origin     []byte
		originRole sql.NullString
	)
	if err := row.Scan(&n.Nym, &n.Verkey, &role, &n.Sponsor, &n.Reference, &origin, &originRole, &n.OriginVerkey); err != nil {
		return nil, err
	}
	n.Role = models.Role(role)
	if err := json.Unmarshal(origin, &n.Origin); err != nil {
		return nil, fmt.Errorf("decode nym origin: %w", err)
	}
	if originRole.Valid {
		n.OriginRole = models.RolePtr(models.Role(originRole.String))
	}
	return &n, nil
}

func scanAttribute(row scanner) (*models.Attribute, error) {
	var (
		a    models.Attribute
		form string
		meta []byte
	)
	if err := row.Scan(&a.TxnID, &a.Owner, &a.Author, &form, &a.Value, &a.HasDest, &meta); err != nil {
		return nil, err
	}
	a.Form = models.PayloadForm(form)
	if err := json.Unmarshal(meta, &a.Meta); err != nil {
		return nil, fmt.Errorf("decode attribute meta: %w", err)
	}
	return &a, nil
}

func scanCredDef(row scanner) (*models.CredentialDefinition, error) {
	var (
		cd   models.CredentialDefinition
		data []byte
		meta []byte
	)
	if err := row.Scan(&cd.Publisher, &cd.Name, &cd.Version, pq.Array(&cd.AttrNames), &cd.Type, &data, &meta); err != nil {
		return nil, err
	}
	cd.Data = data
	if err := json.Unmarshal(meta, &cd.Meta); err != nil {
		return nil, fmt.Errorf("decode cred def meta: %w", err)
	}
	return &cd, nil
}

func scanIssuerKey(row scanner) (*models.IssuerKey, error) {
	var (
		k    models.IssuerKey
		data []byte
		meta []byte
	)
	if err := row.Scan(&k.Publisher, &k.CredDefSeqNo, &data, &meta); err != nil {
		return nil, err
	}
	k.Data = data
	if err := json.Unmarshal(meta, &k.Meta); err != nil {
		return nil, fmt.Errorf("decode issuer key meta: %w", err)
	}
	return &k, nil
}

func scanEdge(row scanner) (*graph.Edge, error) {
	var (
		e     graph.Edge
		class string
		role  sql.NullString
		meta  []byte
	)
	if err := row.Scan(&class, &e.TxnID, &e.From, &e.To, &role, &e.Verkey, &e.TargetNym, &e.Name, &e.Version, &meta); err != nil {
		return nil, err
	}
	e.Class = graph.EdgeClass(class)
	if role.Valid {
		e.Role = models.RolePtr(models.Role(role.String))
	}
	if err := json.Unmarshal(meta, &e.Meta); err != nil {
		return nil, fmt.Errorf("decode edge meta: %w", err)
	}
	return &e, nil
}

func nullRole(r *models.Role) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

func conflictIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
