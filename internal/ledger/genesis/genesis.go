// Package genesis loads the fixed set of transactions a fresh ledger starts from.
//
// The file holds one JSON transaction per line. Blank lines and lines starting with '#' are
// skipped. A transaction without a txnId gets one derived from its content, so loading the same
// file twice always yields the same ids.
package genesis

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"idledger/internal/ledger/models"
	"idledger/pkg/signing"
)

// Load parses genesis transactions from r.
func Load(r io.Reader) ([]*models.Txn, error) {
	var txns []*models.Txn
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		txn, err := models.ParseTxn(b)
		if err != nil {
			return nil, fmt.Errorf("genesis line %d: %w", line, err)
		}
		if unknown := txn.UnknownFields(); len(unknown) > 0 {
			return nil, fmt.Errorf("genesis line %d: unrecognized fields %v", line, unknown)
		}
		if txn.Type.IsReadOnly() || !txn.Type.IsValid() {
			return nil, fmt.Errorf("genesis line %d: %q is not a write type", line, txn.Type)
		}
		if txn.TxnID == "" {
			id, err := contentID(txn)
			if err != nil {
				return nil, fmt.Errorf("genesis line %d: %w", line, err)
			}
			txn.TxnID = id
		}
		txns = append(txns, txn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return txns, nil
}

// LoadFile parses the genesis file at path.
func LoadFile(path string) ([]*models.Txn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Write serializes txns in the format Load reads.
func Write(w io.Writer, txns []*models.Txn) error {
	for _, txn := range txns {
		b, err := signing.Canonical(txn)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("write genesis: %w", err)
		}
	}
	return nil
}

// Nym builds a genesis NYM for signer with role. Its transaction id is derived from the
// identity fields alone.
func Nym(signer *signing.Signer, role models.Role) *models.Txn {
	return &models.Txn{
		Type:   models.TypeNym,
		TxnID:  nymID(signer.Identifier(), signer.Verkey(), role),
		Dest:   signer.Identifier(),
		Verkey: signer.Verkey(),
		Role:   models.RolePtr(role),
	}
}

func nymID(dest, verkey string, role models.Role) string {
	return signing.SHA256Hex([]byte(strings.Join([]string{string(models.TypeNym), dest, verkey, string(role)}, "\x00")))
}

func contentID(txn *models.Txn) (string, error) {
	b, err := signing.Canonical(txn.SigningPayload())
	if err != nil {
		return "", err
	}
	return signing.SHA256Hex(b), nil
}
