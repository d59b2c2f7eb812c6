package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"idledger/pkg/domain"
	"idledger/pkg/signing"
)

// TxnType is the declared kind of a ledger request.
type TxnType string

const (
	TypeNym       TxnType = "NYM"
	TypeAttrib    TxnType = "ATTRIB"
	TypeCredDef   TxnType = "CRED_DEF"
	TypeIssuerKey TxnType = "ISSUER_KEY"

	TypeGetNym       TxnType = "GET_NYM"
	TypeGetAttr      TxnType = "GET_ATTR"
	TypeGetTxns      TxnType = "GET_TXNS"
	TypeGetCredDef   TxnType = "GET_CRED_DEF"
	TypeGetIssuerKey TxnType = "GET_ISSUER_KEY"
)

var writeTypes = map[TxnType]struct{}{
	TypeNym: {}, TypeAttrib: {}, TypeCredDef: {}, TypeIssuerKey: {},
}

var readTypes = map[TxnType]struct{}{
	TypeGetNym: {}, TypeGetAttr: {}, TypeGetTxns: {}, TypeGetCredDef: {}, TypeGetIssuerKey: {},
}

// WriteTypes lists the ordered transaction kinds in a stable order.
func WriteTypes() []TxnType {
	return []TxnType{TypeNym, TypeAttrib, TypeCredDef, TypeIssuerKey}
}

func (t TxnType) IsValid() bool {
	_, w := writeTypes[t]
	_, r := readTypes[t]
	return w || r
}

// IsReadOnly reports whether the type bypasses ordering.
func (t TxnType) IsReadOnly() bool {
	_, ok := readTypes[t]
	return ok
}

func (t TxnType) String() string { return string(t) }

// Wire field names.
const (
	FieldType       = "type"
	FieldIdentifier = "identifier"
	FieldReqID      = "reqId"
	FieldSignature  = "signature"
	FieldTxnID      = "txnId"
	FieldSeqNo      = "seqNo"
	FieldTxnTime    = "txnTime"
	FieldDest       = "dest"
	FieldRole       = "role"
	FieldVerkey     = "verkey"
	FieldReference  = "reference"
	FieldRaw        = "raw"
	FieldEnc        = "enc"
	FieldHash       = "hash"
	FieldData       = "data"
	FieldRef        = "ref"
)

var knownFields = map[string]struct{}{
	FieldType: {}, FieldIdentifier: {}, FieldReqID: {}, FieldSignature: {}, FieldTxnID: {},
	FieldSeqNo: {}, FieldTxnTime: {}, FieldDest: {}, FieldRole: {}, FieldVerkey: {},
	FieldReference: {}, FieldRaw: {}, FieldEnc: {}, FieldHash: {}, FieldData: {}, FieldRef: {},
}

// Txn is the flat wire shape shared by requests, committed transactions and replay queries.
// Role is a pointer so an explicit empty role (demotion) differs from an absent one.
type Txn struct {
	Type       TxnType         `json:"type"`
	Identifier string          `json:"identifier,omitempty"`
	ReqID      int64           `json:"reqId,omitempty"`
	Signature  string          `json:"signature,omitempty"`
	TxnID      string          `json:"txnId,omitempty"`
	SeqNo      int64           `json:"seqNo,omitempty"`
	TxnTime    int64           `json:"txnTime,omitempty"`
	Dest       string          `json:"dest,omitempty"`
	Role       *Role           `json:"role,omitempty"`
	Verkey     string          `json:"verkey,omitempty"`
	Reference  string          `json:"reference,omitempty"`
	Raw        string          `json:"raw,omitempty"`
	Enc        string          `json:"enc,omitempty"`
	Hash       string          `json:"hash,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Ref        int64           `json:"ref,omitempty"`

	unknown []string
}

type txnAlias Txn

// UnmarshalJSON records fields outside the wire vocabulary so validation can reject them.
func (t *Txn) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var alias txnAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}
	*t = Txn(alias)
	t.unknown = nil
	for name := range fields {
		if _, ok := knownFields[name]; !ok {
			t.unknown = append(t.unknown, name)
		}
	}
	sort.Strings(t.unknown)
	return nil
}

// ParseTxn decodes a wire transaction.
func ParseTxn(b []byte) (*Txn, error) {
	var t Txn
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode txn: %w", err)
	}
	return &t, nil
}

// UnknownFields returns the names of unrecognized wire fields seen while decoding.
func (t *Txn) UnknownFields() []string {
	return t.unknown
}

// Clone returns a deep copy.
func (t *Txn) Clone() *Txn {
	cp := *t
	if t.Role != nil {
		r := *t.Role
		cp.Role = &r
	}
	if t.Data != nil {
		cp.Data = append(json.RawMessage{}, t.Data...)
	}
	cp.unknown = append([]string(nil), t.unknown...)
	return &cp
}

// Key returns the (identifier, reqId) pair a wallet correlates replies by.
func (t *Txn) Key() RequestKey {
	return RequestKey{Identifier: t.Identifier, ReqID: t.ReqID}
}

// ComputeTxnID derives the deterministic transaction id.
func (t *Txn) ComputeTxnID() string {
	return domain.TxnIDFor(t.Identifier, t.ReqID).String()
}

// SigningPayload is the portion of the request covered by the submitter's signature.
func (t *Txn) SigningPayload() *Txn {
	cp := t.Clone()
	cp.Signature = ""
	cp.TxnID = ""
	cp.SeqNo = 0
	cp.TxnTime = 0
	cp.unknown = nil
	return cp
}

// Target is the identity an ATTRIB applies to: dest when present, else the submitter.
func (t *Txn) Target() string {
	if t.Dest != "" {
		return t.Dest
	}
	return t.Identifier
}

// Payload returns the single attribute payload form and value, and how many forms are set.
func (t *Txn) Payload() (PayloadForm, string, int) {
	var form PayloadForm
	var value string
	n := 0
	if t.Raw != "" {
		form, value = FormRaw, t.Raw
		n++
	}
	if t.Enc != "" {
		form, value = FormEnc, t.Enc
		n++
	}
	if t.Hash != "" {
		form, value = FormHash, t.Hash
		n++
	}
	return form, value, n
}

// WithHashedPayload replaces a raw or encrypted ATTRIB payload by its SHA-256 commitment,
// keeping the form selection. Other types are returned unchanged.
func (t *Txn) WithHashedPayload() *Txn {
	cp := t.Clone()
	if t.Type != TypeAttrib {
		return cp
	}
	if cp.Raw != "" {
		cp.Raw = signing.SHA256Hex([]byte(cp.Raw))
	}
	if cp.Enc != "" {
		cp.Enc = signing.SHA256Hex([]byte(cp.Enc))
	}
	return cp
}

// CredDef decodes the nested credential definition payload.
func (t *Txn) CredDef() (*CredDefData, error) {
	if len(t.Data) == 0 {
		return nil, fmt.Errorf("data is empty")
	}
	var d CredDefData
	if err := json.Unmarshal(t.Data, &d); err != nil {
		return nil, fmt.Errorf("decode cred def data: %w", err)
	}
	return &d, nil
}

// RequestKey identifies a submitted request.
type RequestKey struct {
	Identifier string `json:"identifier"`
	ReqID      int64  `json:"reqId"`
}

func (k RequestKey) String() string {
	return fmt.Sprintf("%s:%d", k.Identifier, k.ReqID)
}

// CredDefData is the nested payload of CRED_DEF and the lookup key of GET_CRED_DEF.
type CredDefData struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	AttrNames []string `json:"attrNames,omitempty"`
	Type      string   `json:"type,omitempty"`
}

// MustData marshals v into a raw data field. Intended for literals in tests and genesis files.
func MustData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
