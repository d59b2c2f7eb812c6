package models

import "encoding/json"

// PayloadForm selects how an attribute value is carried.
type PayloadForm string

const (
	FormRaw  PayloadForm = "raw"
	FormEnc  PayloadForm = "enc"
	FormHash PayloadForm = "hash"
)

// TxnMeta is the commit metadata every graph record keeps about its originating transaction.
type TxnMeta struct {
	TxnID      string `json:"txnId"`
	Identifier string `json:"identifier,omitempty"`
	ReqID      int64  `json:"reqId,omitempty"`
	Signature  string `json:"signature,omitempty"`
	SeqNo      int64  `json:"seqNo,omitempty"`
	TxnTime    int64  `json:"txnTime,omitempty"`
}

// MetaOf extracts commit metadata from a transaction.
func MetaOf(t *Txn) TxnMeta {
	return TxnMeta{
		TxnID:      t.TxnID,
		Identifier: t.Identifier,
		ReqID:      t.ReqID,
		Signature:  t.Signature,
		SeqNo:      t.SeqNo,
		TxnTime:    t.TxnTime,
	}
}

// Apply copies the metadata onto t.
func (m TxnMeta) Apply(t *Txn) {
	t.TxnID = m.TxnID
	t.Identifier = m.Identifier
	t.ReqID = m.ReqID
	t.Signature = m.Signature
	t.SeqNo = m.SeqNo
	t.TxnTime = m.TxnTime
}

// Nym is an identity vertex. Current state (Verkey, Role) can diverge from the creation
// values kept in Origin* after key rotation or a role change.
type Nym struct {
	Nym       string
	Verkey    string
	Role      Role
	Sponsor   string
	Reference string

	Origin       TxnMeta
	OriginRole   *Role
	OriginVerkey string
}

// Attribute is an attribute vertex, keyed by its transaction id.
type Attribute struct {
	TxnID   string
	Owner   string
	Author  string
	Form    PayloadForm
	Value   string
	HasDest bool
	Meta    TxnMeta
}

// Name returns the attribute name of a raw payload, the single key of its JSON object.
func (a *Attribute) Name() string {
	if a.Form != FormRaw {
		return ""
	}
	return RawAttributeName(a.Value)
}

// RawAttributeName returns the key of a single-key JSON object, or "".
func RawAttributeName(raw string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || len(obj) != 1 {
		return ""
	}
	for k := range obj {
		return k
	}
	return ""
}

// CredentialDefinition is a published credential schema. Data keeps the exact submitted payload.
type CredentialDefinition struct {
	Publisher string
	Name      string
	Version   string
	AttrNames []string
	Type      string
	Data      json.RawMessage
	Meta      TxnMeta
}

// IssuerKey is the issuer public key for a credential definition.
type IssuerKey struct {
	Publisher    string
	CredDefSeqNo int64
	Data         json.RawMessage
	Meta         TxnMeta
}
