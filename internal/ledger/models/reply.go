package models

import (
	"encoding/json"

	dErrors "idledger/pkg/domain-errors"
)

// Ack acknowledges that a write passed pre-order validation and was handed to ordering.
type Ack struct {
	Identifier string `json:"identifier"`
	ReqID      int64  `json:"reqId"`
	TxnID      string `json:"txnId"`
}

// Nack is a negative acknowledgement. It is always returned, never dropped.
type Nack struct {
	Identifier string   `json:"identifier"`
	ReqID      int64    `json:"reqId"`
	TxnID      string   `json:"txnId,omitempty"`
	Code       string   `json:"code"`
	Reason     string   `json:"reason"`
	Fields     []string `json:"fields,omitempty"`
	// PostCommit is set when the request lost an ordering race and was rejected after ordering.
	PostCommit bool `json:"postCommit,omitempty"`
}

// NackFor builds a negative acknowledgement from a rejection error.
func NackFor(t *Txn, err error) *Nack {
	return &Nack{
		Identifier: t.Identifier,
		ReqID:      t.ReqID,
		TxnID:      t.TxnID,
		Code:       string(dErrors.CodeOf(err)),
		Reason:     dErrors.MessageOf(err),
		Fields:     dErrors.FieldsOf(err),
	}
}

// Err converts the Nack back into a domain error on the client side.
func (n *Nack) Err() error {
	return dErrors.New(dErrors.Code(n.Code), n.Reason).WithFields(n.Fields...)
}

// Reply is the answer to a committed write or a read query.
type Reply struct {
	Type       TxnType         `json:"type"`
	Identifier string          `json:"identifier"`
	ReqID      int64           `json:"reqId"`
	Result     *Txn            `json:"result,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	SeqNo      int64           `json:"seqNo,omitempty"`
	RootHash   string          `json:"rootHash,omitempty"`
	AuditPath  []string        `json:"auditPath,omitempty"`
	TreeSize   int64           `json:"treeSize,omitempty"`
}

// Key returns the request key the reply answers.
func (r *Reply) Key() RequestKey {
	return RequestKey{Identifier: r.Identifier, ReqID: r.ReqID}
}

// NymData is the GET_NYM result.
type NymData struct {
	Dest       string `json:"dest"`
	Identifier string `json:"identifier,omitempty"`
	Role       Role   `json:"role,omitempty"`
	Verkey     string `json:"verkey,omitempty"`
	Sponsor    string `json:"sponsor,omitempty"`
	SeqNo      int64  `json:"seqNo"`
	TxnTime    int64  `json:"txnTime,omitempty"`
}

// AttrData is the GET_ATTR result.
type AttrData struct {
	Dest  string `json:"dest"`
	Raw   string `json:"raw,omitempty"`
	Enc   string `json:"enc,omitempty"`
	Hash  string `json:"hash,omitempty"`
	SeqNo int64  `json:"seqNo"`
}

// IssuerKeyData is the GET_ISSUER_KEY result.
type IssuerKeyData struct {
	Publisher string          `json:"publisher"`
	Ref       int64           `json:"ref"`
	Data      json.RawMessage `json:"data"`
	SeqNo     int64           `json:"seqNo"`
}
