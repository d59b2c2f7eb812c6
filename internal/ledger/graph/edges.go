package graph

import "idledger/internal/ledger/models"

// EdgeClass names a kind of edge. TxnID is unique within a class.
type EdgeClass string

const (
	EdgeAddsNym           EdgeClass = "AddsNym"
	EdgeUpdatesNym        EdgeClass = "UpdatesNym"
	EdgeAddsAttribute     EdgeClass = "AddsAttribute"
	EdgeHasAttribute      EdgeClass = "HasAttribute"
	EdgeAddsCredentialDef EdgeClass = "AddsCredentialDefinition"
	EdgeAddsIssuerKey     EdgeClass = "AddsIssuerKey"
	EdgeAliasOf           EdgeClass = "AliasOf"
)

// EdgeClasses lists every class.
func EdgeClasses() []EdgeClass {
	return []EdgeClass{
		EdgeAddsNym, EdgeUpdatesNym, EdgeAddsAttribute, EdgeHasAttribute,
		EdgeAddsCredentialDef, EdgeAddsIssuerKey, EdgeAliasOf,
	}
}

// Edge connects two vertices and records the transaction that created it.
// Optional properties are set depending on the class.
type Edge struct {
	Class EdgeClass
	From  string
	To    string
	TxnID string

	Role      *models.Role
	Verkey    string
	TargetNym string
	Name      string
	Version   string

	Meta models.TxnMeta
}

func newEdge(class EdgeClass, from, to string, meta models.TxnMeta) *Edge {
	return &Edge{Class: class, From: from, To: to, TxnID: meta.TxnID, Meta: meta}
}

// credDefVertexKey is the vertex key of a credential definition.
func credDefVertexKey(publisher, name, version string) string {
	return publisher + ":" + name + ":" + version
}
