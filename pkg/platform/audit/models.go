package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers state changes with lasting significance: committed writes,
	// genesis, issued credentials.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejections: bad signatures, unauthorized writes, unknown nonces.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine transitions useful when debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Subject is the thing acted on
// (a nym, a link name); ActorID is who asked.
type Event struct {
	ID        string
	Category  EventCategory
	Timestamp time.Time
	Action    string
	Subject   string
	ActorID   string
	TxnID     string
	Nonce     string
	Code      string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	// Ledger events
	EventTxnCommitted          AuditEvent = "txn_committed"
	EventTxnRejected           AuditEvent = "txn_rejected"
	EventTxnRejectedPostCommit AuditEvent = "txn_rejected_post_commit"
	EventGenesisApplied        AuditEvent = "genesis_applied"
	EventReplyUndeliverable    AuditEvent = "reply_undeliverable"

	// Wallet events
	EventRequestAbandoned AuditEvent = "request_abandoned"
	EventReplyUnmatched   AuditEvent = "reply_unmatched"

	// Link events
	EventLinkCreated     AuditEvent = "link_created"
	EventLinkSynced      AuditEvent = "link_synced"
	EventLinkAccepted    AuditEvent = "link_accepted"
	EventMessageRejected AuditEvent = "message_rejected"
	EventClaimIssued     AuditEvent = "claim_issued"
	EventClaimRefused    AuditEvent = "claim_refused"
	EventProofVerified   AuditEvent = "proof_verified"
	EventProofRejected   AuditEvent = "proof_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventTxnCommitted:   CategoryCompliance,
	EventGenesisApplied: CategoryCompliance,
	EventClaimIssued:    CategoryCompliance,
	EventProofVerified:  CategoryCompliance,

	EventTxnRejected:           CategorySecurity,
	EventTxnRejectedPostCommit: CategorySecurity,
	EventMessageRejected:       CategorySecurity,
	EventClaimRefused:          CategorySecurity,
	EventProofRejected:         CategorySecurity,

	EventReplyUndeliverable: CategoryOperations,
	EventRequestAbandoned:   CategoryOperations,
	EventReplyUnmatched:     CategoryOperations,
	EventLinkCreated:        CategoryOperations,
	EventLinkSynced:         CategoryOperations,
	EventLinkAccepted:       CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListAll(ctx context.Context) ([]Event, error)
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
