// Package pipeline runs a ledger node's per-transaction state machine:
//
//	received -> validated -> submitted -> ordered -> executed -> replied
//
// Submit covers the steps up to handing the request to the ordering service. OnOrdered covers
// the rest: it re-validates against the graph as it is at delivery time, appends the hashed
// form to the log, applies the un-hashed form to the graph and replies to the submitter.
// Reads bypass ordering through Query.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/metrics"
	"idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/txlog"
	"idledger/internal/ledger/validator"
	dErrors "idledger/pkg/domain-errors"
	audit "idledger/pkg/platform/audit"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/signing"
)

const (
	stagePreOrder   = "pre_order"
	stagePostCommit = "post_commit"
)

// Replier delivers the outcome of an executed transaction to its submitter. Both methods report
// whether a submitter was connected to receive it.
type Replier interface {
	Reply(ctx context.Context, reply *models.Reply) bool
	Reject(ctx context.Context, nack *models.Nack) bool
}

// Pipeline is one node's execution pipeline. OnOrdered must be driven by a single goroutine.
type Pipeline struct {
	graph     *graph.Graph
	validator *validator.Validator
	log       txlog.Log
	orderer   ordering.Orderer
	replier   Replier
	auditor   audit.Emitter
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithReplier sets where executed outcomes go. Without one, outcomes are only logged.
func WithReplier(r Replier) Option {
	return func(p *Pipeline) {
		p.replier = r
	}
}

func WithAuditor(a audit.Emitter) Option {
	return func(p *Pipeline) {
		p.auditor = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// New wires a pipeline over the node's graph, log and ordering service.
func New(g *graph.Graph, log txlog.Log, orderer ordering.Orderer, opts ...Option) *Pipeline {
	p := &Pipeline{
		graph:   g,
		log:     log,
		orderer: orderer,
		auditor: audit.Nop{},
		tracer:  otel.Tracer("idledger/pipeline"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.validator = validator.New(g, validator.WithLogger(p.logger))
	return p
}

// Submit validates a signed write and hands it to ordering. A nil error is the ACK; a returned
// error is the NACK's content (see models.NackFor). A request whose transaction id is already
// committed is acknowledged and its stored reply re-sent.
func (p *Pipeline) Submit(ctx context.Context, txn *models.Txn) (*models.Ack, error) {
	p.metrics.IncrementReceived(string(txn.Type))

	req := txn.Clone()
	req.TxnID = ""
	req.SeqNo = 0
	req.TxnTime = 0
	if err := p.validator.ValidateShape(req); err != nil {
		return nil, p.rejectPreOrder(ctx, txn, err)
	}
	if err := p.verifySignature(ctx, req); err != nil {
		return nil, p.rejectPreOrder(ctx, txn, err)
	}
	req.TxnID = req.ComputeTxnID()
	ack := &models.Ack{Identifier: req.Identifier, ReqID: req.ReqID, TxnID: req.TxnID}

	entry, err := p.log.FindByTxnID(ctx, req.TxnID)
	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "request already committed, resending reply",
			"txn_id", req.TxnID,
			"seq_no", entry.SeqNo,
		)
		if err := p.replayReply(ctx, req, entry); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resend reply")
		}
		return ack, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check log")
	}

	// Stateful checks run only for requests not yet in the log; a committed NYM or CRED_DEF
	// would otherwise fail its own existence check.
	if err := p.validator.Validate(ctx, req); err != nil {
		return nil, p.rejectPreOrder(ctx, txn, err)
	}

	if err := p.orderer.Submit(ctx, req); err != nil {
		p.logger.ErrorContext(ctx, "ordering submit failed",
			"txn_id", req.TxnID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "submit to ordering")
	}
	p.logger.InfoContext(ctx, "txn submitted",
		"txn_id", req.TxnID,
		"identifier", req.Identifier,
		"req_id", req.ReqID,
		"type", string(req.Type),
	)
	return ack, nil
}

// verifySignature checks the request signature against the submitter's current verkey.
func (p *Pipeline) verifySignature(ctx context.Context, txn *models.Txn) error {
	if txn.Signature == "" {
		return dErrors.New(dErrors.CodeInvalidSignature, "signature is required").WithFields(models.FieldSignature)
	}
	actor, err := p.graph.GetNym(ctx, txn.Identifier)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "identifier %s is not on the ledger", txn.Identifier).
			WithFields(models.FieldIdentifier)
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load submitter")
	}
	if actor.Verkey == "" {
		return dErrors.Newf(dErrors.CodeInvalidSignature, "identifier %s has no verkey", txn.Identifier).
			WithFields(models.FieldIdentifier)
	}
	if err := signing.VerifyCanonical(actor.Verkey, txn.SigningPayload(), txn.Signature); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidSignature, "signature does not verify").
			WithFields(models.FieldSignature)
	}
	return nil
}

func (p *Pipeline) rejectPreOrder(ctx context.Context, txn *models.Txn, err error) error {
	code := dErrors.CodeOf(err)
	p.metrics.IncrementRejected(string(code), stagePreOrder)
	p.logger.InfoContext(ctx, "txn rejected",
		"identifier", txn.Identifier,
		"req_id", txn.ReqID,
		"type", string(txn.Type),
		"code", string(code),
		"reason", dErrors.MessageOf(err),
	)
	p.emit(ctx, audit.Event{
		Action:  string(audit.EventTxnRejected),
		Subject: txn.Dest,
		ActorID: txn.Identifier,
		Code:    string(code),
		Reason:  dErrors.MessageOf(err),
	})
	return err
}

func (p *Pipeline) emit(ctx context.Context, event audit.Event) {
	if err := p.auditor.Emit(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
