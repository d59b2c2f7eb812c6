package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"idledger/internal/ledger/models"
	"idledger/internal/ledger/ordering"
	"idledger/internal/ledger/txlog"
	dErrors "idledger/pkg/domain-errors"
	audit "idledger/pkg/platform/audit"
	"idledger/pkg/platform/sentinel"
)

// OnOrdered executes a transaction delivered by the ordering service. Rejections and
// infrastructure failures are logged and replied; only cancellation of ctx is returned, so
// delivery continues past a failed transaction.
func (p *Pipeline) OnOrdered(ctx context.Context, o ordering.Ordered) error {
	if o.Txn == nil {
		return nil
	}
	err := p.execute(ctx, o, false)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to execute ordered txn",
			"txn_id", o.Txn.TxnID,
			"position", o.Position,
			"error", err,
		)
	}
	return nil
}

// Bootstrap injects the genesis transactions when the log is empty. It reports whether they
// were applied. Genesis transactions run the executed step without validation: they have no
// prior actor to authorize them.
func (p *Pipeline) Bootstrap(ctx context.Context, genesis []*models.Txn) (bool, error) {
	size, err := p.log.Size(ctx)
	if err != nil {
		return false, fmt.Errorf("read log size: %w", err)
	}
	if size > 0 {
		p.metrics.SetLogSize(size)
		p.logger.InfoContext(ctx, "log not empty, skipping genesis", "size", size)
		return false, nil
	}
	for i, txn := range genesis {
		if txn.TxnID == "" {
			return false, fmt.Errorf("genesis txn %d has no txn id", i)
		}
		if err := p.execute(ctx, ordering.Ordered{Txn: txn, Position: int64(i + 1)}, true); err != nil {
			return false, fmt.Errorf("apply genesis txn %d: %w", i, err)
		}
	}
	p.logger.InfoContext(ctx, "genesis applied", "count", len(genesis))
	p.emit(ctx, audit.Event{Action: string(audit.EventGenesisApplied), Reason: fmt.Sprintf("%d transactions", len(genesis))})
	return true, nil
}

func (p *Pipeline) execute(ctx context.Context, o ordering.Ordered, genesis bool) (err error) {
	start := time.Now()
	txn := o.Txn.Clone()
	if txn.TxnID == "" {
		txn.TxnID = txn.ComputeTxnID()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.execute")
	span.SetAttributes(
		attribute.String("txn.id", txn.TxnID),
		attribute.String("txn.type", string(txn.Type)),
		attribute.Int64("ordering.position", o.Position),
		attribute.Bool("genesis", genesis),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		p.metrics.ObserveExecuteLatency(time.Since(start))
	}()

	// At-least-once delivery: an already logged transaction is re-applied idempotently and
	// re-replied, never re-validated against a graph that already contains it.
	entry, err := p.log.FindByTxnID(ctx, txn.TxnID)
	switch {
	case err == nil:
		p.logger.InfoContext(ctx, "redelivered txn already in log",
			"txn_id", txn.TxnID,
			"seq_no", entry.SeqNo,
		)
		return p.replayReply(ctx, txn, entry)
	case !errors.Is(err, sentinel.ErrNotFound):
		return fmt.Errorf("check log: %w", err)
	}

	if !genesis {
		if err := p.validator.Revalidate(ctx, txn); err != nil {
			if dErrors.CodeOf(err).Category() == dErrors.CategoryInfrastructure {
				return err
			}
			p.rejectPostCommit(ctx, txn, err)
			return nil
		}
	}
	if !o.PPTime.IsZero() {
		txn.TxnTime = o.PPTime.Unix()
	}

	committed := txn.WithHashedPayload()
	payload, err := txlog.EncodeTxn(committed)
	if err != nil {
		return err
	}
	rcpt, err := p.log.Append(ctx, txn.TxnID, payload)
	if err != nil && !errors.Is(err, txlog.ErrDuplicate) {
		return fmt.Errorf("append %s: %w", txn.TxnID, err)
	}
	txn.SeqNo = rcpt.SeqNo
	committed.SeqNo = rcpt.SeqNo
	span.SetAttributes(attribute.Int64("txn.seq_no", rcpt.SeqNo))

	if err := p.graph.Apply(ctx, txn); err != nil {
		return fmt.Errorf("apply %s to graph: %w", txn.TxnID, err)
	}

	p.metrics.IncrementCommitted(string(txn.Type))
	p.metrics.SetLogSize(rcpt.SeqNo)
	p.logger.InfoContext(ctx, "txn committed",
		"txn_id", txn.TxnID,
		"seq_no", rcpt.SeqNo,
		"type", string(txn.Type),
		"identifier", txn.Identifier,
	)
	if !genesis {
		p.emit(ctx, audit.Event{
			Action:  string(audit.EventTxnCommitted),
			Subject: txn.Dest,
			ActorID: txn.Identifier,
			TxnID:   txn.TxnID,
		})
	}
	p.deliver(ctx, replyFor(committed, rcpt))
	return nil
}

// replayReply re-applies a logged transaction to the graph and re-sends its reply.
func (p *Pipeline) replayReply(ctx context.Context, txn *models.Txn, entry *txlog.Entry) error {
	committed, err := models.ParseTxn(entry.Payload)
	if err != nil {
		return err
	}
	rcpt, err := p.log.Receipt(ctx, entry.SeqNo)
	if err != nil {
		return fmt.Errorf("prove %d: %w", entry.SeqNo, err)
	}
	committed.SeqNo = entry.SeqNo

	// The log holds the hashed form; the graph takes the submitted one.
	applied := txn.Clone()
	applied.SeqNo = entry.SeqNo
	applied.TxnTime = committed.TxnTime
	if err := p.graph.Apply(ctx, applied); err != nil {
		return fmt.Errorf("reapply %s to graph: %w", txn.TxnID, err)
	}
	p.deliver(ctx, replyFor(committed, rcpt))
	return nil
}

func (p *Pipeline) rejectPostCommit(ctx context.Context, txn *models.Txn, err error) {
	code := dErrors.CodeOf(err)
	p.metrics.IncrementRejected(string(code), stagePostCommit)
	nack := models.NackFor(txn, err)
	nack.PostCommit = true
	p.emit(ctx, audit.Event{
		Action:  string(audit.EventTxnRejectedPostCommit),
		Subject: txn.Dest,
		ActorID: txn.Identifier,
		TxnID:   txn.TxnID,
		Code:    string(code),
		Reason:  nack.Reason,
	})
	if p.replier == nil || !p.replier.Reject(ctx, nack) {
		p.logger.InfoContext(ctx, "post-commit rejection not delivered, submitter not connected",
			"txn_id", txn.TxnID,
			"identifier", txn.Identifier,
			"reason", nack.Reason,
		)
	}
}

func (p *Pipeline) deliver(ctx context.Context, reply *models.Reply) {
	if p.replier != nil && p.replier.Reply(ctx, reply) {
		return
	}
	p.logger.DebugContext(ctx, "reply not delivered, submitter not connected",
		"txn_id", reply.Result.TxnID,
		"seq_no", reply.SeqNo,
	)
}

func replyFor(committed *models.Txn, rcpt *txlog.Receipt) *models.Reply {
	return &models.Reply{
		Type:       committed.Type,
		Identifier: committed.Identifier,
		ReqID:      committed.ReqID,
		Result:     committed,
		SeqNo:      rcpt.SeqNo,
		RootHash:   rcpt.RootHash,
		AuditPath:  rcpt.AuditPath,
		TreeSize:   rcpt.TreeSize,
	}
}
