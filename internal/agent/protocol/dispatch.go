package protocol

import (
	"context"
	"errors"

	"idledger/internal/agent/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/audit"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/requestcontext"
	"idledger/pkg/signing"
)

// handlerFunc processes a verified message on its resolved link and returns the answer to send
// back, if any.
type handlerFunc func(a *Agent, ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error)

// Handle is the transport entry point. Failures are answered with a signed error envelope to
// sender; error envelopes themselves are never answered.
func (a *Agent) Handle(ctx context.Context, raw []byte, sender string) {
	msg, link, err := a.receive(ctx, raw)
	if err != nil {
		a.reject(ctx, sender, msg, err)
		return
	}
	reply, err := a.handlers[msg.Type](a, ctx, link, msg)
	if err != nil {
		a.reject(ctx, sender, msg, err)
		return
	}
	if reply == nil {
		return
	}
	reply.Nonce = link.Nonce
	reply.ReplyTo = msg.ID
	sealed, err := models.Seal(a.signer, reply, a.now())
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to seal reply", "type", reply.Type, "error", err)
		return
	}
	if err := a.deliver(ctx, link.RemoteIdentifier, reply.Type, sealed); err != nil {
		a.logger.WarnContext(ctx, "failed to deliver reply", "link", link.Name, "type", reply.Type, "error", err)
	}
}

// receive verifies an envelope and resolves its link. The returned message is unverified when
// err is set and may be nil.
func (a *Agent) receive(ctx context.Context, raw []byte) (*models.Message, *models.Link, error) {
	peeked, err := models.Peek(raw)
	if err != nil {
		return nil, nil, err
	}
	a.metrics.IncrementReceived(string(peeked.Type))
	if _, ok := a.handlers[peeked.Type]; !ok {
		return peeked, nil, dErrors.Newf(dErrors.CodeProtocol, "unknown message type %q", peeked.Type)
	}
	if peeked.Nonce == "" {
		return peeked, nil, dErrors.New(dErrors.CodeProtocol, "message carries no nonce")
	}

	link, err := a.store.LinkByNonce(ctx, peeked.Nonce)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		link = nil
		if !peeked.Type.Locked() {
			return peeked, nil, dErrors.New(dErrors.CodeUnknownLink, "nonce matches no link")
		}
	case err != nil:
		return peeked, nil, dErrors.Wrap(err, dErrors.CodeInternal, "load link")
	case link.RemoteIdentifier != "" && link.RemoteIdentifier != peeked.Identifier:
		return peeked, nil, dErrors.New(dErrors.CodeInvalidSignature, "sender is not the remote party of this link")
	}

	verkey, err := a.verkeyFor(ctx, link, peeked)
	if err != nil {
		return peeked, nil, err
	}
	msg, err := models.Open(raw, verkey)
	if err != nil {
		return peeked, nil, err
	}
	if link == nil {
		if link, err = a.bindLink(ctx, msg, verkey); err != nil {
			return msg, nil, err
		}
	}
	return msg, link, nil
}

// verkeyFor picks the key a message must verify against: the link's bound verkey, the sender's
// own verkey when the identifier is derived from it, or the sender's verkey on the ledger.
func (a *Agent) verkeyFor(ctx context.Context, link *models.Link, msg *models.Message) (string, error) {
	if link != nil && link.RemoteVerkey != "" {
		return link.RemoteVerkey, nil
	}
	if signing.IsCryptonym(msg.Identifier, msg.Verkey) {
		return msg.Verkey, nil
	}
	nym, err := a.reader.Nym(ctx, msg.Identifier)
	if err != nil || nym.Verkey == "" {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidSignature, "sender verkey could not be resolved")
	}
	return nym.Verkey, nil
}

// bindLink creates the inviter's link on the first verified message carrying an invitation's
// nonce. A message that loses the race to another sender is rejected.
func (a *Agent) bindLink(ctx context.Context, msg *models.Message, verkey string) (*models.Link, error) {
	inv, err := a.store.Invitation(ctx, msg.Nonce)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeUnknownLink, "nonce matches no invitation")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load invitation")
	}

	a.mu.Lock()
	stored, created, err := a.store.CreateLink(ctx, &models.Link{
		Name:             inv.Name,
		LocalIdentifier:  inv.LocalIdentifier,
		RemoteIdentifier: msg.Identifier,
		RemoteVerkey:     verkey,
		Nonce:            inv.Nonce,
		Status:           models.StatusUnaccepted,
		Inviter:          true,
		ProofRequests:    inv.ProofRequests,
		CreatedAt:        a.now(),
	})
	a.mu.Unlock()
	if errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "link name is bound to another invitation")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create link")
	}
	if !created {
		if stored.RemoteIdentifier != msg.Identifier {
			return nil, dErrors.New(dErrors.CodeInvalidSignature, "sender is not the remote party of this link")
		}
		return stored, nil
	}
	a.logger.InfoContext(ctx, "link created", "agent", a.name, "link", stored.Name, "remote", msg.Identifier)
	a.emit(ctx, audit.Event{Action: string(audit.EventLinkCreated), Subject: stored.Name, ActorID: msg.Identifier, Nonce: stored.Nonce})
	return stored, nil
}

func (a *Agent) reject(ctx context.Context, sender string, msg *models.Message, err error) {
	code := dErrors.CodeOf(err)
	a.metrics.IncrementRejected(string(code))
	var (
		nonce     string
		msgType   models.MsgType
		replyTo   string
		requestID string
	)
	if msg != nil {
		nonce, msgType, replyTo, requestID = msg.Nonce, msg.Type, msg.ID, msg.ID
	}
	a.logger.WarnContext(ctx, "agent message rejected",
		"agent", a.name,
		"sender", sender,
		"peer", requestcontext.Peer(ctx),
		"type", msgType,
		"code", code,
		"error", err,
	)
	a.emit(ctx, audit.Event{
		Action:    string(audit.EventMessageRejected),
		Subject:   sender,
		Nonce:     nonce,
		Code:      string(code),
		Reason:    dErrors.MessageOf(err),
		RequestID: requestID,
	})
	if msgType == models.MsgError {
		return
	}

	reply, encErr := newMessage(models.MsgError, models.ErrorBody{
		Code:      string(code),
		Reason:    dErrors.MessageOf(err),
		InReplyTo: msgType,
	})
	if encErr != nil {
		a.logger.ErrorContext(ctx, "failed to encode error envelope", "error", encErr)
		return
	}
	reply.Nonce = nonce
	reply.ReplyTo = replyTo
	sealed, sealErr := models.Seal(a.signer, reply, a.now())
	if sealErr != nil {
		a.logger.ErrorContext(ctx, "failed to seal error envelope", "error", sealErr)
		return
	}
	if sendErr := a.deliver(ctx, sender, models.MsgError, sealed); sendErr != nil {
		a.logger.WarnContext(ctx, "failed to deliver error envelope", "sender", sender, "error", sendErr)
	}
}

func decode(msg *models.Message, v any) error {
	if err := msg.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeProtocol, "message body is malformed")
	}
	return nil
}

func (a *Agent) onAcceptInvite(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.AcceptInviteBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	if body.Endpoint != "" {
		if err := a.transport.Connect(ctx, msg.Identifier, body.Endpoint); err != nil {
			a.logger.WarnContext(ctx, "invitee endpoint is not reachable", "link", link.Name, "error", err)
		}
	}
	var claims []models.AvailableClaim
	if a.Issuer != nil {
		var err error
		if claims, err = a.Issuer.AvailableClaims(ctx, link); err != nil {
			return nil, err
		}
	}
	if _, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		if body.Endpoint != "" {
			l.RemoteEndpoint = body.Endpoint
		}
		l.AvailableClaims = claims
		l.Status = l.Status.Advance(models.StatusAccepted)
		return nil
	}); err != nil {
		return nil, err
	}
	return newMessage(models.MsgAvailClaimList, models.AvailClaimListBody{Claims: claims})
}

func (a *Agent) onAvailClaimList(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.AvailClaimListBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	a.answered(msg.ReplyTo)
	_, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		l.AvailableClaims = body.Claims
		l.Status = l.Status.Advance(models.StatusAccepted)
		return nil
	})
	return nil, err
}

func (a *Agent) onRequestClaim(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.RequestClaimBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	ref := models.ClaimRef{Name: body.Name, Version: body.Version}
	available := false
	if a.Issuer != nil {
		claims, err := a.Issuer.AvailableClaims(ctx, link)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			if c.Ref() == ref {
				available = true
				break
			}
		}
	}
	if !available {
		a.emit(ctx, audit.Event{
			Action:  string(audit.EventClaimRefused),
			Subject: link.Name,
			ActorID: msg.Identifier,
			Nonce:   link.Nonce,
			Reason:  body.Name + " " + body.Version,
		})
		return nil, dErrors.New(dErrors.CodeClaimUnavailable, "claim not yet available")
	}

	claim, err := a.Issuer.Issue(ctx, link, body)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "claim issued", "agent", a.name, "link", link.Name, "claim", claim.Name, "version", claim.Version)
	a.emit(ctx, audit.Event{
		Action:  string(audit.EventClaimIssued),
		Subject: link.Name,
		ActorID: msg.Identifier,
		Nonce:   link.Nonce,
		Reason:  claim.Name + " " + claim.Version,
	})
	return newMessage(models.MsgClaim, claim)
}

func (a *Agent) onClaim(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.ClaimBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	if a.Prover == nil {
		return nil, dErrors.New(dErrors.CodeProtocol, "agent does not hold claims")
	}
	if err := a.Prover.Store(ctx, link, body); err != nil {
		return nil, err
	}
	a.answered(msg.ReplyTo)
	_, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		received := models.ReceivedClaim{Name: body.Name, Version: body.Version, Issuer: body.Issuer, ReceivedAt: a.now()}
		for i, c := range l.ReceivedClaims {
			if c.Name == body.Name && c.Version == body.Version {
				l.ReceivedClaims[i] = received
				return nil
			}
		}
		l.ReceivedClaims = append(l.ReceivedClaims, received)
		return nil
	})
	return nil, err
}

func (a *Agent) onClaimProof(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.ClaimProofBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	ref := models.ClaimRef{Name: body.Name, Version: body.Version}
	idx, ok := link.ProofRequest(ref)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeProtocol, "no proof request %s %s on this link", body.Name, body.Version)
	}
	if a.Verifier == nil {
		return nil, dErrors.New(dErrors.CodeProtocol, "agent does not verify proofs")
	}
	accepted, err := a.Verifier.Verify(ctx, link, link.ProofRequests[idx], body)
	if err != nil {
		return nil, err
	}

	action := audit.EventProofRejected
	if accepted {
		action = audit.EventProofVerified
		if _, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
			if i, ok := l.ProofRequest(ref); ok {
				l.ProofRequests[i].Fulfilled = true
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	a.logger.InfoContext(ctx, "proof checked", "agent", a.name, "link", link.Name, "proof", body.Name, "accepted", accepted)
	a.emit(ctx, audit.Event{
		Action:  string(action),
		Subject: link.Name,
		ActorID: msg.Identifier,
		Nonce:   link.Nonce,
		Reason:  body.Name + " " + body.Version,
	})
	return newMessage(models.MsgClaimProofStatus, models.ClaimProofStatusBody{Name: body.Name, Version: body.Version, Accepted: accepted})
}

func (a *Agent) onClaimProofStatus(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.ClaimProofStatusBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	a.answered(msg.ReplyTo)
	if !body.Accepted {
		_, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
			l.LastError = &models.LinkError{
				Code:      string(dErrors.CodeInvalidSignature),
				Reason:    "proof " + body.Name + " " + body.Version + " was not accepted",
				InReplyTo: models.MsgClaimProof,
				At:        a.now(),
			}
			return nil
		})
		return nil, err
	}
	_, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		if i, ok := l.ProofRequest(models.ClaimRef{Name: body.Name, Version: body.Version}); ok {
			l.ProofRequests[i].Fulfilled = true
		}
		return nil
	})
	return nil, err
}

func (a *Agent) onError(ctx context.Context, link *models.Link, msg *models.Message) (*models.Message, error) {
	var body models.ErrorBody
	if err := decode(msg, &body); err != nil {
		return nil, err
	}
	a.answered(msg.ReplyTo)
	a.logger.WarnContext(ctx, "remote agent reported an error",
		"agent", a.name,
		"link", link.Name,
		"code", body.Code,
		"reason", body.Reason,
		"in_reply_to", body.InReplyTo,
	)
	_, err := a.mutateLink(ctx, link.Nonce, func(l *models.Link) error {
		l.LastError = &models.LinkError{Code: body.Code, Reason: body.Reason, InReplyTo: body.InReplyTo, At: a.now()}
		return nil
	})
	return nil, err
}
