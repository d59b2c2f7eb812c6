// Package handler exposes a ledger node over HTTP: writes, reads and health.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idledger/internal/ledger/models"
	"idledger/internal/ledger/pipeline"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/httputil"
	"idledger/pkg/requestcontext"
)

// Service is the pipeline surface the handler drives.
type Service interface {
	Submit(ctx context.Context, txn *models.Txn) (*models.Ack, error)
	Query(ctx context.Context, txn *models.Txn) (*models.Reply, error)
}

// Awaiter lets the handler wait for the executed outcome of a write it submitted.
type Awaiter interface {
	Expect(key models.RequestKey) (<-chan pipeline.Outcome, func())
}

// Handler serves the node API.
type Handler struct {
	service Service
	replies Awaiter
	wait    time.Duration
	logger  *slog.Logger
}

// New creates a handler. POST /txns waits up to wait for the reply before answering with the
// plain acknowledgement.
func New(service Service, replies Awaiter, wait time.Duration, logger *slog.Logger) *Handler {
	return &Handler{service: service, replies: replies, wait: wait, logger: logger}
}

// Register mounts the node routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/txns", h.HandleSubmit)
	r.Post("/query", h.HandleQuery)
	r.Get("/healthz", h.HandleHealth)
}

// HandleSubmit handles POST /txns.
//
//	200 Reply  executed and committed
//	202 Ack    accepted for ordering, not executed within the wait window
//	4xx Nack   rejected before or after ordering
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var txn models.Txn
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &txn) {
		return
	}

	outcome, cancel := h.replies.Expect(txn.Key())
	defer cancel()

	ack, err := h.service.Submit(ctx, &txn)
	if err != nil {
		h.writeNack(w, models.NackFor(&txn, err))
		return
	}

	timer := time.NewTimer(h.wait)
	defer timer.Stop()
	select {
	case out := <-outcome:
		if out.Nack != nil {
			h.writeNack(w, out.Nack)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, out.Reply)
	case <-timer.C:
		h.logger.InfoContext(ctx, "reply not ready, returning ack",
			"request_id", requestcontext.RequestID(ctx),
			"txn_id", ack.TxnID,
		)
		httputil.WriteJSON(w, http.StatusAccepted, ack)
	case <-ctx.Done():
	}
}

// HandleQuery handles POST /query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var txn models.Txn
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &txn) {
		return
	}
	reply, err := h.service.Query(ctx, &txn)
	if err != nil {
		if dErrors.CodeOf(err).Category() == dErrors.CategoryInfrastructure {
			h.logger.ErrorContext(ctx, "query failed",
				"request_id", requestcontext.RequestID(ctx),
				"type", string(txn.Type),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reply)
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeNack(w http.ResponseWriter, nack *models.Nack) {
	httputil.WriteJSON(w, httputil.StatusFor(dErrors.Code(nack.Code)), nack)
}
