// Package handler exposes an agent's operator API: invitations, links, claims and proofs.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Agent,Issuer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"idledger/internal/agent/invitation"
	"idledger/internal/agent/models"
	dErrors "idledger/pkg/domain-errors"
	"idledger/pkg/platform/httputil"
	"idledger/pkg/platform/sentinel"
	"idledger/pkg/requestcontext"
)

const maxInvitationBytes = 1 << 20

// Agent is the protocol surface an operator drives.
type Agent interface {
	CreateInvitation(ctx context.Context, name string, requests []models.ProofRequest) (*invitation.File, error)
	LoadInvitation(ctx context.Context, f *invitation.File) (*models.Link, error)
	AcceptInvitation(ctx context.Context, name string) (*models.Link, error)
	RequestClaim(ctx context.Context, linkName string, ref models.ClaimRef) error
	SendProof(ctx context.Context, linkName string, ref models.ClaimRef) error
	Link(ctx context.Context, name string) (*models.Link, error)
	Links(ctx context.Context) ([]*models.Link, error)
}

// Issuer publishes credential definitions and offers claims on links. Agents that do not
// issue run without one.
type Issuer interface {
	PublishCredentialDefinition(ctx context.Context, name, version string, attrNames []string) (int64, error)
	Offer(linkName string, claim models.AvailableClaim, values map[string]string)
}

type Handler struct {
	agent  Agent
	issuer Issuer
	logger *slog.Logger
}

// New creates a handler. issuer may be nil.
func New(agent Agent, issuer Issuer, logger *slog.Logger) *Handler {
	return &Handler{agent: agent, issuer: issuer, logger: logger}
}

// Register mounts the operator routes under /admin.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/invitations", h.HandleCreateInvitation)
		r.Get("/links", h.HandleListLinks)
		r.Post("/links", h.HandleLoadInvitation)
		r.Get("/links/{link}", h.HandleGetLink)
		r.Post("/links/{link}/accept", h.HandleAccept)
		r.Post("/links/{link}/claim-requests", h.HandleRequestClaim)
		r.Post("/links/{link}/proofs", h.HandleSendProof)
		r.Post("/links/{link}/offers", h.HandleOffer)
		r.Post("/cred-defs", h.HandlePublishCredDef)
	})
}

type createInvitationRequest struct {
	Name          string                `json:"name"`
	ProofRequests []models.ProofRequest `json:"proofRequests"`
}

// HandleCreateInvitation answers with the signed invitation file.
func (h *Handler) HandleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createInvitationRequest
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name is required").WithFields("name"))
		return
	}
	f, err := h.agent.CreateInvitation(ctx, req.Name, req.ProofRequests)
	if err != nil {
		h.fail(ctx, w, "create invitation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, f)
}

// HandleLoadInvitation takes an invitation file as the body and creates the link it describes.
func (h *Handler) HandleLoadInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInvitationBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invitation body could not be read"))
		return
	}
	f, err := invitation.ParseBytes(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	link, err := h.agent.LoadInvitation(ctx, f)
	if err != nil {
		h.fail(ctx, w, "load invitation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, link)
}

func (h *Handler) HandleListLinks(w http.ResponseWriter, r *http.Request) {
	links, err := h.agent.Links(r.Context())
	if err != nil {
		h.fail(r.Context(), w, "list links failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, links)
}

func (h *Handler) HandleGetLink(w http.ResponseWriter, r *http.Request) {
	name, ok := linkParam(w, r)
	if !ok {
		return
	}
	link, err := h.agent.Link(r.Context(), name)
	if err != nil {
		h.fail(r.Context(), w, "get link failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, link)
}

// HandleAccept syncs the link if needed and sends the acceptance. The answer arrives later.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	name, ok := linkParam(w, r)
	if !ok {
		return
	}
	link, err := h.agent.AcceptInvitation(r.Context(), name)
	if err != nil {
		h.fail(r.Context(), w, "accept invitation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, link)
}

func (h *Handler) HandleRequestClaim(w http.ResponseWriter, r *http.Request) {
	h.sendRef(w, r, "request claim failed", h.agent.RequestClaim)
}

func (h *Handler) HandleSendProof(w http.ResponseWriter, r *http.Request) {
	h.sendRef(w, r, "send proof failed", h.agent.SendProof)
}

func (h *Handler) sendRef(w http.ResponseWriter, r *http.Request, event string,
	send func(ctx context.Context, linkName string, ref models.ClaimRef) error,
) {
	ctx := r.Context()
	name, ok := linkParam(w, r)
	if !ok {
		return
	}
	var ref models.ClaimRef
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &ref) {
		return
	}
	if ref.Name == "" || ref.Version == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name and version are required").WithFields("name", "version"))
		return
	}
	if err := send(ctx, name, ref); err != nil {
		h.fail(ctx, w, event, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type offerRequest struct {
	Claim  models.AvailableClaim `json:"claim"`
	Values map[string]string     `json:"values"`
}

func (h *Handler) HandleOffer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.issuer == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "this agent does not issue claims"))
		return
	}
	name, ok := linkParam(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &req) {
		return
	}
	if req.Claim.Name == "" || req.Claim.Version == "" || req.Claim.CredDefSeqNo <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "claim name, version and credDefSeqNo are required").
			WithFields("claim.name", "claim.version", "claim.credDefSeqNo"))
		return
	}
	h.issuer.Offer(name, req.Claim, req.Values)
	h.logger.InfoContext(ctx, "claim offered",
		"link", name,
		"claim", req.Claim.Name,
		"version", req.Claim.Version,
	)
	w.WriteHeader(http.StatusNoContent)
}

type publishRequest struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	AttrNames []string `json:"attrNames"`
}

type publishResponse struct {
	SeqNo int64 `json:"seqNo"`
}

func (h *Handler) HandlePublishCredDef(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.issuer == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "this agent does not issue claims"))
		return
	}
	var req publishRequest
	if !httputil.DecodeJSON(ctx, w, r, h.logger, &req) {
		return
	}
	if req.Name == "" || req.Version == "" || len(req.AttrNames) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name, version and attrNames are required").
			WithFields("name", "version", "attrNames"))
		return
	}
	seqNo, err := h.issuer.PublishCredentialDefinition(ctx, req.Name, req.Version, req.AttrNames)
	if err != nil {
		h.fail(ctx, w, "publish credential definition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, publishResponse{SeqNo: seqNo})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, event string, err error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		err = dErrors.Wrap(err, dErrors.CodeNotFound, "link not found")
	}
	if dErrors.CodeOf(err).Category() == dErrors.CategoryInfrastructure {
		h.logger.ErrorContext(ctx, event,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

// linkParam unescapes the link name; names like "Faber College" travel percent-encoded.
func linkParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "link"))
	if err != nil || name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid link name"))
		return "", false
	}
	return name, true
}
