package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"raceday/internal/invite/service"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/httputil"
	"raceday/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the interface for invite operations.
type Service interface {
	IssueInvites(ctx context.Context, callerID, batchID uuid.UUID) (*service.IssueResult, error)
	Claim(ctx context.Context, callerID uuid.UUID, token string, dateOfBirth *string) (*service.ClaimResult, error)
}

// Handler handles invite endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new invite Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

// Register mounts the authenticated invite routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/group-batches/{id}/invites", h.handleIssue)
	r.Post("/invites/claim", h.handleClaim)
}

// ClaimRequest is the body of POST /invites/claim.
type ClaimRequest struct {
	Token       string  `json:"token"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
}

// ClaimResponse names the registration now owned by the caller.
type ClaimResponse struct {
	RegistrationID string `json:"registrationId"`
	EditionID      string `json:"editionId"`
	AlreadyClaimed bool   `json:"alreadyClaimed"`
}

// InviteResponse never carries the token; it only travels by email.
type InviteResponse struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registrationId"`
	Email          string    `json:"email"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// IssueResponse summarizes an IssueInvites call.
type IssueResponse struct {
	BatchID string           `json:"batchId"`
	Issued  int              `json:"issued"`
	Skipped int              `json:"skipped"`
	Invites []InviteResponse `json:"invites"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.IssueInvites(ctx, requestcontext.UserID(ctx), batchID)
	if err != nil {
		h.fail(ctx, w, err, "issue invites")
		return
	}

	resp := IssueResponse{
		BatchID: res.BatchID.String(),
		Issued:  len(res.Invites),
		Skipped: res.Skipped,
		Invites: make([]InviteResponse, 0, len(res.Invites)),
	}
	for _, inv := range res.Invites {
		item := InviteResponse{
			ID:             inv.ID.String(),
			RegistrationID: inv.RegistrationID.String(),
			Email:          inv.Email,
			Status:         string(inv.Status),
		}
		if inv.ExpiresAt != nil {
			item.ExpiresAt = *inv.ExpiresAt
		}
		resp.Invites = append(resp.Invites, item)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ClaimRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Claim(ctx, requestcontext.UserID(ctx), req.Token, req.DateOfBirth)
	if err != nil {
		h.fail(ctx, w, err, "claim invite")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ClaimResponse{
		RegistrationID: res.RegistrationID.String(),
		EditionID:      res.EditionID.String(),
		AlreadyClaimed: res.Replayed,
	})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, op string) {
	if dErrors.IsDomain(err) {
		h.logger.WarnContext(ctx, op+" rejected",
			"code", dErrors.CodeOf(err),
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.ErrorContext(ctx, op+" failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
