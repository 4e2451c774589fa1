package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"raceday/internal/registration/models"
	"raceday/internal/registration/service"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/httputil"
	"raceday/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the interface for registration operations.
type Service interface {
	Start(ctx context.Context, callerID, distanceID uuid.UUID) (*models.Registration, error)
	GetRegistration(ctx context.Context, callerID, registrationID uuid.UUID) (*service.RegistrationView, error)
	SubmitRegistrantInfo(ctx context.Context, callerID, registrationID uuid.UUID, in service.RegistrantInput) (*models.Registration, error)
	AcceptWaiver(ctx context.Context, callerID, registrationID uuid.UUID, in service.WaiverInput) (*models.WaiverAcceptance, error)
	AnswerQuestion(ctx context.Context, callerID, registrationID, questionID uuid.UUID, value string) (*models.Answer, error)
	FinalizeRegistration(ctx context.Context, callerID, registrationID uuid.UUID) (*models.Registration, error)
	GetAvailability(ctx context.Context, distanceID uuid.UUID) (*service.Availability, error)
	SetDistanceCapacity(ctx context.Context, callerID, distanceID uuid.UUID, limit *int) error
	SetSharedCapacity(ctx context.Context, callerID, editionID uuid.UUID, limit *int) error
}

// Handler handles registration endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new registration Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

// Register mounts the authenticated registration routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registrations", h.handleStart)
	r.Get("/registrations/{id}", h.handleGet)
	r.Post("/registrations/{id}/registrant", h.handleSubmit)
	r.Post("/registrations/{id}/waivers/{waiverID}/accept", h.handleAcceptWaiver)
	r.Put("/registrations/{id}/answers/{questionID}", h.handleAnswer)
	r.Post("/registrations/{id}/finalize", h.handleFinalize)
	r.Put("/distances/{id}/capacity", h.handleSetDistanceCapacity)
	r.Put("/editions/{id}/shared-capacity", h.handleSetSharedCapacity)
}

// RegisterPublic mounts routes that need no caller.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/distances/{id}/availability", h.handleAvailability)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req StartRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "start registration")
		return
	}
	distanceID, err := uuid.Parse(strings.TrimSpace(req.DistanceID))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "distanceId is required"))
		return
	}

	reg, err := h.service.Start(ctx, requestcontext.UserID(ctx), distanceID)
	if err != nil {
		h.fail(ctx, w, err, "start registration")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRegistrationResponse(reg))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetRegistration(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.fail(ctx, w, err, "get registration")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toViewResponse(view))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req SubmitRegistrantRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "submit registrant")
		return
	}

	reg, err := h.service.SubmitRegistrantInfo(ctx, requestcontext.UserID(ctx), id, req.toInput())
	if err != nil {
		h.fail(ctx, w, err, "submit registrant")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponse(reg))
}

func (h *Handler) handleAcceptWaiver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	waiverID, err := httputil.URLParamUUID(r, "waiverID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req AcceptWaiverRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "accept waiver")
		return
	}

	acc, err := h.service.AcceptWaiver(ctx, requestcontext.UserID(ctx), id, service.WaiverInput{
		WaiverID:       waiverID,
		SignatureType:  models.SignatureType(strings.TrimSpace(req.SignatureType)),
		SignatureValue: req.SignatureValue,
	})
	if err != nil {
		h.fail(ctx, w, err, "accept waiver")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAcceptanceResponse(acc))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	questionID, err := httputil.URLParamUUID(r, "questionID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req AnswerRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "answer question")
		return
	}

	ans, err := h.service.AnswerQuestion(ctx, requestcontext.UserID(ctx), id, questionID, req.Value)
	if err != nil {
		h.fail(ctx, w, err, "answer question")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AnswerResponse{QuestionID: ans.QuestionID.String(), Value: ans.Value})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reg, err := h.service.FinalizeRegistration(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.fail(ctx, w, err, "finalize registration")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistrationResponse(reg))
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GetAvailability(ctx, id)
	if err != nil {
		h.fail(ctx, w, err, "get availability")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAvailabilityResponse(a))
}

func (h *Handler) handleSetDistanceCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req CapacityRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "set distance capacity")
		return
	}
	if err := h.service.SetDistanceCapacity(ctx, requestcontext.UserID(ctx), id, req.Capacity); err != nil {
		h.fail(ctx, w, err, "set distance capacity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleSetSharedCapacity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req CapacityRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.fail(ctx, w, err, "set shared capacity")
		return
	}
	if err := h.service.SetSharedCapacity(ctx, requestcontext.UserID(ctx), id, req.Capacity); err != nil {
		h.fail(ctx, w, err, "set shared capacity")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// fail logs and renders err. Domain outcomes log at warn; unexpected faults at error.
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
