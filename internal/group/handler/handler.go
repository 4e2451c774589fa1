package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"raceday/internal/group/service"
	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/httputil"
	"raceday/pkg/requestcontext"
)

// maxUploadBytes caps the multipart body, file included.
const maxUploadBytes = 12 << 20

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the interface for group batch operations.
type Service interface {
	Upload(ctx context.Context, callerID, editionID uuid.UUID, filename string, file io.Reader) (*service.BatchResult, error)
	Process(ctx context.Context, callerID, batchID uuid.UUID) (*service.BatchResult, error)
	GetBatch(ctx context.Context, callerID, batchID uuid.UUID) (*service.BatchResult, error)
}

// Handler handles group batch endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new group Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: svc}
}

// Register mounts the authenticated batch routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/editions/{id}/group-batches", h.handleUpload)
	r.Get("/group-batches/{id}", h.handleGet)
	r.Post("/group-batches/{id}/process", h.handleProcess)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	editionID, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "expected a multipart form with a file field"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file is required"))
		return
	}
	defer file.Close()

	res, err := h.service.Upload(ctx, requestcontext.UserID(ctx), editionID, header.Filename, file)
	if err != nil {
		h.fail(ctx, w, err, "upload group batch")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toBatchResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.GetBatch(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.fail(ctx, w, err, "get group batch")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(res))
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := httputil.URLParamUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Process(ctx, requestcontext.UserID(ctx), id)
	if err != nil {
		h.fail(ctx, w, err, "process group batch")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBatchResponse(res))
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

type BatchResponse struct {
	ID             string        `json:"id"`
	EditionID      string        `json:"editionId"`
	SourceFilename string        `json:"sourceFilename"`
	Status         string        `json:"status"`
	RowCount       int           `json:"rowCount"`
	ErrorCount     int           `json:"errorCount"`
	AdmittedCount  int           `json:"admittedCount"`
	FailureReason  string        `json:"failureReason,omitempty"`
	ProcessedAt    *time.Time    `json:"processedAt"`
	CreatedAt      time.Time     `json:"createdAt"`
	Rows           []RowResponse `json:"rows"`
}

type RowResponse struct {
	RowIndex              int             `json:"rowIndex"`
	Data                  json.RawMessage `json:"data"`
	Errors                []string        `json:"errors"`
	CreatedRegistrationID *string         `json:"createdRegistrationId"`
}

func toBatchResponse(res *service.BatchResult) BatchResponse {
	b := res.Batch
	out := BatchResponse{
		ID:             b.ID.String(),
		EditionID:      b.EditionID.String(),
		SourceFilename: b.SourceFilename,
		Status:         string(b.Status),
		RowCount:       b.RowCount,
		ErrorCount:     b.ErrorCount,
		AdmittedCount:  res.Admitted(),
		FailureReason:  b.FailureReason,
		ProcessedAt:    b.ProcessedAt,
		CreatedAt:      b.CreatedAt,
		Rows:           make([]RowResponse, 0, len(res.Rows)),
	}
	for _, r := range res.Rows {
		row := RowResponse{RowIndex: r.RowIndex, Data: r.Raw, Errors: r.ValidationErrors}
		if row.Errors == nil {
			row.Errors = []string{}
		}
		if r.CreatedRegistrationID != nil {
			id := r.CreatedRegistrationID.String()
			row.CreatedRegistrationID = &id
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
