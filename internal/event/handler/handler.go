package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	eventModel "namereg/internal/event/models"
	"namereg/internal/event/service"
	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/transport/http/shared"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Service defines the interface for audit-trail operations.
type Service interface {
	History(ctx context.Context, nrNum string) ([]service.HistoryEntry, error)
	Get(ctx context.Context, id int64) (*eventModel.Event, error)
	Resend(ctx context.Context, id int64) (*eventModel.Event, error)
	RecordSystem(ctx context.Context, action, nrNum string, state nrmodels.State, payload json.RawMessage) error
}

// Handler serves the event endpoints.
type Handler struct {
	logger       *slog.Logger
	events       Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new event Handler.
func New(events Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, events: events, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the event routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	eventRouter := chi.NewRouter()
	eventRouter.Use(middleware.Recovery(h.logger))
	eventRouter.Use(middleware.RequestID)
	eventRouter.Use(middleware.Logger(h.logger))
	eventRouter.Use(middleware.Timeout(30 * time.Second))
	eventRouter.Use(middleware.ContentTypeJSON)
	eventRouter.Use(middleware.LatencyMiddleware(h.metrics))
	eventRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	eventRouter.Get("/event/{eventID}", h.handleGetEvent)
	eventRouter.With(middleware.RequireAnyRole(h.logger, middleware.RoleApprover, middleware.RoleEditor)).
		Patch("/event/{eventID}/resend", h.handleResend)
	eventRouter.Get("/{nrNum}", h.handleHistory)
	eventRouter.With(middleware.RequireAnyRole(h.logger, middleware.RoleSystem)).
		Post("/{nrNum}", h.handlePostSystemEvent)

	r.Mount("/api/v1/events", eventRouter)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nrNum := chi.URLParam(r, "nrNum")

	history, err := h.events.History(ctx, nrNum)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeBadRequest) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to load transaction history",
			"request_id", requestcontext.RequestID(ctx),
			"nr_num", nrNum,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	e, err := h.events.Get(ctx, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	e, err := h.events.Resend(ctx, id)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "failed to resend notification",
				"request_id", requestcontext.RequestID(ctx),
				"event_id", id,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, e)
}

type systemEventRequest struct {
	Action  string          `json:"action"`
	State   nrmodels.State  `json:"stateCd"`
	Payload json.RawMessage `json:"jsonData"`
}

func (h *Handler) handlePostSystemEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nrNum, err := nrmodels.NormalizeNRNum(chi.URLParam(r, "nrNum"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req systemEventRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.Action == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "action is required"))
		return
	}

	if err := h.events.RecordSystem(ctx, req.Action, nrNum, req.State, req.Payload); err != nil {
		h.logger.ErrorContext(ctx, "failed to record system event",
			"request_id", requestcontext.RequestID(ctx),
			"nr_num", nrNum,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"message": "event recorded"})
}
