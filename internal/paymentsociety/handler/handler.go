package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/paymentsociety/models"
	"namereg/internal/paymentsociety/service"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/transport/http/shared"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Service defines the interface for payment operations.
type Service interface {
	Record(ctx context.Context, in service.RecordInput) (*models.PaymentSociety, error)
	List(ctx context.Context, nrNum string) ([]*models.PaymentSociety, error)
}

// Handler serves the society payment endpoints.
type Handler struct {
	logger       *slog.Logger
	payments     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new payment Handler.
func New(payments Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, payments: payments, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the payment routes with the chi router. Recording is
// reserved for the payment gateway's service account; staff read history.
func (h *Handler) Register(r chi.Router) {
	payRouter := chi.NewRouter()
	payRouter.Use(middleware.Recovery(h.logger))
	payRouter.Use(middleware.RequestID)
	payRouter.Use(middleware.Logger(h.logger))
	payRouter.Use(middleware.Timeout(15 * time.Second))
	payRouter.Use(middleware.ContentTypeJSON)
	payRouter.Use(middleware.LatencyMiddleware(h.metrics))
	payRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	payRouter.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireAnyRole(h.logger, middleware.RoleSystem))
		gr.Post("/society", h.handleRecord)
	})
	payRouter.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireAnyRole(h.logger,
			middleware.RoleApprover, middleware.RoleEditor, middleware.RoleViewOnly))
		gr.Get("/society/{nrNum}", h.handleList)
	})

	r.Mount("/api/v1/payments", payRouter)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in service.RecordInput
	if err := shared.DecodeJSON(r, &in); err != nil {
		shared.WriteError(w, err)
		return
	}

	p, err := h.payments.Record(ctx, in)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to record payment",
				"request_id", requestcontext.RequestID(ctx),
				"nr_num", in.NRNum,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, p)
}

type listResponse struct {
	Payments []*models.PaymentSociety `json:"payments"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.payments.List(ctx, chi.URLParam(r, "nrNum"))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to list payments",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	if rows == nil {
		rows = []*models.PaymentSociety{}
	}
	shared.WriteJSON(w, http.StatusOK, listResponse{Payments: rows})
}
