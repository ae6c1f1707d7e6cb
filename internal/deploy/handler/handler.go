package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/deploy"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/transport/http/shared"
)

// Handler exposes the promotion pipeline for operators.
type Handler struct {
	logger       *slog.Logger
	pipeline     deploy.Pipeline
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new deploy Handler.
func New(pipeline deploy.Pipeline, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, pipeline: pipeline, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the ops routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	opsRouter := chi.NewRouter()
	opsRouter.Use(middleware.Recovery(h.logger))
	opsRouter.Use(middleware.RequestID)
	opsRouter.Use(middleware.Logger(h.logger))
	opsRouter.Use(middleware.Timeout(10 * time.Second))
	opsRouter.Use(middleware.LatencyMiddleware(h.metrics))
	opsRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	opsRouter.Use(middleware.RequireAnyRole(h.logger, middleware.RoleApprover, middleware.RoleSystem))

	opsRouter.Get("/deploy", h.handleGetPipeline)

	r.Mount("/api/v1/ops", opsRouter)
}

type pipelineResponse struct {
	deploy.Pipeline
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	resp := pipelineResponse{Pipeline: h.pipeline, Valid: true}
	if err := h.pipeline.Validate(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}
