package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/transport/http/shared"
	userModel "namereg/internal/user/models"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Service defines the interface for user operations.
type Service interface {
	Current(ctx context.Context) (*userModel.User, error)
	UpdateSearchColumns(ctx context.Context, columns []string) (*userModel.User, error)
}

// Handler serves the user-settings endpoints.
type Handler struct {
	logger       *slog.Logger
	users        Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new user Handler.
func New(users Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, users: users, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the user routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	userRouter := chi.NewRouter()
	userRouter.Use(middleware.Recovery(h.logger))
	userRouter.Use(middleware.RequestID)
	userRouter.Use(middleware.Logger(h.logger))
	userRouter.Use(middleware.Timeout(15 * time.Second))
	userRouter.Use(middleware.ContentTypeJSON)
	userRouter.Use(middleware.LatencyMiddleware(h.metrics))
	userRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	userRouter.Get("/", h.handleGetSettings)
	userRouter.Put("/", h.handlePutSettings)

	r.Mount("/api/v1/usersettings", userRouter)
}

type settingsResponse struct {
	Username      string   `json:"username"`
	SearchColumns []string `json:"searchColumns"`
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.users.Current(ctx)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to load user settings",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, settingsResponse{Username: u.Username, SearchColumns: u.Columns()})
}

type putSettingsRequest struct {
	SearchColumns []string `json:"searchColumns"`
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req putSettingsRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	u, err := h.users.UpdateSearchColumns(ctx, req.SearchColumns)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to save user settings",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, settingsResponse{Username: u.Username, SearchColumns: u.Columns()})
}
