package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	nrmodels "namereg/internal/namerequest/models"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/search/solr"
	"namereg/internal/transport/http/shared"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Analysis types accepted by the per-name analysis endpoint.
const (
	analysisConflicts  = "conflicts"
	analysisHistories  = "histories"
	analysisTrademarks = "trademarks"
	analysisRestricted = "restricted_words"
)

// Searcher is the slice of the Solr client the handler queries.
type Searcher interface {
	Conflicts(ctx context.Context, bucket, name string, exact bool, rows int) (*solr.Result, error)
	Histories(ctx context.Context, name string, rows int) (*solr.Result, error)
	Trademarks(ctx context.Context, name string, rows int) (*solr.Result, error)
	RestrictedWords(ctx context.Context, name string, rows int) (*solr.Result, error)
	NameNRSearch(ctx context.Context, query string, rows int) (*solr.Result, error)
}

// RequestSource resolves the name under analysis.
type RequestSource interface {
	Get(ctx context.Context, nrNum string) (*nrmodels.Request, error)
}

// Handler serves the conflict-analysis and index-search endpoints.
type Handler struct {
	logger       *slog.Logger
	search       Searcher
	requests     RequestSource
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new search Handler.
func New(search Searcher, requests RequestSource, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, search: search, requests: requests, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the search routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	searchRouter := chi.NewRouter()
	searchRouter.Use(middleware.Recovery(h.logger))
	searchRouter.Use(middleware.RequestID)
	searchRouter.Use(middleware.Logger(h.logger))
	searchRouter.Use(middleware.Timeout(30 * time.Second))
	searchRouter.Use(middleware.LatencyMiddleware(h.metrics))
	searchRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	searchRouter.Use(middleware.RequireAnyRole(h.logger,
		middleware.RoleApprover, middleware.RoleEditor, middleware.RoleViewOnly))

	searchRouter.Get("/analysis/{nrNum}/{choice}/{analysisType}", h.handleAnalysis)
	searchRouter.Get("/search", h.handleNameNRSearch)

	r.Mount("/api/v1/documents", searchRouter)
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	nrNum, err := nrmodels.NormalizeNRNum(chi.URLParam(r, "nrNum"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	choice, err := strconv.Atoi(chi.URLParam(r, "choice"))
	if err != nil || choice < 1 || choice > 3 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "choice must be 1, 2 or 3"))
		return
	}

	req, err := h.requests.Get(ctx, nrNum)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to load request for analysis",
				"request_id", requestcontext.RequestID(ctx),
				"nr_num", nrNum,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	name := req.NameByChoice(choice)
	if name == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "name choice not found"))
		return
	}

	rows := queryRows(r)
	var result any
	switch chi.URLParam(r, "analysisType") {
	case analysisConflicts:
		result, err = h.conflictBuckets(ctx, name.Name, r.URL.Query().Get("exact") == "true", rows)
	case analysisHistories:
		result, err = h.search.Histories(ctx, name.Name, rows)
	case analysisTrademarks:
		result, err = h.search.Trademarks(ctx, name.Name, rows)
	case analysisRestricted:
		result, err = h.search.RestrictedWords(ctx, name.Name, rows)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "unknown analysis type")
	}
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "analysis query failed",
				"request_id", requestcontext.RequestID(ctx),
				"nr_num", nrNum,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

type conflictsResponse struct {
	Name    string        `json:"name"`
	Buckets []solr.Result `json:"buckets"`
}

// conflictBuckets queries the three conflict buckets in screen order.
func (h *Handler) conflictBuckets(ctx context.Context, name string, exact bool, rows int) (*conflictsResponse, error) {
	out := &conflictsResponse{Name: name}
	for _, bucket := range []string{solr.BucketSynonym, solr.BucketCobrsPhonetic, solr.BucketPhonetic} {
		res, err := h.search.Conflicts(ctx, bucket, name, exact, rows)
		if err != nil {
			return nil, err
		}
		out.Buckets = append(out.Buckets, *res)
	}
	return out, nil
}

func (h *Handler) handleNameNRSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query().Get("query")
	if query == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "query parameter is required"))
		return
	}

	res, err := h.search.NameNRSearch(ctx, query, queryRows(r))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "index search failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

func queryRows(r *http.Request) int {
	rows, err := strconv.Atoi(r.URL.Query().Get("rows"))
	if err != nil || rows < 1 || rows > 100 {
		return 10
	}
	return rows
}
