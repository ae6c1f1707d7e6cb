package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/service"
	"namereg/internal/namerequest/store"
	"namereg/internal/platform/metrics"
	"namereg/internal/platform/middleware"
	"namereg/internal/transport/http/shared"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Service defines the interface for name-request operations.
type Service interface {
	Get(ctx context.Context, nrNum string) (*models.Request, error)
	Create(ctx context.Context, in service.CreateInput) (*models.Request, error)
	NextInQueue(ctx context.Context, priority bool) (*models.Request, error)
	Search(ctx context.Context, f store.SearchFilter) ([]*models.Request, int, error)
	Patch(ctx context.Context, nrNum string, in service.PatchInput) (*models.Request, error)
	Replace(ctx context.Context, nrNum string, in service.ReplaceInput) (*models.Request, error)
	DecideName(ctx context.Context, nrNum string, choice int, d service.NameDecision) (*models.Request, error)
	AddComment(ctx context.Context, nrNum, text string) (*models.Request, error)
	Checkout(ctx context.Context, nrNum, token string) (string, error)
	Checkin(ctx context.Context, nrNum, token string) error
	Stats(ctx context.Context, window time.Duration, examiner string, offset, limit int) ([]*models.Request, int, error)
	DecisionReasons(ctx context.Context) ([]store.DecisionReason, error)
}

// Handler serves the name-request endpoints.
type Handler struct {
	logger       *slog.Logger
	requests     Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new name-request Handler.
func New(requests Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{logger: logger, requests: requests, metrics: m, jwtValidator: jwtValidator}
}

// Register registers the request routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	reqRouter := chi.NewRouter()
	reqRouter.Use(middleware.Recovery(h.logger))
	reqRouter.Use(middleware.RequestID)
	reqRouter.Use(middleware.Logger(h.logger))
	reqRouter.Use(middleware.Timeout(30 * time.Second))
	reqRouter.Use(middleware.ContentTypeJSON)
	reqRouter.Use(middleware.LatencyMiddleware(h.metrics))
	reqRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	staff := middleware.RequireAnyRole(h.logger, middleware.RoleApprover, middleware.RoleEditor, middleware.RoleViewOnly, middleware.RoleSystem)
	editors := middleware.RequireAnyRole(h.logger, middleware.RoleApprover, middleware.RoleEditor, middleware.RoleSystem)
	approvers := middleware.RequireAnyRole(h.logger, middleware.RoleApprover, middleware.RoleSystem)

	reqRouter.With(staff).Get("/", h.handleSearch)
	reqRouter.With(editors).Post("/", h.handleCreate)
	reqRouter.With(editors).Get("/queues/@me/oldest", h.handleNextInQueue)
	reqRouter.With(staff).Get("/stats", h.handleStats)
	reqRouter.With(staff).Get("/decisionreasons", h.handleDecisionReasons)
	reqRouter.With(staff).Get("/{nrNum}", h.handleGet)
	reqRouter.With(editors).Patch("/{nrNum}", h.handlePatch)
	reqRouter.With(editors).Put("/{nrNum}", h.handleReplace)
	reqRouter.With(approvers).Put("/{nrNum}/names/{choice}", h.handleDecideName)
	reqRouter.With(editors).Post("/{nrNum}/comments", h.handleAddComment)
	reqRouter.With(editors).Patch("/{nrNum}/checkout", h.handleCheckout)
	reqRouter.With(editors).Patch("/{nrNum}/checkin", h.handleCheckin)

	r.Mount("/api/v1/requests", reqRouter)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	nr, err := h.requests.Get(r.Context(), chi.URLParam(r, "nrNum"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nr)
}

type createRequest struct {
	RequestType    string            `json:"requestTypeCd"`
	Priority       bool              `json:"priority"`
	NatureBusiness string            `json:"natureBusinessInfo"`
	AdditionalInfo string            `json:"additionalInfo"`
	XproJuris      string            `json:"xproJurisdiction"`
	HomeJurisNum   string            `json:"homeJurisNum"`
	Applicant      *models.Applicant `json:"applicant"`
	Names          []models.Name     `json:"names"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	nr, err := h.requests.Create(ctx, service.CreateInput{
		RequestType:    req.RequestType,
		Priority:       req.Priority,
		NatureBusiness: req.NatureBusiness,
		AdditionalInfo: req.AdditionalInfo,
		XproJuris:      req.XproJuris,
		HomeJurisNum:   req.HomeJurisNum,
		Applicant:      req.Applicant,
		Names:          req.Names,
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "failed to create name request",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, nr)
}

func (h *Handler) handleNextInQueue(w http.ResponseWriter, r *http.Request) {
	priority := r.URL.Query().Get("priorityQueue") == "true"
	nr, err := h.requests.NextInQueue(r.Context(), priority)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"nameRequest": nr})
}

type searchResponse struct {
	Requests []*models.Request `json:"nameRequests"`
	Total    int               `json:"response_count"`
	Offset   int               `json:"start"`
	Limit    int               `json:"rows"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseSearchFilter(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out, total, err := h.requests.Search(ctx, f)
	if err != nil {
		h.logger.ErrorContext(ctx, "search failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	shared.WriteJSON(w, http.StatusOK, searchResponse{Requests: out, Total: total, Offset: f.Offset, Limit: limit})
}

type patchRequest struct {
	State          *models.State `json:"state"`
	Comment        string        `json:"comment"`
	CorpNum        string        `json:"corpNum"`
	ConsentFlag    *string       `json:"consentFlag"`
	AdditionalInfo *string       `json:"additionalInfo"`
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	nr, err := h.requests.Patch(r.Context(), chi.URLParam(r, "nrNum"), service.PatchInput{
		State:          req.State,
		Comment:        req.Comment,
		CorpNum:        req.CorpNum,
		ConsentFlag:    req.ConsentFlag,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nr)
}

type replaceRequest struct {
	Priority       bool              `json:"priority"`
	ConsentFlag    string            `json:"consentFlag"`
	Furnished      bool              `json:"furnished"`
	RequestType    string            `json:"requestTypeCd"`
	NatureBusiness string            `json:"natureBusinessInfo"`
	AdditionalInfo string            `json:"additionalInfo"`
	XproJuris      string            `json:"xproJurisdiction"`
	HomeJurisNum   string            `json:"homeJurisNum"`
	CorpNum        string            `json:"corpNum"`
	Applicant      *models.Applicant `json:"applicant"`
	Names          []models.Name     `json:"names"`
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request) {
	var req replaceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	nr, err := h.requests.Replace(r.Context(), chi.URLParam(r, "nrNum"), service.ReplaceInput{
		Priority:       req.Priority,
		ConsentFlag:    req.ConsentFlag,
		Furnished:      req.Furnished,
		RequestType:    req.RequestType,
		NatureBusiness: req.NatureBusiness,
		AdditionalInfo: req.AdditionalInfo,
		XproJuris:      req.XproJuris,
		HomeJurisNum:   req.HomeJurisNum,
		CorpNum:        req.CorpNum,
		Applicant:      req.Applicant,
		Names:          req.Names,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nr)
}

type nameDecisionRequest struct {
	State        models.NameState `json:"state"`
	Conflict1    string           `json:"conflict1"`
	Conflict1Num string           `json:"conflict1_num"`
	Conflict2    string           `json:"conflict2"`
	Conflict2Num string           `json:"conflict2_num"`
	Conflict3    string           `json:"conflict3"`
	Conflict3Num string           `json:"conflict3_num"`
	DecisionText string           `json:"decision_text"`
	Comment      string           `json:"comment"`
}

func (h *Handler) handleDecideName(w http.ResponseWriter, r *http.Request) {
	choice, err := strconv.Atoi(chi.URLParam(r, "choice"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid name choice"))
		return
	}
	var req nameDecisionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	nr, err := h.requests.DecideName(r.Context(), chi.URLParam(r, "nrNum"), choice, service.NameDecision{
		State:        req.State,
		Conflict1:    req.Conflict1,
		Conflict1Num: req.Conflict1Num,
		Conflict2:    req.Conflict2,
		Conflict2Num: req.Conflict2Num,
		Conflict3:    req.Conflict3,
		Conflict3Num: req.Conflict3Num,
		DecisionText: req.DecisionText,
		Comment:      req.Comment,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nr)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	nr, err := h.requests.AddComment(r.Context(), chi.URLParam(r, "nrNum"), req.Comment)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, nr)
}

type checkoutRequest struct {
	CheckoutToken string `json:"checkoutToken"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.WriteError(w, err)
			return
		}
	}

	token, err := h.requests.Checkout(r.Context(), chi.URLParam(r, "nrNum"), req.CheckoutToken)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, checkoutRequest{CheckoutToken: token})
}

func (h *Handler) handleCheckin(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.requests.Checkin(r.Context(), chi.URLParam(r, "nrNum"), req.CheckoutToken); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"message": "checked in"})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hours := 24
	if v := q.Get("timespan"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "timespan must be a positive number of hours"))
			return
		}
		hours = parsed
	}
	offset, _ := strconv.Atoi(q.Get("start"))
	limit, _ := strconv.Atoi(q.Get("rows"))

	examiner := ""
	if q.Get("currentuser") == "true" {
		examiner = requestcontext.CallerClaims(r.Context()).Username
	}

	out, total, err := h.requests.Stats(r.Context(), time.Duration(hours)*time.Hour, examiner, offset, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"numRecords":   total,
		"nameRequests": out,
	})
}

func (h *Handler) handleDecisionReasons(w http.ResponseWriter, r *http.Request) {
	reasons, err := h.requests.DecisionReasons(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reasons)
}

// parseSearchFilter maps the query surface onto a store filter.
func parseSearchFilter(r *http.Request) (store.SearchFilter, error) {
	q := r.URL.Query()
	var f store.SearchFilter

	if queue := q.Get("queue"); queue != "" {
		for _, raw := range strings.Split(queue, ",") {
			st := models.State(strings.ToUpper(strings.TrimSpace(raw)))
			if !st.Valid() {
				return f, dErrors.New(dErrors.CodeBadRequest, "unknown state in queue filter: "+raw)
			}
			f.States = append(f.States, st)
		}
	}
	f.NRNum = q.Get("nrNum")
	f.CompanyName = q.Get("compName")
	f.FirstName = q.Get("firstName")
	f.LastName = q.Get("lastName")
	f.ActiveUser = q.Get("activeUser")

	switch q.Get("consentOption") {
	case "", "All":
		f.Consent = store.ConsentAny
	case "Yes":
		f.Consent = store.ConsentYes
	case "No":
		f.Consent = store.ConsentNo
	case "Received":
		f.Consent = store.ConsentRcvd
	case "Waived":
		f.Consent = store.ConsentWaivedOp
	default:
		return f, dErrors.New(dErrors.CodeBadRequest, "unknown consentOption")
	}

	switch q.Get("ranking") {
	case "Priority":
		t := true
		f.Priority = &t
	case "Standard":
		fa := false
		f.Priority = &fa
	}

	if v := q.Get("furnished"); v != "" {
		furnished := v == "true"
		f.Furnished = &furnished
	}

	now := time.Now().UTC()
	if v := q.Get("submittedInterval"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "submittedInterval must be a positive number of days")
		}
		after := now.AddDate(0, 0, -days)
		f.SubmittedAfter = &after
	}
	if v := q.Get("lastUpdateInterval"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return f, dErrors.New(dErrors.CodeBadRequest, "lastUpdateInterval must be a positive number of days")
		}
		after := now.AddDate(0, 0, -days)
		f.LastUpdateAfter = &after
	}
	if v := q.Get("submittedStartDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "submittedStartDate must be YYYY-MM-DD")
		}
		f.SubmittedAfter = &t
	}
	if v := q.Get("submittedEndDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeBadRequest, "submittedEndDate must be YYYY-MM-DD")
		}
		end := t.AddDate(0, 0, 1)
		f.SubmittedBefore = &end
	}

	if order := q.Get("order"); order != "" {
		col, dir, _ := strings.Cut(order, ":")
		switch col {
		case store.OrderBySubmitted, store.OrderByLastUpdate, store.OrderByNRNum, store.OrderByExpiration:
			f.OrderBy = col
		default:
			return f, dErrors.New(dErrors.CodeBadRequest, "unknown order column: "+col)
		}
		f.Descending = strings.EqualFold(dir, "desc")
	}

	f.Offset, _ = strconv.Atoi(q.Get("start"))
	if v := q.Get("rows"); v != "" {
		rows, err := strconv.Atoi(v)
		if err != nil || rows <= 0 || rows > 1000 {
			return f, dErrors.New(dErrors.CodeBadRequest, "rows must be between 1 and 1000")
		}
		f.Limit = rows
	}
	return f, nil
}
