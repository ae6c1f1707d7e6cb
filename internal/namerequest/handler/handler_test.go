package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/service"
	"namereg/internal/namerequest/store"
	"namereg/internal/platform/logger"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

type stubValidator struct {
	claims requestcontext.Claims
	err    error
}

func (s stubValidator) ValidateToken(string) (requestcontext.Claims, error) {
	return s.claims, s.err
}

type fakeService struct {
	getFn     func(ctx context.Context, nrNum string) (*models.Request, error)
	nextFn    func(ctx context.Context, priority bool) (*models.Request, error)
	patchFn   func(ctx context.Context, nrNum string, in service.PatchInput) (*models.Request, error)
	searchFn  func(ctx context.Context, f store.SearchFilter) ([]*models.Request, int, error)
	decideFn  func(ctx context.Context, nrNum string, choice int, d service.NameDecision) (*models.Request, error)
	checkoutFn func(ctx context.Context, nrNum, token string) (string, error)
}

func (f *fakeService) Get(ctx context.Context, nrNum string) (*models.Request, error) {
	return f.getFn(ctx, nrNum)
}

func (f *fakeService) Create(ctx context.Context, in service.CreateInput) (*models.Request, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "not implemented")
}

func (f *fakeService) NextInQueue(ctx context.Context, priority bool) (*models.Request, error) {
	return f.nextFn(ctx, priority)
}

func (f *fakeService) Search(ctx context.Context, filter store.SearchFilter) ([]*models.Request, int, error) {
	return f.searchFn(ctx, filter)
}

func (f *fakeService) Patch(ctx context.Context, nrNum string, in service.PatchInput) (*models.Request, error) {
	return f.patchFn(ctx, nrNum, in)
}

func (f *fakeService) Replace(ctx context.Context, nrNum string, in service.ReplaceInput) (*models.Request, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "not implemented")
}

func (f *fakeService) DecideName(ctx context.Context, nrNum string, choice int, d service.NameDecision) (*models.Request, error) {
	return f.decideFn(ctx, nrNum, choice, d)
}

func (f *fakeService) AddComment(ctx context.Context, nrNum, text string) (*models.Request, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "not implemented")
}

func (f *fakeService) Checkout(ctx context.Context, nrNum, token string) (string, error) {
	return f.checkoutFn(ctx, nrNum, token)
}

func (f *fakeService) Checkin(ctx context.Context, nrNum, token string) error {
	return nil
}

func (f *fakeService) Stats(ctx context.Context, window time.Duration, examiner string, offset, limit int) ([]*models.Request, int, error) {
	return nil, 0, nil
}

func (f *fakeService) DecisionReasons(ctx context.Context) ([]store.DecisionReason, error) {
	return []store.DecisionReason{{ID: 1, Name: "Confusing", Reason: "Too similar."}}, nil
}

func newRequestRouter(svc Service, claims requestcontext.Claims) http.Handler {
	r := chi.NewRouter()
	h := New(svc, logger.New(), nil, stubValidator{claims: claims})
	h.Register(r)
	return r
}

func examinerClaims(roles ...string) requestcontext.Claims {
	return requestcontext.Claims{Sub: "u1", Username: "examiner1", Roles: roles}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-token")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	router := newRequestRouter(&fakeService{}, examinerClaims("approver"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/NR%201234567", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestRoleGuard(t *testing.T) {
	router := newRequestRouter(&fakeService{}, examinerClaims("viewonly"))

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/requests/NR%201234567", `{"state":"HOLD"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewonly patch, got %d", rec.Code)
	}
}

func TestGetRequest(t *testing.T) {
	svc := &fakeService{
		getFn: func(ctx context.Context, nrNum string) (*models.Request, error) {
			if nrNum != "NR 1234567" {
				return nil, dErrors.New(dErrors.CodeNotFound, "name request not found")
			}
			return &models.Request{NRNum: "NR 1234567", State: models.StateDraft}, nil
		},
	}
	router := newRequestRouter(svc, examinerClaims("viewonly"))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/requests/NR%201234567", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got models.Request
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.NRNum != "NR 1234567" {
		t.Fatalf("unexpected NR number %q", got.NRNum)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/requests/NR%209999999", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNextInQueue(t *testing.T) {
	var gotPriority bool
	svc := &fakeService{
		nextFn: func(ctx context.Context, priority bool) (*models.Request, error) {
			gotPriority = priority
			return &models.Request{NRNum: "NR 1234567", State: models.StateInProgress}, nil
		},
	}
	router := newRequestRouter(svc, examinerClaims("approver"))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/requests/queues/@me/oldest?priorityQueue=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !gotPriority {
		t.Fatal("priorityQueue flag not passed through")
	}
}

func TestPatchPassesInput(t *testing.T) {
	var got service.PatchInput
	svc := &fakeService{
		patchFn: func(ctx context.Context, nrNum string, in service.PatchInput) (*models.Request, error) {
			got = in
			return &models.Request{NRNum: nrNum, State: *in.State}, nil
		},
	}
	router := newRequestRouter(svc, examinerClaims("approver"))

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/requests/NR%201234567",
		`{"state":"APPROVED","comment":"looks fine","corpNum":"BC0011223"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.State == nil || *got.State != models.StateApproved {
		t.Fatalf("state not passed through: %+v", got)
	}
	if got.Comment != "looks fine" || got.CorpNum != "BC0011223" {
		t.Fatalf("fields not passed through: %+v", got)
	}
}

func TestSearchFilterParsing(t *testing.T) {
	var got store.SearchFilter
	svc := &fakeService{
		searchFn: func(ctx context.Context, f store.SearchFilter) ([]*models.Request, int, error) {
			got = f
			return nil, 0, nil
		},
	}
	router := newRequestRouter(svc, examinerClaims("viewonly"))

	rec := doJSON(t, router, http.MethodGet,
		"/api/v1/requests/?queue=DRAFT,HOLD&compName=acme&ranking=Priority&consentOption=Received&order=submittedDate:desc&rows=25&start=50", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(got.States) != 2 || got.States[0] != models.StateDraft || got.States[1] != models.StateHold {
		t.Fatalf("states not parsed: %+v", got.States)
	}
	if got.CompanyName != "acme" || got.Consent != store.ConsentRcvd {
		t.Fatalf("filters not parsed: %+v", got)
	}
	if got.Priority == nil || !*got.Priority {
		t.Fatal("ranking not parsed")
	}
	if !got.Descending || got.OrderBy != store.OrderBySubmitted {
		t.Fatalf("order not parsed: %+v", got)
	}
	if got.Limit != 25 || got.Offset != 50 {
		t.Fatalf("paging not parsed: %+v", got)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/requests/?queue=BOGUS", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown state, got %d", rec.Code)
	}
}

func TestDecideNameRequiresApprover(t *testing.T) {
	svc := &fakeService{
		decideFn: func(ctx context.Context, nrNum string, choice int, d service.NameDecision) (*models.Request, error) {
			return &models.Request{NRNum: nrNum}, nil
		},
	}

	editors := newRequestRouter(svc, examinerClaims("editor"))
	rec := doJSON(t, editors, http.MethodPut, "/api/v1/requests/NR%201234567/names/1", `{"state":"APPROVED"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for editor name decision, got %d", rec.Code)
	}

	approvers := newRequestRouter(svc, examinerClaims("approver"))
	rec = doJSON(t, approvers, http.MethodPut, "/api/v1/requests/NR%201234567/names/1", `{"state":"APPROVED"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for approver name decision, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckout(t *testing.T) {
	svc := &fakeService{
		checkoutFn: func(ctx context.Context, nrNum, token string) (string, error) {
			return "issued-token", nil
		},
	}
	router := newRequestRouter(svc, examinerClaims("editor"))

	rec := doJSON(t, router, http.MethodPatch, "/api/v1/requests/NR%201234567/checkout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		CheckoutToken string `json:"checkoutToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CheckoutToken != "issued-token" {
		t.Fatalf("unexpected token %q", resp.CheckoutToken)
	}
}
