package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"namereg/internal/namerequest/models"
	"namereg/pkg/platform/sentinel"
)

const defaultPageSize = 10

// MemoryStore is an in-memory RequestStore for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
	nextID   int64
	reasons  []DecisionReason
}

// NewMemory constructs an empty in-memory store with the stock decision
// reasons loaded.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.Request),
		nextID:   1,
		reasons: []DecisionReason{
			{ID: 1, Name: "Distinctiveness", Reason: "The name is not distinctive enough to identify the business."},
			{ID: 2, Name: "Confusing", Reason: "The name is confusingly similar to an existing corporate name."},
			{ID: 3, Name: "Consent Required", Reason: "Use of this name requires consent from a third party."},
			{ID: 4, Name: "Designation", Reason: "The name requires a corporate designation for this entity type."},
		},
	}
}

func (s *MemoryStore) Create(ctx context.Context, r *models.Request) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.NRNum]; exists {
		return nil, fmt.Errorf("create request %s: %w", r.NRNum, sentinel.ErrConflict)
	}
	stored := clone(r)
	stored.ID = s.nextID
	s.nextID++
	s.requests[r.NRNum] = stored
	return clone(stored), nil
}

func (s *MemoryStore) GetByNRNum(ctx context.Context, nrNum string) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[nrNum]
	if !ok {
		return nil, fmt.Errorf("get request %s: %w", nrNum, sentinel.ErrNotFound)
	}
	return clone(r), nil
}

func (s *MemoryStore) Update(ctx context.Context, r *models.Request) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requests[r.NRNum]
	if !ok {
		return nil, fmt.Errorf("update request %s: %w", r.NRNum, sentinel.ErrNotFound)
	}
	stored := clone(r)
	stored.ID = existing.ID
	s.requests[r.NRNum] = stored
	return clone(stored), nil
}

func (s *MemoryStore) Execute(ctx context.Context, nrNum string, now time.Time, fn func(*models.Request) error) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.requests[nrNum]
	if !ok {
		return nil, fmt.Errorf("execute on request %s: %w", nrNum, sentinel.ErrNotFound)
	}
	working := clone(existing)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.LastUpdate = now
	s.requests[nrNum] = working
	return clone(working), nil
}

func (s *MemoryStore) AssignOldestDraft(ctx context.Context, examiner string, priority bool, now time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var head *models.Request
	for _, r := range s.requests {
		if r.State != models.StateDraft {
			continue
		}
		if priority && !r.Priority {
			continue
		}
		if head == nil || claimBefore(r, head) {
			head = r
		}
	}
	if head == nil {
		return nil, fmt.Errorf("assign oldest draft: %w", sentinel.ErrNotFound)
	}
	working := clone(head)
	if err := working.Assign(examiner); err != nil {
		return nil, err
	}
	working.LastUpdate = now
	s.requests[working.NRNum] = working
	return clone(working), nil
}

// claimBefore orders queue claims the way the Postgres twin does: priority
// drafts first, then oldest submission.
func claimBefore(a, b *models.Request) bool {
	if a.Priority != b.Priority {
		return a.Priority
	}
	return a.SubmittedDate.Before(b.SubmittedDate)
}

func (s *MemoryStore) InProgressBy(ctx context.Context, examiner string) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Request
	for _, r := range s.requests {
		if r.State == models.StateInProgress && r.ActiveUser == examiner {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedDate.Before(out[j].SubmittedDate) })
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, f SearchFilter) ([]*models.Request, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.Request
	for _, r := range s.requests {
		if matchesFilter(r, f) {
			matches = append(matches, clone(r))
		}
	}
	sortMatches(matches, f)

	total := len(matches)
	matches = page(matches, f.Offset, f.Limit)
	return matches, total, nil
}

func (s *MemoryStore) CompletedSince(ctx context.Context, cutoff time.Time, examiner string, offset, limit int) ([]*models.Request, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.Request
	for _, r := range s.requests {
		if !r.State.IsDecision() {
			continue
		}
		if r.LastUpdate.Before(cutoff) {
			continue
		}
		if examiner != "" && r.ActiveUser != examiner {
			continue
		}
		matches = append(matches, clone(r))
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].LastUpdate.After(matches[j].LastUpdate) })

	total := len(matches)
	matches = page(matches, offset, limit)
	return matches, total, nil
}

func (s *MemoryStore) DecisionReasons(ctx context.Context) ([]DecisionReason, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DecisionReason, len(s.reasons))
	copy(out, s.reasons)
	return out, nil
}

func matchesFilter(r *models.Request, f SearchFilter) bool {
	if len(f.States) > 0 {
		found := false
		for _, st := range f.States {
			if r.State == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.NRNum != "" && !strings.Contains(r.NRNum, strings.ToUpper(f.NRNum)) {
		return false
	}
	if f.CompanyName != "" && !strings.Contains(r.SearchBlob(), strings.ToUpper(f.CompanyName)) {
		return false
	}
	if f.FirstName != "" {
		if r.Applicant == nil || !strings.EqualFold(r.Applicant.FirstName, f.FirstName) {
			return false
		}
	}
	if f.LastName != "" {
		if r.Applicant == nil || !strings.EqualFold(r.Applicant.LastName, f.LastName) {
			return false
		}
	}
	if !consentMatches(r.ConsentFlag, f.Consent) {
		return false
	}
	if f.Priority != nil && r.Priority != *f.Priority {
		return false
	}
	if f.Furnished != nil && r.Furnished != *f.Furnished {
		return false
	}
	if f.ActiveUser != "" && r.ActiveUser != f.ActiveUser {
		return false
	}
	if f.SubmittedAfter != nil && r.SubmittedDate.Before(*f.SubmittedAfter) {
		return false
	}
	if f.SubmittedBefore != nil && !r.SubmittedDate.Before(*f.SubmittedBefore) {
		return false
	}
	if f.LastUpdateAfter != nil && r.LastUpdate.Before(*f.LastUpdateAfter) {
		return false
	}
	if f.LastUpdateBefore != nil && !r.LastUpdate.Before(*f.LastUpdateBefore) {
		return false
	}
	if f.ExpiresBefore != nil {
		if r.ExpirationDate == nil || !r.ExpirationDate.Before(*f.ExpiresBefore) {
			return false
		}
	}
	return true
}

func consentMatches(flag string, opt ConsentOption) bool {
	switch opt {
	case ConsentAny:
		return true
	case ConsentYes:
		return flag == models.ConsentRequired
	case ConsentNo:
		return flag == ""
	case ConsentRcvd:
		return flag == models.ConsentReceived
	case ConsentWaivedOp:
		return flag == models.ConsentWaived
	}
	return true
}

// sortMatches orders a result set, nil expiration dates last to mirror the
// NULLS LAST ordering of the Postgres store.
func sortMatches(matches []*models.Request, f SearchFilter) {
	less := func(i, j *models.Request) bool {
		switch f.OrderBy {
		case OrderByLastUpdate:
			return i.LastUpdate.Before(j.LastUpdate)
		case OrderByNRNum:
			return i.NRNum < j.NRNum
		case OrderByExpiration:
			if i.ExpirationDate == nil {
				return false
			}
			if j.ExpirationDate == nil {
				return true
			}
			return i.ExpirationDate.Before(*j.ExpirationDate)
		default:
			return i.SubmittedDate.Before(j.SubmittedDate)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if f.Descending {
			return less(matches[j], matches[i])
		}
		return less(matches[i], matches[j])
	})
}

func page(matches []*models.Request, offset, limit int) []*models.Request {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset >= len(matches) {
		return nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end]
}

func clone(r *models.Request) *models.Request {
	out := *r
	if r.PreviousState != nil {
		prev := *r.PreviousState
		out.PreviousState = &prev
	}
	if r.ExpirationDate != nil {
		exp := *r.ExpirationDate
		out.ExpirationDate = &exp
	}
	if r.Applicant != nil {
		a := *r.Applicant
		out.Applicant = &a
	}
	out.Names = make([]models.Name, len(r.Names))
	copy(out.Names, r.Names)
	for i := range out.Names {
		if r.Names[i].ConsumptionDate != nil {
			d := *r.Names[i].ConsumptionDate
			out.Names[i].ConsumptionDate = &d
		}
	}
	out.Comments = make([]models.Comment, len(r.Comments))
	copy(out.Comments, r.Comments)
	return &out
}
