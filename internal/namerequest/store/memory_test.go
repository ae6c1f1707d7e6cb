package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/namerequest/models"
	"namereg/pkg/platform/sentinel"
)

type RequestStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
	now   time.Time
}

func (s *RequestStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestRequestStoreSuite(t *testing.T) {
	suite.Run(t, new(RequestStoreSuite))
}

func (s *RequestStoreSuite) newRequest(nrNum string, state models.State) *models.Request {
	return &models.Request{
		NRNum:         nrNum,
		State:         state,
		SubmittedDate: s.now,
		RequestType:   "CR",
		LastUpdate:    s.now,
		Names: []models.Name{
			{Choice: 1, Name: "ACME HOLDINGS LTD.", State: models.NameStateNotExamined},
		},
		Applicant: &models.Applicant{
			FirstName:    "Pat",
			LastName:     "Smith",
			EmailAddress: "pat@example.com",
		},
	}
}

// TestCreationAndLookups verifies basic create/get round trips.
func (s *RequestStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds by NR number", func() {
		created, err := s.store.Create(s.ctx, s.newRequest("NR 1000001", models.StateDraft))
		s.Require().NoError(err)
		s.NotZero(created.ID)

		found, err := s.store.GetByNRNum(s.ctx, "NR 1000001")
		s.Require().NoError(err)
		s.Equal(models.StateDraft, found.State)
		s.Len(found.Names, 1)
		s.Equal("Smith", found.Applicant.LastName)
	})

	s.Run("rejects duplicate NR number", func() {
		_, err := s.store.Create(s.ctx, s.newRequest("NR 1000002", models.StateDraft))
		s.Require().NoError(err)

		_, err = s.store.Create(s.ctx, s.newRequest("NR 1000002", models.StateDraft))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("returns ErrNotFound for unknown NR", func() {
		_, err := s.store.GetByNRNum(s.ctx, "NR 9999999")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestExecute verifies the atomic load-mutate-persist path.
func (s *RequestStoreSuite) TestExecute() {
	s.Run("persists mutations and bumps last update", func() {
		_, err := s.store.Create(s.ctx, s.newRequest("NR 2000001", models.StateDraft))
		s.Require().NoError(err)

		later := s.now.Add(time.Hour)
		updated, err := s.store.Execute(s.ctx, "NR 2000001", later, func(r *models.Request) error {
			r.State = models.StateHold
			return nil
		})
		s.Require().NoError(err)
		s.Equal(models.StateHold, updated.State)
		s.Equal(later, updated.LastUpdate)
	})

	s.Run("aborts without persisting when fn errors", func() {
		_, err := s.store.Create(s.ctx, s.newRequest("NR 2000002", models.StateDraft))
		s.Require().NoError(err)

		_, err = s.store.Execute(s.ctx, "NR 2000002", s.now, func(r *models.Request) error {
			r.State = models.StateCancelled
			return fmt.Errorf("boom")
		})
		s.Require().Error(err)

		found, err := s.store.GetByNRNum(s.ctx, "NR 2000002")
		s.Require().NoError(err)
		s.Equal(models.StateDraft, found.State)
	})
}

// TestQueue verifies the examiner queue claim semantics. Each subtest seeds
// its own store so leftover drafts cannot leak between claims.
func (s *RequestStoreSuite) TestQueue() {
	seed := func(st *MemoryStore, nrNum string, priority bool, age time.Duration) {
		r := s.newRequest(nrNum, models.StateDraft)
		r.Priority = priority
		r.SubmittedDate = s.now.Add(-age)
		_, err := st.Create(s.ctx, r)
		s.Require().NoError(err)
	}

	s.Run("claims the oldest draft", func() {
		st := NewMemory()
		seed(st, "NR 3000001", false, 2*time.Hour)
		seed(st, "NR 3000002", false, time.Hour)

		claimed, err := st.AssignOldestDraft(s.ctx, "examiner1", false, s.now)
		s.Require().NoError(err)
		s.Equal("NR 3000001", claimed.NRNum)
		s.Equal(models.StateInProgress, claimed.State)
		s.Equal("examiner1", claimed.ActiveUser)
	})

	s.Run("priority draft jumps the standard queue", func() {
		st := NewMemory()
		seed(st, "NR 3000001", false, 2*time.Hour)
		seed(st, "NR 3000002", true, time.Hour)

		claimed, err := st.AssignOldestDraft(s.ctx, "examiner1", false, s.now)
		s.Require().NoError(err)
		s.Equal("NR 3000002", claimed.NRNum)
	})

	s.Run("priority queue skips standard requests", func() {
		st := NewMemory()
		seed(st, "NR 3000003", false, 3*time.Hour)
		seed(st, "NR 3000004", true, time.Hour)

		claimed, err := st.AssignOldestDraft(s.ctx, "examiner2", true, s.now)
		s.Require().NoError(err)
		s.Equal("NR 3000004", claimed.NRNum)
	})

	s.Run("empty queue returns ErrNotFound", func() {
		st := NewMemory()
		_, err := st.AssignOldestDraft(s.ctx, "examiner3", false, s.now)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("lists requests held by an examiner", func() {
		held := s.newRequest("NR 3000005", models.StateInProgress)
		held.ActiveUser = "examiner4"
		_, err := s.store.Create(s.ctx, held)
		s.Require().NoError(err)

		got, err := s.store.InProgressBy(s.ctx, "examiner4")
		s.Require().NoError(err)
		s.Len(got, 1)
		s.Equal("NR 3000005", got[0].NRNum)
	})
}

// TestSearch verifies filtering, ordering, and paging.
func (s *RequestStoreSuite) TestSearch() {
	seed := func(nrNum string, state models.State, name string, lastName string, priority bool) {
		r := s.newRequest(nrNum, state)
		r.Names[0].Name = name
		r.Applicant.LastName = lastName
		r.Priority = priority
		_, err := s.store.Create(s.ctx, r)
		s.Require().NoError(err)
	}

	seed("NR 4000001", models.StateDraft, "BLUE MOUNTAIN COFFEE LTD.", "Jones", false)
	seed("NR 4000002", models.StateDraft, "RED RIVER TRADING INC.", "Smith", true)
	seed("NR 4000003", models.StateApproved, "BLUE SKY VENTURES LTD.", "Jones", false)

	s.Run("filters by state", func() {
		got, total, err := s.store.Search(s.ctx, SearchFilter{States: []models.State{models.StateApproved}})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal("NR 4000003", got[0].NRNum)
	})

	s.Run("matches company name tokens", func() {
		_, total, err := s.store.Search(s.ctx, SearchFilter{CompanyName: "blue"})
		s.Require().NoError(err)
		s.Equal(2, total)
	})

	s.Run("filters by applicant last name", func() {
		_, total, err := s.store.Search(s.ctx, SearchFilter{LastName: "smith"})
		s.Require().NoError(err)
		s.Equal(1, total)
	})

	s.Run("filters by priority", func() {
		pri := true
		got, total, err := s.store.Search(s.ctx, SearchFilter{Priority: &pri})
		s.Require().NoError(err)
		s.Equal(1, total)
		s.Equal("NR 4000002", got[0].NRNum)
	})

	s.Run("substring match on NR number", func() {
		_, total, err := s.store.Search(s.ctx, SearchFilter{NRNum: "400000"})
		s.Require().NoError(err)
		s.Equal(3, total)
	})

	s.Run("pages with total count", func() {
		got, total, err := s.store.Search(s.ctx, SearchFilter{Limit: 2})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Len(got, 2)
	})
}

// TestCompletedSince verifies the stats window query.
func (s *RequestStoreSuite) TestCompletedSince() {
	decided := s.newRequest("NR 5000001", models.StateApproved)
	decided.ActiveUser = "examiner1"
	decided.LastUpdate = s.now
	_, err := s.store.Create(s.ctx, decided)
	s.Require().NoError(err)

	stale := s.newRequest("NR 5000002", models.StateRejected)
	stale.ActiveUser = "examiner2"
	stale.LastUpdate = s.now.Add(-48 * time.Hour)
	_, err = s.store.Create(s.ctx, stale)
	s.Require().NoError(err)

	got, total, err := s.store.CompletedSince(s.ctx, s.now.Add(-24*time.Hour), "", 0, 10)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("NR 5000001", got[0].NRNum)

	_, total, err = s.store.CompletedSince(s.ctx, s.now.Add(-72*time.Hour), "examiner2", 0, 10)
	s.Require().NoError(err)
	s.Equal(1, total)
}
