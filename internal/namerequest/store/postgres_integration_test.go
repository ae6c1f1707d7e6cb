//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "request_comments", "request_applicants", "request_names", "requests")
	s.Require().NoError(err)
}

func newTestRequest(nrNum string, state models.State, submitted time.Time) *models.Request {
	return &models.Request{
		NRNum:         nrNum,
		State:         state,
		SubmittedDate: submitted,
		RequestType:   "CR",
		LastUpdate:    submitted,
		Names: []models.Name{
			{Choice: 1, Name: "ACME HOLDINGS LTD.", State: models.NameStateNotExamined},
			{Choice: 2, Name: "ACME VENTURES LTD.", State: models.NameStateNotExamined},
		},
		Applicant: &models.Applicant{
			FirstName:    "Pat",
			LastName:     "Smith",
			EmailAddress: "pat@example.com",
		},
	}
}

// TestRoundTrip verifies the aggregate persists with all children.
func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()

	created, err := s.store.Create(ctx, newTestRequest("NR 1000001", models.StateDraft, s.now))
	s.Require().NoError(err)
	s.NotZero(created.ID)

	found, err := s.store.GetByNRNum(ctx, "NR 1000001")
	s.Require().NoError(err)
	s.Equal(models.StateDraft, found.State)
	s.Len(found.Names, 2)
	s.Require().NotNil(found.Applicant)
	s.Equal("pat@example.com", found.Applicant.EmailAddress)

	_, err = s.store.Create(ctx, newTestRequest("NR 1000001", models.StateDraft, s.now))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

// TestConcurrentQueueClaims verifies SKIP LOCKED hands each draft to exactly
// one examiner.
func (s *PostgresStoreSuite) TestConcurrentQueueClaims() {
	ctx := context.Background()

	const drafts = 5
	for i := 0; i < drafts; i++ {
		nr := newTestRequest("NR 200000"+string(rune('1'+i)), models.StateDraft, s.now.Add(time.Duration(i)*time.Minute))
		_, err := s.store.Create(ctx, nr)
		s.Require().NoError(err)
	}

	const goroutines = 10
	var wg sync.WaitGroup
	var claimed atomic.Int32
	var empty atomic.Int32
	seen := sync.Map{}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r, err := s.store.AssignOldestDraft(ctx, "examiner", false, s.now)
			if err != nil {
				empty.Add(1)
				return
			}
			if _, dup := seen.LoadOrStore(r.NRNum, true); dup {
				s.T().Errorf("request %s claimed twice", r.NRNum)
			}
			claimed.Add(1)
		}(i)
	}
	wg.Wait()

	s.Equal(int32(drafts), claimed.Load())
	s.Equal(int32(goroutines-drafts), empty.Load())
}

// TestPriorityDraftJumpsQueue verifies a newer priority draft is claimed
// ahead of an older standard one, matching the memory twin.
func (s *PostgresStoreSuite) TestPriorityDraftJumpsQueue() {
	ctx := context.Background()

	std := newTestRequest("NR 2100001", models.StateDraft, s.now.Add(-2*time.Hour))
	_, err := s.store.Create(ctx, std)
	s.Require().NoError(err)

	pri := newTestRequest("NR 2100002", models.StateDraft, s.now.Add(-time.Hour))
	pri.Priority = true
	_, err = s.store.Create(ctx, pri)
	s.Require().NoError(err)

	claimed, err := s.store.AssignOldestDraft(ctx, "examiner1", false, s.now)
	s.Require().NoError(err)
	s.Equal("NR 2100002", claimed.NRNum)
}

// TestExecuteRollsBack verifies a failing mutation leaves the row untouched.
func (s *PostgresStoreSuite) TestExecuteRollsBack() {
	ctx := context.Background()

	_, err := s.store.Create(ctx, newTestRequest("NR 3000001", models.StateDraft, s.now))
	s.Require().NoError(err)

	_, err = s.store.Execute(ctx, "NR 3000001", s.now.Add(time.Hour), func(r *models.Request) error {
		r.State = models.StateCancelled
		return sentinel.ErrInvalidState
	})
	s.Require().ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.store.GetByNRNum(ctx, "NR 3000001")
	s.Require().NoError(err)
	s.Equal(models.StateDraft, found.State)
}

// TestSearchFilters verifies the dynamic WHERE clause against real SQL.
func (s *PostgresStoreSuite) TestSearchFilters() {
	ctx := context.Background()

	a := newTestRequest("NR 4000001", models.StateDraft, s.now)
	a.Names[0].Name = "BLUE MOUNTAIN COFFEE LTD."
	_, err := s.store.Create(ctx, a)
	s.Require().NoError(err)

	b := newTestRequest("NR 4000002", models.StateApproved, s.now.Add(time.Hour))
	b.Priority = true
	b.Applicant.LastName = "Jones"
	exp := s.now.AddDate(0, 0, 56)
	b.ExpirationDate = &exp
	_, err = s.store.Create(ctx, b)
	s.Require().NoError(err)

	got, total, err := s.store.Search(ctx, store.SearchFilter{CompanyName: "mountain"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("NR 4000001", got[0].NRNum)

	got, total, err = s.store.Search(ctx, store.SearchFilter{States: []models.State{models.StateApproved}, LastName: "jones"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("NR 4000002", got[0].NRNum)

	// expiration ordering puts NULLs last
	got, _, err = s.store.Search(ctx, store.SearchFilter{OrderBy: store.OrderByExpiration, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("NR 4000002", got[0].NRNum)
}

// TestDecisionReasons verifies the seeded reasons load.
func (s *PostgresStoreSuite) TestDecisionReasons() {
	reasons, err := s.store.DecisionReasons(context.Background())
	s.Require().NoError(err)
	s.NotEmpty(reasons)
}
