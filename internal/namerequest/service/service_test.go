package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	"namereg/internal/platform/logger"
	"namereg/internal/queue"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

type fakeRecorder struct {
	actions []string
	system  []string
}

func (f *fakeRecorder) Record(ctx context.Context, action string, r *models.Request, examiner string) {
	f.actions = append(f.actions, action)
}

func (f *fakeRecorder) RecordSystem(ctx context.Context, action, nrNum string, state models.State, payload json.RawMessage) error {
	f.system = append(f.system, action)
	return nil
}

type fakePublisher struct {
	notifications []struct{ nrNum, option string }
	feed          []struct {
		nrNum   string
		deleted bool
	}
}

func (f *fakePublisher) PublishEmailNotification(ctx context.Context, nrNum, option string) error {
	f.notifications = append(f.notifications, struct{ nrNum, option string }{nrNum, option})
	return nil
}

func (f *fakePublisher) PublishSearchFeed(ctx context.Context, nrNum string, deleted bool) error {
	f.feed = append(f.feed, struct {
		nrNum   string
		deleted bool
	}{nrNum, deleted})
	return nil
}

type fakeScheduler struct {
	scheduled []struct {
		nrNum, option string
		at            time.Time
	}
	cancelled []string
}

func (f *fakeScheduler) Schedule(ctx context.Context, nrNum, option string, at time.Time) error {
	f.scheduled = append(f.scheduled, struct {
		nrNum, option string
		at            time.Time
	}{nrNum, option, at})
	return nil
}

func (f *fakeScheduler) CancelAll(ctx context.Context, nrNum string) error {
	f.cancelled = append(f.cancelled, nrNum)
	return nil
}

type RequestServiceSuite struct {
	suite.Suite
	store     *store.MemoryStore
	recorder  *fakeRecorder
	publisher *fakePublisher
	scheduler *fakeScheduler
	svc       *Service
	now       time.Time
}

func (s *RequestServiceSuite) SetupTest() {
	s.store = store.NewMemory()
	s.recorder = &fakeRecorder{}
	s.publisher = &fakePublisher{}
	s.scheduler = &fakeScheduler{}
	s.svc = New(s.store, s.recorder, s.publisher, s.scheduler, logger.New(), nil, 14*24*time.Hour)
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestRequestServiceSuite(t *testing.T) {
	suite.Run(t, new(RequestServiceSuite))
}

func (s *RequestServiceSuite) ctxAs(username string, roles ...string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithClaims(ctx, requestcontext.Claims{
		Sub:      username,
		Username: username,
		Roles:    roles,
	})
}

func (s *RequestServiceSuite) seed(nrNum string, state models.State) *models.Request {
	r := &models.Request{
		NRNum:         nrNum,
		State:         state,
		SubmittedDate: s.now.Add(-time.Hour),
		RequestType:   "CR",
		LastUpdate:    s.now.Add(-time.Hour),
		Names: []models.Name{
			{Choice: 1, Name: "ACME HOLDINGS LTD.", State: models.NameStateNotExamined},
		},
		Applicant: &models.Applicant{
			FirstName:    "Pat",
			LastName:     "Smith",
			EmailAddress: "pat@example.com",
		},
	}
	created, err := s.store.Create(context.Background(), r)
	s.Require().NoError(err)
	return created
}

// TestNextInQueue verifies queue semantics: held request first, then claim.
func (s *RequestServiceSuite) TestNextInQueue() {
	ctx := s.ctxAs("examiner1", "approver")

	s.Run("empty queue maps to not found", func() {
		_, err := s.svc.NextInQueue(ctx, false)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("claims the oldest draft and records the pull", func() {
		s.seed("NR 1000001", models.StateDraft)

		claimed, err := s.svc.NextInQueue(ctx, false)
		s.Require().NoError(err)
		s.Equal(models.StateInProgress, claimed.State)
		s.Equal("examiner1", claimed.ActiveUser)
		s.Contains(s.recorder.actions, "get")
	})

	s.Run("returns the already-held request instead of claiming another", func() {
		s.seed("NR 1000002", models.StateDraft)

		again, err := s.svc.NextInQueue(ctx, false)
		s.Require().NoError(err)
		s.Equal("NR 1000001", again.NRNum)
	})
}

// TestPatchDecision verifies the approval path and its side effects.
func (s *RequestServiceSuite) TestPatchDecision() {
	ctx := s.ctxAs("examiner1", "approver")
	r := s.seed("NR 2000001", models.StateInProgress)
	_, err := s.store.Execute(context.Background(), r.NRNum, s.now, func(req *models.Request) error {
		req.ActiveUser = "examiner1"
		req.Names[0].State = models.NameStateApproved
		return nil
	})
	s.Require().NoError(err)

	approved := models.StateApproved
	updated, err := s.svc.Patch(ctx, "NR 2000001", PatchInput{State: &approved})
	s.Require().NoError(err)

	s.Equal(models.StateApproved, updated.State)
	s.Require().NotNil(updated.ExpirationDate, "decision must stamp an expiration date")
	s.True(updated.Furnished)

	s.Require().Len(s.publisher.notifications, 1)
	s.Equal(queue.OptionApproved, s.publisher.notifications[0].option)
	s.Contains(s.recorder.system, "notification")

	s.Require().Len(s.scheduler.scheduled, 2)
	s.Equal(queue.OptionBeforeExpiry, s.scheduler.scheduled[0].option)
	s.Equal(queue.OptionExpired, s.scheduler.scheduled[1].option)
	s.Equal(updated.ExpirationDate.Add(-14*24*time.Hour), s.scheduler.scheduled[0].at)
}

// TestPatchDecisionGuards verifies role and examination invariants.
func (s *RequestServiceSuite) TestPatchDecisionGuards() {
	s.Run("editors may not decide", func() {
		s.seed("NR 2000002", models.StateInProgress)
		approved := models.StateApproved
		_, err := s.svc.Patch(s.ctxAs("editor1", "editor"), "NR 2000002", PatchInput{State: &approved})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unexamined names block the decision", func() {
		s.seed("NR 2000003", models.StateInProgress)
		rejected := models.StateRejected
		_, err := s.svc.Patch(s.ctxAs("examiner1", "approver"), "NR 2000003", PatchInput{State: &rejected})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

// TestPatchReleasesOtherHeld verifies one-INPROGRESS-per-examiner.
func (s *RequestServiceSuite) TestPatchReleasesOtherHeld() {
	ctx := s.ctxAs("examiner1", "approver")

	held := s.seed("NR 3000001", models.StateInProgress)
	_, err := s.store.Execute(context.Background(), held.NRNum, s.now, func(req *models.Request) error {
		req.ActiveUser = "examiner1"
		prev := models.StateDraft
		req.PreviousState = &prev
		return nil
	})
	s.Require().NoError(err)

	s.seed("NR 3000002", models.StateHold)
	inprogress := models.StateInProgress
	_, err = s.svc.Patch(ctx, "NR 3000002", PatchInput{State: &inprogress})
	s.Require().NoError(err)

	released, err := s.store.GetByNRNum(context.Background(), "NR 3000001")
	s.Require().NoError(err)
	s.Equal(models.StateDraft, released.State)
	s.Empty(released.ActiveUser)
}

// TestReplaceReset verifies reset detection clears expiry and notifies.
func (s *RequestServiceSuite) TestReplaceReset() {
	ctx := s.ctxAs("examiner1", "editor")
	r := s.seed("NR 4000001", models.StateApproved)
	exp := s.now.AddDate(0, 0, 56)
	_, err := s.store.Execute(context.Background(), r.NRNum, s.now, func(req *models.Request) error {
		req.Furnished = true
		req.ExpirationDate = &exp
		req.ConsentFlag = models.ConsentRequired
		req.Names[0].State = models.NameStateApproved
		return nil
	})
	s.Require().NoError(err)

	updated, err := s.svc.Replace(ctx, "NR 4000001", ReplaceInput{
		Furnished:   false,
		RequestType: "CR",
		Applicant:   r.Applicant,
		Names:       r.Names,
	})
	s.Require().NoError(err)

	s.True(updated.HasBeenReset)
	s.Nil(updated.ExpirationDate)
	s.Empty(updated.ConsentFlag)
	s.Require().Len(s.publisher.notifications, 1)
	s.Equal(queue.OptionReset, s.publisher.notifications[0].option)
	s.Equal([]string{"NR 4000001"}, s.scheduler.cancelled)
}

// TestReplaceTracksNameChanges verifies change-tracking comments and folding.
func (s *RequestServiceSuite) TestReplaceTracksNameChanges() {
	ctx := s.ctxAs("examiner1", "editor")
	r := s.seed("NR 4000002", models.StateDraft)

	newNames := []models.Name{{Choice: 1, Name: "café olé ltd."}}
	updated, err := s.svc.Replace(ctx, "NR 4000002", ReplaceInput{
		RequestType: "CR",
		Applicant:   r.Applicant,
		Names:       newNames,
	})
	s.Require().NoError(err)

	s.Equal("CAFE OLE LTD.", updated.Names[0].Name)
	s.Require().NotEmpty(updated.Comments)
	s.Contains(updated.Comments[0].Comment, "Name choice 1 changed from")
}

// TestReplaceConsentReceived verifies the consent notification fires once.
func (s *RequestServiceSuite) TestReplaceConsentReceived() {
	ctx := s.ctxAs("examiner1", "editor")
	r := s.seed("NR 4000003", models.StateConditional)

	updated, err := s.svc.Replace(ctx, "NR 4000003", ReplaceInput{
		ConsentFlag: models.ConsentReceived,
		RequestType: "CR",
		Applicant:   r.Applicant,
		Names:       r.Names,
	})
	s.Require().NoError(err)
	s.Equal(models.ConsentReceived, updated.ConsentFlag)
	s.Require().Len(s.publisher.notifications, 1)
	s.Equal(queue.OptionConsentReceived, s.publisher.notifications[0].option)
}

// TestDecideName verifies ownership and state guards on name decisions.
func (s *RequestServiceSuite) TestDecideName() {
	r := s.seed("NR 5000001", models.StateInProgress)
	_, err := s.store.Execute(context.Background(), r.NRNum, s.now, func(req *models.Request) error {
		req.ActiveUser = "examiner1"
		return nil
	})
	s.Require().NoError(err)

	s.Run("active examiner decides a name", func() {
		updated, err := s.svc.DecideName(s.ctxAs("examiner1", "approver"), "NR 5000001", 1, NameDecision{
			State:        models.NameStateCondition,
			Conflict1:    "ACME HOLDING LTD.",
			Conflict1Num: "BC0012345",
			DecisionText: "Requires consent from the conflicting entity.",
		})
		s.Require().NoError(err)
		s.Equal(models.NameStateCondition, updated.Names[0].State)
		s.Equal("BC0012345", updated.Names[0].Conflict1Num)
	})

	s.Run("another examiner is rejected", func() {
		_, err := s.svc.DecideName(s.ctxAs("examiner2", "approver"), "NR 5000001", 1, NameDecision{
			State: models.NameStateApproved,
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown choice is not found", func() {
		_, err := s.svc.DecideName(s.ctxAs("examiner1", "approver"), "NR 5000001", 3, NameDecision{
			State: models.NameStateApproved,
		})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestCheckoutFlow verifies external-editor locking.
func (s *RequestServiceSuite) TestCheckoutFlow() {
	ctx := s.ctxAs("editor-app", "system")
	s.seed("NR 6000001", models.StateDraft)

	token, err := s.svc.Checkout(ctx, "NR 6000001", "")
	s.Require().NoError(err)
	s.NotEmpty(token)

	_, err = s.svc.Checkout(ctx, "NR 6000001", "some-other-token")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeLocked))

	s.Require().NoError(s.svc.Checkin(ctx, "NR 6000001", token))
}

// TestExpireOverdue verifies the expiry sweep.
func (s *RequestServiceSuite) TestExpireOverdue() {
	r := s.seed("NR 7000001", models.StateApproved)
	past := s.now.Add(-time.Hour)
	_, err := s.store.Execute(context.Background(), r.NRNum, s.now, func(req *models.Request) error {
		req.ExpirationDate = &past
		req.Names[0].State = models.NameStateApproved
		return nil
	})
	s.Require().NoError(err)

	fresh := s.seed("NR 7000002", models.StateApproved)
	future := s.now.Add(24 * time.Hour)
	_, err = s.store.Execute(context.Background(), fresh.NRNum, s.now, func(req *models.Request) error {
		req.ExpirationDate = &future
		return nil
	})
	s.Require().NoError(err)

	n, err := s.svc.ExpireOverdue(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	expired, err := s.store.GetByNRNum(context.Background(), "NR 7000001")
	s.Require().NoError(err)
	s.Equal(models.StateExpired, expired.State)
	s.Contains(s.recorder.system, "expiry_job")

	untouched, err := s.store.GetByNRNum(context.Background(), "NR 7000002")
	s.Require().NoError(err)
	s.Equal(models.StateApproved, untouched.State)
}
