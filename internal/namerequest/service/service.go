// Package service implements the examiner workflow over name requests:
// queue pulls, state transitions, decisions, edits, checkout locking, and
// the notification side effects each of those carries.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"namereg/internal/namerequest/metrics"
	"namereg/internal/namerequest/models"
	"namereg/internal/namerequest/store"
	"namereg/internal/queue"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/names"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// Publisher carries the queue side effects of examiner actions.
type Publisher interface {
	PublishEmailNotification(ctx context.Context, nrNum, option string) error
	PublishSearchFeed(ctx context.Context, nrNum string, deleted bool) error
}

// Recorder appends to the audit trail.
type Recorder interface {
	Record(ctx context.Context, action string, r *models.Request, examiner string)
	RecordSystem(ctx context.Context, action, nrNum string, state models.State, payload json.RawMessage) error
}

// Scheduler defers expiry-related notifications. Scheduling a new set for an
// NR replaces whatever was pending.
type Scheduler interface {
	Schedule(ctx context.Context, nrNum, option string, at time.Time) error
	CancelAll(ctx context.Context, nrNum string) error
}

// Service is the name-request application service.
type Service struct {
	store            store.RequestStore
	events           Recorder
	publisher        Publisher
	scheduler        Scheduler
	logger           *slog.Logger
	metrics          *metrics.Metrics
	beforeExpiryLead time.Duration
}

// New constructs the service. scheduler may be nil when Redis is not
// configured; deferred notifications are then skipped.
func New(st store.RequestStore, events Recorder, publisher Publisher, scheduler Scheduler,
	logger *slog.Logger, m *metrics.Metrics, beforeExpiryLead time.Duration) *Service {
	return &Service{
		store:            st,
		events:           events,
		publisher:        publisher,
		scheduler:        scheduler,
		logger:           logger,
		metrics:          m,
		beforeExpiryLead: beforeExpiryLead,
	}
}

func callerRole(ctx context.Context) models.Role {
	return models.RoleFromClaims(requestcontext.CallerClaims(ctx).Roles)
}

// Get loads one request by number, normalizing sloppy input.
func (s *Service) Get(ctx context.Context, nrNum string) (*models.Request, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	r, err := s.store.GetByNRNum(ctx, normalized)
	if err != nil {
		return nil, translateStoreErr(err, normalized)
	}
	return r, nil
}

// CreateInput is the payload for submitting a new name request.
type CreateInput struct {
	RequestType    string
	Priority       bool
	NatureBusiness string
	AdditionalInfo string
	XproJuris      string
	HomeJurisNum   string
	Applicant      *models.Applicant
	Names          []models.Name
}

// Create registers a new draft request, assigning the next NR number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Request, error) {
	now := requestcontext.Now(ctx)
	r := &models.Request{
		State:          models.StateDraft,
		SubmittedDate:  now,
		Priority:       in.Priority,
		RequestType:    in.RequestType,
		NatureBusiness: in.NatureBusiness,
		AdditionalInfo: in.AdditionalInfo,
		XproJuris:      in.XproJuris,
		HomeJurisNum:   in.HomeJurisNum,
		Applicant:      in.Applicant,
		Names:          foldNames(in.Names),
		SubmitCount:    1,
		LastUpdate:     now,
	}
	r.SortNames()

	// NR numbers are drawn at random and retried on collision.
	var created *models.Request
	for attempt := 0; attempt < 5; attempt++ {
		r.NRNum = fmt.Sprintf("NR %07d", rand.Intn(10000000))
		if err := r.Validate(); err != nil {
			return nil, err
		}
		var err error
		created, err = s.store.Create(ctx, r)
		if err == nil {
			break
		}
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create name request")
	}
	if created == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "could not allocate a request number")
	}

	s.events.Record(ctx, "post", created, requestcontext.CallerClaims(ctx).Username)
	return created, nil
}

// NextInQueue hands the examiner their current INPROGRESS request, or claims
// the oldest draft. One INPROGRESS request per examiner.
func (s *Service) NextInQueue(ctx context.Context, priority bool) (*models.Request, error) {
	examiner := requestcontext.CallerClaims(ctx).Username
	if examiner == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	held, err := s.store.InProgressBy(ctx, examiner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load held requests")
	}
	if len(held) > 0 {
		return held[0], nil
	}

	now := requestcontext.Now(ctx)
	claimed, err := s.store.AssignOldestDraft(ctx, examiner, priority, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncQueueEmpty()
			return nil, dErrors.New(dErrors.CodeNotFound, "the examination queue is empty")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "claim queue head")
	}
	s.metrics.IncQueueClaim()
	s.events.Record(ctx, "get", claimed, examiner)
	return claimed, nil
}

// Search pages requests matching the filter.
func (s *Service) Search(ctx context.Context, f store.SearchFilter) ([]*models.Request, int, error) {
	out, total, err := s.store.Search(ctx, f)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "search requests")
	}
	return out, total, nil
}

// PatchInput carries a partial update: a state transition and/or fields.
type PatchInput struct {
	State          *models.State
	Comment        string
	CorpNum        string
	ConsentFlag    *string
	AdditionalInfo *string
}

// Patch applies a validated partial update. State transitions honor the
// role-aware graph; decisions carry expiry, consumption, and notification
// side effects.
func (s *Service) Patch(ctx context.Context, nrNum string, in PatchInput) (*models.Request, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	claims := requestcontext.CallerClaims(ctx)
	role := callerRole(ctx)
	now := requestcontext.Now(ctx)

	// Claiming a request implicitly releases any other request this
	// examiner holds.
	if in.State != nil && *in.State == models.StateInProgress {
		if err := s.releaseOthers(ctx, claims.Username, normalized, now); err != nil {
			return nil, err
		}
	}

	var decided bool
	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		if in.State != nil && *in.State != r.State {
			if err := models.CanTransition(r.State, *in.State, role); err != nil {
				return err
			}
			if err := s.applyTransition(r, *in.State, in.CorpNum, claims.Username, now); err != nil {
				return err
			}
			decided = r.State.IsDecision()
		}
		if in.ConsentFlag != nil {
			r.ConsentFlag = *in.ConsentFlag
		}
		if in.AdditionalInfo != nil {
			r.AdditionalInfo = *in.AdditionalInfo
		}
		if in.Comment != "" {
			r.Comments = append(r.Comments, models.Comment{
				Examiner:  claims.Username,
				Timestamp: now,
				Comment:   in.Comment,
			})
		}
		return r.Validate()
	})
	if err != nil {
		return nil, translateStoreErr(err, normalized)
	}

	s.events.Record(ctx, "patch", updated, claims.Username)
	if decided {
		s.afterDecision(ctx, updated)
	}
	if in.ConsentFlag != nil && *in.ConsentFlag == models.ConsentReceived {
		s.notify(ctx, updated, queue.OptionConsentReceived)
	}
	return updated, nil
}

// applyTransition mutates the aggregate for one state change. CanTransition
// has already passed.
func (s *Service) applyTransition(r *models.Request, to models.State, corpNum, examiner string, now time.Time) error {
	from := r.State
	switch to {
	case models.StateInProgress:
		prev := from
		r.PreviousState = &prev
		r.ActiveUser = examiner
		r.Furnished = false
	case models.StateApproved, models.StateConditional, models.StateRejected:
		if !r.AllNamesExamined() {
			return dErrors.New(dErrors.CodeInvariantViolation, "all name choices must be examined before deciding")
		}
		if to != models.StateRejected && r.AcceptedName() == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "an accepted name choice is required to approve")
		}
		// Expiration is set once per furnishing cycle.
		if r.ExpirationDate == nil && to != models.StateRejected {
			exp := models.ExpirationDate(now, models.ExpiryDays(r.RequestType))
			r.ExpirationDate = &exp
		}
		r.Furnished = true
		r.HasBeenReset = false
		r.PreviousState = nil
	case models.StateConsumed:
		accepted := r.AcceptedName()
		if accepted == nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "no accepted name to consume")
		}
		if corpNum == "" {
			return dErrors.New(dErrors.CodeValidation, "a corporation number is required to consume a name")
		}
		if err := accepted.Consume(corpNum, now); err != nil {
			return err
		}
		r.CorpNum = corpNum
	case models.StateDraft:
		r.ActiveUser = ""
		r.PreviousState = nil
	case models.StateHold:
		prev := from
		r.PreviousState = &prev
		r.ActiveUser = ""
	}
	r.State = to
	s.metrics.IncTransition(string(to))
	return nil
}

// releaseOthers reverts any other INPROGRESS request held by the examiner.
func (s *Service) releaseOthers(ctx context.Context, examiner, keep string, now time.Time) error {
	held, err := s.store.InProgressBy(ctx, examiner)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load held requests")
	}
	for _, h := range held {
		if h.NRNum == keep {
			continue
		}
		released, err := s.store.Execute(ctx, h.NRNum, now, func(r *models.Request) error {
			r.Release()
			return nil
		})
		if err != nil {
			return translateStoreErr(err, h.NRNum)
		}
		s.events.Record(ctx, "patch", released, examiner)
	}
	return nil
}

// afterDecision publishes the decision's side effects: applicant email,
// index feed, audit entry for the notification, and deferred expiry
// notifications.
func (s *Service) afterDecision(ctx context.Context, r *models.Request) {
	var option string
	switch r.State {
	case models.StateApproved:
		option = queue.OptionApproved
	case models.StateConditional:
		option = queue.OptionConditional
	case models.StateRejected:
		option = queue.OptionRejected
	default:
		return
	}
	s.metrics.IncDecision(string(r.State))
	s.notify(ctx, r, option)

	if err := s.publisher.PublishSearchFeed(ctx, r.NRNum, r.State == models.StateRejected); err != nil {
		s.logger.ErrorContext(ctx, "publish search feed", "error", err, "nr_num", r.NRNum)
	}

	if s.scheduler != nil && r.ExpirationDate != nil && r.State != models.StateRejected {
		expiry := *r.ExpirationDate
		if err := s.scheduler.Schedule(ctx, r.NRNum, queue.OptionBeforeExpiry, expiry.Add(-s.beforeExpiryLead)); err != nil {
			s.logger.ErrorContext(ctx, "schedule before-expiry notification", "error", err, "nr_num", r.NRNum)
		}
		if err := s.scheduler.Schedule(ctx, r.NRNum, queue.OptionExpired, expiry); err != nil {
			s.logger.ErrorContext(ctx, "schedule expiry notification", "error", err, "nr_num", r.NRNum)
		}
	}
}

// notify publishes one email notification and records it on the trail so
// staff can resend it later.
func (s *Service) notify(ctx context.Context, r *models.Request, option string) {
	if r.Applicant != nil && r.Applicant.DeclineNotify {
		return
	}
	if err := s.publisher.PublishEmailNotification(ctx, r.NRNum, option); err != nil {
		s.logger.ErrorContext(ctx, "publish email notification",
			"error", err,
			"nr_num", r.NRNum,
			"option", option,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.metrics.IncNotification(option)
	payload := []byte(fmt.Sprintf(`{"option":%q}`, option))
	if err := s.events.RecordSystem(ctx, "notification", r.NRNum, r.State, payload); err != nil {
		s.logger.ErrorContext(ctx, "record notification event", "error", err, "nr_num", r.NRNum)
	}
}

// ReplaceInput is the full-update payload.
type ReplaceInput struct {
	Priority       bool
	ConsentFlag    string
	Furnished      bool
	RequestType    string
	NatureBusiness string
	AdditionalInfo string
	XproJuris      string
	HomeJurisNum   string
	CorpNum        string
	Applicant      *models.Applicant
	Names          []models.Name
}

// Replace fully updates the header, applicant and names. Name edits produce
// change-tracking comments; furnishing reset and consent receipt trigger
// their notifications.
func (s *Service) Replace(ctx context.Context, nrNum string, in ReplaceInput) (*models.Request, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	claims := requestcontext.CallerClaims(ctx)
	role := callerRole(ctx)
	if role != models.RoleEditor && role != models.RoleApprover && role != models.RoleSystem {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not edit name requests")
	}
	now := requestcontext.Now(ctx)

	var wasReset, consentReceived bool
	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		newNames := foldNames(in.Names)
		appendNameChangeComments(r, newNames, claims.Username, now)

		// Furnished flipping off is the reset signal: the applicant was
		// already told the outcome and the request goes around again.
		if r.Furnished && !in.Furnished {
			wasReset = true
			r.HasBeenReset = true
			r.ExpirationDate = nil
			r.ConsentFlag = ""
		}
		if r.ConsentFlag != models.ConsentReceived && in.ConsentFlag == models.ConsentReceived {
			consentReceived = true
		}

		r.Priority = in.Priority
		if !wasReset {
			r.ConsentFlag = in.ConsentFlag
		}
		r.Furnished = in.Furnished
		r.RequestType = in.RequestType
		r.NatureBusiness = in.NatureBusiness
		r.AdditionalInfo = in.AdditionalInfo
		r.XproJuris = in.XproJuris
		r.HomeJurisNum = in.HomeJurisNum
		r.CorpNum = in.CorpNum
		r.Applicant = in.Applicant
		r.Names = newNames
		r.SortNames()
		return r.Validate()
	})
	if err != nil {
		return nil, translateStoreErr(err, normalized)
	}

	s.events.Record(ctx, "put", updated, claims.Username)
	if wasReset {
		s.notify(ctx, updated, queue.OptionReset)
		if s.scheduler != nil {
			if err := s.scheduler.CancelAll(ctx, updated.NRNum); err != nil {
				s.logger.ErrorContext(ctx, "cancel scheduled notifications", "error", err, "nr_num", updated.NRNum)
			}
		}
		if err := s.publisher.PublishSearchFeed(ctx, updated.NRNum, true); err != nil {
			s.logger.ErrorContext(ctx, "publish search feed", "error", err, "nr_num", updated.NRNum)
		}
	}
	if consentReceived {
		s.notify(ctx, updated, queue.OptionConsentReceived)
	}
	return updated, nil
}

// NameDecision is the per-choice examination outcome.
type NameDecision struct {
	State        models.NameState
	Conflict1    string
	Conflict1Num string
	Conflict2    string
	Conflict2Num string
	Conflict3    string
	Conflict3Num string
	DecisionText string
	Comment      string
}

// DecideName records the outcome for one name choice. The caller must be
// the active examiner of an INPROGRESS request.
func (s *Service) DecideName(ctx context.Context, nrNum string, choice int, d NameDecision) (*models.Request, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	claims := requestcontext.CallerClaims(ctx)
	role := callerRole(ctx)
	if role != models.RoleApprover && role != models.RoleSystem {
		return nil, dErrors.New(dErrors.CodeForbidden, "only approvers may examine names")
	}
	now := requestcontext.Now(ctx)

	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		if r.State != models.StateInProgress {
			return dErrors.New(dErrors.CodeInvariantViolation, "names can only be examined on an in-progress request")
		}
		if r.ActiveUser != claims.Username && role != models.RoleSystem {
			return dErrors.New(dErrors.CodeForbidden, "request is being examined by another user")
		}
		name := r.NameByChoice(choice)
		if name == nil {
			return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no name choice %d on %s", choice, r.NRNum))
		}
		name.State = d.State
		name.Conflict1, name.Conflict1Num = d.Conflict1, d.Conflict1Num
		name.Conflict2, name.Conflict2Num = d.Conflict2, d.Conflict2Num
		name.Conflict3, name.Conflict3Num = d.Conflict3, d.Conflict3Num
		name.DecisionText = d.DecisionText
		name.Comment = d.Comment
		return name.Validate()
	})
	if err != nil {
		return nil, translateStoreErr(err, normalized)
	}

	s.events.Record(ctx, "patch", updated, claims.Username)
	return updated, nil
}

// AddComment appends a staff comment.
func (s *Service) AddComment(ctx context.Context, nrNum, text string) (*models.Request, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "comment text is required")
	}
	claims := requestcontext.CallerClaims(ctx)
	now := requestcontext.Now(ctx)

	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		r.Comments = append(r.Comments, models.Comment{
			Examiner:  claims.Username,
			Timestamp: now,
			Comment:   text,
		})
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, normalized)
	}

	s.events.Record(ctx, "comment", updated, claims.Username)
	return updated, nil
}

// Checkout locks an editable request for an external editor. An empty token
// requests a fresh lock.
func (s *Service) Checkout(ctx context.Context, nrNum, token string) (string, error) {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return "", err
	}
	if token == "" {
		token = uuid.NewString()
	}
	now := requestcontext.Now(ctx)

	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		return r.Checkout(token)
	})
	if err != nil {
		return "", translateStoreErr(err, normalized)
	}
	s.events.Record(ctx, "checkout", updated, requestcontext.CallerClaims(ctx).Username)
	return token, nil
}

// Checkin releases a checkout lock.
func (s *Service) Checkin(ctx context.Context, nrNum, token string) error {
	normalized, err := models.NormalizeNRNum(nrNum)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	updated, err := s.store.Execute(ctx, normalized, now, func(r *models.Request) error {
		return r.Checkin(token)
	})
	if err != nil {
		return translateStoreErr(err, normalized)
	}
	s.events.Record(ctx, "checkin", updated, requestcontext.CallerClaims(ctx).Username)
	return nil
}

// Stats pages requests decided within the trailing window.
func (s *Service) Stats(ctx context.Context, window time.Duration, examiner string, offset, limit int) ([]*models.Request, int, error) {
	cutoff := requestcontext.Now(ctx).Add(-window)
	out, total, err := s.store.CompletedSince(ctx, cutoff, examiner, offset, limit)
	if err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "load completed requests")
	}
	return out, total, nil
}

// DecisionReasons lists the canned decision rationales.
func (s *Service) DecisionReasons(ctx context.Context) ([]store.DecisionReason, error) {
	reasons, err := s.store.DecisionReasons(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load decision reasons")
	}
	return reasons, nil
}

// foldNames uppercases and ASCII-folds every name choice.
func foldNames(in []models.Name) []models.Name {
	out := make([]models.Name, len(in))
	copy(out, in)
	for i := range out {
		out[i].Name = names.Normalize(out[i].Name)
		if out[i].State == "" {
			out[i].State = models.NameStateNotExamined
		}
	}
	return out
}

// appendNameChangeComments records "Name choice N changed" comments for
// edited choices.
func appendNameChangeComments(r *models.Request, newNames []models.Name, examiner string, now time.Time) {
	for _, n := range newNames {
		old := r.NameByChoice(n.Choice)
		if old == nil {
			if n.Name != "" {
				r.Comments = append(r.Comments, models.Comment{
					Examiner:  examiner,
					Timestamp: now,
					Comment:   fmt.Sprintf("Name choice %d added: %s", n.Choice, n.Name),
				})
			}
			continue
		}
		if old.Name != n.Name {
			r.Comments = append(r.Comments, models.Comment{
				Examiner:  examiner,
				Timestamp: now,
				Comment:   fmt.Sprintf("Name choice %d changed from %s to %s", n.Choice, old.Name, n.Name),
			})
		}
	}
}

func translateStoreErr(err error, nrNum string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("name request %s not found", nrNum))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("name request %s already exists", nrNum))
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "name request store")
	}
}
