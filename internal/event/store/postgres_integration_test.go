//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/event/models"
	"namereg/internal/event/store"
	nrmodels "namereg/internal/namerequest/models"
	"namereg/pkg/platform/tx"
	"namereg/pkg/testutil/containers"
)

type PostgresEventStoreSuite struct {
	suite.Suite
	pg *containers.PostgresContainer
	st *store.PostgresStore
}

func (s *PostgresEventStoreSuite) SetupTest() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "events"))
	s.st = store.NewPostgres(s.pg.DB)
}

func TestPostgresEventStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresEventStoreSuite))
}

func (s *PostgresEventStoreSuite) TestRecordAndList() {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := &models.Event{
		NRNum:     "NR 1234567",
		Action:    models.ActionPatch,
		State:     nrmodels.StateApproved,
		Examiner:  "examiner1",
		JSONData:  []byte(`{"state":"APPROVED"}`),
		CreatedAt: now,
	}
	s.Require().NoError(s.st.Record(ctx, first))
	s.NotZero(first.ID)

	second := &models.Event{
		NRNum:     "NR 1234567",
		Action:    models.ActionNotification,
		State:     nrmodels.StateApproved,
		CreatedAt: now.Add(time.Minute),
	}
	s.Require().NoError(s.st.Record(ctx, second))

	events, err := s.st.ListByNR(ctx, "NR 1234567")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(models.ActionPatch, events[0].Action)
	s.Equal(models.ActionNotification, events[1].Action)

	got, err := s.st.GetByID(ctx, first.ID)
	s.Require().NoError(err)
	s.JSONEq(`{"state":"APPROVED"}`, string(got.JSONData))
}

// TestRecordInCallerTransaction verifies an event recorded inside a caller's
// transaction disappears when that transaction rolls back.
func (s *PostgresEventStoreSuite) TestRecordInCallerTransaction() {
	ctx := context.Background()

	dbTx, err := s.pg.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)

	e := &models.Event{
		NRNum:     "NR 7654321",
		Action:    models.ActionPatch,
		State:     nrmodels.StateHold,
		Examiner:  "examiner1",
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.st.Record(tx.WithTx(ctx, dbTx), e))
	s.Require().NoError(dbTx.Rollback())

	events, err := s.st.ListByNR(ctx, "NR 7654321")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *PostgresEventStoreSuite) TestStampResend() {
	ctx := context.Background()

	e := &models.Event{
		NRNum:     "NR 1111111",
		Action:    models.ActionNotification,
		State:     nrmodels.StateApproved,
		JSONData:  []byte(`{"option":"APPROVED"}`),
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.st.Record(ctx, e))

	at := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	updated, err := s.st.StampResend(ctx, e.ID, at)
	s.Require().NoError(err)
	s.Require().NotNil(updated.ResendDate)
	s.True(updated.ResendDate.Equal(at))
}
