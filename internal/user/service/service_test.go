package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/platform/logger"
	"namereg/internal/user/models"
	"namereg/internal/user/store"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

type UserServiceSuite struct {
	suite.Suite
	svc *Service
	now time.Time
}

func (s *UserServiceSuite) SetupTest() {
	s.svc = New(store.NewMemory(), logger.New())
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) ctxAs(sub, username string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithClaims(ctx, requestcontext.Claims{Sub: sub, Username: username})
}

// TestGetOrCreate verifies first sight creates with defaults.
func (s *UserServiceSuite) TestGetOrCreate() {
	u, err := s.svc.Current(s.ctxAs("sub-1", "examiner1"))
	s.Require().NoError(err)
	s.Equal("examiner1", u.Username)
	s.Equal(models.DefaultSearchColumns, u.SearchColumns)

	again, err := s.svc.Current(s.ctxAs("sub-1", "examiner1"))
	s.Require().NoError(err)
	s.Equal(u.ID, again.ID)
}

// TestMissingIdentity verifies anonymous callers are rejected.
func (s *UserServiceSuite) TestMissingIdentity() {
	_, err := s.svc.Current(context.Background())
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

// TestUpdateSearchColumns verifies column persistence and validation.
func (s *UserServiceSuite) TestUpdateSearchColumns() {
	ctx := s.ctxAs("sub-2", "examiner2")

	u, err := s.svc.UpdateSearchColumns(ctx, []string{"Status", "Names", "Submitted"})
	s.Require().NoError(err)
	s.Equal([]string{"Status", "Names", "Submitted"}, u.Columns())

	_, err = s.svc.UpdateSearchColumns(ctx, []string{"Status", ""})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
}
