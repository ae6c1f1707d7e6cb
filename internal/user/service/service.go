// Package service mirrors identity-provider users into the registry and
// manages their saved search settings.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"namereg/internal/user/models"
	"namereg/internal/user/store"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/requestcontext"
)

// Service is the user application service.
type Service struct {
	store  store.UserStore
	logger *slog.Logger
}

// New constructs the user service.
func New(st store.UserStore, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger}
}

// Current returns the caller's user record, creating it on first sight.
func (s *Service) Current(ctx context.Context) (*models.User, error) {
	claims := requestcontext.CallerClaims(ctx)
	if claims.Sub == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	u, err := s.store.GetOrCreate(ctx, &models.User{
		Sub:        claims.Sub,
		Username:   claims.Username,
		LastSeenAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load user")
	}
	return u, nil
}

// UpdateSearchColumns saves the caller's search-screen column selection.
func (s *Service) UpdateSearchColumns(ctx context.Context, columns []string) (*models.User, error) {
	if _, err := s.Current(ctx); err != nil {
		return nil, err
	}
	claims := requestcontext.CallerClaims(ctx)

	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "search columns may not be blank")
		}
		if strings.Contains(c, ",") {
			return nil, dErrors.New(dErrors.CodeValidation, "search column names may not contain commas")
		}
	}

	u, err := s.store.UpdateSettings(ctx, claims.Sub, strings.Join(columns, ","))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save user settings")
	}
	return u, nil
}
