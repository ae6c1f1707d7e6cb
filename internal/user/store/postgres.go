package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"namereg/internal/user/models"
	"namereg/pkg/platform/sentinel"
)

// PostgresStore persists staff users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (sub, username, idp, created_at, last_seen_at, search_columns)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (sub) DO UPDATE SET
			username = EXCLUDED.username,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, sub, username, idp, created_at, last_seen_at, search_columns
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query,
		u.Sub, u.Username, u.IDP, u.LastSeenAt, models.DefaultSearchColumns))
	if err != nil {
		return nil, fmt.Errorf("get or create user %s: %w", u.Sub, err)
	}
	return user, nil
}

func (s *PostgresStore) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	query := `SELECT id, sub, username, idp, created_at, last_seen_at, search_columns FROM users WHERE sub = $1`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, sub))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get user %s: %w", sub, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get user %s: %w", sub, err)
	}
	return user, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, sub, searchColumns string) (*models.User, error) {
	query := `
		UPDATE users SET search_columns = $2
		WHERE sub = $1
		RETURNING id, sub, username, idp, created_at, last_seen_at, search_columns
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, sub, searchColumns))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update settings for %s: %w", sub, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("update settings for %s: %w", sub, err)
	}
	return user, nil
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Sub, &u.Username, &u.IDP, &u.CreatedAt, &u.LastSeenAt, &u.SearchColumns); err != nil {
		return nil, err
	}
	return &u, nil
}
