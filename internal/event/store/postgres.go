package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"namereg/internal/event/models"
	"namereg/pkg/platform/sentinel"
	"namereg/pkg/platform/tx"
)

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// querier lets Record ride a caller's transaction from the context, so an
// event lands atomically with the state change it describes.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Record(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (nr_num, action, state_cd, examiner, event_json, created_at, resend_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var eventJSON any
	if len(e.JSONData) > 0 {
		eventJSON = []byte(e.JSONData)
	}
	err := s.conn(ctx).QueryRowContext(ctx, query,
		e.NRNum, e.Action, e.State, e.Examiner, eventJSON, e.CreatedAt, e.ResendDate,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("record event for %s: %w", e.NRNum, err)
	}
	return nil
}

func (s *PostgresStore) ListByNR(ctx context.Context, nrNum string) ([]models.Event, error) {
	query := `
		SELECT id, nr_num, action, state_cd, examiner, event_json, created_at, resend_date
		FROM events WHERE nr_num = $1 ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, nrNum)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", nrNum, err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event for %s: %w", nrNum, err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	query := `
		SELECT id, nr_num, action, state_cd, examiner, event_json, created_at, resend_date
		FROM events WHERE id = $1
	`
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get event %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}
	return e, nil
}

func (s *PostgresStore) StampResend(ctx context.Context, id int64, at time.Time) (*models.Event, error) {
	query := `
		UPDATE events SET resend_date = $2
		WHERE id = $1
		RETURNING id, nr_num, action, state_cd, examiner, event_json, created_at, resend_date
	`
	e, err := scanEvent(s.db.QueryRowContext(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stamp resend on event %d: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("stamp resend on event %d: %w", id, err)
	}
	return e, nil
}

type eventRow interface {
	Scan(dest ...any) error
}

func scanEvent(row eventRow) (*models.Event, error) {
	var e models.Event
	var eventJSON []byte
	var resend sql.NullTime
	if err := row.Scan(&e.ID, &e.NRNum, &e.Action, &e.State, &e.Examiner, &eventJSON, &e.CreatedAt, &resend); err != nil {
		return nil, err
	}
	if len(eventJSON) > 0 {
		e.JSONData = eventJSON
	}
	if resend.Valid {
		e.ResendDate = &resend.Time
	}
	return &e, nil
}
