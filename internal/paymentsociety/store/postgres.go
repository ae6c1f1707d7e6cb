package store

import (
	"context"
	"database/sql"
	"fmt"

	"namereg/internal/paymentsociety/models"
)

// PostgresStore persists society payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed payment store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.PaymentSociety) (*models.PaymentSociety, error) {
	query := `
		INSERT INTO payment_societies (nr_num, corp_num, payment_id, payment_status, payment_action, payment_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, nr_num, corp_num, payment_id, payment_status, payment_action, payment_json, created_at
	`
	row, err := scanPayment(s.db.QueryRowContext(ctx, query,
		p.NRNum, p.CorpNum, p.PaymentID, p.PaymentStatus, p.PaymentAction, nullJSON(p.PaymentJSON), p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("create payment for %s: %w", p.NRNum, err)
	}
	return row, nil
}

func (s *PostgresStore) ListByNR(ctx context.Context, nrNum string) ([]*models.PaymentSociety, error) {
	query := `
		SELECT id, nr_num, corp_num, payment_id, payment_status, payment_action, payment_json, created_at
		FROM payment_societies
		WHERE nr_num = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, nrNum)
	if err != nil {
		return nil, fmt.Errorf("list payments for %s: %w", nrNum, err)
	}
	defer rows.Close()

	var out []*models.PaymentSociety
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment for %s: %w", nrNum, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments for %s: %w", nrNum, err)
	}
	return out, nil
}

type paymentRow interface {
	Scan(dest ...any) error
}

func scanPayment(row paymentRow) (*models.PaymentSociety, error) {
	var (
		p    models.PaymentSociety
		blob sql.NullString
	)
	if err := row.Scan(&p.ID, &p.NRNum, &p.CorpNum, &p.PaymentID, &p.PaymentStatus, &p.PaymentAction, &blob, &p.CreatedAt); err != nil {
		return nil, err
	}
	if blob.Valid {
		p.PaymentJSON = []byte(blob.String)
	}
	return &p, nil
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
