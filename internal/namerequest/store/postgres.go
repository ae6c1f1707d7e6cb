package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"namereg/internal/namerequest/models"
	"namereg/pkg/platform/sentinel"
)

// PostgresStore persists name requests in PostgreSQL. All domain logic
// (transition checks, expiry computation) belongs in the service.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, nr_num, state_cd, previous_state_cd, submitted_date, expiration_date,
	priority, consent_flag, furnished, request_type_cd, nature_business, additional_info,
	xpro_juris, home_juris_num, corp_num, active_user, checkout_token, has_been_reset,
	notified_before_expiry, notified_expiry, submit_count, last_update`

func (s *PostgresStore) Create(ctx context.Context, r *models.Request) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create request: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO requests (nr_num, state_cd, previous_state_cd, submitted_date, expiration_date,
			priority, consent_flag, furnished, request_type_cd, nature_business, additional_info,
			xpro_juris, home_juris_num, corp_num, active_user, checkout_token, has_been_reset,
			notified_before_expiry, notified_expiry, submit_count, last_update, name_search)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		r.NRNum, r.State, nullState(r.PreviousState), r.SubmittedDate, r.ExpirationDate,
		r.Priority, nullString(r.ConsentFlag), r.Furnished, r.RequestType, r.NatureBusiness, r.AdditionalInfo,
		r.XproJuris, r.HomeJurisNum, r.CorpNum, r.ActiveUser, r.CheckoutToken, r.HasBeenReset,
		r.NotifiedBefore, r.NotifiedExpiry, r.SubmitCount, r.LastUpdate, r.SearchBlob(),
	).Scan(&r.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("create request %s: %w", r.NRNum, sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("create request %s: %w", r.NRNum, err)
	}

	if err := saveChildren(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetByNRNum(ctx context.Context, nrNum string) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE nr_num = $1`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, nrNum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get request %s: %w", nrNum, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get request %s: %w", nrNum, err)
	}
	if err := s.loadChildren(ctx, s.db, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *models.Request) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update request: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := updateRequestRow(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := saveChildren(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update request: %w", err)
	}
	return r, nil
}

// Execute loads the aggregate under a row lock, applies fn, and persists the
// result in the same transaction. This is the write path for every
// examiner mutation.
func (s *PostgresStore) Execute(ctx context.Context, nrNum string, now time.Time, fn func(*models.Request) error) (*models.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + requestColumns + ` FROM requests WHERE nr_num = $1 FOR UPDATE`
	r, err := scanRequest(tx.QueryRowContext(ctx, query, nrNum))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execute on request %s: %w", nrNum, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("execute on request %s: %w", nrNum, err)
	}
	if err := s.loadChildren(ctx, tx, r); err != nil {
		return nil, err
	}

	if err := fn(r); err != nil {
		return nil, err
	}
	r.LastUpdate = now

	if err := updateRequestRow(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := saveChildren(ctx, tx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return r, nil
}

// AssignOldestDraft claims the queue head with a single atomic update.
// SKIP LOCKED keeps concurrent examiners from racing on the same row.
func (s *PostgresStore) AssignOldestDraft(ctx context.Context, examiner string, priority bool, now time.Time) (*models.Request, error) {
	query := `
		UPDATE requests SET
			previous_state_cd = state_cd,
			state_cd = 'INPROGRESS',
			active_user = $1,
			furnished = FALSE,
			last_update = $2
		WHERE id = (
			SELECT id FROM requests
			WHERE state_cd = 'DRAFT' AND ($3 = FALSE OR priority = TRUE)
			ORDER BY priority DESC, submitted_date ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + requestColumns
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, examiner, now, priority))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assign oldest draft: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("assign oldest draft: %w", err)
	}
	if err := s.loadChildren(ctx, s.db, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) InProgressBy(ctx context.Context, examiner string) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE state_cd = 'INPROGRESS' AND active_user = $1
		ORDER BY submitted_date ASC`
	rows, err := s.db.QueryContext(ctx, query, examiner)
	if err != nil {
		return nil, fmt.Errorf("in progress by %s: %w", examiner, err)
	}
	defer rows.Close()

	return s.collect(ctx, rows)
}

func (s *PostgresStore) Search(ctx context.Context, f SearchFilter) ([]*models.Request, int, error) {
	where, args := buildSearchWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM requests r` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	query := `SELECT ` + prefixColumns("r") + ` FROM requests r` + where +
		searchOrderClause(f) +
		fmt.Sprintf(" OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, f.Offset, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search requests: %w", err)
	}
	defer rows.Close()

	out, err := s.collect(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PostgresStore) CompletedSince(ctx context.Context, cutoff time.Time, examiner string, offset, limit int) ([]*models.Request, int, error) {
	where := ` WHERE state_cd IN ('APPROVED', 'CONDITIONAL', 'REJECTED') AND last_update >= $1`
	args := []any{cutoff}
	if examiner != "" {
		where += fmt.Sprintf(" AND active_user = $%d", len(args)+1)
		args = append(args, examiner)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count completed: %w", err)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	query := `SELECT ` + requestColumns + ` FROM requests` + where +
		fmt.Sprintf(" ORDER BY last_update DESC OFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("completed since: %w", err)
	}
	defer rows.Close()

	out, err := s.collect(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PostgresStore) DecisionReasons(ctx context.Context) ([]DecisionReason, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, reason FROM decision_reasons ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list decision reasons: %w", err)
	}
	defer rows.Close()

	var out []DecisionReason
	for rows.Next() {
		var dr DecisionReason
		if err := rows.Scan(&dr.ID, &dr.Name, &dr.Reason); err != nil {
			return nil, fmt.Errorf("scan decision reason: %w", err)
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

func buildSearchWhere(f SearchFilter) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		conds = append(conds, "r.state_cd = ANY("+arg(pq.Array(states))+")")
	}
	if f.NRNum != "" {
		conds = append(conds, "r.nr_num LIKE '%' || UPPER("+arg(f.NRNum)+") || '%'")
	}
	if f.CompanyName != "" {
		conds = append(conds, "r.name_search LIKE '%' || UPPER("+arg(f.CompanyName)+") || '%'")
	}
	if f.FirstName != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM request_applicants a WHERE a.request_id = r.id AND UPPER(a.first_name) = UPPER("+arg(f.FirstName)+"))")
	}
	if f.LastName != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM request_applicants a WHERE a.request_id = r.id AND UPPER(a.last_name) = UPPER("+arg(f.LastName)+"))")
	}
	switch f.Consent {
	case ConsentYes:
		conds = append(conds, "r.consent_flag = 'Y'")
	case ConsentNo:
		conds = append(conds, "r.consent_flag IS NULL")
	case ConsentRcvd:
		conds = append(conds, "r.consent_flag = 'R'")
	case ConsentWaivedOp:
		conds = append(conds, "r.consent_flag = 'N'")
	}
	if f.Priority != nil {
		conds = append(conds, "r.priority = "+arg(*f.Priority))
	}
	if f.Furnished != nil {
		conds = append(conds, "r.furnished = "+arg(*f.Furnished))
	}
	if f.ActiveUser != "" {
		conds = append(conds, "r.active_user = "+arg(f.ActiveUser))
	}
	if f.SubmittedAfter != nil {
		conds = append(conds, "r.submitted_date >= "+arg(*f.SubmittedAfter))
	}
	if f.SubmittedBefore != nil {
		conds = append(conds, "r.submitted_date < "+arg(*f.SubmittedBefore))
	}
	if f.LastUpdateAfter != nil {
		conds = append(conds, "r.last_update >= "+arg(*f.LastUpdateAfter))
	}
	if f.LastUpdateBefore != nil {
		conds = append(conds, "r.last_update < "+arg(*f.LastUpdateBefore))
	}
	if f.ExpiresBefore != nil {
		conds = append(conds, "r.expiration_date < "+arg(*f.ExpiresBefore))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func searchOrderClause(f SearchFilter) string {
	col := "r.submitted_date"
	switch f.OrderBy {
	case OrderByLastUpdate:
		col = "r.last_update"
	case OrderByNRNum:
		col = "r.nr_num"
	case OrderByExpiration:
		col = "r.expiration_date"
	}
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST", col, dir)
}

func prefixColumns(alias string) string {
	cols := strings.Split(requestColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func (s *PostgresStore) collect(ctx context.Context, rows *sql.Rows) ([]*models.Request, error) {
	var out []*models.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	for _, r := range out {
		if err := s.loadChildren(ctx, s.db, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) loadChildren(ctx context.Context, q querier, r *models.Request) error {
	nameRows, err := q.QueryContext(ctx, `
		SELECT id, choice, name, state_cd, designation, consumption_date, corp_num,
			conflict1, conflict1_num, conflict2, conflict2_num, conflict3, conflict3_num,
			decision_text, comment
		FROM request_names WHERE request_id = $1 ORDER BY choice ASC`, r.ID)
	if err != nil {
		return fmt.Errorf("load names for %s: %w", r.NRNum, err)
	}
	defer nameRows.Close()
	r.Names = nil
	for nameRows.Next() {
		var n models.Name
		var consumption sql.NullTime
		if err := nameRows.Scan(&n.ID, &n.Choice, &n.Name, &n.State, &n.Designation, &consumption, &n.CorpNum,
			&n.Conflict1, &n.Conflict1Num, &n.Conflict2, &n.Conflict2Num, &n.Conflict3, &n.Conflict3Num,
			&n.DecisionText, &n.Comment); err != nil {
			return fmt.Errorf("scan name for %s: %w", r.NRNum, err)
		}
		if consumption.Valid {
			n.ConsumptionDate = &consumption.Time
		}
		r.Names = append(r.Names, n)
	}
	if err := nameRows.Err(); err != nil {
		return fmt.Errorf("iterate names for %s: %w", r.NRNum, err)
	}

	var a models.Applicant
	err = q.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, middle_name, contact_name, client_first, client_last,
			addr_line1, addr_line2, addr_line3, city, state_province, postal_code, country,
			phone_number, fax_number, email_address, decline_notify
		FROM request_applicants WHERE request_id = $1`, r.ID).Scan(
		&a.ID, &a.FirstName, &a.LastName, &a.MiddleName, &a.ContactName, &a.ClientFirst, &a.ClientLast,
		&a.AddrLine1, &a.AddrLine2, &a.AddrLine3, &a.City, &a.StateProvince, &a.PostalCode, &a.Country,
		&a.PhoneNumber, &a.FaxNumber, &a.EmailAddress, &a.DeclineNotify,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r.Applicant = nil
	case err != nil:
		return fmt.Errorf("load applicant for %s: %w", r.NRNum, err)
	default:
		r.Applicant = &a
	}

	commentRows, err := q.QueryContext(ctx, `
		SELECT id, examiner, created_at, comment
		FROM request_comments WHERE request_id = $1 ORDER BY created_at ASC, id ASC`, r.ID)
	if err != nil {
		return fmt.Errorf("load comments for %s: %w", r.NRNum, err)
	}
	defer commentRows.Close()
	r.Comments = nil
	for commentRows.Next() {
		var c models.Comment
		if err := commentRows.Scan(&c.ID, &c.Examiner, &c.Timestamp, &c.Comment); err != nil {
			return fmt.Errorf("scan comment for %s: %w", r.NRNum, err)
		}
		r.Comments = append(r.Comments, c)
	}
	return commentRows.Err()
}

func updateRequestRow(ctx context.Context, q querier, r *models.Request) error {
	query := `
		UPDATE requests SET
			state_cd = $2, previous_state_cd = $3, submitted_date = $4, expiration_date = $5,
			priority = $6, consent_flag = $7, furnished = $8, request_type_cd = $9,
			nature_business = $10, additional_info = $11, xpro_juris = $12, home_juris_num = $13,
			corp_num = $14, active_user = $15, checkout_token = $16, has_been_reset = $17,
			notified_before_expiry = $18, notified_expiry = $19, submit_count = $20,
			last_update = $21, name_search = $22
		WHERE nr_num = $1
	`
	result, err := q.ExecContext(ctx, query,
		r.NRNum, r.State, nullState(r.PreviousState), r.SubmittedDate, r.ExpirationDate,
		r.Priority, nullString(r.ConsentFlag), r.Furnished, r.RequestType,
		r.NatureBusiness, r.AdditionalInfo, r.XproJuris, r.HomeJurisNum,
		r.CorpNum, r.ActiveUser, r.CheckoutToken, r.HasBeenReset,
		r.NotifiedBefore, r.NotifiedExpiry, r.SubmitCount, r.LastUpdate, r.SearchBlob(),
	)
	if err != nil {
		return fmt.Errorf("update request %s: %w", r.NRNum, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request %s rows affected: %w", r.NRNum, err)
	}
	if rows == 0 {
		return fmt.Errorf("update request %s: %w", r.NRNum, sentinel.ErrNotFound)
	}
	return nil
}

// saveChildren replaces the child rows wholesale. Aggregates are small
// (three names, one applicant, a handful of comments) so replace is simpler
// than diffing.
func saveChildren(ctx context.Context, q querier, r *models.Request) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM request_names WHERE request_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear names for %s: %w", r.NRNum, err)
	}
	for i := range r.Names {
		n := &r.Names[i]
		err := q.QueryRowContext(ctx, `
			INSERT INTO request_names (request_id, choice, name, state_cd, designation, consumption_date,
				corp_num, conflict1, conflict1_num, conflict2, conflict2_num, conflict3, conflict3_num,
				decision_text, comment)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id`,
			r.ID, n.Choice, n.Name, n.State, n.Designation, n.ConsumptionDate,
			n.CorpNum, n.Conflict1, n.Conflict1Num, n.Conflict2, n.Conflict2Num, n.Conflict3, n.Conflict3Num,
			n.DecisionText, n.Comment,
		).Scan(&n.ID)
		if err != nil {
			return fmt.Errorf("save name choice %d for %s: %w", n.Choice, r.NRNum, err)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM request_applicants WHERE request_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear applicant for %s: %w", r.NRNum, err)
	}
	if a := r.Applicant; a != nil {
		err := q.QueryRowContext(ctx, `
			INSERT INTO request_applicants (request_id, first_name, last_name, middle_name, contact_name,
				client_first, client_last, addr_line1, addr_line2, addr_line3, city, state_province,
				postal_code, country, phone_number, fax_number, email_address, decline_notify)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id`,
			r.ID, a.FirstName, a.LastName, a.MiddleName, a.ContactName,
			a.ClientFirst, a.ClientLast, a.AddrLine1, a.AddrLine2, a.AddrLine3, a.City, a.StateProvince,
			a.PostalCode, a.Country, a.PhoneNumber, a.FaxNumber, a.EmailAddress, a.DeclineNotify,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("save applicant for %s: %w", r.NRNum, err)
		}
	}

	// Comments are append-only; only insert the ones without ids.
	for i := range r.Comments {
		c := &r.Comments[i]
		if c.ID != 0 {
			continue
		}
		err := q.QueryRowContext(ctx, `
			INSERT INTO request_comments (request_id, examiner, created_at, comment)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			r.ID, c.Examiner, c.Timestamp, c.Comment,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("save comment for %s: %w", r.NRNum, err)
		}
	}
	return nil
}

type requestRow interface {
	Scan(dest ...any) error
}

func scanRequest(row requestRow) (*models.Request, error) {
	var r models.Request
	var prevState, consentFlag sql.NullString
	var expiration sql.NullTime
	if err := row.Scan(&r.ID, &r.NRNum, &r.State, &prevState, &r.SubmittedDate, &expiration,
		&r.Priority, &consentFlag, &r.Furnished, &r.RequestType, &r.NatureBusiness, &r.AdditionalInfo,
		&r.XproJuris, &r.HomeJurisNum, &r.CorpNum, &r.ActiveUser, &r.CheckoutToken, &r.HasBeenReset,
		&r.NotifiedBefore, &r.NotifiedExpiry, &r.SubmitCount, &r.LastUpdate); err != nil {
		return nil, err
	}
	if prevState.Valid {
		st := models.State(prevState.String)
		r.PreviousState = &st
	}
	if consentFlag.Valid {
		r.ConsentFlag = consentFlag.String
	}
	if expiration.Valid {
		r.ExpirationDate = &expiration.Time
	}
	return &r, nil
}

func nullState(s *models.State) any {
	if s == nil {
		return nil
	}
	return string(*s)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
