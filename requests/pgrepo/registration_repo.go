package pgrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adamcubel/Cubel-Cloud/internal/errors"
	"github.com/adamcubel/Cubel-Cloud/internal/ids"
	"github.com/adamcubel/Cubel-Cloud/internal/utils"
	"github.com/adamcubel/Cubel-Cloud/requests"
)

var _ requests.RegistrationRepo = (*RegistrationRequestRepo)(nil)

// RegistrationRequestRepo persists registration requests over the shared
// pool.
type RegistrationRequestRepo struct {
	db *sql.DB
}

func NewRegistrationRequestRepo(store *Store) *RegistrationRequestRepo {
	return &RegistrationRequestRepo{db: store.db}
}

const registrationColumns = `id, email, first_name, last_name, reason,
		status, submitted_at, processed_at, processed_by, notes`

// Create inserts a pending registration request. Duplicate pending
// submissions for the same email fail with ErrDuplicatePending; the
// partial unique index on lower(email) is the authoritative guard.
func (r *RegistrationRequestRepo) Create(ctx context.Context, req *requests.RegistrationRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create registration request: %w", mapStoreError(err))
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM registration_requests
		 WHERE lower(email) = lower($1) AND status = 'pending'`,
		req.Email).Scan(&existingID)
	if err == nil {
		return fmt.Errorf("registration request for %s: %w", req.Email, errors.ErrDuplicatePending)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check pending registration request: %w", mapStoreError(err))
	}

	req.ID = ids.New()
	req.Status = requests.StatusPending

	err = tx.QueryRowContext(ctx,
		`INSERT INTO registration_requests (id, email, first_name, last_name, reason)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING submitted_at`,
		req.ID, req.Email, req.FirstName, req.LastName, req.Reason).
		Scan(&req.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert registration request: %w", mapStoreError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration request: %w", mapStoreError(err))
	}
	return nil
}

func (r *RegistrationRequestRepo) List(ctx context.Context) ([]requests.RegistrationRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationColumns+`
		 FROM registration_requests
		 ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END, submitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list registration requests: %w", mapStoreError(err))
	}
	defer rows.Close()

	list := make([]requests.RegistrationRequest, 0)
	for rows.Next() {
		req, err := scanRegistrationRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration request: %w", err)
		}
		list = append(list, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registration requests: %w", mapStoreError(err))
	}
	return list, nil
}

func (r *RegistrationRequestRepo) Approve(ctx context.Context, id, processedBy string) (*requests.RegistrationRequest, error) {
	return r.transition(ctx, id, requests.StatusApproved, processedBy, nil)
}

func (r *RegistrationRequestRepo) Reject(ctx context.Context, id, processedBy, notes string) (*requests.RegistrationRequest, error) {
	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}
	return r.transition(ctx, id, requests.StatusRejected, processedBy, notesArg)
}

func (r *RegistrationRequestRepo) transition(ctx context.Context, id string, status requests.Status, processedBy string, notes *string) (*requests.RegistrationRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE registration_requests
		 SET status = $1, processed_at = now(), processed_by = $2, notes = COALESCE($3, notes)
		 WHERE id = $4 AND status = 'pending'
		 RETURNING `+registrationColumns,
		status, processedBy, notes, id)

	req, err := scanRegistrationRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("registration request %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("transition registration request %s: %w", id, mapStoreError(err))
	}
	return req, nil
}

func scanRegistrationRequest(row rowScanner) (*requests.RegistrationRequest, error) {
	var req requests.RegistrationRequest
	var processedAt sql.NullTime
	var processedBy, notes sql.NullString

	err := row.Scan(&req.ID, &req.Email, &req.FirstName, &req.LastName, &req.Reason,
		&req.Status, &req.SubmittedAt, &processedAt, &processedBy, &notes)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		req.ProcessedAt = utils.Ptr(processedAt.Time)
	}
	if processedBy.Valid {
		req.ProcessedBy = utils.Ptr(processedBy.String)
	}
	if notes.Valid {
		req.Notes = utils.Ptr(notes.String)
	}
	return &req, nil
}
