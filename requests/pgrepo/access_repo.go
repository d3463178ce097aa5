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

var _ requests.AccessRepo = (*AccessRequestRepo)(nil)

// AccessRequestRepo persists access requests over the shared pool.
type AccessRequestRepo struct {
	db *sql.DB
}

func NewAccessRequestRepo(store *Store) *AccessRequestRepo {
	return &AccessRequestRepo{db: store.db}
}

const accessColumns = `id, user_id, user_email, user_name, application_id, application_name,
		status, requested_at, processed_at, processed_by, notes`

// Create inserts a pending access request. The pre-check SELECT inside
// the transaction produces a fast conflict error; the partial unique
// index remains the authoritative guard under concurrent creation.
func (r *AccessRequestRepo) Create(ctx context.Context, req *requests.AccessRequest) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create access request: %w", mapStoreError(err))
	}
	defer func() { _ = tx.Rollback() }()

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM access_requests
		 WHERE user_id = $1 AND application_id = $2 AND status = 'pending'`,
		req.UserID, req.ApplicationID).Scan(&existingID)
	if err == nil {
		return fmt.Errorf("access request for %s/%s: %w", req.UserID, req.ApplicationID, errors.ErrDuplicatePending)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check pending access request: %w", mapStoreError(err))
	}

	req.ID = ids.New()
	req.Status = requests.StatusPending

	err = tx.QueryRowContext(ctx,
		`INSERT INTO access_requests (id, user_id, user_email, user_name, application_id, application_name)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING requested_at`,
		req.ID, req.UserID, req.UserEmail, req.UserName, req.ApplicationID, req.ApplicationName).
		Scan(&req.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert access request: %w", mapStoreError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit access request: %w", mapStoreError(err))
	}
	return nil
}

// List returns all access requests, pending first, then most recent
// first, for administrative triage.
func (r *AccessRequestRepo) List(ctx context.Context) ([]requests.AccessRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accessColumns+`
		 FROM access_requests
		 ORDER BY CASE WHEN status = 'pending' THEN 0 ELSE 1 END, requested_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", mapStoreError(err))
	}
	defer rows.Close()

	list := make([]requests.AccessRequest, 0)
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		list = append(list, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list access requests: %w", mapStoreError(err))
	}
	return list, nil
}

// Approve flips a pending request to approved. The update is conditional
// on the current status; zero affected rows collapses "doesn't exist"
// and "already processed" into ErrNotFound.
func (r *AccessRequestRepo) Approve(ctx context.Context, id, processedBy string) (*requests.AccessRequest, error) {
	return r.transitionAccess(ctx, id, requests.StatusApproved, processedBy, nil)
}

// Reject flips a pending request to rejected with optional notes.
func (r *AccessRequestRepo) Reject(ctx context.Context, id, processedBy, notes string) (*requests.AccessRequest, error) {
	var notesArg *string
	if notes != "" {
		notesArg = &notes
	}
	return r.transitionAccess(ctx, id, requests.StatusRejected, processedBy, notesArg)
}

func (r *AccessRequestRepo) transitionAccess(ctx context.Context, id string, status requests.Status, processedBy string, notes *string) (*requests.AccessRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE access_requests
		 SET status = $1, processed_at = now(), processed_by = $2, notes = COALESCE($3, notes)
		 WHERE id = $4 AND status = 'pending'
		 RETURNING `+accessColumns,
		status, processedBy, notes, id)

	req, err := scanAccessRequest(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("access request %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("transition access request %s: %w", id, mapStoreError(err))
	}
	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccessRequest(row rowScanner) (*requests.AccessRequest, error) {
	var req requests.AccessRequest
	var processedAt sql.NullTime
	var processedBy, notes sql.NullString

	err := row.Scan(&req.ID, &req.UserID, &req.UserEmail, &req.UserName,
		&req.ApplicationID, &req.ApplicationName, &req.Status, &req.RequestedAt,
		&processedAt, &processedBy, &notes)
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
