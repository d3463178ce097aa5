// Package requests holds the two human-approval workflow records: access
// requests (a known user asking for an application) and registration
// requests (an unknown user asking for an account).
package requests

import "time"

// Status is the workflow state. Pending is the only mutable state;
// approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AccessRequest asks for access to a single application. At most one
// pending request may exist per (user, application) pair.
type AccessRequest struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	UserEmail       string     `json:"user_email"`
	UserName        string     `json:"user_name"`
	ApplicationID   string     `json:"application_id"`
	ApplicationName string     `json:"application_name"`
	Status          Status     `json:"status"`
	RequestedAt     time.Time  `json:"requested_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessedBy     *string    `json:"processed_by,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// RegistrationRequest asks for a portal account. At most one pending
// request may exist per email.
type RegistrationRequest struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ProcessedBy *string    `json:"processed_by,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}
