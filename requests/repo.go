package requests

import "context"

// AccessRepo persists access requests. Create fills in the id, status
// and requested-at timestamp, and fails with ErrDuplicatePending when a
// pending request already exists for the same (user, application) pair.
// Approve and Reject are conditional transitions that report ErrNotFound
// when the row is missing or no longer pending.
type AccessRepo interface {
	Create(ctx context.Context, req *AccessRequest) error
	List(ctx context.Context) ([]AccessRequest, error)
	Approve(ctx context.Context, id, processedBy string) (*AccessRequest, error)
	Reject(ctx context.Context, id, processedBy, notes string) (*AccessRequest, error)
}

// RegistrationRepo persists registration requests with the same
// transition semantics as AccessRepo; the pending-uniqueness key is the
// email address.
type RegistrationRepo interface {
	Create(ctx context.Context, req *RegistrationRequest) error
	List(ctx context.Context) ([]RegistrationRequest, error)
	Approve(ctx context.Context, id, processedBy string) (*RegistrationRequest, error)
	Reject(ctx context.Context, id, processedBy, notes string) (*RegistrationRequest, error)
}
