package auth

import (
	"context"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

// CredentialStore defines the data access contract for accounts. The
// service layer never touches a backend directly.
//
// Implementations must be safe for concurrent use. Insert must check
// username uniqueness and insert as one atomic step: of any number of
// concurrent inserts for the same username exactly one succeeds and the
// rest fail with errDuplicateUsername.
type CredentialStore interface {
	// FindByUsername returns apperror NotFound if no account has the username.
	FindByUsername(ctx context.Context, username string) (*Account, error)

	// FindByID returns apperror NotFound if no account has the id.
	FindByID(ctx context.Context, id int64) (*Account, error)

	// Insert assigns the next sequential id and stores the account.
	Insert(ctx context.Context, username, passwordDigest, email string) (*Account, error)

	// Update applies the non-nil fields of upd and returns the new state.
	// Returns apperror NotFound if the id is absent.
	Update(ctx context.Context, id int64, upd AccountUpdate) (*Account, error)
}

// Store errors shared by every backend. Constructors, not values, because
// AppError is a pointer type callers may decorate.
func errDuplicateUsername() *apperror.AppError {
	return apperror.NewConflict("Username already exists")
}

func errAccountNotFound() *apperror.AppError {
	return apperror.NewNotFound("User not found")
}
