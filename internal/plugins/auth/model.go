// Package auth handles account registration, credential verification, and
// bearer token issuance for gatekeeper. Passwords are stored only as salted
// one-way digests; tokens are stateless HS256 JWTs validated on every
// protected request by the RequireAuth middleware.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Account is a registered user. PasswordDigest is the Hasher output and is
// never serialized.
type Account struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordDigest string    `json:"-"` // Never expose in JSON responses.
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"-"`
}

// Public returns the client-facing projection of the account.
func (a *Account) Public() *PublicAccount {
	return &PublicAccount{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
	}
}

// PublicAccount is the only account shape ever written to a response.
type PublicAccount struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AccountUpdate carries optional field changes for CredentialStore.Update.
// Nil fields are left untouched.
type AccountUpdate struct {
	Email          *string
	PasswordDigest *string
}

// Identity is the authenticated caller as proven by a verified token.
type Identity struct {
	ID       int64
	Username string
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateProfileRequest is the body of PUT /api/profile. Empty fields are
// left unchanged.
type UpdateProfileRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the input for creating a new account.
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// LoginInput is the input for authenticating an account.
type LoginInput struct {
	Username string
	Password string
}

// UpdateProfileInput is the input for changing email and/or password.
type UpdateProfileInput struct {
	Email    string
	Password string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token   string
	Account *PublicAccount
}

// --- Response DTOs ---

// authResponse is the body returned by register and login.
type authResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    *PublicAccount `json:"user"`
}

// tokenResponse is the body returned by refresh-token.
type tokenResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// profileUpdateResponse is the body returned by PUT /api/profile.
type profileUpdateResponse struct {
	Message string         `json:"message"`
	User    *PublicAccount `json:"user"`
}
