package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

// timingDummyPassword is hashed once at construction and verified against on
// logins for unknown usernames so both failure paths cost one Verify with
// the primary algorithm.
const timingDummyPassword = "gatekeeper-timing-equalizer"

// AuthService defines the business logic contract for accounts and tokens.
// Handlers call these methods -- they never touch the store directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResult, error)
	Login(ctx context.Context, input LoginInput) (*AuthResult, error)
	RefreshToken(ctx context.Context, id Identity) (string, error)
	GetProfile(ctx context.Context, id Identity) (*PublicAccount, error)
	UpdateProfile(ctx context.Context, id Identity, input UpdateProfileInput) (*PublicAccount, error)
	Bootstrap(ctx context.Context, username, email, digest string) error
}

// authService implements AuthService over a CredentialStore, a Hasher and
// a TokenCodec.
type authService struct {
	store   CredentialStore
	hasher  Hasher
	codec   *TokenCodec
	metrics *Metrics

	// hashSlots bounds in-flight hash/verify calls; each argon2id call holds
	// its memory cost for the duration.
	hashSlots *semaphore.Weighted

	// dummyDigest is what unknown-username logins verify against.
	dummyDigest string
}

// NewAuthService creates a new auth service with the given dependencies.
// hashConcurrency is the number of hash/verify operations allowed to run at
// once; metrics may be nil. It fails if the hasher cannot produce the digest
// used to equalize login timing.
func NewAuthService(store CredentialStore, hasher Hasher, codec *TokenCodec, hashConcurrency int, metrics *Metrics) (AuthService, error) {
	if hashConcurrency < 1 {
		hashConcurrency = 1
	}

	dummy, err := hasher.Hash(timingDummyPassword)
	if err != nil {
		return nil, fmt.Errorf("preparing timing digest: %w", err)
	}
	if !hasher.Verify(timingDummyPassword, dummy) {
		return nil, errors.New("preparing timing digest: hasher rejected its own digest")
	}

	return &authService{
		store:       store,
		hasher:      hasher,
		codec:       codec,
		metrics:     metrics,
		hashSlots:   semaphore.NewWeighted(int64(hashConcurrency)),
		dummyDigest: dummy,
	}, nil
}

// Register creates an account and issues its first token.
func (s *authService) Register(ctx context.Context, input RegisterInput) (result *AuthResult, err error) {
	defer func() { s.metrics.record("register", outcomeOf(err)) }()

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" || input.Password == "" || email == "" {
		return nil, apperror.NewBadRequest("Username, password, and email are required")
	}

	// Cheap early exit before the expensive hash. Insert re-checks atomically.
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil, errDuplicateUsername()
	} else if !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("checking username: %w", err))
	}

	digest, err := s.hash(ctx, input.Password)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.Insert(ctx, username, digest, email)
	if err != nil {
		if apperror.IsConflict(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("inserting account: %w", err))
	}

	token, err := s.issue(acct.ID, acct.Username)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered",
		slog.Int64("user_id", acct.ID),
		slog.String("username", acct.Username),
	)

	return &AuthResult{Token: token, Account: acct.Public()}, nil
}

// Login verifies a username/password pair and issues a fresh token. Unknown
// usernames and wrong passwords produce the same error.
func (s *authService) Login(ctx context.Context, input LoginInput) (result *AuthResult, err error) {
	defer func() { s.metrics.record("login", outcomeOf(err)) }()

	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, apperror.NewBadRequest("Username and password are required")
	}

	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if !apperror.IsNotFound(err) {
			return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
		}
		if _, verr := s.verify(ctx, input.Password, s.dummyDigest); verr != nil {
			return nil, verr
		}
		return nil, errInvalidCredentials()
	}

	ok, err := s.verify(ctx, input.Password, acct.PasswordDigest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errInvalidCredentials()
	}

	s.upgradeDigest(ctx, acct, input.Password)

	token, err := s.issue(acct.ID, acct.Username)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.Int64("user_id", acct.ID),
		slog.String("username", acct.Username),
	)

	return &AuthResult{Token: token, Account: acct.Public()}, nil
}

// RefreshToken issues a new token for an already authenticated identity.
// The presented token stays valid until its own expiry.
func (s *authService) RefreshToken(_ context.Context, id Identity) (token string, err error) {
	defer func() { s.metrics.record("refresh", outcomeOf(err)) }()

	return s.issue(id.ID, id.Username)
}

// GetProfile returns the public view of the caller's account.
func (s *authService) GetProfile(ctx context.Context, id Identity) (*PublicAccount, error) {
	acct, err := s.findAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return acct.Public(), nil
}

// UpdateProfile changes email and/or password. Empty input fields are left
// unchanged. Previously issued tokens are not invalidated.
func (s *authService) UpdateProfile(ctx context.Context, id Identity, input UpdateProfileInput) (profile *PublicAccount, err error) {
	defer func() { s.metrics.record("profile_update", outcomeOf(err)) }()

	if _, err := s.findAccount(ctx, id); err != nil {
		return nil, err
	}

	var upd AccountUpdate
	if email := strings.TrimSpace(input.Email); email != "" {
		upd.Email = &email
	}
	if input.Password != "" {
		digest, err := s.hash(ctx, input.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordDigest = &digest
	}

	acct, err := s.store.Update(ctx, id.ID, upd)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, errAccountNotFound()
		}
		return nil, apperror.NewInternal(fmt.Errorf("updating account: %w", err))
	}

	slog.Info("profile updated",
		slog.Int64("user_id", acct.ID),
		slog.Bool("email_changed", upd.Email != nil),
		slog.Bool("password_changed", upd.PasswordDigest != nil),
	)

	return acct.Public(), nil
}

// Bootstrap seeds an account from a pre-computed digest unless the username
// already exists. Safe to call on every startup.
func (s *authService) Bootstrap(ctx context.Context, username, email, digest string) error {
	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		slog.Debug("bootstrap account already present", slog.String("username", username))
		return nil
	} else if !apperror.IsNotFound(err) {
		return fmt.Errorf("checking bootstrap account: %w", err)
	}

	acct, err := s.store.Insert(ctx, username, digest, email)
	if err != nil {
		if apperror.IsConflict(err) {
			return nil
		}
		return fmt.Errorf("inserting bootstrap account: %w", err)
	}

	if needsRehash(s.hasher, digest) {
		slog.Warn("bootstrap digest uses a non-primary algorithm; it is rehashed on first login",
			slog.String("username", acct.Username),
		)
	}

	slog.Info("bootstrap account created",
		slog.Int64("user_id", acct.ID),
		slog.String("username", acct.Username),
	)
	return nil
}

// --- helpers ---

func (s *authService) findAccount(ctx context.Context, id Identity) (*Account, error) {
	acct, err := s.store.FindByID(ctx, id.ID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, errAccountNotFound()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding account %d: %w", id.ID, err))
	}
	return acct, nil
}

func (s *authService) issue(userID int64, username string) (string, error) {
	token, err := s.codec.Issue(userID, username)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("issuing token: %w", err))
	}
	return token, nil
}

// hash runs Hasher.Hash inside a hashing slot.
func (s *authService) hash(ctx context.Context, password string) (string, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("waiting for hash slot: %w", err))
	}
	defer s.hashSlots.Release(1)

	started := time.Now()
	digest, err := s.hasher.Hash(password)
	s.metrics.observeHash("hash", started)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return "", apperror.NewBadRequest("Password must be at most 72 bytes")
		}
		return "", apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	return digest, nil
}

// verify runs Hasher.Verify inside a hashing slot.
func (s *authService) verify(ctx context.Context, password, digest string) (bool, error) {
	if err := s.hashSlots.Acquire(ctx, 1); err != nil {
		return false, apperror.NewInternal(fmt.Errorf("waiting for hash slot: %w", err))
	}
	defer s.hashSlots.Release(1)

	started := time.Now()
	ok := s.hasher.Verify(password, digest)
	s.metrics.observeHash("verify", started)
	return ok, nil
}

// upgradeDigest replaces a digest made with a non-primary algorithm after a
// successful login, so every stored account verifies at the same cost as
// an unknown username. Failures are logged and do not fail the login.
func (s *authService) upgradeDigest(ctx context.Context, acct *Account, password string) {
	if !needsRehash(s.hasher, acct.PasswordDigest) {
		return
	}

	digest, err := s.hash(ctx, password)
	if err != nil {
		slog.Warn("rehashing password failed", slog.Int64("user_id", acct.ID), slog.Any("error", err))
		return
	}
	if _, err := s.store.Update(ctx, acct.ID, AccountUpdate{PasswordDigest: &digest}); err != nil {
		slog.Warn("storing rehashed password failed", slog.Int64("user_id", acct.ID), slog.Any("error", err))
		return
	}
	slog.Info("password rehashed with primary algorithm", slog.Int64("user_id", acct.ID))
}

func errInvalidCredentials() *apperror.AppError {
	return apperror.NewUnauthorized("Invalid credentials")
}

// isClientError reports whether err maps to a 4xx response.
func isClientError(err error) bool {
	code := apperror.SafeCode(err)
	return code >= http.StatusBadRequest && code < http.StatusInternalServerError
}
