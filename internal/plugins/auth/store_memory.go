package auth

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps accounts in process memory. Insertion order is preserved
// in accounts; byUsername and byID index into it.
type memoryStore struct {
	mu         sync.RWMutex
	accounts   []*Account
	byUsername map[string]int
	byID       map[int64]int
	nextID     int64
	now        func() time.Time
}

// NewMemoryStore creates an empty in-memory CredentialStore. Contents are
// lost when the process exits.
func NewMemoryStore() CredentialStore {
	return &memoryStore{
		byUsername: make(map[string]int),
		byID:       make(map[int64]int),
		nextID:     1,
		now:        time.Now,
	}
}

func (s *memoryStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byUsername[username]
	if !ok {
		return nil, errAccountNotFound()
	}
	return s.copyAt(idx), nil
}

func (s *memoryStore) FindByID(_ context.Context, id int64) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, errAccountNotFound()
	}
	return s.copyAt(idx), nil
}

// Insert holds the write lock across the uniqueness check and the append.
func (s *memoryStore) Insert(_ context.Context, username, passwordDigest, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[username]; exists {
		return nil, errDuplicateUsername()
	}

	acct := &Account{
		ID:             s.nextID,
		Username:       username,
		PasswordDigest: passwordDigest,
		Email:          email,
		CreatedAt:      s.now().UTC(),
	}
	s.nextID++

	s.accounts = append(s.accounts, acct)
	idx := len(s.accounts) - 1
	s.byUsername[username] = idx
	s.byID[acct.ID] = idx

	return s.copyAt(idx), nil
}

func (s *memoryStore) Update(_ context.Context, id int64, upd AccountUpdate) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, errAccountNotFound()
	}

	acct := s.accounts[idx]
	if upd.Email != nil {
		acct.Email = *upd.Email
	}
	if upd.PasswordDigest != nil {
		acct.PasswordDigest = *upd.PasswordDigest
	}
	return s.copyAt(idx), nil
}

// copyAt returns a copy so callers can't mutate stored state. Caller holds mu.
func (s *memoryStore) copyAt(idx int) *Account {
	acct := *s.accounts[idx]
	return &acct
}
