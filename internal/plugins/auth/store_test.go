package auth

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/gatekeeper/internal/apperror"
)

// runStoreContract exercises the CredentialStore contract against a fresh
// store from newStore for each subtest. Every backend runs it.
func runStoreContract(t *testing.T, newStore func(t *testing.T) CredentialStore) {
	t.Run("insert assigns sequential ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.Insert(ctx, "alice", "digest-a", "alice@example.com")
		require.NoError(t, err)
		b, err := s.Insert(ctx, "bob", "digest-b", "bob@example.com")
		require.NoError(t, err)

		assert.Equal(t, int64(1), a.ID)
		assert.Equal(t, int64(2), b.ID)
		assert.Equal(t, "alice", a.Username)
		assert.Equal(t, "digest-a", a.PasswordDigest)
		assert.Equal(t, "alice@example.com", a.Email)
		assert.False(t, a.CreatedAt.IsZero())
	})

	t.Run("find by username and id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, "alice", "digest-a", "alice@example.com")
		require.NoError(t, err)

		byName, err := s.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		byID, err := s.FindByID(ctx, created.ID)
		require.NoError(t, err)

		for _, got := range []*Account{byName, byID} {
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "alice", got.Username)
			assert.Equal(t, "digest-a", got.PasswordDigest)
			assert.Equal(t, "alice@example.com", got.Email)
		}
	})

	t.Run("missing account is not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindByUsername(ctx, "nobody")
		assert.True(t, apperror.IsNotFound(err), "got %v", err)

		_, err = s.FindByID(ctx, 42)
		assert.True(t, apperror.IsNotFound(err), "got %v", err)

		email := "x@example.com"
		_, err = s.Update(ctx, 42, AccountUpdate{Email: &email})
		assert.True(t, apperror.IsNotFound(err), "got %v", err)
	})

	t.Run("usernames are case sensitive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, "alice", "d", "a@example.com")
		require.NoError(t, err)
		_, err = s.Insert(ctx, "Alice", "d", "A@example.com")
		require.NoError(t, err)

		_, err = s.FindByUsername(ctx, "ALICE")
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("duplicate username conflicts and keeps the original", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Insert(ctx, "alice", "first", "first@example.com")
		require.NoError(t, err)

		_, err = s.Insert(ctx, "alice", "second", "second@example.com")
		require.Error(t, err)
		assert.True(t, apperror.IsConflict(err), "got %v", err)
		assert.Equal(t, "Username already exists", apperror.SafeMessage(err))

		got, err := s.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "first", got.PasswordDigest)
		assert.Equal(t, "first@example.com", got.Email)
	})

	t.Run("update changes only given fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Insert(ctx, "alice", "digest-a", "alice@example.com")
		require.NoError(t, err)

		email := "new@example.com"
		updated, err := s.Update(ctx, created.ID, AccountUpdate{Email: &email})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", updated.Email)
		assert.Equal(t, "digest-a", updated.PasswordDigest)

		digest := "digest-b"
		updated, err = s.Update(ctx, created.ID, AccountUpdate{PasswordDigest: &digest})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", updated.Email)
		assert.Equal(t, "digest-b", updated.PasswordDigest)

		unchanged, err := s.Update(ctx, created.ID, AccountUpdate{})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", unchanged.Email)
		assert.Equal(t, "alice", unchanged.Username)

		got, err := s.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "digest-b", got.PasswordDigest)
	})

	t.Run("concurrent inserts of one username admit exactly one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Insert(ctx, "racer", fmt.Sprintf("digest-%d", i), "racer@example.com")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case apperror.IsConflict(err):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, n-1, conflicts)

		_, err := s.FindByUsername(ctx, "racer")
		assert.NoError(t, err)
	})

	t.Run("concurrent inserts of distinct usernames get distinct ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const n = 20
		ids := make([]int64, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				acct, err := s.Insert(ctx, fmt.Sprintf("user-%d", i), "d", "u@example.com")
				if err != nil {
					t.Errorf("insert %d: %v", i, err)
					return
				}
				ids[i] = acct.ID
			}(i)
		}
		wg.Wait()

		seen := make(map[int64]bool, n)
		for _, id := range ids {
			assert.False(t, seen[id], "id %d assigned twice", id)
			seen[id] = true
		}
	})
}
