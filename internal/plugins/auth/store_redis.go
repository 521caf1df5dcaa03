package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. Each account is a hash under accountKeyPrefix+id; the
// username index maps username -> id; the sequence key hands out ids.
//
// insertScript derives the account key from the allocated id, so it writes
// a key it cannot declare up front. Every key carries the {gatekeeper} hash
// tag to keep them in one Redis Cluster slot, and ACLs must grant the whole
// "{gatekeeper}:*" pattern.
const (
	keyHashTag         = "{gatekeeper}:"
	accountKeyPrefix   = keyHashTag + "account:"
	usernameIndexKey   = keyHashTag + "accounts:by_username"
	accountSequenceKey = keyHashTag + "accounts:seq"
)

// insertScript checks the username index, allocates the next id, and writes
// the account hash in one server-side step so concurrent registrations for
// the same username cannot both pass the check. Returns 0 on duplicate.
var insertScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return 0
end
local id = redis.call('INCR', KEYS[2])
redis.call('HSET', ARGV[5] .. id,
  'id', id, 'username', ARGV[1], 'digest', ARGV[2], 'email', ARGV[3], 'created_at', ARGV[4])
redis.call('HSET', KEYS[1], ARGV[1], id)
return id
`)

// updateScript applies field/value pairs to an existing account hash.
// Returns 0 if the account does not exist.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
for i = 1, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// redisStore implements CredentialStore on Redis hashes.
type redisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisStore creates a CredentialStore backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) CredentialStore {
	return &redisStore{rdb: rdb, now: time.Now}
}

func (s *redisStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	id, err := s.rdb.HGet(ctx, usernameIndexKey, username).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, errAccountNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("reading username index: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *redisStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	fields, err := s.rdb.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading account %d: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, errAccountNotFound()
	}
	return decodeAccount(fields)
}

func (s *redisStore) Insert(ctx context.Context, username, passwordDigest, email string) (*Account, error) {
	createdAt := s.now().UTC()

	id, err := insertScript.Run(ctx, s.rdb,
		[]string{usernameIndexKey, accountSequenceKey},
		username, passwordDigest, email, createdAt.Format(time.RFC3339Nano), accountKeyPrefix,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("inserting account: %w", err)
	}
	if id == 0 {
		return nil, errDuplicateUsername()
	}

	return &Account{
		ID:             id,
		Username:       username,
		PasswordDigest: passwordDigest,
		Email:          email,
		CreatedAt:      createdAt,
	}, nil
}

func (s *redisStore) Update(ctx context.Context, id int64, upd AccountUpdate) (*Account, error) {
	var args []any
	if upd.Email != nil {
		args = append(args, "email", *upd.Email)
	}
	if upd.PasswordDigest != nil {
		args = append(args, "digest", *upd.PasswordDigest)
	}

	ok, err := updateScript.Run(ctx, s.rdb, []string{accountKey(id)}, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("updating account %d: %w", id, err)
	}
	if ok == 0 {
		return nil, errAccountNotFound()
	}
	return s.FindByID(ctx, id)
}

func accountKey(id int64) string {
	return accountKeyPrefix + strconv.FormatInt(id, 10)
}

// decodeAccount builds an Account from the fields of an account hash.
func decodeAccount(fields map[string]string) (*Account, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding account id %q: %w", fields["id"], err)
	}

	acct := &Account{
		ID:             id,
		Username:       fields["username"],
		PasswordDigest: fields["digest"],
		Email:          fields["email"],
	}
	if raw := fields["created_at"]; raw != "" {
		if acct.CreatedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return nil, fmt.Errorf("decoding account created_at: %w", err)
		}
	}
	return acct, nil
}
