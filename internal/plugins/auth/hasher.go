package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/gatekeeper/internal/config"
)

// argon2id defaults follow OWASP recommendations: memory=64MB,
// iterations=3, parallelism=4. Overridable through config.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// bcryptMaxPasswordLen is bcrypt's hard input limit.
const bcryptMaxPasswordLen = 72

// ErrPasswordTooLong is returned by BcryptHasher.Hash for inputs bcrypt
// would otherwise reject or truncate.
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher turns a plaintext password into a salted one-way digest and checks
// plaintexts against stored digests. Implementations are safe for concurrent
// use.
type Hasher interface {
	// Hash returns a new digest. Two calls with the same input return
	// different digests because each embeds a fresh random salt.
	Hash(password string) (string, error)

	// Verify reports whether digest was produced from password. Malformed
	// digests yield false.
	Verify(password, digest string) bool
}

// NewHasher returns a Hasher that produces digests with the configured
// algorithm and verifies digests of either supported algorithm, so accounts
// seeded with a bcrypt digest keep working under argon2id and vice versa.
func NewHasher(cfg config.AuthConfig) Hasher {
	argon := NewArgon2idHasher(cfg.Argon2Time, cfg.Argon2MemoryKiB, cfg.Argon2Threads)
	bc := NewBcryptHasher(cfg.BcryptCost)

	h := &multiHasher{argon: argon, bcrypt: bc, primary: argon}
	if cfg.HashAlgorithm == config.HashBcrypt {
		h.primary = bc
	}
	return h
}

// multiHasher hashes with one algorithm and dispatches verification on the
// digest prefix.
type multiHasher struct {
	primary Hasher
	argon   *Argon2idHasher
	bcrypt  *BcryptHasher
}

func (h *multiHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *multiHasher) Verify(password, digest string) bool {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return h.argon.Verify(password, digest)
	case isBcryptDigest(digest):
		return h.bcrypt.Verify(password, digest)
	default:
		return false
	}
}

// NeedsRehash reports whether digest was made by an algorithm other than
// the one used for new passwords.
func (h *multiHasher) NeedsRehash(digest string) bool {
	if h.primary == Hasher(h.bcrypt) {
		return !isBcryptDigest(digest)
	}
	return !strings.HasPrefix(digest, "$argon2id$")
}

// needsRehash asks h whether digest should be replaced. Hashers that don't
// implement NeedsRehash never ask for it.
func needsRehash(h Hasher, digest string) bool {
	r, ok := h.(interface{ NeedsRehash(digest string) bool })
	return ok && r.NeedsRehash(digest)
}

// --- argon2id ---

// Argon2idHasher implements Hasher with argon2id, encoding digests in the
// PHC string format: $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
type Argon2idHasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

// NewArgon2idHasher creates an argon2id hasher. Zero values fall back to the
// package defaults.
func NewArgon2idHasher(time, memoryKiB uint32, threads uint8) *Argon2idHasher {
	if time == 0 {
		time = argonTime
	}
	if memoryKiB == 0 {
		memoryKiB = argonMemory
	}
	if threads == 0 {
		threads = argonThreads
	}
	return &Argon2idHasher{time: time, memory: memoryKiB, threads: threads}
}

// Hash creates an argon2id digest of the given password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks a plaintext password against an argon2id digest. The
// parameters embedded in the digest are used, not the hasher's own, so
// digests survive a change of work factor.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// --- bcrypt ---

// BcryptHasher implements Hasher with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. Costs outside bcrypt's accepted
// range fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash creates a bcrypt digest of the given password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if len(password) > bcryptMaxPasswordLen {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(digest), nil
}

// Verify checks a plaintext password against a bcrypt digest.
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}
