package auth

import (
	"strings"
	"sync"
	"testing"

	"github.com/keyxmakerx/gatekeeper/internal/config"
)

// Low work factors keep the suite fast; verification reads the parameters
// back out of each digest, so correctness doesn't depend on them.
func testArgon2id() *Argon2idHasher { return NewArgon2idHasher(1, 1024, 1) }
func testBcrypt() *BcryptHasher { return NewBcryptHasher(4) }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{Argon2Time: 1, Argon2MemoryKiB: 1024, Argon2Threads: 1, BcryptCost: 4}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hashers := map[string]Hasher{
		"argon2id": testArgon2id(),
		"bcrypt":   testBcrypt(),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			password := "my-secret-password-123"

			digest, err := h.Hash(password)
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			if digest == "" || digest == password {
				t.Fatalf("expected an opaque digest, got %q", digest)
			}

			if !h.Verify(password, digest) {
				t.Error("expected correct password to verify")
			}
			if h.Verify("wrong-password", digest) {
				t.Error("expected wrong password to fail verification")
			}
			if h.Verify("", digest) {
				t.Error("expected empty password to fail verification")
			}
		})
	}
}

func TestHash_UniqueSalts(t *testing.T) {
	h := testArgon2id()
	d1, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	d2, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if d1 == d2 {
		t.Error("expected different salts to produce different digests")
	}
	if !h.Verify("same-password", d1) || !h.Verify("same-password", d2) {
		t.Error("expected both digests to verify")
	}
}

func TestArgon2id_DigestFormat(t *testing.T) {
	digest, err := testArgon2id().Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("unexpected PHC prefix: %s", digest)
	}
	if parts := strings.Split(digest, "$"); len(parts) != 6 {
		t.Errorf("expected 6 PHC segments, got %d", len(parts))
	}
}

func TestArgon2id_VerifiesAcrossParameterChange(t *testing.T) {
	old := NewArgon2idHasher(1, 1024, 1)
	digest, err := old.Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// A hasher configured with different costs still honours the digest's own.
	if !NewArgon2idHasher(2, 2048, 2).Verify("pw", digest) {
		t.Error("expected digest to verify under new parameters")
	}
}

func TestVerify_InvalidDigest(t *testing.T) {
	tests := []struct {
		name   string
		digest string
	}{
		{"empty string", ""},
		{"random text", "not-a-hash"},
		{"too few parts", "$argon2id$v=19$m=65536"},
		{"wrong version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"corrupted salt", "$argon2id$v=19$m=65536,t=3,p=4$!!!invalid$aGFzaA"},
		{"corrupted hash", "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$!!!invalid"},
		{"truncated bcrypt", "$2a$10$abc"},
		{"unknown scheme", "$md5$abc$def"},
	}

	h := NewHasher(testAuthConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if h.Verify("password", tt.digest) {
				t.Error("expected invalid digest to fail verification")
			}
		})
	}
}

func TestNewHasher_VerifiesBothAlgorithms(t *testing.T) {
	argonDigest, err := testArgon2id().Hash("pw")
	if err != nil {
		t.Fatalf("argon2id Hash failed: %v", err)
	}
	bcryptDigest, err := testBcrypt().Hash("pw")
	if err != nil {
		t.Fatalf("bcrypt Hash failed: %v", err)
	}

	for _, alg := range []string{config.HashArgon2id, config.HashBcrypt} {
		cfg := testAuthConfig()
		cfg.HashAlgorithm = alg
		h := NewHasher(cfg)
		if !h.Verify("pw", argonDigest) {
			t.Errorf("%s hasher: expected argon2id digest to verify", alg)
		}
		if !h.Verify("pw", bcryptDigest) {
			t.Errorf("%s hasher: expected bcrypt digest to verify", alg)
		}
	}
}

func TestNewHasher_PrimaryAlgorithm(t *testing.T) {
	h := NewHasher(config.AuthConfig{HashAlgorithm: config.HashBcrypt, BcryptCost: 4})
	digest, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !isBcryptDigest(digest) {
		t.Errorf("expected bcrypt digest, got %s", digest)
	}
}

func TestNewHasher_NeedsRehash(t *testing.T) {
	argonDigest, _ := testArgon2id().Hash("pw")
	bcryptDigest, _ := testBcrypt().Hash("pw")

	tests := []struct {
		alg    string
		digest string
		want   bool
	}{
		{config.HashArgon2id, argonDigest, false},
		{config.HashArgon2id, bcryptDigest, true},
		{config.HashBcrypt, bcryptDigest, false},
		{config.HashBcrypt, argonDigest, true},
	}

	for _, tt := range tests {
		cfg := testAuthConfig()
		cfg.HashAlgorithm = tt.alg
		if got := needsRehash(NewHasher(cfg), tt.digest); got != tt.want {
			t.Errorf("%s primary, digest %.10s: needsRehash = %v, want %v", tt.alg, tt.digest, got, tt.want)
		}
	}

	if needsRehash(testArgon2id(), bcryptDigest) {
		t.Error("single-algorithm hashers never ask for a rehash")
	}
}

func TestBcrypt_PasswordTooLong(t *testing.T) {
	_, err := testBcrypt().Hash(strings.Repeat("x", 73))
	if err != ErrPasswordTooLong {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	if _, err := testBcrypt().Hash(strings.Repeat("x", 72)); err != nil {
		t.Fatalf("72 bytes should be accepted: %v", err)
	}
}

func TestHash_Concurrent(t *testing.T) {
	h := testArgon2id()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			digest, err := h.Hash("pw")
			if err != nil {
				t.Errorf("Hash failed: %v", err)
				return
			}
			if !h.Verify("pw", digest) {
				t.Error("expected concurrent digest to verify")
			}
		}()
	}
	wg.Wait()
}
