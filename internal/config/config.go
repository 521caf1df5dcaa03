// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Defaults are provided for everything except the token
// signing secret, which must always be supplied by the deployment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory  = "memory"
	StoreRedis   = "redis"
	StoreMariaDB = "mariadb"
)

// Hash algorithms accepted by HASH_ALGORITHM.
const (
	HashArgon2id = "argon2id"
	HashBcrypt   = "bcrypt"
)

// minProductionSecretLen is the minimum SECRET_KEY length in production.
const minProductionSecretLen = 32

// Accepted argon2id work factors. Memory must also cover 8 KiB per thread.
const (
	maxArgon2Time      = 64
	maxArgon2MemoryKiB = 4 * 1024 * 1024 // 4 GiB
	maxArgon2Threads   = 255
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 3000).
	Port int

	// BaseURL is the public-facing URL, used as the allowed CORS origin.
	BaseURL string

	// TrustedProxies lists CIDRs whose X-Forwarded-For / X-Real-IP headers
	// are believed when resolving the client IP.
	TrustedProxies []string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	// Empty means "debug" in development and "info" otherwise.
	LogLevel string

	// Store selects and configures the credential store backend.
	Store StoreConfig

	// Database holds MariaDB connection settings (STORE_BACKEND=mariadb).
	Database DatabaseConfig

	// Redis holds Redis connection settings (STORE_BACKEND=redis).
	Redis RedisConfig

	// Auth holds token and password hashing settings.
	Auth AuthConfig

	// Bootstrap optionally seeds an account at startup.
	Bootstrap BootstrapConfig
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "mariadb" (default: "memory").
	Backend string
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "gatekeeper").
	User string

	// Password is the MariaDB password (default: "gatekeeper").
	Password string

	// Name is the database name (default: "gatekeeper").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	// MaxOpenConns is the maximum number of open connections in the pool.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// ConnMaxLifetime is how long a connection can be reused.
	ConnMaxLifetime time.Duration

	// MigrationsPath is the directory holding *.up.sql / *.down.sql files.
	MigrationsPath string
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// Host/User/Password/Name fields using the driver's Config.FormatDSN()
// to safely handle special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
// Allows users to set DB_HOST=mydb (gets :3306) or DB_HOST=mydb:3307 (as-is).
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey is the HS256 token signing secret. Required, no default.
	SecretKey string

	// TokenTTL is how long an issued token stays valid (default: 1h).
	TokenTTL time.Duration

	// HashAlgorithm selects the digest for new passwords: "argon2id" or "bcrypt".
	HashAlgorithm string

	// BcryptCost is the bcrypt work factor (default: 10).
	BcryptCost int

	// Argon2Time is the argon2id iteration count (default: 3).
	Argon2Time uint32

	// Argon2MemoryKiB is the argon2id memory cost in KiB (default: 64 MiB).
	Argon2MemoryKiB uint32

	// Argon2Threads is the argon2id parallelism (default: 4).
	Argon2Threads uint8

	// HashConcurrency caps in-flight hash/verify operations (default: 4*GOMAXPROCS).
	HashConcurrency int
}

// BootstrapConfig describes an account seeded at startup from a digest
// produced by `gatekeeper hash-password`. Disabled unless Username is set.
type BootstrapConfig struct {
	Username string
	Email    string
	Digest   string
}

// Enabled reports whether a bootstrap account was configured.
func (b BootstrapConfig) Enabled() bool {
	return b.Username != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or any value is invalid.
func Load() (*Config, error) {
	r := &envReader{}

	cfg := &Config{
		Env:      r.getEnv("ENV", "development"),
		Port:     r.getEnvInt("PORT", 3000),
		BaseURL:  r.getEnv("BASE_URL", "http://localhost:3000"),
		LogLevel: r.getEnv("LOG_LEVEL", ""),

		TrustedProxies: r.getEnvList("TRUSTED_PROXIES", []string{
			"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fd00::/8",
		}),

		Store: StoreConfig{
			Backend: strings.ToLower(r.getEnv("STORE_BACKEND", StoreMemory)),
		},

		Database: loadDatabase(r),

		Redis: RedisConfig{
			URL: r.getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:       r.getEnv("SECRET_KEY", ""),
			TokenTTL:        r.getEnvDuration("TOKEN_TTL", time.Hour),
			HashAlgorithm:   strings.ToLower(r.getEnv("HASH_ALGORITHM", HashArgon2id)),
			BcryptCost:      r.getEnvInt("BCRYPT_COST", 10),
			Argon2Time:      uint32(r.getEnvIntRange("ARGON2_TIME", 3, 1, maxArgon2Time)),
			Argon2MemoryKiB: uint32(r.getEnvIntRange("ARGON2_MEMORY_KIB", 64*1024, 8, maxArgon2MemoryKiB)),
			Argon2Threads:   uint8(r.getEnvIntRange("ARGON2_THREADS", 4, 1, maxArgon2Threads)),
			HashConcurrency: r.getEnvInt("HASH_CONCURRENCY", 4*runtime.GOMAXPROCS(0)),
		},

		Bootstrap: BootstrapConfig{
			Username: r.getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
			Email:    r.getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
			Digest:   r.getEnv("BOOTSTRAP_ADMIN_DIGEST", ""),
		},
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the MariaDB settings. The migrate command uses it
// so schema changes don't require the token secret.
func LoadDatabase() (DatabaseConfig, error) {
	r := &envReader{}
	db := loadDatabase(r)
	return db, errors.Join(r.errs...)
}

func loadDatabase(r *envReader) DatabaseConfig {
	return DatabaseConfig{
		Host:            r.getEnv("DB_HOST", "localhost:3306"),
		User:            r.getEnv("DB_USER", "gatekeeper"),
		Password:        r.getEnv("DB_PASSWORD", "gatekeeper"),
		Name:            r.getEnv("DB_NAME", "gatekeeper"),
		dsnOverride:     r.getEnv("DATABASE_URL", ""),
		MaxOpenConns:    r.getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    r.getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: r.getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		MigrationsPath:  r.getEnv("MIGRATIONS_PATH", "db/migrations"),
	}
}

// validate enforces cross-field rules. A missing secret is a deployment error
// in every environment: there is no built-in fallback key.
func (c *Config) validate() error {
	if c.Auth.SecretKey == "" {
		return errors.New("SECRET_KEY is required")
	}
	if c.IsProduction() && len(c.Auth.SecretKey) < minProductionSecretLen {
		return fmt.Errorf("SECRET_KEY must be at least %d characters in production", minProductionSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}

	switch c.Auth.HashAlgorithm {
	case HashArgon2id, HashBcrypt:
	default:
		return fmt.Errorf("HASH_ALGORITHM %q is not supported", c.Auth.HashAlgorithm)
	}
	if err := ValidateBcryptCost(c.Auth.BcryptCost); err != nil {
		return err
	}
	if c.Auth.Argon2MemoryKiB < 8*uint32(c.Auth.Argon2Threads) {
		return fmt.Errorf("ARGON2_MEMORY_KIB must be at least 8 per thread (%d), got %d",
			8*uint32(c.Auth.Argon2Threads), c.Auth.Argon2MemoryKiB)
	}
	if c.Auth.HashConcurrency < 1 {
		return fmt.Errorf("HASH_CONCURRENCY must be at least 1")
	}

	switch c.Store.Backend {
	case StoreMemory, StoreRedis, StoreMariaDB:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.Store.Backend)
	}

	if c.Bootstrap.Enabled() && (c.Bootstrap.Email == "" || c.Bootstrap.Digest == "") {
		return errors.New("BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_DIGEST are required with BOOTSTRAP_ADMIN_USERNAME")
	}
	return nil
}

// ValidateBcryptCost rejects work factors bcrypt would refuse or silently
// replace.
func ValidateBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" and "prod" in any case.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helpers for reading environment variables ---

// envReader reads typed env vars and collects parse failures so Load can
// report every bad value at once.
type envReader struct {
	errs []error
}

// getEnv reads a string env var or returns the default.
func (r *envReader) getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty items. An
// explicitly empty value yields an empty list.
func (r *envReader) getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvInt reads an integer env var or returns the default.
func (r *envReader) getEnvInt(key string, defaultVal int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, val))
		return defaultVal
	}
	return i
}

// getEnvIntRange reads an integer env var that must lie in [lo, hi], so
// callers can narrow it to a smaller unsigned type without wrapping.
func (r *envReader) getEnvIntRange(key string, defaultVal, lo, hi int) int {
	i := r.getEnvInt(key, defaultVal)
	if i < lo || i > hi {
		r.errs = append(r.errs, fmt.Errorf("%s: %d is outside %d..%d", key, i, lo, hi))
		return defaultVal
	}
	return i
}

// getEnvDuration reads a duration env var (e.g., "1h", "90m") or returns the default.
func (r *envReader) getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, val))
		return defaultVal
	}
	return d
}
