package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY, raised by the UNIQUE index on
// accounts.username.
const mysqlErrDuplicateEntry = 1062

// mariaDBStore implements CredentialStore with hand-written MariaDB queries.
// Username uniqueness is enforced by the database, which makes Insert atomic
// across processes as well as goroutines.
type mariaDBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMariaDBStore creates a CredentialStore backed by the given DB pool.
// The accounts table is created by the migrations in db/migrations.
func NewMariaDBStore(db *sql.DB) CredentialStore {
	return &mariaDBStore{db: db, now: time.Now}
}

const selectAccount = `SELECT id, username, password_digest, email, created_at FROM accounts`

// FindByUsername retrieves an account by username.
func (r *mariaDBStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	acct, err := r.scanOne(r.db.QueryRowContext(ctx, selectAccount+` WHERE username = ?`, username))
	if err != nil {
		return nil, fmt.Errorf("querying account by username: %w", err)
	}
	return acct, nil
}

// FindByID retrieves an account by id.
func (r *mariaDBStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	acct, err := r.scanOne(r.db.QueryRowContext(ctx, selectAccount+` WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("querying account by id: %w", err)
	}
	return acct, nil
}

// Insert adds a row; the AUTO_INCREMENT column assigns the id.
func (r *mariaDBStore) Insert(ctx context.Context, username, passwordDigest, email string) (*Account, error) {
	createdAt := r.now().UTC().Truncate(time.Microsecond)

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (username, password_digest, email, created_at) VALUES (?, ?, ?, ?)`,
		username, passwordDigest, email, createdAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, errDuplicateUsername()
		}
		return nil, fmt.Errorf("inserting account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted account id: %w", err)
	}

	return &Account{
		ID:             id,
		Username:       username,
		PasswordDigest: passwordDigest,
		Email:          email,
		CreatedAt:      createdAt,
	}, nil
}

// Update sets only the provided columns and re-reads the row.
func (r *mariaDBStore) Update(ctx context.Context, id int64, upd AccountUpdate) (*Account, error) {
	var sets []string
	var args []any
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.PasswordDigest != nil {
		sets = append(sets, "password_digest = ?")
		args = append(args, *upd.PasswordDigest)
	}

	if len(sets) > 0 {
		query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		if _, err := r.db.ExecContext(ctx, query, append(args, id)...); err != nil {
			return nil, fmt.Errorf("updating account: %w", err)
		}
	}

	// MariaDB reports zero affected rows for no-op updates, so existence is
	// decided by the re-read.
	return r.FindByID(ctx, id)
}

// scanOne maps sql.ErrNoRows to the store's NotFound error.
func (r *mariaDBStore) scanOne(row *sql.Row) (*Account, error) {
	acct := &Account{}
	err := row.Scan(&acct.ID, &acct.Username, &acct.PasswordDigest, &acct.Email, &acct.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errAccountNotFound()
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// isDuplicateEntry reports whether err is a MariaDB unique-key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
