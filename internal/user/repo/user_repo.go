package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned by Save when another row owns the email.
	ErrDuplicateEmail = errors.New("email already registered")
)

const uniqueViolation = "23505"

const selectColumns = `id, email, password_hash, display_name, role, status,
	login_failed_attempts, locked_until, last_login_at, attributes_cipher,
	created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db, now: time.Now} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user',
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  attributes_cipher TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// FindByID fetches a full user row or ErrNotFound.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*entity.Record, error) {
	const q = `SELECT ` + selectColumns + ` FROM users WHERE id=$1`
	var row entity.Record
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &row, nil
}

// FindByEmail matches case-insensitively (citext) or returns ErrNotFound.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.Record, error) {
	const q = `SELECT ` + selectColumns + ` FROM users WHERE email=$1`
	var row entity.Record
	if err := r.db.GetContext(ctx, &row, q, NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &row, nil
}

// Save inserts rec or updates the profile columns of an existing row.
// On update the password hash goes through UpdatePassword, and status and
// the lockout columns belong to RecordFailedLogin / RecordLoginSuccess.
func (r *UserRepo) Save(ctx context.Context, rec *entity.Record) error {
	const q = `INSERT INTO users (id,email,password_hash,display_name,role,status,login_failed_attempts,locked_until,last_login_at,attributes_cipher,created_at,updated_at)
		VALUES (:id,:email,:password_hash,:display_name,:role,:status,:login_failed_attempts,:locked_until,:last_login_at,:attributes_cipher,:created_at,:updated_at)
		ON CONFLICT (id) DO UPDATE SET
		  email=EXCLUDED.email,
		  display_name=EXCLUDED.display_name,
		  role=EXCLUDED.role,
		  attributes_cipher=EXCLUDED.attributes_cipher,
		  updated_at=EXCLUDED.updated_at`
	now := r.now().UTC()
	rec.Email = NormalizeEmail(rec.Email)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = entity.StatusActive
	}
	if rec.Role == "" {
		rec.Role = entity.RoleUser
	}

	if _, err := r.db.NamedExecContext(ctx, q, rec); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash only; ErrNotFound when nothing matched.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user row; ErrNotFound when nothing matched.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailedLogin increments the failure counter atomically, then locks the
// user for lockFor once attempts >= threshold. Locking resets the counter.
func (r *UserRepo) RecordFailedLogin(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error) {
	const inc = `UPDATE users SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var attempts int
	if err := r.db.GetContext(ctx, &attempts, inc, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("increment failed login: %w", err)
	}
	if threshold <= 0 || attempts < threshold {
		return false, nil
	}

	const lock = `UPDATE users SET status='locked', locked_until=$2, login_failed_attempts=0, updated_at=NOW()
		WHERE id=$1 AND status<>'disabled' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, lock, id, r.now().Add(lockFor).UTC(), threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock user: %w", err)
	}
	return true, nil
}

// RecordLoginSuccess resets failure metrics and lifts an expired lock.
func (r *UserRepo) RecordLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE users SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL,
		status = CASE WHEN status='locked' THEN 'active' ELSE status END, updated_at=NOW() WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

// NormalizeEmail is the canonical stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
