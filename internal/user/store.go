package user

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// Store is the user-store contract consumed by the account flows.
// Lookups return repo.ErrNotFound when no row matches.
type Store interface {
	FindByID(ctx context.Context, id string) (*entity.Record, error)
	FindByEmail(ctx context.Context, email string) (*entity.Record, error)
	// Save inserts or updates profile columns; it never changes the password
	// hash, status or lockout state of an existing row.
	Save(ctx context.Context, rec *entity.Record) error
	UpdatePassword(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
	// RecordFailedLogin bumps the failure counter and locks the account for
	// lockFor once threshold is reached. It reports whether a lock was applied.
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockFor time.Duration) (bool, error)
	RecordLoginSuccess(ctx context.Context, id string) error
}
