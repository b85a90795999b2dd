package entity

import "time"

const (
	StatusActive   = "active"
	StatusLocked   = "locked"
	StatusDisabled = "disabled"

	RoleUser = "user"
)

// Record is a row of the `users` table: the credential record plus the
// profile fields the session layer needs. PasswordHash is always a bcrypt hash.
type Record struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	DisplayName         string     `db:"display_name"`
	Role                string     `db:"role"`
	Status              string     `db:"status"` // active / locked / disabled
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	AttributesCipher    string     `db:"attributes_cipher"` // encrypted JSON of Attributes
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Attributes are personal fields stored encrypted at rest.
type Attributes struct {
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Birthdate string `json:"birthdate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Address   string `json:"address,omitempty" validate:"omitempty,max=256"`
}

// Profile is the decrypted, hash-free view handed to authenticated callers.
type Profile struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	Attributes  Attributes `json:"attributes"`
	CreatedAt   time.Time  `json:"created_at"`
}
