package credential

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt cost accepted from configuration.
const MinCost = bcrypt.DefaultCost

// maxPasswordBytes is the bcrypt input limit; longer inputs are rejected, not truncated.
const maxPasswordBytes = 72

var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

type Config struct {
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// Validate rejects work factors too low for production use.
func (c Config) Validate() error {
	if c.BcryptCost < MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", MinCost, bcrypt.MaxCost, c.BcryptCost)
	}
	return nil
}

// Hasher is the password hashing contract used by login and password-change flows.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	NeedsRehash(hash string) bool
	VerifyDummy(password string)
}

// Bcrypt hashes with a fresh salt on every call; two hashes of the same
// password never compare equal as strings.
type Bcrypt struct {
	Cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewBcrypt(cfg Config) *Bcrypt {
	return &Bcrypt{Cost: cfg.BcryptCost}
}

func (b *Bcrypt) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(h), nil
}

// Verify reports whether password matches hash. Malformed hashes yield false.
func (b *Bcrypt) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than configured.
func (b *Bcrypt) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c < b.cost()
}

// VerifyDummy spends one comparison so lookups for unknown accounts take as
// long as a wrong password.
func (b *Bcrypt) VerifyDummy(password string) {
	b.dummyOnce.Do(func() {
		b.dummy, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), b.cost())
	})
	_ = bcrypt.CompareHashAndPassword(b.dummy, []byte(password))
}

// ErrInvalidCredentials is the single outcome for unknown email, wrong
// password and accounts that may not sign in.
var ErrInvalidCredentials = errors.New("invalid credentials")
