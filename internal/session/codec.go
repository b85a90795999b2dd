package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the sliding-window length applied on issue and on every refresh.
const DefaultTTL = 24 * time.Hour

const minSecretBytes = 32

var (
	ErrTokenExpired   = errors.New("session token expired")
	ErrTokenForged    = errors.New("session token signature invalid")
	ErrTokenMalformed = errors.New("session token malformed")
)

// Claims is the identity and expiry payload carried by a session token.
type Claims struct {
	UserID      string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type tokenClaims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret       string        `env:"SECRET"`
	TTL          time.Duration `env:"TTL" envDefault:"24h"`
	Issuer       string        `env:"ISSUER" envDefault:"pitchfork-auth"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"true"`
	// SkipPrefixes are paths the refresh middleware never touches.
	SkipPrefixes []string `env:"REFRESH_SKIP" envDefault:"/static/,/health,/api/" envSeparator:","`
}

func (c Config) Validate() error {
	if len(c.Secret) < minSecretBytes {
		return fmt.Errorf("session secret must be at least %d bytes", minSecretBytes)
	}
	if c.TTL < 0 {
		return errors.New("session ttl must not be negative")
	}
	return nil
}

// Codec signs and verifies session tokens with a single pinned HMAC-SHA256 key.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type CodecOption func(*Codec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

func NewCodec(cfg Config, opts ...CodecOption) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	c := &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Issue signs claims. A zero ExpiresAt becomes now+TTL. The returned Claims
// carry the expiry exactly as encoded (second precision).
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	now := c.now()
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = now.Add(c.ttl)
	}
	claims.ExpiresAt = claims.ExpiresAt.Truncate(jwt.TimePrecision).UTC()

	tc := tokenClaims{
		UserID:      claims.UserID,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature first and expiry second, so ErrTokenExpired is
// only ever reported for tokens this service actually issued.
func (c *Codec) Verify(token string) (Claims, error) {
	parser := c.parser()
	tc := &tokenClaims{}
	_, err := parser.ParseWithClaims(token, tc, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing algorithm: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, c.classify(token, err)
	}
	if tc.UserID == "" || tc.ExpiresAt == nil {
		return Claims{}, ErrTokenMalformed
	}
	return Claims{
		UserID:      tc.UserID,
		Email:       tc.Email,
		DisplayName: tc.DisplayName,
		Role:        tc.Role,
		ExpiresAt:   tc.ExpiresAt.Time.UTC(),
	}, nil
}

func (c *Codec) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	return jwt.NewParser(opts...)
}

func (c *Codec) classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenForged, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		// header and claims decode but the signature segment does not
		if _, _, uerr := jwt.NewParser(jwt.WithStrictDecoding()).ParseUnverified(token, &tokenClaims{}); uerr == nil {
			return fmt.Errorf("%w: %v", ErrTokenForged, err)
		}
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}

// AuditReason maps a verification error onto a short label for audit logs.
func AuditReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenForged):
		return "forged"
	default:
		return "malformed"
	}
}
