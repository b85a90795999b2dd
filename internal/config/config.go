// Package config composes the service configuration from environment
// variables (optionally seeded from a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/cryptoutil"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	StaticDir       string        `env:"STATIC_DIR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// AppConfig is the root configuration:
//   - HTTP_*: listener and static assets
//   - DATABASE_*: Postgres connection
//   - LOG_*: logger
//   - SESSION_*: token signing and cookie
//   - PASSWORD_*: bcrypt work factor
type AppConfig struct {
	HTTP     HTTPConfig
	Database database.Config   `envPrefix:"DATABASE_"`
	Log      utilities.Config  `envPrefix:"LOG_"`
	Session  session.Config    `envPrefix:"SESSION_"`
	Password credential.Config `envPrefix:"PASSWORD_"`

	// FieldEncryptionKey is a 32-byte AES key, hex or base64. Empty stores
	// personal attributes unencrypted (development only).
	FieldEncryptionKey string `env:"FIELD_ENCRYPTION_KEY"`
}

// Load reads .env if present, then the process environment.
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on settings the service must not start with.
func (c AppConfig) Validate() error {
	var errs []error
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Password.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.FieldEncryptionKey != "" {
		if _, err := cryptoutil.ParseKey(c.FieldEncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("FIELD_ENCRYPTION_KEY: %w", err))
		}
	}
	return errors.Join(errs...)
}

// FieldCipher builds the cipher for personal attributes.
func (c AppConfig) FieldCipher(logger *zap.SugaredLogger) (cryptoutil.FieldCipher, error) {
	if c.FieldEncryptionKey == "" {
		logger.Warn("FIELD_ENCRYPTION_KEY not set; personal attributes are stored unencrypted")
		return cryptoutil.NoopCipher{}, nil
	}
	key, err := cryptoutil.ParseKey(c.FieldEncryptionKey)
	if err != nil {
		return nil, err
	}
	fc, err := cryptoutil.NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// CookieOptions derives session cookie attributes.
func (c AppConfig) CookieOptions() session.CookieOptions {
	return session.CookieOptions{Secure: c.Session.CookieSecure}
}
