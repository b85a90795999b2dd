package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/action"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

var (
	ErrInvalidCredentials = credential.ErrInvalidCredentials
	ErrEmailTaken         = fmt.Errorf("%w: email already registered", action.ErrConflict)
	ErrLocked             = errors.New("user locked")
	ErrDisabled           = errors.New("user disabled")
)

// Service orchestrates registration, login and account lifecycle flows.
type Service struct {
	store    Store
	hasher   credential.Hasher
	codec    *session.Codec
	profiles *profile.Codec
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() string
	// configuration knobs
	MaxFailed int
	LockFor   time.Duration
}

func NewService(store Store, hasher credential.Hasher, codec *session.Codec, profiles *profile.Codec, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		codec:     codec,
		profiles:  profiles,
		logger:    logger,
		now:       time.Now,
		newID:     utilities.NewSnowflakeID,
		MaxFailed: 6,
		LockFor:   15 * time.Minute,
	}
}

// RegisterInput request body for registration.
type RegisterInput struct {
	Email       string            `json:"email" validate:"required,email,max=254"`
	Password    string            `json:"password" validate:"required,min=8,max=72"`
	DisplayName string            `json:"display_name" validate:"omitempty,max=64"`
	Attributes  entity.Attributes `json:"attributes"`
}

// LoginInput login payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type ChangePasswordInput struct {
	Current string `json:"current_password" validate:"required,max=72"`
	New     string `json:"new_password" validate:"required,min=8,max=72,nefield=Current"`
}

type UpdateProfileInput struct {
	DisplayName string            `json:"display_name" validate:"required,max=64"`
	Attributes  entity.Attributes `json:"attributes"`
}

type DeleteAccountInput struct {
	Password string `json:"password" validate:"required,max=72"`
}

// SessionResult carries a freshly issued session. Token and Claims go into
// the cookie, only User is rendered.
type SessionResult struct {
	Token     string          `json:"-"`
	Claims    session.Claims  `json:"-"`
	User      *entity.Profile `json:"user"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (SessionResult, error) {
	email := userrepo.NormalizeEmail(in.Email)
	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return SessionResult{}, ErrEmailTaken
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return SessionResult{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return SessionResult{}, fmt.Errorf("hash password: %w", err)
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	rec := &entity.Record{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         entity.RoleUser,
		Status:       entity.StatusActive,
	}
	if err := s.profiles.Seal(rec, in.Attributes); err != nil {
		return SessionResult{}, err
	}
	if err := s.store.Save(ctx, rec); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return SessionResult{}, ErrEmailTaken
		}
		return SessionResult{}, err
	}
	s.logger.Infow("user registered", "user_id", rec.ID)
	return s.startSession(rec)
}

// Login verifies a password and issues a session. Unknown emails, wrong
// passwords, locked and disabled accounts all fail with ErrInvalidCredentials;
// the actual reason is audit-logged only.
func (s *Service) Login(ctx context.Context, in LoginInput) (SessionResult, error) {
	rec, err := s.store.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// same bcrypt cost as a wrong password
			s.hasher.VerifyDummy(in.Password)
			s.auditLoginFailure("", "unknown_email")
			return SessionResult{}, ErrInvalidCredentials
		}
		return SessionResult{}, fmt.Errorf("lookup email: %w", err)
	}

	if reason := s.blocked(rec); reason != nil {
		s.hasher.VerifyDummy(in.Password)
		s.auditLoginFailure(rec.ID, reason.Error())
		return SessionResult{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, reason)
	}

	if !s.hasher.Verify(in.Password, rec.PasswordHash) {
		locked, ferr := s.store.RecordFailedLogin(ctx, rec.ID, s.MaxFailed, s.LockFor)
		if ferr != nil {
			s.logger.Warnw("record failed login", "user_id", rec.ID, "err", ferr)
		}
		s.auditLoginFailure(rec.ID, "bad_password")
		if locked {
			s.logger.Warnw("user locked", "event_id", utilities.NewKSUID(), "user_id", rec.ID, "lock_for", s.LockFor.String())
		}
		return SessionResult{}, ErrInvalidCredentials
	}

	if err := s.store.RecordLoginSuccess(ctx, rec.ID); err != nil {
		return SessionResult{}, err
	}
	if s.hasher.NeedsRehash(rec.PasswordHash) {
		if h, herr := s.hasher.Hash(in.Password); herr == nil {
			if uerr := s.store.UpdatePassword(ctx, rec.ID, h); uerr != nil {
				s.logger.Warnw("rehash save failed", "user_id", rec.ID, "err", uerr)
			}
		}
	}
	return s.startSession(rec)
}

// Me returns the caller's profile.
func (s *Service) Me(_ context.Context, caller *entity.Profile, _ struct{}) (*entity.Profile, error) {
	return caller, nil
}

// ChangePassword replaces the caller's password after re-verifying the
// current one, then issues a new session.
func (s *Service) ChangePassword(ctx context.Context, caller *entity.Profile, in ChangePasswordInput) (SessionResult, error) {
	rec, err := s.store.FindByID(ctx, caller.ID)
	if err != nil {
		return SessionResult{}, s.callerLookupError(err)
	}
	if !s.hasher.Verify(in.Current, rec.PasswordHash) {
		s.auditLoginFailure(rec.ID, "bad_current_password")
		return SessionResult{}, ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(in.New)
	if err != nil {
		return SessionResult{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, rec.ID, hash); err != nil {
		return SessionResult{}, s.callerLookupError(err)
	}
	s.logger.Infow("password changed", "event_id", utilities.NewKSUID(), "user_id", rec.ID)
	return s.startSession(rec)
}

// UpdateProfile replaces display name and encrypted attributes. The session
// is reissued so its claims carry the new display name.
func (s *Service) UpdateProfile(ctx context.Context, caller *entity.Profile, in UpdateProfileInput) (SessionResult, error) {
	rec, err := s.store.FindByID(ctx, caller.ID)
	if err != nil {
		return SessionResult{}, s.callerLookupError(err)
	}
	rec.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := s.profiles.Seal(rec, in.Attributes); err != nil {
		return SessionResult{}, err
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return SessionResult{}, err
	}
	return s.startSession(rec)
}

// DeleteAccount removes the caller's record after password confirmation.
func (s *Service) DeleteAccount(ctx context.Context, caller *entity.Profile, in DeleteAccountInput) (struct{}, error) {
	rec, err := s.store.FindByID(ctx, caller.ID)
	if err != nil {
		return struct{}{}, s.callerLookupError(err)
	}
	if !s.hasher.Verify(in.Password, rec.PasswordHash) {
		s.auditLoginFailure(rec.ID, "bad_current_password")
		return struct{}{}, ErrInvalidCredentials
	}
	if err := s.store.Delete(ctx, rec.ID); err != nil {
		return struct{}{}, s.callerLookupError(err)
	}
	s.logger.Infow("user deleted", "event_id", utilities.NewKSUID(), "user_id", rec.ID)
	return struct{}{}, nil
}

// blocked reports why rec may not sign in right now, or nil. Expired locks
// do not block; RecordLoginSuccess lifts them.
func (s *Service) blocked(rec *entity.Record) error {
	switch rec.Status {
	case entity.StatusDisabled:
		return ErrDisabled
	case entity.StatusLocked:
		if rec.LockedUntil == nil || rec.LockedUntil.After(s.now()) {
			return ErrLocked
		}
	}
	return nil
}

func (s *Service) startSession(rec *entity.Record) (SessionResult, error) {
	p, err := s.profiles.Open(rec)
	if err != nil {
		return SessionResult{}, err
	}
	token, claims, err := s.codec.Issue(session.Claims{
		UserID:      rec.ID,
		Email:       rec.Email,
		DisplayName: rec.DisplayName,
		Role:        rec.Role,
	})
	if err != nil {
		return SessionResult{}, fmt.Errorf("issue session: %w", err)
	}
	return SessionResult{Token: token, Claims: claims, User: p, ExpiresAt: claims.ExpiresAt}, nil
}

// callerLookupError treats a vanished caller as signed out.
func (s *Service) callerLookupError(err error) error {
	if errors.Is(err, userrepo.ErrNotFound) {
		return action.ErrUnauthenticated
	}
	return err
}

func (s *Service) auditLoginFailure(userID, reason string) {
	s.logger.Infow("login failed",
		"event_id", utilities.NewKSUID(),
		"user_id", userID,
		"reason", reason,
	)
}
