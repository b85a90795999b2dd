package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// UserFinder is the slice of the user store the accessor reads from.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*entity.Record, error)
}

// Accessor resolves the caller's session and profile from request-scoped state.
// Every failure resolves to "anonymous".
type Accessor struct {
	codec    *Codec
	users    UserFinder
	profiles *profile.Codec
	logger   *zap.SugaredLogger
}

func NewAccessor(codec *Codec, users UserFinder, profiles *profile.Codec, logger *zap.SugaredLogger) *Accessor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Accessor{codec: codec, users: users, profiles: profiles, logger: logger}
}

// CurrentSession returns the verified claims for ctx, or nil.
func (a *Accessor) CurrentSession(ctx context.Context) *Claims {
	token := tokenFromContext(ctx)
	if token == "" {
		return nil
	}
	claims, err := a.codec.Verify(token)
	if err != nil {
		auditRejected(a.logger, err, "accessor")
		return nil
	}
	return &claims
}

// CurrentUser returns the decrypted profile of the session's user, or nil.
// A valid token whose user no longer exists yields nil.
func (a *Accessor) CurrentUser(ctx context.Context) *entity.Profile {
	claims := a.CurrentSession(ctx)
	if claims == nil {
		return nil
	}
	rec, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil || rec == nil {
		a.logger.Debugw("session user lookup failed", "user_id", claims.UserID, "err", err)
		return nil
	}
	if rec.Status == entity.StatusDisabled {
		a.logger.Infow("session for disabled user", "user_id", rec.ID)
		return nil
	}
	p, err := a.profiles.Open(rec)
	if err != nil {
		a.logger.Warnw("profile decrypt failed", "user_id", rec.ID, "err", err)
		return nil
	}
	return p
}

func auditRejected(logger *zap.SugaredLogger, err error, source string) {
	logger.Infow("session token rejected",
		"event_id", utilities.NewKSUID(),
		"reason", AuditReason(err),
		"source", source,
		"err", err,
	)
}
