package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/action"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/cryptoutil"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mocks"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/profile"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type serviceFixture struct {
	svc      *Service
	store    *mocks.MockStore
	hasher   *credential.Bcrypt
	codec    *session.Codec
	profiles *profile.Codec
	logs     *observer.ObservedLogs
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := func() time.Time { return testNow }
	codec, err := session.NewCodec(session.Config{Secret: testSecret, Issuer: "test"}, session.WithClock(clock))
	require.NoError(t, err)
	fc, err := cryptoutil.NewAESGCM(make([]byte, 32))
	require.NoError(t, err)
	profiles := profile.NewCodec(fc)
	hasher := &credential.Bcrypt{Cost: bcrypt.MinCost}
	store := mocks.NewMockStore(gomock.NewController(t))
	core, logs := observer.New(zapcore.DebugLevel)

	svc := NewService(store, hasher, codec, profiles, zap.New(core).Sugar())
	svc.now = clock
	svc.newID = func() string { return "1001" }
	return &serviceFixture{svc: svc, store: store, hasher: hasher, codec: codec, profiles: profiles, logs: logs}
}

func (f *serviceFixture) record(t *testing.T, password string) *entity.Record {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	rec := &entity.Record{
		ID:           "1001",
		Email:        "u@example.com",
		PasswordHash: hash,
		DisplayName:  "U",
		Role:         entity.RoleUser,
		Status:       entity.StatusActive,
		CreatedAt:    testNow.Add(-time.Hour),
	}
	require.NoError(t, f.profiles.Seal(rec, entity.Attributes{Phone: "555-0100"}))
	return rec
}

func (f *serviceFixture) loginFailureReasons() []string {
	var out []string
	for _, e := range f.logs.FilterMessage("login failed").All() {
		out = append(out, e.ContextMap()["reason"].(string))
	}
	return out
}

func TestRegister(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	var saved *entity.Record
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(nil, userrepo.ErrNotFound)
	f.store.EXPECT().Save(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rec *entity.Record) error {
		saved = rec
		return nil
	})

	res, err := f.svc.Register(ctx, RegisterInput{
		Email:      " U@Example.com",
		Password:   "pw12345678",
		Attributes: entity.Attributes{Phone: "555-0100", Birthdate: "1990-01-02"},
	})
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, "1001", saved.ID)
	assert.Equal(t, "u@example.com", saved.Email)
	assert.Equal(t, "u", saved.DisplayName)
	assert.Equal(t, entity.StatusActive, saved.Status)
	assert.NotEqual(t, "pw12345678", saved.PasswordHash)
	assert.True(t, f.hasher.Verify("pw12345678", saved.PasswordHash))
	assert.NotContains(t, saved.AttributesCipher, "555-0100")

	require.NotNil(t, res.User)
	assert.Equal(t, "555-0100", res.User.Attributes.Phone)
	claims, err := f.codec.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "1001", claims.UserID)
	assert.Equal(t, testNow.Add(session.DefaultTTL), res.ExpiresAt)
}

func TestRegisterEmailTaken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(f.record(t, "x"), nil)

	_, err := f.svc.Register(ctx, RegisterInput{Email: "u@example.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.ErrorIs(t, err, action.ErrConflict)
}

func TestRegisterDuplicateOnSave(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(nil, userrepo.ErrNotFound)
	f.store.EXPECT().Save(ctx, gomock.Any()).Return(userrepo.ErrDuplicateEmail)

	_, err := f.svc.Register(ctx, RegisterInput{Email: "u@example.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterLookupError(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(nil, errors.New("db down"))

	_, err := f.svc.Register(ctx, RegisterInput{Email: "u@example.com", Password: "pw12345678"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmailTaken)
}

func TestLoginSuccess(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(rec, nil)
	f.store.EXPECT().RecordLoginSuccess(ctx, "1001").Return(nil)

	res, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "pw12345678"})
	require.NoError(t, err)
	assert.Equal(t, "1001", res.User.ID)
	assert.Equal(t, "555-0100", res.User.Attributes.Phone)
	assert.Equal(t, "1001", res.Claims.UserID)
	assert.Equal(t, "U", res.Claims.DisplayName)

	claims, err := f.codec.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Claims, claims)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "ghost@example.com").Return(nil, userrepo.ErrNotFound)

	_, err := f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{"unknown_email"}, f.loginFailureReasons())
}

func TestLoginWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(f.record(t, "pw12345678"), nil)
	f.store.EXPECT().RecordFailedLogin(ctx, "1001", 6, 15*time.Minute).Return(false, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{"bad_password"}, f.loginFailureReasons())
	assert.Zero(t, f.logs.FilterMessage("user locked").Len())
}

func TestLoginWrongPasswordLocks(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(f.record(t, "pw12345678"), nil)
	f.store.EXPECT().RecordFailedLogin(ctx, "1001", 6, 15*time.Minute).Return(true, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, f.logs.FilterMessage("user locked").Len())
}

func TestLoginFailedCounterErrorStillRejects(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(f.record(t, "pw12345678"), nil)
	f.store.EXPECT().RecordFailedLogin(ctx, "1001", 6, 15*time.Minute).Return(false, errors.New("db down"))

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLockedAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	rec.Status = entity.StatusLocked
	until := testNow.Add(5 * time.Minute)
	rec.LockedUntil = &until
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(rec, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Equal(t, []string{"user locked"}, f.loginFailureReasons())
}

func TestLoginExpiredLockSucceeds(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	rec.Status = entity.StatusLocked
	until := testNow.Add(-time.Second)
	rec.LockedUntil = &until
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(rec, nil)
	f.store.EXPECT().RecordLoginSuccess(ctx, "1001").Return(nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "pw12345678"})
	assert.NoError(t, err)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	rec.Status = entity.StatusDisabled
	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(rec, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestLoginRehashesWeakHash(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	f.svc.hasher = &credential.Bcrypt{Cost: bcrypt.MinCost + 1}

	f.store.EXPECT().FindByEmail(ctx, "u@example.com").Return(rec, nil)
	f.store.EXPECT().RecordLoginSuccess(ctx, "1001").Return(nil)
	f.store.EXPECT().UpdatePassword(ctx, "1001", gomock.Any()).DoAndReturn(func(_ context.Context, _, hash string) error {
		cost, err := bcrypt.Cost([]byte(hash))
		require.NoError(t, err)
		assert.Equal(t, bcrypt.MinCost+1, cost)
		return nil
	})

	_, err := f.svc.Login(ctx, LoginInput{Email: "u@example.com", Password: "pw12345678"})
	assert.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	caller := &entity.Profile{ID: "1001"}

	var stored string
	f.store.EXPECT().FindByID(ctx, "1001").Return(rec, nil)
	f.store.EXPECT().UpdatePassword(ctx, "1001", gomock.Any()).DoAndReturn(func(_ context.Context, _, hash string) error {
		stored = hash
		return nil
	})

	res, err := f.svc.ChangePassword(ctx, caller, ChangePasswordInput{Current: "pw12345678", New: "new-password-1"})
	require.NoError(t, err)
	assert.True(t, f.hasher.Verify("new-password-1", stored))
	assert.False(t, f.hasher.Verify("pw12345678", stored))
	assert.NotEmpty(t, res.Token)
}

func TestChangePasswordUserDeletedMeanwhile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByID(ctx, "1001").Return(f.record(t, "pw12345678"), nil)
	f.store.EXPECT().UpdatePassword(ctx, "1001", gomock.Any()).Return(userrepo.ErrNotFound)

	_, err := f.svc.ChangePassword(ctx, &entity.Profile{ID: "1001"}, ChangePasswordInput{Current: "pw12345678", New: "new-password-1"})
	assert.ErrorIs(t, err, action.ErrUnauthenticated)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByID(ctx, "1001").Return(f.record(t, "pw12345678"), nil)

	_, err := f.svc.ChangePassword(ctx, &entity.Profile{ID: "1001"}, ChangePasswordInput{Current: "nope", New: "new-password-1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePasswordVanishedUser(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByID(ctx, "1001").Return(nil, userrepo.ErrNotFound)

	_, err := f.svc.ChangePassword(ctx, &entity.Profile{ID: "1001"}, ChangePasswordInput{Current: "a", New: "new-password-1"})
	assert.ErrorIs(t, err, action.ErrUnauthenticated)
}

func TestUpdateProfile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	rec := f.record(t, "pw12345678")
	f.store.EXPECT().FindByID(ctx, "1001").Return(rec, nil)
	f.store.EXPECT().Save(ctx, rec).Return(nil)

	res, err := f.svc.UpdateProfile(ctx, &entity.Profile{ID: "1001"}, UpdateProfileInput{
		DisplayName: " Ada ",
		Attributes:  entity.Attributes{Address: "1 Main St"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", res.User.DisplayName)
	assert.Equal(t, entity.Attributes{Address: "1 Main St"}, res.User.Attributes)
	assert.Equal(t, "Ada", res.Claims.DisplayName)
}

func TestDeleteAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByID(ctx, "1001").Return(f.record(t, "pw12345678"), nil)
	f.store.EXPECT().Delete(ctx, "1001").Return(nil)

	_, err := f.svc.DeleteAccount(ctx, &entity.Profile{ID: "1001"}, DeleteAccountInput{Password: "pw12345678"})
	assert.NoError(t, err)
}

func TestDeleteAccountWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.store.EXPECT().FindByID(ctx, "1001").Return(f.record(t, "pw12345678"), nil)

	_, err := f.svc.DeleteAccount(ctx, &entity.Profile{ID: "1001"}, DeleteAccountInput{Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
