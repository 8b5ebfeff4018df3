package usecase_test

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testJWTSecret = "test-secret"

type authFixture struct {
	db    *gorm.DB
	clock *testutil.FixedClock
	uc    *usecase.AuthUsecase
	user  model.User
	admin usecase.Actor
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gdb := testutil.NewSQLite(t)
	f := &authFixture{db: gdb, clock: &testutil.FixedClock{T: time.Now().UTC()}}

	hasher := usecase.BcryptHasher{Cost: bcrypt.MinCost}
	f.uc = usecase.NewAuthUsecase(usecase.AuthDeps{
		Users:         infraRepo.NewUserGormRepository(gdb),
		RefreshTokens: infraRepo.NewRefreshTokenRepository(gdb),
		AuditLogs:     infraRepo.NewAuditLogGormRepository(gdb),
		Hasher:        hasher,
		Tokens:        usecase.NewJWTIssuer(testJWTSecret, 15*time.Minute),
		RefreshTTL:    24 * time.Hour,
		Clock:         f.clock,
	})

	hash, err := hasher.Hash("password123")
	require.NoError(t, err)
	f.user = testutil.CreateUser(t, gdb, "login@example.com", model.RoleCustomer)
	require.NoError(t, gdb.Model(&model.User{}).Where("id = ?", f.user.ID).Update("password_hash", hash).Error)

	a := testutil.CreateUser(t, gdb, "root@example.com", model.RoleAdmin)
	f.admin = usecase.Actor{UserID: a.ID, Role: model.RoleAdmin}
	return f
}

func (f *authFixture) login(t *testing.T) *usecase.LoginResult {
	t.Helper()
	res, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: "LOGIN@example.com", Password: "password123", UserAgent: "test"})
	require.NoError(t, err)
	return res
}

func TestLogin_IssuesTokens(t *testing.T) {
	f := newAuthFixture(t)
	res := f.login(t)

	assert.Equal(t, f.user.ID, res.Body.User.ID)
	assert.NotEmpty(t, res.RefreshTokenPlain)
	assert.Equal(t, 900, res.Body.Token.ExpiresIn)
	require.NotNil(t, res.Body.User.LastLoginAt)

	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(res.Body.Token.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, tok.Valid)
	assert.Equal(t, "CUSTOMER", claims["role"])
	assert.EqualValues(t, 0, claims["tv"])
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: "login@example.com", Password: "nope"})
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)

	_, err = f.uc.Login(context.Background(), usecase.LoginInput{Email: "missing@example.com", Password: "password123"})
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestLogin_Deactivated(t *testing.T) {
	f := newAuthFixture(t)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", f.user.ID).Update("is_active", false).Error)

	_, err := f.uc.Login(context.Background(), usecase.LoginInput{Email: "login@example.com", Password: "password123"})
	assert.ErrorIs(t, err, usecase.ErrForbidden)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAuthFixture(t)
	first := f.login(t)

	second, err := f.uc.Refresh(context.Background(), first.RefreshTokenPlain, "test")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshTokenPlain, second.RefreshTokenPlain)
	assert.NotEmpty(t, second.Body.AccessToken)

	_, err = f.uc.Refresh(context.Background(), second.RefreshTokenPlain, "test")
	assert.NoError(t, err)
}

func TestRefresh_ReuseRevokesAll(t *testing.T) {
	f := newAuthFixture(t)
	first := f.login(t)

	second, err := f.uc.Refresh(context.Background(), first.RefreshTokenPlain, "test")
	require.NoError(t, err)

	//使用済みを再提示
	_, err = f.uc.Refresh(context.Background(), first.RefreshTokenPlain, "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)

	//正規の新しいトークンも失効している
	_, err = f.uc.Refresh(context.Background(), second.RefreshTokenPlain, "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestRefresh_Expired(t *testing.T) {
	f := newAuthFixture(t)
	first := f.login(t)

	f.clock.Advance(25 * time.Hour)
	_, err := f.uc.Refresh(context.Background(), first.RefreshTokenPlain, "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestRefresh_Unknown(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.uc.Refresh(context.Background(), "", "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
	_, err = f.uc.Refresh(context.Background(), "not-a-token", "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestLogout_BumpsTokenVersion(t *testing.T) {
	f := newAuthFixture(t)
	res := f.login(t)
	actor := usecase.Actor{UserID: f.user.ID, Role: model.RoleCustomer}

	require.NoError(t, f.uc.Logout(context.Background(), actor))

	me, err := f.uc.Me(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 1, me.TokenVersion)

	_, err = f.uc.Refresh(context.Background(), res.RefreshTokenPlain, "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	f := newAuthFixture(t)
	actor := usecase.Actor{UserID: f.user.ID, Role: model.RoleCustomer}

	out, err := f.uc.UpdateProfile(context.Background(), actor, usecase.ProfileInput{FirstName: " Hanako ", LastName: "Yamada", City: "Lalitpur"})
	require.NoError(t, err)
	assert.Equal(t, "Hanako", out.FirstName)
	assert.Equal(t, "Lalitpur", out.City)

	_, err = f.uc.UpdateProfile(context.Background(), actor, usecase.ProfileInput{})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestForceLogout(t *testing.T) {
	f := newAuthFixture(t)
	res := f.login(t)

	out, err := f.uc.ForceLogout(context.Background(), f.admin, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NewTokenVersion)

	_, err = f.uc.Refresh(context.Background(), res.RefreshTokenPlain, "test")
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)

	_, err = f.uc.ForceLogout(context.Background(), usecase.Actor{UserID: f.user.ID, Role: model.RoleCustomer}, f.admin.UserID)
	assert.ErrorIs(t, err, usecase.ErrForbidden)
}
