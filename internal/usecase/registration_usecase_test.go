package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/cache"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type registrationFixture struct {
	db     *gorm.DB
	clock  *testutil.FixedClock
	mailer *fakeMailer
	store  *cache.MemoryRegistrationStore
	uc     *usecase.RegistrationUsecase
	codes  []string
}

func newRegistrationFixture(t *testing.T, codes ...string) *registrationFixture {
	t.Helper()
	gdb := testutil.NewSQLite(t)
	f := &registrationFixture{
		db:     gdb,
		clock:  &testutil.FixedClock{T: time.Now().UTC()},
		mailer: &fakeMailer{},
		store:  cache.NewMemoryRegistrationStore(),
		codes:  codes,
	}
	f.uc = usecase.NewRegistrationUsecase(usecase.RegistrationDeps{
		Tx:        infraRepo.NewTxManagerGorm(gdb),
		Users:     infraRepo.NewUserGormRepository(gdb),
		OTPs:      infraRepo.NewOTPGormRepository(gdb),
		AuditLogs: infraRepo.NewAuditLogGormRepository(gdb),
		Pending:   f.store,
		Mailer:    f.mailer,
		Hasher:    usecase.BcryptHasher{Cost: bcrypt.MinCost},
		OTPExpiry: 10 * time.Minute,
		GenerateCode: func() (string, error) {
			if len(f.codes) == 0 {
				return "", errors.New("no more codes")
			}
			c := f.codes[0]
			f.codes = f.codes[1:]
			return c, nil
		},
		Clock: f.clock,
	})
	return f
}

func registerInput() usecase.RegisterInput {
	return usecase.RegisterInput{
		Email:     "  New.User@Example.com ",
		Password:  "password123",
		FirstName: "New",
		LastName:  "User",
		Phone:     "9800000001",
		City:      "Pokhara",
	}
}

func TestRegister_SendsOTPAndCreatesNoUser(t *testing.T) {
	f := newRegistrationFixture(t, "123456")

	out, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)
	assert.Equal(t, "new.user@example.com", out.Email)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), out.ExpiresAt)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "new.user@example.com", f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Body, "123456")

	var n int64
	require.NoError(t, f.db.Model(&model.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestRegister_Validation(t *testing.T) {
	f := newRegistrationFixture(t, "123456")

	_, err := f.uc.Register(context.Background(), usecase.RegisterInput{Email: "bad", Password: "short"})
	require.Error(t, err)
	ae, ok := usecase.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "email")
	assert.Contains(t, ae.Fields, "password")
	assert.Contains(t, ae.Fields, "first_name")
	assert.Empty(t, f.mailer.sent)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	testutil.CreateUser(t, f.db, "new.user@example.com", model.RoleCustomer)

	_, err := f.uc.Register(context.Background(), registerInput())
	assert.ErrorIs(t, err, usecase.ErrConflict)
}

func TestRegister_MailFailure(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	f.mailer.err = errors.New("smtp down")

	_, err := f.uc.Register(context.Background(), registerInput())
	assert.ErrorIs(t, err, usecase.ErrExternalService)
}

func TestVerifyOTP_CreatesVerifiedCustomer(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	u, err := f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.True(t, u.EmailVerified)
	assert.True(t, u.IsActive)
	assert.Equal(t, "Pokhara", u.City)

	var saved model.User
	require.NoError(t, f.db.First(&saved, u.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte("password123")))

	//仮登録は消える
	_, found, err := f.store.Get(context.Background(), "new.user@example.com")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "000000"})
	assert.ErrorIs(t, err, usecase.ErrInvalidOTP)

	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "12ab56"})
	assert.ErrorIs(t, err, usecase.ErrInvalidOTP)
}

func TestVerifyOTP_Expired(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	assert.ErrorIs(t, err, usecase.ErrOTPExpired)

	var n int64
	require.NoError(t, f.db.Model(&model.User{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestVerifyOTP_CodeUsableOnce(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	require.NoError(t, err)

	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	assert.ErrorIs(t, err, usecase.ErrInvalidOTP)
}

func TestResendOTP_IssuesNewCode(t *testing.T) {
	f := newRegistrationFixture(t, "123456", "654321")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	out, err := f.uc.ResendOTP(context.Background(), "NEW.USER@example.com")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), out.ExpiresAt)
	require.Len(t, f.mailer.sent, 2)
	assert.Contains(t, f.mailer.sent[1].Body, "654321")

	//最初のコードは期限切れ、新しいコードは有効
	f.clock.Advance(6 * time.Minute)
	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	assert.ErrorIs(t, err, usecase.ErrOTPExpired)

	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "654321"})
	assert.NoError(t, err)
}

func TestResendOTP_EarlierCodeStillValid(t *testing.T) {
	f := newRegistrationFixture(t, "123456", "654321")
	_, err := f.uc.Register(context.Background(), registerInput())
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.uc.ResendOTP(context.Background(), "new.user@example.com")
	require.NoError(t, err)

	//期限内なら再送前のコードでも登録できる
	user, err := f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "new.user@example.com", user.Email)

	//仮登録は消費済みなので新しいコードは通らない
	_, err = f.uc.VerifyOTP(context.Background(), usecase.VerifyOTPInput{Email: "new.user@example.com", Code: "654321"})
	assert.ErrorIs(t, err, usecase.ErrInvalidOTP)

	var n int64
	require.NoError(t, f.db.Model(&model.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestResendOTP_WithoutPendingRegistration(t *testing.T) {
	f := newRegistrationFixture(t, "123456")
	_, err := f.uc.ResendOTP(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, usecase.ErrNotFound)
	assert.Empty(t, f.mailer.sent)
}

func TestGenerateOTPCode_SixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := usecase.GenerateOTPCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[1-9][0-9]{5}$`, code)
	}
}
