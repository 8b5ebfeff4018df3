package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"html"
	"math/big"
	"regexp"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

const otpSubject = "Email Verification OTP"

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

type RegistrationDeps struct {
	Tx        repository.TransactionManager
	Users     repository.UserRepository
	OTPs      repository.OTPRepository
	AuditLogs repository.AuditLogRepository
	Pending   RegistrationStore
	Mailer    EmailSender
	Hasher    PasswordHasher

	OTPExpiry       time.Duration
	RegistrationTTL time.Duration

	//テストで固定コードを使うため
	GenerateCode func() (string, error)

	Clock Clock
	Log   *zap.Logger
}

// 仮登録 → OTPメール → 確認で本登録
type RegistrationUsecase struct {
	tx      repository.TransactionManager
	users   repository.UserRepository
	otps    repository.OTPRepository
	pending RegistrationStore
	mailer  EmailSender
	hasher  PasswordHasher

	otpExpiry       time.Duration
	registrationTTL time.Duration
	generateCode    func() (string, error)

	audit auditRecorder
	clock Clock
	log   *zap.Logger
}

func NewRegistrationUsecase(d RegistrationDeps) *RegistrationUsecase {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Hasher == nil {
		d.Hasher = BcryptHasher{}
	}
	if d.GenerateCode == nil {
		d.GenerateCode = GenerateOTPCode
	}
	if d.OTPExpiry <= 0 {
		d.OTPExpiry = 10 * time.Minute
	}
	if d.RegistrationTTL < d.OTPExpiry {
		d.RegistrationTTL = 3 * d.OTPExpiry
	}
	return &RegistrationUsecase{
		tx:              d.Tx,
		users:           d.Users,
		otps:            d.OTPs,
		pending:         d.Pending,
		mailer:          d.Mailer,
		hasher:          d.Hasher,
		otpExpiry:       d.OTPExpiry,
		registrationTTL: d.RegistrationTTL,
		generateCode:    d.GenerateCode,
		audit:           newAuditRecorder(d.AuditLogs, d.Log, d.Clock),
		clock:           d.Clock,
		log:             d.Log,
	}
}

// 100000〜999999
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

type RegisterInput struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

type OTPIssued struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message"`
}

func (u *RegistrationUsecase) Register(ctx context.Context, in RegisterInput) (OTPIssued, error) {
	email := normalizeEmail(in.Email)
	fields := map[string]string{}
	if email == "" || !strings.Contains(email, "@") {
		fields["email"] = "must be a valid email"
	}
	if len(in.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["first_name"] = "required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["last_name"] = "required"
	}
	if len(fields) > 0 {
		return OTPIssued{}, validationError("invalid registration", fields)
	}

	exists, err := u.users.ExistsByEmail(ctx, email)
	if err != nil {
		return OTPIssued{}, dbError(err)
	}
	if exists {
		return OTPIssued{}, NewAppError(KindConflict, "email already registered")
	}

	hash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return OTPIssued{}, &AppError{Kind: KindInternal, Message: "password hash failed", Err: err}
	}

	reg := PendingRegistration{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
		City:         strings.TrimSpace(in.City),
		PostalCode:   strings.TrimSpace(in.PostalCode),
	}
	if err := u.pending.Save(ctx, reg, u.registrationTTL); err != nil {
		return OTPIssued{}, externalError("registration store unavailable", err)
	}

	return u.issueOTP(ctx, reg)
}

// OTPを保存してメールする。メールが届かなければ先に進めないのでエラーにする
func (u *RegistrationUsecase) issueOTP(ctx context.Context, reg PendingRegistration) (OTPIssued, error) {
	code, err := u.generateCode()
	if err != nil {
		return OTPIssued{}, &AppError{Kind: KindInternal, Message: "otp generation failed", Err: err}
	}

	now := u.clock.Now()
	otp := &model.OTPVerification{
		Email:     reg.Email,
		Code:      code,
		ExpiresAt: now.Add(u.otpExpiry),
		CreatedAt: now,
	}
	if err := u.otps.Create(ctx, otp); err != nil {
		return OTPIssued{}, dbError(err)
	}

	if err := u.mailer.Send(ctx, reg.Email, otpSubject, otpEmailBody(reg.FirstName, code, u.otpExpiry)); err != nil {
		u.log.Warn("otp email failed", zap.String("email", reg.Email), zap.Error(err))
		return OTPIssued{}, externalError("failed to send verification email", err)
	}

	return OTPIssued{
		Email:     reg.Email,
		ExpiresAt: otp.ExpiresAt,
		Message:   "verification code sent",
	}, nil
}

func otpEmailBody(name, code string, expiry time.Duration) string {
	return fmt.Sprintf(
		`<div style="font-family:sans-serif"><p>Hello %s,</p>`+
			`<p>Your verification code is:</p><h1 style="letter-spacing:4px">%s</h1>`+
			`<p>This code expires in %d minutes.</p></div>`,
		html.EscapeString(name), code, int(expiry.Minutes()),
	)
}

type VerifyOTPInput struct {
	Email string
	Code  string
}

// 確認が通ったらユーザー作成とOTP使用済みを1トランザクションで
func (u *RegistrationUsecase) VerifyOTP(ctx context.Context, in VerifyOTPInput) (UserDTO, error) {
	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)
	if email == "" {
		return UserDTO{}, fieldError("email", "required")
	}
	if !otpPattern.MatchString(code) {
		return UserDTO{}, NewAppError(KindInvalidOTP, "invalid verification code")
	}

	otp, err := u.otps.FindLatestUnused(ctx, email, code)
	if errors.Is(err, repository.ErrNotFound) {
		return UserDTO{}, NewAppError(KindInvalidOTP, "invalid verification code")
	}
	if err != nil {
		return UserDTO{}, dbError(err)
	}
	now := u.clock.Now()
	if otp.Expired(now) {
		return UserDTO{}, NewAppError(KindOTPExpired, "verification code has expired")
	}

	reg, found, err := u.pending.Get(ctx, email)
	if err != nil {
		return UserDTO{}, externalError("registration store unavailable", err)
	}
	if !found {
		return UserDTO{}, NewAppError(KindInvalidOTP, "registration expired, please register again")
	}

	user := &model.User{
		Email:         reg.Email,
		PasswordHash:  reg.PasswordHash,
		FirstName:     reg.FirstName,
		LastName:      reg.LastName,
		Phone:         reg.Phone,
		Address:       reg.Address,
		City:          reg.City,
		PostalCode:    reg.PostalCode,
		Role:          model.RoleCustomer,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		//同じコードの二重送信は片方だけ通る
		if err := r.OTPs().MarkUsed(ctx, otp.ID); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				return NewAppError(KindInvalidOTP, "verification code already used")
			}
			return dbError(err)
		}
		if err := r.Users().Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return NewAppError(KindConflict, "email already registered")
			}
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return UserDTO{}, err
	}

	if err := u.pending.Delete(ctx, email); err != nil {
		u.log.Warn("pending registration cleanup failed", zap.String("email", email), zap.Error(err))
	}
	u.audit.record(ctx, auditEntry{
		actor:        Actor{UserID: user.ID, Role: user.Role},
		action:       model.AuditActionRegisterUser,
		resourceType: model.AuditResourceUser,
		resourceID:   user.ID,
		description:  "registered " + user.Email,
	})

	return toUserDTO(*user), nil
}

// 新しいコードを送る。前のコードも期限内なら有効のまま
func (u *RegistrationUsecase) ResendOTP(ctx context.Context, rawEmail string) (OTPIssued, error) {
	email := normalizeEmail(rawEmail)
	if email == "" {
		return OTPIssued{}, fieldError("email", "required")
	}

	reg, found, err := u.pending.Get(ctx, email)
	if err != nil {
		return OTPIssued{}, externalError("registration store unavailable", err)
	}
	if !found {
		return OTPIssued{}, NewAppError(KindNotFound, "no pending registration for this email")
	}
	return u.issueOTP(ctx, reg)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
