package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

type UserDTO struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	PostalCode    string     `json:"postal_code"`
	Role          model.Role `json:"role"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	TokenVersion  int        `json:"token_version"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toUserDTO(u model.User) UserDTO {
	return UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Address:       u.Address,
		City:          u.City,
		PostalCode:    u.PostalCode,
		Role:          u.Role,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		TokenVersion:  u.TokenVersion,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

// refreshの平文はhandlerがCookieに詰める
type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
}

type RefreshResult struct {
	Body              JwtAccessTokenDTO
	RefreshTokenPlain string
}

type ForceLogoutResponse struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

type AuthDeps struct {
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	AuditLogs     repository.AuditLogRepository
	Hasher        PasswordHasher
	Tokens        AccessTokenIssuer
	RefreshTTL    time.Duration
	Clock         Clock
	IDs           IDGenerator
	Log           *zap.Logger
}

type AuthUsecase struct {
	users      repository.UserRepository
	rtRepo     repository.RefreshTokenRepository
	hasher     PasswordHasher
	tokens     AccessTokenIssuer
	refreshTTL time.Duration
	audit      auditRecorder
	clock      Clock
	ids        IDGenerator
	log        *zap.Logger
}

func NewAuthUsecase(d AuthDeps) *AuthUsecase {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.IDs == nil {
		d.IDs = UUIDGenerator()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Hasher == nil {
		d.Hasher = BcryptHasher{}
	}
	if d.RefreshTTL <= 0 {
		d.RefreshTTL = 14 * 24 * time.Hour
	}
	return &AuthUsecase{
		users:      d.Users,
		rtRepo:     d.RefreshTokens,
		hasher:     d.Hasher,
		tokens:     d.Tokens,
		refreshTTL: d.RefreshTTL,
		audit:      newAuditRecorder(d.AuditLogs, d.Log, d.Clock),
		clock:      d.Clock,
		ids:        d.IDs,
		log:        d.Log,
	}
}

type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "required"
	}
	if in.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return nil, validationError("invalid input", fields)
	}

	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewAppError(KindUnauthorized, "invalid email or password")
	}
	if err != nil {
		return nil, dbError(err)
	}

	//パスワード照合を先に（アカウントの有無・状態を漏らさない）
	if !u.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, NewAppError(KindUnauthorized, "invalid email or password")
	}
	if !user.IsActive {
		return nil, NewAppError(KindForbidden, "account is deactivated")
	}

	now := u.clock.Now()
	if err := u.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		u.log.Warn("last login update failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now

	token, refreshPlain, err := u.issuePair(ctx, *user, in.UserAgent, now)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Body:              AuthLoginResponse{User: toUserDTO(*user), Token: token},
		RefreshTokenPlain: refreshPlain,
	}, nil
}

// access + refresh を発行する（refreshはhashだけ保存）
func (u *AuthUsecase) issuePair(ctx context.Context, user model.User, userAgent string, now time.Time) (JwtAccessTokenDTO, string, error) {
	access, exp, err := u.tokens.Issue(user, now)
	if err != nil {
		return JwtAccessTokenDTO{}, "", &AppError{Kind: KindInternal, Message: "token issue failed", Err: err}
	}

	plain, hash, err := newRefreshToken()
	if err != nil {
		return JwtAccessTokenDTO{}, "", &AppError{Kind: KindInternal, Message: "token issue failed", Err: err}
	}
	rt := &model.RefreshToken{
		ID:        u.ids.NewID(),
		UserID:    user.ID,
		TokenHash: hash,
		UserAgent: truncate(userAgent, 255),
		ExpiresAt: now.Add(u.refreshTTL),
		CreatedAt: now,
	}
	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return JwtAccessTokenDTO{}, "", dbError(err)
	}

	return JwtAccessTokenDTO{
		AccessToken:  access,
		ExpiresIn:    int(exp.Sub(now).Seconds()),
		TokenVersion: user.TokenVersion,
	}, plain, nil
}

// refreshのローテーション。使用済みが来たら盗用とみなして全部失効
func (u *AuthUsecase) Refresh(ctx context.Context, refreshPlain string, userAgent string) (*RefreshResult, error) {
	if strings.TrimSpace(refreshPlain) == "" {
		return nil, NewAppError(KindUnauthorized, "missing refresh token")
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshPlain))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewAppError(KindUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return nil, dbError(err)
	}

	now := u.clock.Now()
	if rt.UsedAt != nil {
		u.revokeAll(ctx, rt.UserID, now)
		return nil, NewAppError(KindUnauthorized, "refresh token reuse detected")
	}
	if !rt.Usable(now) {
		return nil, NewAppError(KindUnauthorized, "refresh token expired")
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewAppError(KindUnauthorized, "invalid refresh token")
	}
	if err != nil {
		return nil, dbError(err)
	}
	if !user.IsActive {
		return nil, NewAppError(KindForbidden, "account is deactivated")
	}

	if err := u.rtRepo.MarkUsed(ctx, rt.ID, now); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			u.revokeAll(ctx, rt.UserID, now)
			return nil, NewAppError(KindUnauthorized, "refresh token reuse detected")
		}
		return nil, dbError(err)
	}

	token, plain, err := u.issuePair(ctx, *user, userAgent, now)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{Body: token, RefreshTokenPlain: plain}, nil
}

func (u *AuthUsecase) revokeAll(ctx context.Context, userID int64, now time.Time) {
	if err := u.rtRepo.RevokeAllByUserID(ctx, userID, now); err != nil {
		u.log.Warn("refresh token revoke failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// refreshを全失効し、token_versionを上げて発行済みのaccessも無効にする
func (u *AuthUsecase) Logout(ctx context.Context, actor Actor) error {
	if actor.UserID <= 0 {
		return NewAppError(KindUnauthorized, "unauthorized")
	}
	if err := u.rtRepo.RevokeAllByUserID(ctx, actor.UserID, u.clock.Now()); err != nil {
		return dbError(err)
	}
	if err := u.users.IncrementTokenVersion(ctx, actor.UserID); err != nil {
		return dbError(err)
	}
	return nil
}

func (u *AuthUsecase) Me(ctx context.Context, actor Actor) (UserDTO, error) {
	user, err := u.activeUser(ctx, actor)
	if err != nil {
		return UserDTO{}, err
	}
	return toUserDTO(*user), nil
}

func (u *AuthUsecase) activeUser(ctx context.Context, actor Actor) (*model.User, error) {
	if actor.UserID <= 0 {
		return nil, NewAppError(KindUnauthorized, "unauthorized")
	}
	user, err := u.users.FindByID(ctx, actor.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewAppError(KindUnauthorized, "unauthorized")
	}
	if err != nil {
		return nil, dbError(err)
	}
	if !user.IsActive {
		return nil, NewAppError(KindForbidden, "account is deactivated")
	}
	return user, nil
}

type ProfileInput struct {
	FirstName  string
	LastName   string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

func (u *AuthUsecase) UpdateProfile(ctx context.Context, actor Actor, in ProfileInput) (UserDTO, error) {
	user, err := u.activeUser(ctx, actor)
	if err != nil {
		return UserDTO{}, err
	}

	fields := map[string]string{}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" {
		fields["first_name"] = "required"
	}
	if last == "" {
		fields["last_name"] = "required"
	}
	if len(fields) > 0 {
		return UserDTO{}, validationError("invalid profile", fields)
	}

	user.FirstName = first
	user.LastName = last
	user.Phone = strings.TrimSpace(in.Phone)
	user.Address = strings.TrimSpace(in.Address)
	user.City = strings.TrimSpace(in.City)
	user.PostalCode = strings.TrimSpace(in.PostalCode)

	if err := u.users.UpdateProfile(ctx, user); err != nil {
		return UserDTO{}, dbError(err)
	}
	return toUserDTO(*user), nil
}

// 管理者による強制ログアウト
func (u *AuthUsecase) ForceLogout(ctx context.Context, actor Actor, targetUserID int64) (*ForceLogoutResponse, error) {
	if err := Authorize(actor, PermManageUsers); err != nil {
		return nil, err
	}
	if targetUserID <= 0 {
		return nil, fieldError("id", "invalid id")
	}

	if err := u.users.IncrementTokenVersion(ctx, targetUserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("user")
		}
		return nil, dbError(err)
	}
	if err := u.rtRepo.RevokeAllByUserID(ctx, targetUserID, u.clock.Now()); err != nil {
		return nil, dbError(err)
	}

	user, err := u.users.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionForceLogout,
		resourceType: model.AuditResourceUser,
		resourceID:   targetUserID,
		description:  fmt.Sprintf("force logout %s", user.Email),
		after:        map[string]int{"token_version": user.TokenVersion},
	})

	return &ForceLogoutResponse{UserID: user.ID, NewTokenVersion: user.TokenVersion}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
