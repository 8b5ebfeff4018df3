package usecase

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"go.uber.org/zap"
)

type AdminUserUsecase struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	audit  auditRecorder
	clock  Clock
}

func NewAdminUserUsecase(users repository.UserRepository, tokens repository.RefreshTokenRepository, audits repository.AuditLogRepository, clock Clock, log *zap.Logger) *AdminUserUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	return &AdminUserUsecase{
		users:  users,
		tokens: tokens,
		audit:  newAuditRecorder(audits, log, clock),
		clock:  clock,
	}
}

type AdminUserListInput struct {
	Page  int
	Limit int
	Q     string
	Role  string
}

func (u *AdminUserUsecase) List(ctx context.Context, actor Actor, in AdminUserListInput) (Page[UserDTO], error) {
	if err := Authorize(actor, PermManageUsers); err != nil {
		return Page[UserDTO]{}, err
	}

	f := repository.UserListFilter{Q: in.Q}
	f.Page, f.Limit = normalizePage(in.Page, in.Limit, 20, 100)
	if in.Role != "" {
		role, ok := model.ParseRole(in.Role)
		if !ok {
			return Page[UserDTO]{}, fieldError("role", "must be CUSTOMER or ADMIN")
		}
		f.Role = role
	}

	users, total, err := u.users.List(ctx, f)
	if err != nil {
		return Page[UserDTO]{}, dbError(err)
	}
	out := make([]UserDTO, 0, len(users))
	for _, us := range users {
		out = append(out, toUserDTO(us))
	}
	return Page[UserDTO]{Items: out, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// 有効/無効の切り替え。無効にしたら発行済みトークンも使えなくする
func (u *AdminUserUsecase) ToggleActive(ctx context.Context, actor Actor, userID int64) (UserDTO, error) {
	if err := Authorize(actor, PermManageUsers); err != nil {
		return UserDTO{}, err
	}
	target, err := u.target(ctx, actor, userID)
	if err != nil {
		return UserDTO{}, err
	}

	next := !target.IsActive
	if err := u.users.SetActive(ctx, target.ID, next); err != nil {
		return UserDTO{}, dbError(err)
	}
	if !next {
		if err := u.users.IncrementTokenVersion(ctx, target.ID); err != nil {
			return UserDTO{}, dbError(err)
		}
		if err := u.tokens.RevokeAllByUserID(ctx, target.ID, u.clock.Now()); err != nil {
			return UserDTO{}, dbError(err)
		}
		target.TokenVersion++
	}
	target.IsActive = next

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionToggleUserActive,
		resourceType: model.AuditResourceUser,
		resourceID:   target.ID,
		description:  fmt.Sprintf("set %s active=%t", target.Email, next),
		before:       map[string]bool{"is_active": !next},
		after:        map[string]bool{"is_active": next},
	})
	return toUserDTO(*target), nil
}

func (u *AdminUserUsecase) Delete(ctx context.Context, actor Actor, userID int64) error {
	if err := Authorize(actor, PermManageUsers); err != nil {
		return err
	}
	target, err := u.target(ctx, actor, userID)
	if err != nil {
		return err
	}

	if err := u.tokens.RevokeAllByUserID(ctx, target.ID, u.clock.Now()); err != nil {
		return dbError(err)
	}
	if err := u.users.Delete(ctx, target.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("user")
		}
		return dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionDeleteUser,
		resourceType: model.AuditResourceUser,
		resourceID:   target.ID,
		description:  "deleted user " + target.Email,
		before:       toUserDTO(*target),
	})
	return nil
}

// 自分自身は操作できない
func (u *AdminUserUsecase) target(ctx context.Context, actor Actor, userID int64) (*model.User, error) {
	if userID <= 0 {
		return nil, fieldError("id", "invalid id")
	}
	if userID == actor.UserID {
		return nil, NewAppError(KindForbidden, "cannot modify your own account")
	}
	user, err := u.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user")
	}
	if err != nil {
		return nil, dbError(err)
	}
	return user, nil
}
