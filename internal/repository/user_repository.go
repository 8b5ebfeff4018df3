package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type UserListFilter struct {
	Page  int
	Limit int

	//email / 氏名の部分一致
	Q    string
	Role model.Role
}

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（email重複はErrDuplicate）
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, f UserListFilter) ([]model.User, int64, error)

	// プロフィール項目だけ更新
	UpdateProfile(ctx context.Context, user *model.User) error
	SetActive(ctx context.Context, userID int64, active bool) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	Delete(ctx context.Context, userID int64) error

	//トークンのバージョンを＋１
	IncrementTokenVersion(ctx context.Context, userID int64) error
}
