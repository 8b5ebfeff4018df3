package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// カートは (user, product) の明細だけで表す
type CartItemRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error)
	FindByUserAndProduct(ctx context.Context, userID int64, productID int64) (model.CartItem, error)
	Create(ctx context.Context, item model.CartItem) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error
	DeleteByID(ctx context.Context, cartItemID int64) error
	ClearByUserID(ctx context.Context, userID int64) error
	//商品の物理削除時に全ユーザー分を消す
	DeleteByProductID(ctx context.Context, productID int64) error

	//数量の合計
	SumQuantity(ctx context.Context, userID int64) (int64, error)
}
