package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 一覧検索
type ProductListQuery struct {
	Page       int
	Limit      int
	Q          string
	CategoryID *int64

	//公開APIはtrue、管理画面はfalse
	ActiveOnly bool

	// "", "new", "price_asc", "price_desc", "name"
	Sort string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	List(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	//Tx内で行ロック（SELECT ... FOR UPDATE）
	FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SetImageURL(ctx context.Context, id int64, url string) error

	//注文明細から参照されている商品は論理削除（非公開）のみ
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error

	CountByCategory(ctx context.Context, categoryID int64) (int64, error)
}

// 在庫の増減と調整履歴
type InventoryRepository interface {
	//在庫が足りるときだけ減らす（足りないなら false）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
	IncreaseStock(ctx context.Context, productID int64, qty int64) error
	SetStock(ctx context.Context, productID int64, newStock int64) error
	CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error
	ListAdjustments(ctx context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error)
}
