package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type ProductSales struct {
	ProductID   int64
	ProductName string
	Quantity    int64
	Revenue     decimal.Decimal
}

type CategorySales struct {
	CategoryID   int64
	CategoryName string
	Quantity     int64
	Revenue      decimal.Decimal
}

// 管理画面の集計用（読み取り専用）
type ReportRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountCustomersSince(ctx context.Context, since time.Time) (int64, error)
	CountActiveProducts(ctx context.Context) (int64, error)
	CountLowStock(ctx context.Context, below int64) (int64, error)
	CountOrders(ctx context.Context, status *model.OrderStatus) (int64, error)

	//支払い完了の注文だけ。from/toはnilなら無制限
	SumCompletedRevenue(ctx context.Context, from, to *time.Time) (decimal.Decimal, int64, error)
	ListCompletedOrders(ctx context.Context, from, to time.Time) ([]model.Order, error)

	RecentOrders(ctx context.Context, limit int) ([]model.Order, error)
	TopProducts(ctx context.Context, limit int) ([]ProductSales, error)
	CategorySales(ctx context.Context, from, to time.Time, limit int) ([]CategorySales, error)
}
