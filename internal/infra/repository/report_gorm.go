package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReportGormRepository struct {
	db *gorm.DB
}

func NewReportGormRepository(db *gorm.DB) *ReportGormRepository {
	return &ReportGormRepository{db: db}
}

func (r *ReportGormRepository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, err
}

func (r *ReportGormRepository) CountCustomersSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("role = ? AND created_at >= ?", model.RoleCustomer, since).
		Count(&n).Error
	return n, err
}

func (r *ReportGormRepository) CountActiveProducts(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).Where("is_active = ?", true).Count(&n).Error
	return n, err
}

// 在庫切れ(0)は含めない
func (r *ReportGormRepository) CountLowStock(ctx context.Context, below int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Product{}).
		Where("stock > 0 AND stock < ?", below).
		Count(&n).Error
	return n, err
}

func (r *ReportGormRepository) CountOrders(ctx context.Context, status *model.OrderStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

type revenueRow struct {
	Revenue decimal.Decimal `gorm:"column:revenue"`
	Orders  int64           `gorm:"column:orders"`
}

func (r *ReportGormRepository) SumCompletedRevenue(ctx context.Context, from, to *time.Time) (decimal.Decimal, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{}).
		Select("COALESCE(SUM(total_amount), 0) AS revenue, COUNT(*) AS orders").
		Where("payment_status = ?", model.PaymentStatusCompleted)
	if from != nil {
		q = q.Where("ordered_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("ordered_at < ?", *to)
	}

	var row revenueRow
	if err := q.Scan(&row).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return row.Revenue, row.Orders, nil
}

func (r *ReportGormRepository) ListCompletedOrders(ctx context.Context, from, to time.Time) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND ordered_at >= ? AND ordered_at < ?", model.PaymentStatusCompleted, from, to).
		Order("ordered_at asc").
		Find(&orders).Error
	if err != nil {
		return []model.Order{}, err
	}
	return orders, nil
}

func (r *ReportGormRepository) RecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	var orders []model.Order
	if err := r.db.WithContext(ctx).Order("ordered_at desc").Order("id desc").Limit(limit).Find(&orders).Error; err != nil {
		return []model.Order{}, err
	}
	return orders, nil
}

type productSalesRow struct {
	ProductID   int64           `gorm:"column:product_id"`
	ProductName string          `gorm:"column:product_name"`
	Quantity    int64           `gorm:"column:quantity"`
	Revenue     decimal.Decimal `gorm:"column:revenue"`
}

// キャンセル済みは数えない
func (r *ReportGormRepository) TopProducts(ctx context.Context, limit int) ([]repo.ProductSales, error) {
	var rows []productSalesRow
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.product_id AS product_id, MAX(order_items.product_name) AS product_name, "+
			"SUM(order_items.quantity) AS quantity, SUM(order_items.total_price) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status <> ?", model.OrderStatusCancelled).
		Group("order_items.product_id").
		Order("quantity desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return []repo.ProductSales{}, err
	}

	out := make([]repo.ProductSales, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.ProductSales{
			ProductID:   row.ProductID,
			ProductName: row.ProductName,
			Quantity:    row.Quantity,
			Revenue:     row.Revenue,
		})
	}
	return out, nil
}

type categorySalesRow struct {
	CategoryID   int64           `gorm:"column:category_id"`
	CategoryName string          `gorm:"column:category_name"`
	Quantity     int64           `gorm:"column:quantity"`
	Revenue      decimal.Decimal `gorm:"column:revenue"`
}

func (r *ReportGormRepository) CategorySales(ctx context.Context, from, to time.Time, limit int) ([]repo.CategorySales, error) {
	var rows []categorySalesRow
	err := r.db.WithContext(ctx).
		Table("order_items").
		Select("categories.id AS category_id, categories.name AS category_name, "+
			"SUM(order_items.quantity) AS quantity, SUM(order_items.total_price) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN products ON products.id = order_items.product_id").
		Joins("JOIN categories ON categories.id = products.category_id").
		Where("orders.payment_status = ? AND orders.ordered_at >= ? AND orders.ordered_at < ?",
			model.PaymentStatusCompleted, from, to).
		Group("categories.id, categories.name").
		Order("revenue desc").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return []repo.CategorySales{}, err
	}

	out := make([]repo.CategorySales, 0, len(rows))
	for _, row := range rows {
		out = append(out, repo.CategorySales{
			CategoryID:   row.CategoryID,
			CategoryName: row.CategoryName,
			Quantity:     row.Quantity,
			Revenue:      row.Revenue,
		})
	}
	return out, nil
}
