package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文時点のスナップショット。作成後は更新しない
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func NewOrderItem(p Product, qty int64, now time.Time) OrderItem {
	unit := p.EffectivePrice()
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		UnitPrice:   unit,
		Quantity:    qty,
		TotalPrice:  unit.Mul(decimal.NewFromInt(qty)),
		CreatedAt:   now,
	}
}

// 明細合計（= 注文合計）
func SumOrderItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}
