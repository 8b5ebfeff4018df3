package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID    int64            `gorm:"not null;index" json:"category_id"`
	Name          string           `gorm:"type:varchar(255);not null" json:"name"`
	Description   string           `gorm:"type:text" json:"description"`
	Price         decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"price"`
	DiscountPrice *decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount_price"`

	//在庫は0未満にならない（減算は条件付きUPDATEのみ）
	Stock int64 `gorm:"not null" json:"stock"`

	ImageURL  string    `gorm:"type:varchar(500)" json:"image_url"`
	IsActive  bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 割引価格があればそちら
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// 公開中かつ在庫がqty以上
func (p Product) Purchasable(qty int64) bool {
	return p.IsActive && qty > 0 && p.Stock >= qty
}
