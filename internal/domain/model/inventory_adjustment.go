package model

import (
	"strings"
	"time"
)

type InventoryAction string

const (
	InventoryActionStockAddition  InventoryAction = "STOCK_ADDITION"
	InventoryActionStockReduction InventoryAction = "STOCK_REDUCTION"
	InventoryActionAdjustment     InventoryAction = "ADJUSTMENT"
	InventoryActionSale           InventoryAction = "SALE"
	InventoryActionReturn         InventoryAction = "RETURN"
	InventoryActionDamage         InventoryAction = "DAMAGE"
	InventoryActionExpiry         InventoryAction = "EXPIRY"
)

func ParseInventoryAction(s string) (InventoryAction, bool) {
	a := InventoryAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case InventoryActionStockAddition, InventoryActionStockReduction, InventoryActionAdjustment,
		InventoryActionSale, InventoryActionReturn, InventoryActionDamage, InventoryActionExpiry:
		return a, true
	}
	return "", false
}

//在庫調整の履歴

type InventoryAdjustment struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID        int64           `gorm:"not null;index" json:"product_id"`
	AdminUserID      int64           `gorm:"not null;index" json:"admin_user_id"`
	Action           InventoryAction `gorm:"type:varchar(30);not null" json:"action"`
	PreviousQuantity int64           `gorm:"not null" json:"previous_quantity"`
	NewQuantity      int64           `gorm:"not null" json:"new_quantity"`
	Delta            int64           `gorm:"not null" json:"delta"`
	Reason           string          `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt        time.Time       `gorm:"not null" json:"created_at"`
}
