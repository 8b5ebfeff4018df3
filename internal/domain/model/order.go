package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 配送側のステータス
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// お金側のステータス（配送側とは独立）
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentMethodGateway        PaymentMethod = "GATEWAY"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case PaymentMethodCashOnDelivery, PaymentMethodGateway:
		return m, true
	}
	return "", false
}

// 管理者が進められる遷移。キャンセルは別経路（在庫戻しがあるため）
var orderAdvances = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusDelivered},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	for _, n := range orderAdvances[s] {
		if n == next {
			return true
		}
	}
	return false
}

// PENDING / PROCESSING のみキャンセル可
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing
}

// キャンセル後の支払いステータス
func (p PaymentStatus) AfterCancel() PaymentStatus {
	switch p {
	case PaymentStatusCompleted:
		return PaymentStatusRefunded
	case PaymentStatusPending:
		return PaymentStatusFailed
	}
	return p
}

type Order struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"type:varchar(40);uniqueIndex;not null" json:"order_number"`
	UserID      int64  `gorm:"not null;index" json:"user_id"`

	Status           OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus    PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	PaymentMethod    PaymentMethod   `gorm:"type:varchar(30);not null" json:"payment_method"`
	PaymentReference string          `gorm:"type:varchar(255)" json:"payment_reference"`
	TotalAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`

	//配送先スナップショット（住所を後で変えても注文は変わらない）
	ShippingName       string `gorm:"type:varchar(255);not null" json:"shipping_name"`
	ShippingAddress    string `gorm:"type:varchar(255);not null" json:"shipping_address"`
	ShippingCity       string `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingPostalCode string `gorm:"type:varchar(20)" json:"shipping_postal_code"`
	ShippingPhone      string `gorm:"type:varchar(30);not null" json:"shipping_phone"`
	Notes              string `gorm:"type:text" json:"notes"`

	OrderedAt   time.Time  `gorm:"not null;index" json:"ordered_at"`
	PaidAt      *time.Time `json:"paid_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}
