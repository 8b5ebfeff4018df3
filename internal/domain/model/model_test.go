package model_test

import (
	"testing"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from model.OrderStatus
		to   model.OrderStatus
		want bool
	}{
		{model.OrderStatusPending, model.OrderStatusProcessing, true},
		{model.OrderStatusPending, model.OrderStatusDelivered, true},
		{model.OrderStatusProcessing, model.OrderStatusShipped, true},
		{model.OrderStatusShipped, model.OrderStatusDelivered, true},
		{model.OrderStatusShipped, model.OrderStatusProcessing, false},
		{model.OrderStatusDelivered, model.OrderStatusShipped, false},
		{model.OrderStatusCancelled, model.OrderStatusProcessing, false},
		//キャンセルは別経路
		{model.OrderStatusPending, model.OrderStatusCancelled, false},
		{model.OrderStatusPending, model.OrderStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestOrderStatus_Cancellable(t *testing.T) {
	assert.True(t, model.OrderStatusPending.Cancellable())
	assert.True(t, model.OrderStatusProcessing.Cancellable())
	assert.False(t, model.OrderStatusShipped.Cancellable())
	assert.False(t, model.OrderStatusDelivered.Cancellable())
	assert.False(t, model.OrderStatusCancelled.Cancellable())
}

func TestPaymentStatus_AfterCancel(t *testing.T) {
	assert.Equal(t, model.PaymentStatusRefunded, model.PaymentStatusCompleted.AfterCancel())
	assert.Equal(t, model.PaymentStatusFailed, model.PaymentStatusPending.AfterCancel())
	assert.Equal(t, model.PaymentStatusFailed, model.PaymentStatusFailed.AfterCancel())
	assert.Equal(t, model.PaymentStatusRefunded, model.PaymentStatusRefunded.AfterCancel())
}

func TestParse(t *testing.T) {
	st, ok := model.ParseOrderStatus(" shipped ")
	assert.True(t, ok)
	assert.Equal(t, model.OrderStatusShipped, st)
	_, ok = model.ParseOrderStatus("lost")
	assert.False(t, ok)

	m, ok := model.ParsePaymentMethod("cash_on_delivery")
	assert.True(t, ok)
	assert.Equal(t, model.PaymentMethodCashOnDelivery, m)
	_, ok = model.ParsePaymentMethod("CARD")
	assert.False(t, ok)

	r, ok := model.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, model.RoleAdmin, r)
	_, ok = model.ParseRole("root")
	assert.False(t, ok)

	a, ok := model.ParseInventoryAction("damage")
	assert.True(t, ok)
	assert.Equal(t, model.InventoryActionDamage, a)
	_, ok = model.ParseInventoryAction("")
	assert.False(t, ok)
}

func TestProduct_EffectivePriceAndPurchasable(t *testing.T) {
	discount := decimal.RequireFromString("80.00")
	p := model.Product{Price: decimal.RequireFromString("100.00"), Stock: 2, IsActive: true}

	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(100)))
	p.DiscountPrice = &discount
	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(80)))

	assert.True(t, p.Purchasable(2))
	assert.False(t, p.Purchasable(3))
	assert.False(t, p.Purchasable(0))
	p.IsActive = false
	assert.False(t, p.Purchasable(1))
}

func TestNewOrderItemAndSum(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	discount := decimal.RequireFromString("19.99")
	items := []model.OrderItem{
		model.NewOrderItem(model.Product{ID: 1, Name: "Tea", Price: decimal.RequireFromString("25.00"), DiscountPrice: &discount}, 3, now),
		model.NewOrderItem(model.Product{ID: 2, Name: "Rice", Price: decimal.RequireFromString("10.50")}, 2, now),
	}

	assert.Equal(t, "Tea", items[0].ProductName)
	assert.True(t, items[0].UnitPrice.Equal(discount))
	assert.True(t, items[0].TotalPrice.Equal(decimal.RequireFromString("59.97")))
	assert.True(t, model.SumOrderItems(items).Equal(decimal.RequireFromString("80.97")))
	assert.True(t, model.SumOrderItems(nil).IsZero())
}

func TestExpiryHelpers(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	otp := model.OTPVerification{ExpiresAt: now}
	assert.True(t, otp.Expired(now))
	assert.False(t, otp.Expired(now.Add(-time.Second)))

	used := now
	rt := model.RefreshToken{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, rt.Usable(now))
	rt.UsedAt = &used
	assert.False(t, rt.Usable(now))
	assert.False(t, model.RefreshToken{ExpiresAt: now}.Usable(now))

	assert.Equal(t, "Ram Shrestha", model.User{FirstName: "Ram", LastName: "Shrestha"}.FullName())
}
