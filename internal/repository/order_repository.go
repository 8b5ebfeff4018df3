package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status model.OrderStatus
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// 状態遷移。From* が一致する行だけ更新する（楽観チェック）
type OrderTransition struct {
	OrderID     int64
	FromStatus  model.OrderStatus
	FromPayment model.PaymentStatus
	ToStatus    model.OrderStatus
	ToPayment   model.PaymentStatus

	PaymentReference *string
	PaidAt           *time.Time
	ShippedAt        *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	UpdatedAt        time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	//行ロック（SELECT ... FOR UPDATE）。Tx内で使う
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)

	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//0件ならErrStaleState
	Transition(ctx context.Context, t OrderTransition) error

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)

	//支払い待ちのまま期限切れのゲートウェイ注文
	ListUnpaidGatewayBefore(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}
