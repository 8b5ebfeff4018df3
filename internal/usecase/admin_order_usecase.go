package usecase

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	orders repo.OrderRepository
	items  repo.OrderItemRepository

	fx    orderEffects
	clock Clock
	log   *zap.Logger
}

func NewAdminOrderUsecase(d OrderDeps) *AdminOrderUsecase {
	d = d.withDefaults()
	return &AdminOrderUsecase{
		tx:     d.Tx,
		orders: d.Orders,
		items:  d.Items,
		fx:     newOrderEffects(d),
		clock:  d.Clock,
		log:    d.Log,
	}
}

type AdminOrderListInput struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

func (u *AdminOrderUsecase) List(ctx context.Context, actor Actor, in AdminOrderListInput) (Page[OrderDetail], error) {
	if err := Authorize(actor, PermManageOrders); err != nil {
		return Page[OrderDetail]{}, err
	}

	f := repo.AdminOrderListFilter{UserID: in.UserID, From: in.From, To: in.To}
	f.Page, f.Limit = normalizePage(in.Page, in.Limit, 20, 100)
	if in.Status != "" {
		st, ok := model.ParseOrderStatus(in.Status)
		if !ok {
			return Page[OrderDetail]{}, fieldError("status", "invalid status")
		}
		f.Status = st
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return Page[OrderDetail]{}, dbError(err)
	}
	details, err := attachItems(ctx, u.items, orders)
	if err != nil {
		return Page[OrderDetail]{}, err
	}
	return Page[OrderDetail]{Items: details, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func (u *AdminOrderUsecase) Get(ctx context.Context, actor Actor, orderID int64) (OrderDetail, error) {
	if err := Authorize(actor, PermManageOrders); err != nil {
		return OrderDetail{}, err
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderDetail{}, notFound("order")
	}
	if err != nil {
		return OrderDetail{}, dbError(err)
	}
	items, err := u.items.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderDetail{}, dbError(err)
	}
	return OrderDetail{Order: o, Items: items}, nil
}

// 配送ステータスを進める。CANCELLEDはキャンセル経路（在庫戻し）へ
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actor Actor, orderID int64, status string) (model.Order, error) {
	if err := Authorize(actor, PermManageOrders); err != nil {
		return model.Order{}, err
	}
	if orderID <= 0 {
		return model.Order{}, fieldError("id", "invalid id")
	}
	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return model.Order{}, fieldError("status", "invalid status")
	}
	if next == model.OrderStatusCancelled {
		return u.Cancel(ctx, actor, orderID)
	}

	var before, after model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(err)
		}
		if !cur.Status.CanAdvanceTo(next) {
			return NewAppError(KindInvalidTransition, "cannot change order status from "+string(cur.Status)+" to "+string(next))
		}

		now := u.clock.Now()
		t := repo.OrderTransition{
			OrderID:     cur.ID,
			FromStatus:  cur.Status,
			FromPayment: cur.PaymentStatus,
			ToStatus:    next,
			ToPayment:   cur.PaymentStatus,
			UpdatedAt:   now,
		}
		switch next {
		case model.OrderStatusShipped:
			t.ShippedAt = &now
		case model.OrderStatusDelivered:
			t.DeliveredAt = &now

			//配達完了 = 代金回収済み
			t.ToPayment = model.PaymentStatusCompleted
			if cur.PaidAt == nil {
				t.PaidAt = &now
			}
		}

		if err := r.Orders().Transition(ctx, t); err != nil {
			if errors.Is(err, repo.ErrStaleState) {
				return NewAppError(KindConcurrencyConflict, "order was modified concurrently")
			}
			return dbError(err)
		}
		before = cur
		after = applyTransition(cur, t)
		return nil
	})
	if err != nil {
		return model.Order{}, err
	}

	u.fx.transitioned(ctx, actor, model.AuditActionUpdateOrderStatus, OrderEventStatusChanged, before, after)
	return after, nil
}

func (u *AdminOrderUsecase) Cancel(ctx context.Context, actor Actor, orderID int64) (model.Order, error) {
	if err := Authorize(actor, PermManageOrders); err != nil {
		return model.Order{}, err
	}
	if orderID <= 0 {
		return model.Order{}, fieldError("id", "invalid id")
	}

	var before, after model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("order")
		}
		if err != nil {
			return dbError(err)
		}
		after, err = cancelOrderTx(ctx, r, cur, u.clock.Now())
		before = cur
		return err
	})
	if err != nil {
		return model.Order{}, err
	}

	u.fx.metrics.OrderCancelled("admin")
	u.fx.transitioned(ctx, actor, model.AuditActionCancelOrder, OrderEventCancelled, before, after)
	return after, nil
}

// 支払いされないまま期限切れのゲートウェイ注文をキャンセルし、引当在庫を戻す
// 件数を返す。1件ずつ別Txなので途中で失敗しても処理済み分は残る
func (u *AdminOrderUsecase) ExpireUnpaid(ctx context.Context, ttl time.Duration, batch int) (int, error) {
	if ttl <= 0 {
		return 0, fieldError("ttl", "must be positive")
	}
	if batch <= 0 {
		batch = 100
	}
	system := Actor{Role: model.RoleAdmin}
	cutoff := u.clock.Now().Add(-ttl)

	stale, err := u.orders.ListUnpaidGatewayBefore(ctx, cutoff, batch)
	if err != nil {
		return 0, dbError(err)
	}

	expired := 0
	for _, o := range stale {
		var before, after model.Order
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			cur, err := r.Orders().FindByIDForUpdate(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			//ロック取得までに支払われた
			if !awaitingGatewayPayment(cur) {
				return nil
			}
			after, err = cancelOrderTx(ctx, r, cur, u.clock.Now())
			before = cur
			return err
		})
		if err != nil {
			u.log.Warn("order expiry failed", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		if after.ID == 0 {
			continue
		}

		expired++
		u.fx.metrics.OrderCancelled("expired")
		u.fx.transitioned(ctx, system, model.AuditActionExpireOrder, OrderEventExpired, before, after)
	}
	return expired, nil
}
