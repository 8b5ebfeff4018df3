package usecase

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// 注文系usecaseの依存。nilのものはNopで埋める
type OrderDeps struct {
	Tx        repo.TransactionManager
	Orders    repo.OrderRepository
	Items     repo.OrderItemRepository
	Addresses repo.AddressRepository
	Users     repo.UserRepository
	AuditLogs repo.AuditLogRepository

	Gateway PaymentGateway
	Events  OrderEventPublisher
	Mailer  EmailSender
	Metrics OrderMetrics

	Clock Clock
	IDs   IDGenerator
	Log   *zap.Logger
}

func (d OrderDeps) withDefaults() OrderDeps {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.IDs == nil {
		d.IDs = UUIDGenerator()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	return d
}

// 状態が変わった後の副作用（監査・イベント・メトリクス）。どれも失敗は握りつぶす
type orderEffects struct {
	events  OrderEventPublisher
	metrics OrderMetrics
	audit   auditRecorder
	clock   Clock
	log     *zap.Logger
}

func newOrderEffects(d OrderDeps) orderEffects {
	return orderEffects{
		events:  d.Events,
		metrics: d.Metrics,
		audit:   newAuditRecorder(d.AuditLogs, d.Log, d.Clock),
		clock:   d.Clock,
		log:     d.Log,
	}
}

func (fx orderEffects) publish(ctx context.Context, typ string, o model.Order, actor Actor) {
	ev := OrderEvent{
		Type:          typ,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		ActorUserID:   actor.UserID,
		OccurredAt:    fx.clock.Now(),
	}
	if err := fx.events.PublishOrderEvent(ctx, ev); err != nil {
		fx.log.Warn("order event publish failed",
			zap.String("type", typ),
			zap.Int64("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func (fx orderEffects) transitioned(ctx context.Context, actor Actor, action model.AuditAction, evType string, before, after model.Order) {
	fx.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       action,
		resourceType: model.AuditResourceOrder,
		resourceID:   after.ID,
		description:  fmt.Sprintf("%s: %s/%s -> %s/%s", after.OrderNumber, before.Status, before.PaymentStatus, after.Status, after.PaymentStatus),
		before:       orderState(before),
		after:        orderState(after),
	})
	fx.publish(ctx, evType, after, actor)
}

func orderState(o model.Order) map[string]string {
	return map[string]string{
		"status":         string(o.Status),
		"payment_status": string(o.PaymentStatus),
	}
}

type OrderUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	addresses repo.AddressRepository
	users     repo.UserRepository
	gateway   PaymentGateway
	mailer    EmailSender

	fx    orderEffects
	clock Clock
	ids   IDGenerator
	log   *zap.Logger
}

func NewOrderUsecase(d OrderDeps) *OrderUsecase {
	d = d.withDefaults()
	return &OrderUsecase{
		tx:        d.Tx,
		orders:    d.Orders,
		items:     d.Items,
		addresses: d.Addresses,
		users:     d.Users,
		gateway:   d.Gateway,
		mailer:    d.Mailer,
		fx:        newOrderEffects(d),
		clock:     d.Clock,
		ids:       d.IDs,
		log:       d.Log,
	}
}

type ShippingInput struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	Phone      string
}

// AddressIDがあれば保存済み住所、無ければShippingを使う
type PlaceOrderInput struct {
	PaymentMethod string
	AddressID     int64
	Shipping      ShippingInput
	Notes         string
}

type OrderDetail struct {
	model.Order
	Items []model.OrderItem `json:"items"`
}

func (u *OrderUsecase) PlaceOrder(ctx context.Context, actor Actor, in PlaceOrderInput) (OrderDetail, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return OrderDetail{}, err
	}
	method, ok := model.ParsePaymentMethod(in.PaymentMethod)
	if !ok {
		return OrderDetail{}, fieldError("payment_method", "must be CASH_ON_DELIVERY or GATEWAY")
	}
	ship, err := u.resolveShipping(ctx, actor.UserID, in)
	if err != nil {
		return OrderDetail{}, err
	}

	now := u.clock.Now()
	var out OrderDetail

	//在庫の確認と減算、明細作成、カートのクリアを1トランザクションで
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.CartItems().ListByUserID(ctx, actor.UserID)
		if err != nil {
			return dbError(err)
		}
		if len(cart) == 0 {
			return validationError("cart is empty", nil)
		}

		ids := make([]int64, 0, len(cart))
		for _, ci := range cart {
			ids = append(ids, ci.ProductID)
		}
		products, err := r.Products().ListByIDs(ctx, ids)
		if err != nil {
			return dbError(err)
		}
		byID := make(map[int64]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		items := make([]model.OrderItem, 0, len(cart))
		for _, ci := range cart {
			p, found := byID[ci.ProductID]
			if !found || !p.IsActive {
				return &AppError{
					Kind:    KindProductUnavailable,
					Message: fmt.Sprintf("product %d is no longer available", ci.ProductID),
					Fields:  map[string]string{"product_id": fmt.Sprint(ci.ProductID)},
				}
			}

			//最初に足りなかった明細で全体を中止（ロールバック）
			decreased, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, ci.Quantity)
			if err != nil {
				return dbError(err)
			}
			if !decreased {
				return &AppError{
					Kind:    KindStockExceeded,
					Message: fmt.Sprintf("insufficient stock for %s", p.Name),
					Fields:  map[string]string{"product_id": fmt.Sprint(p.ID), "product": p.Name},
				}
			}

			items = append(items, model.NewOrderItem(p, ci.Quantity, now))
		}

		o := model.Order{
			OrderNumber:        newOrderNumber(now, u.ids),
			UserID:             actor.UserID,
			Status:             model.OrderStatusPending,
			PaymentStatus:      model.PaymentStatusPending,
			PaymentMethod:      method,
			TotalAmount:        model.SumOrderItems(items),
			ShippingName:       ship.Name,
			ShippingAddress:    ship.Address,
			ShippingCity:       ship.City,
			ShippingPostalCode: ship.PostalCode,
			ShippingPhone:      ship.Phone,
			Notes:              strings.TrimSpace(in.Notes),
			OrderedAt:          now,
			UpdatedAt:          now,
		}

		//代引きは受注時点で支払い確定扱い
		if method == model.PaymentMethodCashOnDelivery {
			o.Status = model.OrderStatusProcessing
			o.PaymentStatus = model.PaymentStatusCompleted
			paidAt := now
			o.PaidAt = &paidAt
		}

		id, err := r.Orders().Create(ctx, o)
		if err != nil {
			return dbError(err)
		}
		o.ID = id

		if err := r.OrderItems().CreateBulk(ctx, id, items); err != nil {
			return dbError(err)
		}
		if err := r.CartItems().ClearByUserID(ctx, actor.UserID); err != nil {
			return dbError(err)
		}

		for i := range items {
			items[i].OrderID = id
		}
		out = OrderDetail{Order: o, Items: items}
		return nil
	})
	if err != nil {
		return OrderDetail{}, err
	}

	u.fx.metrics.OrderPlaced(method)
	u.fx.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionPlaceOrder,
		resourceType: model.AuditResourceOrder,
		resourceID:   out.ID,
		description:  fmt.Sprintf("placed %s (%s, %d items)", out.OrderNumber, method, len(out.Items)),
		after:        orderState(out.Order),
	})
	u.fx.publish(ctx, OrderEventPlaced, out.Order, actor)
	u.sendConfirmation(ctx, out)

	return out, nil
}

func (u *OrderUsecase) resolveShipping(ctx context.Context, userID int64, in PlaceOrderInput) (ShippingInput, error) {
	if in.AddressID > 0 {
		a, err := u.addresses.FindByID(ctx, in.AddressID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && a.UserID != userID) {
			return ShippingInput{}, notFound("address")
		}
		if err != nil {
			return ShippingInput{}, dbError(err)
		}
		return ShippingInput{Name: a.Name, Address: a.Line1, City: a.City, PostalCode: a.PostalCode, Phone: a.Phone}, nil
	}

	s := ShippingInput{
		Name:       strings.TrimSpace(in.Shipping.Name),
		Address:    strings.TrimSpace(in.Shipping.Address),
		City:       strings.TrimSpace(in.Shipping.City),
		PostalCode: strings.TrimSpace(in.Shipping.PostalCode),
		Phone:      strings.TrimSpace(in.Shipping.Phone),
	}
	fields := map[string]string{}
	if s.Name == "" {
		fields["shipping_name"] = "required"
	}
	if s.Address == "" {
		fields["shipping_address"] = "required"
	}
	if s.City == "" {
		fields["shipping_city"] = "required"
	}
	if s.Phone == "" {
		fields["shipping_phone"] = "required"
	}
	if len(fields) > 0 {
		return ShippingInput{}, validationError("invalid shipping address", fields)
	}
	return s, nil
}

// 注文確認メール（失敗しても注文は有効）
func (u *OrderUsecase) sendConfirmation(ctx context.Context, o OrderDetail) {
	if u.mailer == nil || u.users == nil {
		return
	}
	user, err := u.users.FindByID(ctx, o.UserID)
	if err != nil {
		u.log.Warn("order confirmation skipped", zap.Int64("order_id", o.ID), zap.Error(err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Thank you for your order, %s</h2>", html.EscapeString(user.FullName()))
	fmt.Fprintf(&b, "<p>Order number: <strong>%s</strong></p><ul>", html.EscapeString(o.OrderNumber))
	for _, it := range o.Items {
		fmt.Fprintf(&b, "<li>%s x %d = %s</li>", html.EscapeString(it.ProductName), it.Quantity, it.TotalPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul><p>Total: %s</p>", o.TotalAmount.StringFixed(2))

	if err := u.mailer.Send(ctx, user.Email, "Order Confirmation - "+o.OrderNumber, b.String()); err != nil {
		u.log.Warn("order confirmation email failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}

type PayInput struct {
	Token  string
	Mobile string
}

// ゲートウェイ決済の確認。外部呼び出しはTxの外で1回だけ、成功後に短いTxで確定する
func (u *OrderUsecase) Pay(ctx context.Context, actor Actor, orderID int64, in PayInput) (model.Order, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return model.Order{}, err
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return model.Order{}, fieldError("token", "required")
	}

	o, err := u.findOwned(ctx, actor, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !awaitingGatewayPayment(o) {
		return model.Order{}, NewAppError(KindInvalidTransition, "order is not awaiting payment")
	}

	res, err := u.gateway.Verify(ctx, token, o.TotalAmount, strings.TrimSpace(in.Mobile))
	if err != nil {
		u.fx.metrics.PaymentVerified("error")
		u.log.Warn("payment verification error", zap.Int64("order_id", o.ID), zap.Error(err))
		return model.Order{}, externalError("payment verification failed", err)
	}
	if res.State != PaymentStateCompleted {
		u.fx.metrics.PaymentVerified("failed")
		return model.Order{}, externalError("payment was not completed", nil)
	}

	ref := res.Reference
	if ref == "" {
		ref = token
	}

	var before, after model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Orders().FindByIDForUpdate(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		//検証中に別リクエストが確定・キャンセルした
		if !awaitingGatewayPayment(cur) {
			return NewAppError(KindConcurrencyConflict, "order changed during payment verification")
		}

		now := u.clock.Now()
		t := repo.OrderTransition{
			OrderID:          cur.ID,
			FromStatus:       cur.Status,
			FromPayment:      cur.PaymentStatus,
			ToStatus:         model.OrderStatusProcessing,
			ToPayment:        model.PaymentStatusCompleted,
			PaymentReference: &ref,
			PaidAt:           &now,
			UpdatedAt:        now,
		}
		if err := r.Orders().Transition(ctx, t); err != nil {
			if errors.Is(err, repo.ErrStaleState) {
				return NewAppError(KindConcurrencyConflict, "order changed during payment verification")
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

	u.fx.metrics.PaymentVerified("completed")
	u.fx.transitioned(ctx, actor, model.AuditActionConfirmPayment, OrderEventPaid, before, after)
	return after, nil
}

func awaitingGatewayPayment(o model.Order) bool {
	return o.PaymentMethod == model.PaymentMethodGateway &&
		o.Status == model.OrderStatusPending &&
		o.PaymentStatus == model.PaymentStatusPending
}

// 本人の注文のみ。管理者は全件
func (u *OrderUsecase) findOwned(ctx context.Context, actor Actor, orderID int64) (model.Order, error) {
	if orderID <= 0 {
		return model.Order{}, fieldError("id", "invalid id")
	}
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, notFound("order")
	}
	if err != nil {
		return model.Order{}, dbError(err)
	}
	if o.UserID != actor.UserID && !actor.IsAdmin() {
		return model.Order{}, notFound("order")
	}
	return o, nil
}

func (u *OrderUsecase) Cancel(ctx context.Context, actor Actor, orderID int64) (model.Order, error) {
	if err := Authorize(actor, PermShop); err != nil {
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
		if cur.UserID != actor.UserID && !actor.IsAdmin() {
			return notFound("order")
		}

		after, err = cancelOrderTx(ctx, r, cur, u.clock.Now())
		before = cur
		return err
	})
	if err != nil {
		return model.Order{}, err
	}

	u.fx.metrics.OrderCancelled("customer")
	u.fx.transitioned(ctx, actor, model.AuditActionCancelOrder, OrderEventCancelled, before, after)
	return after, nil
}

// キャンセル本体。ロック済みの注文を受け取り、在庫を戻して状態を変える
func cancelOrderTx(ctx context.Context, r repo.TxRepos, cur model.Order, now time.Time) (model.Order, error) {
	if !cur.Status.Cancellable() {
		return model.Order{}, NewAppError(KindInvalidTransition,
			fmt.Sprintf("order in status %s cannot be cancelled", cur.Status))
	}

	items, err := r.OrderItems().ListByOrderID(ctx, cur.ID)
	if err != nil {
		return model.Order{}, dbError(err)
	}
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			return model.Order{}, dbError(err)
		}
	}

	t := repo.OrderTransition{
		OrderID:     cur.ID,
		FromStatus:  cur.Status,
		FromPayment: cur.PaymentStatus,
		ToStatus:    model.OrderStatusCancelled,
		ToPayment:   cur.PaymentStatus.AfterCancel(),
		CancelledAt: &now,
		UpdatedAt:   now,
	}
	if err := r.Orders().Transition(ctx, t); err != nil {
		if errors.Is(err, repo.ErrStaleState) {
			return model.Order{}, NewAppError(KindConcurrencyConflict, "order was modified concurrently")
		}
		return model.Order{}, dbError(err)
	}
	return applyTransition(cur, t), nil
}

// DBに書いた遷移をメモリ上の注文にも反映する
func applyTransition(o model.Order, t repo.OrderTransition) model.Order {
	o.Status = t.ToStatus
	o.PaymentStatus = t.ToPayment
	if t.PaymentReference != nil {
		o.PaymentReference = *t.PaymentReference
	}
	if t.PaidAt != nil {
		o.PaidAt = t.PaidAt
	}
	if t.ShippedAt != nil {
		o.ShippedAt = t.ShippedAt
	}
	if t.DeliveredAt != nil {
		o.DeliveredAt = t.DeliveredAt
	}
	if t.CancelledAt != nil {
		o.CancelledAt = t.CancelledAt
	}
	o.UpdatedAt = t.UpdatedAt
	return o
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, actor Actor, page, limit int) (Page[OrderDetail], error) {
	if err := Authorize(actor, PermShop); err != nil {
		return Page[OrderDetail]{}, err
	}
	page, limit = normalizePage(page, limit, 20, 100)

	orders, total, err := u.orders.ListByUserID(ctx, actor.UserID, page, limit)
	if err != nil {
		return Page[OrderDetail]{}, dbError(err)
	}
	details, err := attachItems(ctx, u.items, orders)
	if err != nil {
		return Page[OrderDetail]{}, err
	}
	return Page[OrderDetail]{Items: details, Total: total, Page: page, Limit: limit}, nil
}

func (u *OrderUsecase) GetMyOrder(ctx context.Context, actor Actor, orderID int64) (OrderDetail, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return OrderDetail{}, err
	}
	o, err := u.findOwned(ctx, actor, orderID)
	if err != nil {
		return OrderDetail{}, err
	}
	items, err := u.items.ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderDetail{}, dbError(err)
	}
	return OrderDetail{Order: o, Items: items}, nil
}

// 明細をまとめて取得して付ける（N+1にしない）
func attachItems(ctx context.Context, items repo.OrderItemRepository, orders []model.Order) ([]OrderDetail, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	byOrder, err := items.ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, dbError(err)
	}

	out := make([]OrderDetail, 0, len(orders))
	for _, o := range orders {
		its := byOrder[o.ID]
		if its == nil {
			its = []model.OrderItem{}
		}
		out = append(out, OrderDetail{Order: o, Items: its})
	}
	return out, nil
}
