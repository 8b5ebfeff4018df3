package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID() string
}

// メール送信（SMTPなど）
type EmailSender interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

type PaymentState string

const (
	PaymentStateCompleted PaymentState = "Completed"
	PaymentStateFailed    PaymentState = "Failed"
)

type PaymentVerification struct {
	State PaymentState

	//ゲートウェイ側の取引ID（あれば）
	Reference string
}

// 外部決済の検証。冪等ではない前提で1回だけ呼ぶ
type PaymentGateway interface {
	Verify(ctx context.Context, token string, amount decimal.Decimal, mobile string) (PaymentVerification, error)
}

// 注文イベント（kafkaなど）。失敗しても本処理は止めない
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev OrderEvent) error
}

type OrderEvent struct {
	Type          string              `json:"type"`
	OrderID       int64               `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        int64               `json:"user_id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	ActorUserID   int64               `json:"actor_user_id"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

const (
	OrderEventPlaced        = "order.placed"
	OrderEventPaid          = "order.paid"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventCancelled     = "order.cancelled"
	OrderEventExpired       = "order.expired"
)

// 商品画像の保存先（S3など）。公開URLを返す
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// 仮登録データの一時置き場（redisなど）
type PendingRegistration struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	City         string `json:"city"`
	PostalCode   string `json:"postal_code"`
}

type RegistrationStore interface {
	Save(ctx context.Context, reg PendingRegistration, ttl time.Duration) error

	//無ければ found=false
	Get(ctx context.Context, email string) (PendingRegistration, bool, error)
	Delete(ctx context.Context, email string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain string, hashed string) bool
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(user model.User, now time.Time) (token string, expiresAt time.Time, err error)
}

// 注文まわりのメトリクス
type OrderMetrics interface {
	OrderPlaced(method model.PaymentMethod)
	OrderCancelled(reason string)
	PaymentVerified(result string)
}

type nopMetrics struct{}

func (nopMetrics) OrderPlaced(model.PaymentMethod) {}
func (nopMetrics) OrderCancelled(string)           {}
func (nopMetrics) PaymentVerified(string)          {}

type nopPublisher struct{}

func (nopPublisher) PublishOrderEvent(context.Context, OrderEvent) error { return nil }
