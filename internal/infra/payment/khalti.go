package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ゲートウェイが4xxで拒否した（ブレーカーの失敗には数えない）
var ErrRejected = errors.New("payment rejected by gateway")

type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	ProductURL string
}

// Khalti互換の検証API
// POST {base}/payment/verify/  Authorization: Key <secret>
type Client struct {
	cfg  Config
	http *http.Client
	cb   *gobreaker.CircuitBreaker
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "PaymentGateway",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		cb:   gobreaker.NewCircuitBreaker(settings),
		log:  log,
	}
}

type verifyRequest struct {
	Token           string `json:"token"`
	Amount          int64  `json:"amount"`
	Mobile          string `json:"mobile,omitempty"`
	ProductIdentity string `json:"product_identity"`
	ProductName     string `json:"product_name"`
	ProductURL      string `json:"product_url"`
}

type verifyResponse struct {
	Idx    string `json:"idx"`
	Token  string `json:"token"`
	State  string `json:"state"`
	Detail string `json:"detail"`
}

// 最小単位（×100）
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (c *Client) Verify(ctx context.Context, token string, amount decimal.Decimal, mobile string) (usecase.PaymentVerification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := executeWithBreaker(c.cb, func() (verifyResponse, error) {
		return c.post(ctx, verifyRequest{
			Token:           token,
			Amount:          MinorUnits(amount),
			Mobile:          mobile,
			ProductIdentity: token,
			ProductName:     "storefront order",
			ProductURL:      c.cfg.ProductURL,
		})
	})
	if errors.Is(err, ErrRejected) {
		return usecase.PaymentVerification{State: usecase.PaymentStateFailed}, nil
	}
	if err != nil {
		return usecase.PaymentVerification{}, err
	}

	// stateは文字列 "Completed" のみ成功
	if res.State != string(usecase.PaymentStateCompleted) {
		c.log.Info("payment not completed", zap.String("state", res.State))
		return usecase.PaymentVerification{State: usecase.PaymentStateFailed, Reference: res.Idx}, nil
	}
	return usecase.PaymentVerification{State: usecase.PaymentStateCompleted, Reference: res.Idx}, nil
}

func (c *Client) post(ctx context.Context, body verifyRequest) (verifyResponse, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return verifyResponse{}, err
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/payment/verify/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return verifyResponse{}, err
	}
	req.Header.Set("Authorization", "Key "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return verifyResponse{}, fmt.Errorf("payment verify request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return verifyResponse{}, fmt.Errorf("payment verify read: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return verifyResponse{}, fmt.Errorf("payment gateway status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		c.log.Info("payment rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return verifyResponse{}, ErrRejected
	}

	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return verifyResponse{}, fmt.Errorf("payment verify decode: %w", err)
	}
	return out, nil
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
