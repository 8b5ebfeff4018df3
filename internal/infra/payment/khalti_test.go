package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(Config{BaseURL: url, SecretKey: "test_secret", Timeout: timeout, ProductURL: "http://shop/orders"}, zap.NewNop())
}

func TestClient_Verify_Completed(t *testing.T) {
	var got verifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/verify/", r.URL.Path)
		assert.Equal(t, "Key test_secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"idx":"tx_1","token":"tok","state":"Completed"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	res, err := c.Verify(context.Background(), "tok", decimal.RequireFromString("120.50"), "9800000000")
	require.NoError(t, err)

	assert.Equal(t, usecase.PaymentStateCompleted, res.State)
	assert.Equal(t, "tx_1", res.Reference)
	assert.Equal(t, int64(12050), got.Amount)
	assert.Equal(t, "tok", got.Token)
}

func TestClient_Verify_NotCompleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"idx":"tx_2","state":"Pending"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, time.Second).Verify(context.Background(), "tok", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	assert.Equal(t, usecase.PaymentStateFailed, res.State)
}

func TestClient_Verify_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"invalid token"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, time.Second).Verify(context.Background(), "bad", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	assert.Equal(t, usecase.PaymentStateFailed, res.State)
}

func TestClient_Verify_SuccessesKeepBreakerClosed(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"idx":"tx_3","token":"tok","state":"Completed"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	for i := 0; i < 8; i++ {
		res, err := c.Verify(context.Background(), "tok", decimal.NewFromInt(1), "")
		require.NoError(t, err)
		assert.Equal(t, usecase.PaymentStateCompleted, res.State)
	}
	assert.Equal(t, int32(8), atomic.LoadInt32(&calls))
}

func TestClient_Verify_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"state":"Completed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 50*time.Millisecond).Verify(context.Background(), "tok", decimal.NewFromInt(1), "")
	require.Error(t, err)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.Verify(context.Background(), "tok", decimal.NewFromInt(1), "")
		require.Error(t, err)
	}

	_, err := c.Verify(context.Background(), "tok", decimal.NewFromInt(1), "")
	require.Error(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1000), MinorUnits(decimal.NewFromInt(10)))
	assert.Equal(t, int64(1999), MinorUnits(decimal.RequireFromString("19.99")))
}
