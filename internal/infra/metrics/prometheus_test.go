package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := New()
	r.OrderPlaced(model.PaymentMethodCashOnDelivery)
	r.OrderPlaced(model.PaymentMethodCashOnDelivery)
	r.OrderCancelled("customer")
	r.PaymentVerified("completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ordersPlaced.WithLabelValues("CASH_ON_DELIVERY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ordersCancelled.WithLabelValues("customer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.paymentVerified.WithLabelValues("completed")))
}

func TestRegistry_HandlerAndMiddleware(t *testing.T) {
	r := New()
	e := echo.New()
	e.Use(r.Middleware())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	e.GET("/metrics", echo.WrapHandler(r.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}
