package metrics

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/domain/model"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 専用レジストリ（デフォルトとぶつけない）
type Registry struct {
	reg *prometheus.Registry

	ordersPlaced    *prometheus.CounterVec
	ordersCancelled *prometheus.CounterVec
	paymentVerified *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.ordersPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_placed_total",
		Help:      "Orders placed by payment method.",
	}, []string{"method"})
	r.ordersCancelled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "orders_cancelled_total",
		Help:      "Orders cancelled by reason.",
	}, []string{"reason"})
	r.paymentVerified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payment_verifications_total",
		Help:      "Gateway payment verifications by result.",
	}, []string{"result"})
	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	r.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	r.reg.MustRegister(
		r.ordersPlaced,
		r.ordersCancelled,
		r.paymentVerified,
		r.httpRequests,
		r.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) OrderPlaced(method model.PaymentMethod) {
	r.ordersPlaced.WithLabelValues(string(method)).Inc()
}

func (r *Registry) OrderCancelled(reason string) {
	r.ordersCancelled.WithLabelValues(reason).Inc()
}

func (r *Registry) PaymentVerified(result string) {
	r.paymentVerified.WithLabelValues(result).Inc()
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ルート単位のリクエスト数とレイテンシ
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)
			r.httpRequests.WithLabelValues(c.Request().Method, route, status).Inc()
			r.httpDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
