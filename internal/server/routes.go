package server

import (
	"net/http"

	"storefront/internal/handler"
	appmw "storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	Address      *handler.AddressHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminProduct *handler.AdminProductHandler
	AdminUser    *handler.AdminUserHandler
	AdminReport  *handler.AdminReportHandler
}

func registerRoutes(e *echo.Echo, opt Options, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		if opt.Health != nil {
			if err := opt.Health(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if opt.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(opt.Metrics.Handler()))
	}

	//ログイン必須
	authed := []echo.MiddlewareFunc{
		appmw.AuthJWT(opt.Config.JWTSecret),
		appmw.TokenVersionGuard(opt.Users),
	}
	//管理者のみ
	admin := append(authed[:len(authed):len(authed)], appmw.RequirePermission(usecase.PermManageCatalog))

	h.Auth.RegisterRoutes(e, authRateLimiter(opt.Config.AuthRateLimit), authed...)
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, authed...)
	h.Address.RegisterRoutes(e, authed...)
	h.Order.RegisterRoutes(e, authed...)

	h.AdminOrder.RegisterRoutes(e, admin...)
	h.AdminProduct.RegisterRoutes(e, admin...)
	h.AdminUser.RegisterRoutes(e, admin...)
	h.AdminReport.RegisterRoutes(e, admin...)
}
