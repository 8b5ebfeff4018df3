package middleware

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 権限を持つロールだけ通す。細かい判定はusecase側でも行う
func RequirePermission(p usecase.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := usecase.Authorize(ActorFrom(c), p); err != nil {
				ae, _ := usecase.AsAppError(err)
				if ae.Kind == usecase.KindUnauthorized {
					return c.JSON(http.StatusUnauthorized, errorJSON(ae.Kind, "unauthorized"))
				}
				return c.JSON(http.StatusForbidden, errorJSON(ae.Kind, "admin only"))
			}
			return next(c)
		}
	}
}

func AdminRoleGuard() echo.MiddlewareFunc {
	return RequirePermission(usecase.PermManageCatalog)
}
