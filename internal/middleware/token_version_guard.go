package middleware

import (
	"net/http"

	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// JWTのtvとDBのtoken_versionの一致と、アカウントが有効かを確認。
func TokenVersionGuard(userRepo repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get(CtxUserIDKey).(int64)
			if !ok || userID <= 0 {
				return unauthorized(c)
			}

			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok || tv < 0 {
				return unauthorized(c)
			}

			user, err := userRepo.FindByID(c.Request().Context(), userID)
			if err != nil || user == nil {
				return unauthorized(c)
			}

			//token_version が一致しなければ強制ログアウト扱い（401）
			if user.TokenVersion != tv {
				return unauthorized(c)
			}

			//無効化されたアカウントは403
			if !user.IsActive {
				return c.JSON(http.StatusForbidden, errorJSON(usecase.KindForbidden, "account is disabled"))
			}

			//ロールはDBの最新を使う
			c.Set(CtxUserRoleKey, user.Role)

			return next(c)
		}
	}
}
