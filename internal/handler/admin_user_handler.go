package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminUserHandler struct {
	users *usecase.AdminUserUsecase
	auth  *usecase.AuthUsecase
}

func NewAdminUserHandler(users *usecase.AdminUserUsecase, auth *usecase.AuthUsecase) *AdminUserHandler {
	return &AdminUserHandler{users: users, auth: auth}
}

func (h *AdminUserHandler) RegisterRoutes(e *echo.Echo, admin ...echo.MiddlewareFunc) {
	g := e.Group("/admin/users", admin...)

	g.GET("", h.list)
	g.POST("/:id/toggle-active", h.toggleActive)
	g.POST("/:id/force-logout", h.forceLogout)
	g.DELETE("/:id", h.delete)
}

func (h *AdminUserHandler) list(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 20)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.users.List(c.Request().Context(), actorFrom(c), usecase.AdminUserListInput{
		Page:  page,
		Limit: limit,
		Q:     c.QueryParam("q"),
		Role:  c.QueryParam("role"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminUserHandler) toggleActive(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.users.ToggleActive(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// token_versionを上げて既存のJWTを無効化
func (h *AdminUserHandler) forceLogout(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.auth.ForceLogout(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminUserHandler) delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if err := h.users.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
