package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ダッシュボード・売上レポート・監査ログ
type AdminReportHandler struct {
	uc *usecase.ReportUsecase
}

func NewAdminReportHandler(uc *usecase.ReportUsecase) *AdminReportHandler {
	return &AdminReportHandler{uc: uc}
}

func (h *AdminReportHandler) RegisterRoutes(e *echo.Echo, admin ...echo.MiddlewareFunc) {
	g := e.Group("/admin", admin...)

	g.GET("/dashboard", h.dashboard)
	g.GET("/reports/sales", h.sales)
	g.GET("/audit-logs", h.auditLogs)
}

func (h *AdminReportHandler) dashboard(c echo.Context) error {
	out, err := h.uc.Dashboard(c.Request().Context(), actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminReportHandler) sales(c echo.Context) error {
	from, err := queryTime(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.Sales(c.Request().Context(), actorFrom(c), usecase.SalesReportInput{From: from, To: to})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// ?page=&actor_user_id=&action=&resource_type=&resource_id=&from=&to=
func (h *AdminReportHandler) auditLogs(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return writeError(c, err)
	}
	actorID, err := queryInt64Ptr(c, "actor_user_id")
	if err != nil {
		return writeError(c, err)
	}
	resourceID, err := queryInt64Ptr(c, "resource_id")
	if err != nil {
		return writeError(c, err)
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.uc.AuditLogs(c.Request().Context(), actorFrom(c), usecase.AuditLogListInput{
		Page:         page,
		ActorUserID:  actorID,
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   resourceID,
		From:         from,
		To:           to,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
