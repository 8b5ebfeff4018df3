package handler

import (
	"io"
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const maxUploadBytes = 5 << 20

// 管理者用の商品・カテゴリ・在庫API
type AdminProductHandler struct {
	products   *usecase.ProductUsecase
	categories *usecase.CategoryUsecase
}

func NewAdminProductHandler(products *usecase.ProductUsecase, categories *usecase.CategoryUsecase) *AdminProductHandler {
	return &AdminProductHandler{products: products, categories: categories}
}

type productRequest struct {
	CategoryID    int64            `json:"category_id" validate:"required,gt=0"`
	Name          string           `json:"name" validate:"required,max=200"`
	Description   string           `json:"description" validate:"max=5000"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	IsActive      *bool            `json:"is_active"`
	Stock         int64            `json:"stock" validate:"gte=0"`
}

func (r productRequest) input() usecase.ProductInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return usecase.ProductInput{
		CategoryID:    r.CategoryID,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		DiscountPrice: r.DiscountPrice,
		IsActive:      active,
		Stock:         r.Stock,
	}
}

type stockRequest struct {
	Action   string `json:"action" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"max=255"`
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	IsActive    *bool  `json:"is_active"`
}

func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, admin ...echo.MiddlewareFunc) {
	g := e.Group("/admin", admin...)

	g.GET("/products", h.list)
	g.POST("/products", h.create)
	g.GET("/products/:id", h.detail)
	g.PATCH("/products/:id", h.update)
	g.DELETE("/products/:id", h.delete)
	g.POST("/products/:id/stock", h.adjustStock)
	g.GET("/products/:id/stock", h.listAdjustments)
	g.POST("/products/:id/image", h.uploadImage)

	g.GET("/categories", h.listCategories)
	g.POST("/categories", h.createCategory)
	g.PATCH("/categories/:id", h.updateCategory)
	g.DELETE("/categories/:id", h.deleteCategory)
}

func (h *AdminProductHandler) list(c echo.Context) error {
	in, err := parseProductListQuery(c)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.AdminList(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) detail(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.AdminGet(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) create(c echo.Context) error {
	var req productRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.products.Create(c.Request().Context(), actorFrom(c), req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminProductHandler) update(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req productRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.products.Update(c.Request().Context(), actorFrom(c), id, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 注文履歴があれば非公開化のみ
func (h *AdminProductHandler) delete(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.Delete(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) adjustStock(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req stockRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.products.AdjustStock(c.Request().Context(), actorFrom(c), id, usecase.StockAdjustmentInput{
		Action:   req.Action,
		Quantity: req.Quantity,
		Reason:   req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) listAdjustments(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.ListAdjustments(c.Request().Context(), actorFrom(c), id, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// multipart の image フィールド
func (h *AdminProductHandler) uploadImage(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return writeError(c, badRequest("image", "required"))
	}
	if fh.Size > maxUploadBytes {
		return writeError(c, badRequest("image", "must be between 1 byte and 5MB"))
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return writeError(c, err)
	}

	//Content-Typeはクライアント申告を信用せず中身から判定
	out, err := h.products.UploadImage(c.Request().Context(), actorFrom(c), id, usecase.ImageUpload{
		Filename:    fh.Filename,
		ContentType: http.DetectContentType(data),
		Data:        data,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) listCategories(c echo.Context) error {
	out, err := h.categories.AdminList(c.Request().Context(), actorFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (r categoryRequest) input() usecase.CategoryInput {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return usecase.CategoryInput{Name: r.Name, Description: r.Description, IsActive: active}
}

func (h *AdminProductHandler) createCategory(c echo.Context) error {
	var req categoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.categories.Create(c.Request().Context(), actorFrom(c), req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminProductHandler) updateCategory(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req categoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	out, err := h.categories.Update(c.Request().Context(), actorFrom(c), id, req.input())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminProductHandler) deleteCategory(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	if err := h.categories.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
