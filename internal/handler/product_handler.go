package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /products, /categories の公開API
type ProductHandler struct {
	products   *usecase.ProductUsecase
	categories *usecase.CategoryUsecase
}

// DI
func NewProductHandler(products *usecase.ProductUsecase, categories *usecase.CategoryUsecase) *ProductHandler {
	return &ProductHandler{products: products, categories: categories}
}

// 公開商品のルートを登録
func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/products", h.list)
	e.GET("/products/:id", h.detail)
	e.GET("/categories", h.listCategories)
}

// ?page=&limit=&q=&category_id=&sort=
func parseProductListQuery(c echo.Context) (usecase.ListProductsInput, error) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return usecase.ListProductsInput{}, err
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return usecase.ListProductsInput{}, err
	}
	categoryID, err := queryInt64Ptr(c, "category_id")
	if err != nil {
		return usecase.ListProductsInput{}, err
	}
	return usecase.ListProductsInput{
		Page:       page,
		Limit:      limit,
		Q:          c.QueryParam("q"),
		CategoryID: categoryID,
		Sort:       c.QueryParam("sort"),
	}, nil
}

func (h *ProductHandler) list(c echo.Context) error {
	in, err := parseProductListQuery(c)
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.ListPublic(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	out, err := h.products.GetPublic(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) listCategories(c echo.Context) error {
	out, err := h.categories.ListPublic(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
