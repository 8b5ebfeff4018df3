package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Kind   usecase.ErrorKind `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// AppErrorはKindでステータスを決める。それ以外は500
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := usecase.AsAppError(err); ok {
		status := ae.Status()
		msg := ae.Message
		if status == http.StatusInternalServerError {
			c.Logger().Error(err)
			msg = "internal error"
		}
		return c.JSON(status, ErrorResponse{Error: msg, Kind: ae.Kind, Fields: ae.Fields})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}

	//500
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: usecase.KindInternal})
}

func badRequest(field, msg string) error {
	return &usecase.AppError{Kind: usecase.KindValidation, Message: "invalid input", Fields: map[string]string{field: msg}}
}

// bindしてvalidateまで
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return &usecase.AppError{Kind: usecase.KindValidation, Message: "invalid body"}
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

func actorFrom(c echo.Context) usecase.Actor {
	return middleware.ActorFrom(c)
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(name, "invalid id")
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(name, "must be a number")
	}
	return v, nil
}

func queryInt64Ptr(c echo.Context, name string) (*int64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, badRequest(name, "invalid id")
	}
	return &v, nil
}

// YYYY-MM-DD か RFC3339
func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, badRequest(name, "must be YYYY-MM-DD")
	}
	return &t, nil
}
