package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーの種類。handlerはKindからHTTPステータスを決める
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInvalidTransition   ErrorKind = "invalid_transition"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindInsufficientStock   ErrorKind = "insufficient_stock"
	KindStockExceeded       ErrorKind = "stock_exceeded"
	KindProductUnavailable  ErrorKind = "product_unavailable"
	KindInvalidOTP          ErrorKind = "invalid_otp"
	KindOTPExpired          ErrorKind = "otp_expired"
	KindExternalService     ErrorKind = "external_service_error"
	KindInternal            ErrorKind = "internal"
)

type AppError struct {
	Kind    ErrorKind
	Message string

	//ValidationErrorのときの項目ごとのメッセージ
	Fields map[string]string

	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// 種類が同じならerrors.Isで一致
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation, KindInvalidOTP, KindOTPExpired:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition, KindConcurrencyConflict:
		return http.StatusConflict
	case KindInsufficientStock, KindStockExceeded, KindProductUnavailable:
		return http.StatusUnprocessableEntity
	case KindExternalService:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func AsAppError(err error) (*AppError, bool) {
	var ae *AppError
	ok := errors.As(err, &ae)
	return ae, ok
}

// errors.Is 用
var (
	ErrValidation          = &AppError{Kind: KindValidation}
	ErrUnauthorized        = &AppError{Kind: KindUnauthorized}
	ErrForbidden           = &AppError{Kind: KindForbidden}
	ErrNotFound            = &AppError{Kind: KindNotFound}
	ErrConflict            = &AppError{Kind: KindConflict}
	ErrInvalidTransition   = &AppError{Kind: KindInvalidTransition}
	ErrConcurrencyConflict = &AppError{Kind: KindConcurrencyConflict}
	ErrInsufficientStock   = &AppError{Kind: KindInsufficientStock}
	ErrStockExceeded       = &AppError{Kind: KindStockExceeded}
	ErrProductUnavailable  = &AppError{Kind: KindProductUnavailable}
	ErrInvalidOTP          = &AppError{Kind: KindInvalidOTP}
	ErrOTPExpired          = &AppError{Kind: KindOTPExpired}
	ErrExternalService     = &AppError{Kind: KindExternalService}
	ErrInternal            = &AppError{Kind: KindInternal}
)

func validationError(message string, fields map[string]string) error {
	return &AppError{Kind: KindValidation, Message: message, Fields: fields}
}

func fieldError(field, message string) error {
	return validationError("invalid input", map[string]string{field: message})
}

func notFound(what string) error {
	return NewAppError(KindNotFound, what+" not found")
}

func dbError(err error) error {
	return &AppError{Kind: KindInternal, Message: "db error", Err: err}
}

func externalError(message string, err error) error {
	return &AppError{Kind: KindExternalService, Message: message, Err: err}
}
