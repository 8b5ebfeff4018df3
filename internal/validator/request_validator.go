package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"storefront/internal/usecase"

	"github.com/go-playground/validator/v10"
)

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9\- ]{6,18}[0-9]$`)

// echo.Validator の実装。リクエストDTOのタグを検証する
type RequestValidator struct {
	v *validator.Validate
}

func New() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	//エラーのフィールド名はjsonタグ名にする
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		}
		return name
	})

	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) != 6 {
			return false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})

	return &RequestValidator{v: v}
}

// 失敗したら usecase の ValidationError（項目ごとのメッセージ付き）
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &usecase.AppError{Kind: usecase.KindValidation, Message: "invalid input", Err: err}
	}
	return &usecase.AppError{Kind: usecase.KindValidation, Message: "invalid input", Fields: FormatValidationError(verrs)}
}

func FormatValidationError(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			out[field] = "required"
		case "email":
			out[field] = "must be a valid email"
		case "min":
			if e.Kind() == reflect.String {
				out[field] = fmt.Sprintf("must be at least %s characters", e.Param())
			} else {
				out[field] = fmt.Sprintf("must be at least %s", e.Param())
			}
		case "max":
			if e.Kind() == reflect.String {
				out[field] = fmt.Sprintf("must be at most %s characters", e.Param())
			} else {
				out[field] = fmt.Sprintf("must be at most %s", e.Param())
			}
		case "gt":
			out[field] = fmt.Sprintf("must be greater than %s", e.Param())
		case "gte":
			out[field] = fmt.Sprintf("must be greater than or equal to %s", e.Param())
		case "oneof":
			out[field] = "must be one of " + e.Param()
		case "phone":
			out[field] = "must be a valid phone number"
		case "otp":
			out[field] = "must be a 6-digit code"
		case "eqfield":
			out[field] = "must match " + strings.ToLower(e.Param())
		default:
			out[field] = "is invalid"
		}
	}
	return out
}
