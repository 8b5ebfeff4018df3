package validator

import (
	"testing"

	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Phone    string `json:"phone" validate:"required,phone"`
}

type otpReq struct {
	Code string `json:"otp" validate:"required,otp"`
}

func TestRequestValidator_OK(t *testing.T) {
	v := New()
	require.NoError(t, v.Validate(&registerReq{Email: "a@example.com", Password: "password1", Phone: "9800000000"}))
	require.NoError(t, v.Validate(&otpReq{Code: "123456"}))
}

func TestRequestValidator_Fields(t *testing.T) {
	v := New()
	err := v.Validate(&registerReq{Email: "bad", Password: "short", Phone: "x"})
	require.Error(t, err)

	ae, ok := usecase.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, usecase.KindValidation, ae.Kind)
	assert.Equal(t, "must be a valid email", ae.Fields["email"])
	assert.Equal(t, "must be at least 8 characters", ae.Fields["password"])
	assert.Equal(t, "must be a valid phone number", ae.Fields["phone"])
}

func TestRequestValidator_OTP(t *testing.T) {
	v := New()
	for _, code := range []string{"12345", "1234567", "12a456"} {
		err := v.Validate(&otpReq{Code: code})
		require.Error(t, err, code)
		ae, _ := usecase.AsAppError(err)
		assert.Equal(t, "must be a 6-digit code", ae.Fields["otp"])
	}
}
