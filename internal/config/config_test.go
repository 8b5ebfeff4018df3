package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 空文字をセットするとdefaultが効かないので消す
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func setBaseEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t, "PORT", "DATABASE_URL", "OTP_EXPIRY", "PAYMENT_TIMEOUT", "PAYMENT_SECRET_KEY",
		"KAFKA_BROKERS", "ACCESS_TOKEN_TTL", "COOKIE_SECURE", "ORDER_RESERVATION_TTL",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_SSLMODE")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("GO_ENV", "dev")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.OTPExpiry)
	assert.Equal(t, 30*time.Minute, cfg.OrderReservationTTL)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.KafkaBrokerList())
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=storefront sslmode=disable", cfg.Postgres.DSN())
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", ":9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/shop")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("OTP_EXPIRY", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "postgres://u:p@db:5432/shop", cfg.Postgres.DSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokerList())
	assert.Equal(t, 5*time.Minute, cfg.OTPExpiry)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short jwt secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "zero otp expiry", env: map[string]string{"OTP_EXPIRY": "0s"}},
		{name: "negative payment timeout", env: map[string]string{"PAYMENT_TIMEOUT": "-1s"}},
		{name: "prod without payment key", env: map[string]string{"GO_ENV": "production"}},
		{name: "bad duration", env: map[string]string{"ACCESS_TOKEN_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
