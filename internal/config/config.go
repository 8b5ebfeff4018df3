package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Configはアプリ全体の設定
type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	GoEnv     string `envconfig:"GO_ENV" default:"dev"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	FEURL     string `envconfig:"FE_URL" default:"http://localhost:3000"`

	Postgres Postgres `ignored:"true"`

	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"336h"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"true"`

	//OTPの有効期限と、仮登録データの保持期間
	OTPExpiry       time.Duration `envconfig:"OTP_EXPIRY" default:"10m"`
	RegistrationTTL time.Duration `envconfig:"REGISTRATION_TTL" default:"30m"`

	PaymentBaseURL    string        `envconfig:"PAYMENT_BASE_URL" default:"https://khalti.com/api/v2/"`
	PaymentSecretKey  string        `envconfig:"PAYMENT_SECRET_KEY"`
	PaymentTimeout    time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"10s"`
	PaymentProductURL string        `envconfig:"PAYMENT_PRODUCT_URL" default:"http://localhost:3000/orders"`

	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"1025"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"no-reply@storefront.local"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	//空ならイベント送信しない
	KafkaBrokers    string `envconfig:"KAFKA_BROKERS"`
	KafkaOrderTopic string `envconfig:"KAFKA_ORDER_TOPIC" default:"order-events"`

	//空なら画像アップロードは無効
	S3Endpoint      string `envconfig:"S3_ENDPOINT"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle  bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`

	//ゲートウェイ決済の在庫引当を保持する時間
	OrderReservationTTL time.Duration `envconfig:"ORDER_RESERVATION_TTL" default:"30m"`

	//認証系エンドポイントのIPごとの上限（毎秒）
	AuthRateLimit float64 `envconfig:"AUTH_RATE_LIMIT" default:"5"`
}

type Postgres struct {
	URL          string `envconfig:"DATABASE_URL"`
	Host         string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port         int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User         string `envconfig:"POSTGRES_USER" default:"postgres"`
	Password     string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	DB           string `envconfig:"POSTGRES_DB" default:"storefront"`
	SSLMode      string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	LogLevel     string `envconfig:"DB_LOG_LEVEL" default:"warn"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
}

// DATABASE_URL があれば最優先で使う
func (p Postgres) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode,
	)
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.GoEnv, "prod") || strings.EqualFold(c.GoEnv, "production")
}

func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) KafkaBrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Loadは.env（あれば）と環境変数から読む
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Postgres); err != nil {
		return Config{}, fmt.Errorf("load postgres config: %w", err)
	}

	//必須チェック
	if len(cfg.JWTSecret) < 16 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if cfg.OTPExpiry <= 0 {
		return Config{}, fmt.Errorf("OTP_EXPIRY must be positive")
	}
	if cfg.PaymentTimeout <= 0 {
		return Config{}, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if cfg.IsProduction() && cfg.PaymentSecretKey == "" {
		return Config{}, fmt.Errorf("PAYMENT_SECRET_KEY is required in production")
	}

	return cfg, nil
}
