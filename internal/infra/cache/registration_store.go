package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/usecase"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// OTP確認待ちの仮登録をredisに置く
type RegistrationStore struct {
	client *redis.Client
	prefix string
}

func NewRegistrationStore(client *redis.Client) *RegistrationStore {
	return &RegistrationStore{client: client, prefix: "registration:pending:"}
}

func (s *RegistrationStore) key(email string) string {
	return s.prefix + strings.ToLower(strings.TrimSpace(email))
}

func (s *RegistrationStore) Save(ctx context.Context, reg usecase.PendingRegistration, ttl time.Duration) error {
	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	if err := s.client.Set(ctx, s.key(reg.Email), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RegistrationStore) Get(ctx context.Context, email string) (usecase.PendingRegistration, bool, error) {
	data, err := s.client.Get(ctx, s.key(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return usecase.PendingRegistration{}, false, nil
	}
	if err != nil {
		return usecase.PendingRegistration{}, false, fmt.Errorf("redis get: %w", err)
	}

	var reg usecase.PendingRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return usecase.PendingRegistration{}, false, fmt.Errorf("unmarshal registration: %w", err)
	}
	return reg, true, nil
}

func (s *RegistrationStore) Delete(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
