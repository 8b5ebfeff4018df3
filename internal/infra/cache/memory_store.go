package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront/internal/usecase"
)

// redisが無いローカル/テスト用
type MemoryRegistrationStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

type memoryEntry struct {
	reg       usecase.PendingRegistration
	expiresAt time.Time
}

func NewMemoryRegistrationStore() *MemoryRegistrationStore {
	return &MemoryRegistrationStore{items: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryRegistrationStore) Save(_ context.Context, reg usecase.PendingRegistration, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[strings.ToLower(reg.Email)] = memoryEntry{reg: reg, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryRegistrationStore) Get(_ context.Context, email string) (usecase.PendingRegistration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	e, ok := s.items[key]
	if !ok {
		return usecase.PendingRegistration{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.items, key)
		return usecase.PendingRegistration{}, false, nil
	}
	return e.reg, true, nil
}

func (s *MemoryRegistrationStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.ToLower(email))
	return nil
}
