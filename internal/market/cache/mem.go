package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    []byte
	expireAt time.Time
	storedAt time.Time
}

// MemStore 单进程内存实现：过期只在读时判断，没有后台清理
type MemStore struct {
	mu  sync.RWMutex
	m   map[string]memEntry
	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]memEntry, 256), now: time.Now}
}

// WithClock 测试用：替换时间源
func (s *MemStore) WithClock(now func() time.Time) *MemStore {
	s.now = now
	return s
}

func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur.expireAt.Equal(e.expireAt) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, true, nil
}

func (s *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	now := s.now()
	e := memEntry{value: cp, storedAt: now}
	if ttl > 0 {
		e.expireAt = now.Add(ttl)
	}
	s.mu.Lock()
	s.m[key] = e
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

// TTL 剩余时间，测试和调试用；不存在返回 false
func (s *MemStore) TTL(key string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	if !ok {
		return 0, false
	}
	if e.expireAt.IsZero() {
		return -1, true
	}
	return e.expireAt.Sub(s.now()), true
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
