package cache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/segmentio/encoding/json"
)

// Store 外部共享的 kv 缓存；只有 orchestrator 读写行情条目
type Store interface {
	// Get 返回 (value, found, err)，过期/不存在都是 found=false
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

var ErrCorrupt = errors.New("cache entry corrupt")

// GetJSON 读取并解码；解码失败视为脏数据，删掉后按未命中处理
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var zero T
	b, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		// 缓存脏了就删掉，避免持续命中错误
		_ = s.Del(ctx, key)
		return zero, false, errors.Join(ErrCorrupt, err)
	}
	return out, true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, b, ttl)
}

// WithJitter 在 ttl 上加 [0, jitter) 的随机量，防止同一批 key 同时过期
func WithJitter(ttl time.Duration, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
