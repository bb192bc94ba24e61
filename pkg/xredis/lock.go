package xredis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"quotehub.com/pkg/logger"
)

// 续期只允许锁的持有者操作
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaderLock 多副本部署时保证同一时刻只有一个节点跑定时刷新
type LeaderLock struct {
	rdb redis.UniversalClient
	key string
	ttl time.Duration
	id  string
}

func NewLeaderLock(rdb redis.UniversalClient, key string, ttl time.Duration) *LeaderLock {
	host, _ := os.Hostname()
	return &LeaderLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
		id:  fmt.Sprintf("%s-%s", host, uuid.NewString()),
	}
}

func (l *LeaderLock) ID() string { return l.id }

// IsLeader 抢锁或续期，redis 出错时返回 false（宁可少刷一次也不要多个节点同时刷）
func (l *LeaderLock) IsLeader(ctx context.Context) bool {
	ok, err := l.rdb.SetNX(ctx, l.key, l.id, l.ttl).Result()
	if err != nil {
		logger.Warn(ctx, "leader lock setnx failed", zap.String("key", l.key), zap.Error(err))
		return false
	}
	if ok {
		return true
	}
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.id, l.ttl.Milliseconds()).Int64()
	if err != nil {
		logger.Warn(ctx, "leader lock renew failed", zap.String("key", l.key), zap.Error(err))
		return false
	}
	return n == 1
}

func (l *LeaderLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}
