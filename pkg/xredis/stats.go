package xredis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"quotehub.com/pkg/metrics"
)

// ObserveStats 采集 Redis 连接池指标，ctx 结束时退出
func ObserveStats(ctx context.Context, rdb *redis.Client, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st := rdb.PoolStats()
				metrics.RedisPoolOpen.Set(float64(st.TotalConns))
				metrics.RedisPoolIdle.Set(float64(st.IdleConns))
				metrics.RedisPoolHits.Set(float64(st.Hits))
				metrics.RedisPoolMisses.Set(float64(st.Misses))
				metrics.RedisPoolTimeouts.Set(float64(st.Timeouts))
			}
		}
	}()
}

// metricsHook 记录每条命令的耗时和错误
type metricsHook struct{}

func NewMetricsHook() redis.Hook { return metricsHook{} }

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisErrors.WithLabelValues("dial", "error").Inc()
		}
		return conn, err
	}
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observe(cmd.Name(), start, err)
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observe("pipeline", start, err)
		return err
	}
}

func observe(cmd string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		// key 不存在不算错误
		status = "nil"
	default:
		status = "error"
		metrics.RedisErrors.WithLabelValues(cmd, "error").Inc()
	}
	metrics.RedisCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}
