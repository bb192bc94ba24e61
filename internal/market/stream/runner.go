package stream

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"quotehub.com/pkg/metrics"
)

// Session 一次连接生命周期：阻塞到断线/错误/ctx cancel，不做重连
type Session interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Runner 负责重连：指数退避 + jitter，连接稳定一段时间后退避归零
type Runner struct {
	BaseBackoff time.Duration // 300ms
	MaxBackoff  time.Duration // 5s
	// 连接存活超过 StableAfter 视为稳定，下次断线从 BaseBackoff 开始
	StableAfter time.Duration

	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		BaseBackoff: 300 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		StableAfter: 30 * time.Second,
		log:         log,
	}
}

// Run 阻塞直到 ctx 结束
func (r *Runner) Run(ctx context.Context, s Session) error {
	backoff := r.BaseBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		err := s.RunOnce(ctx)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		// 正常结束（例如订阅集合清空后主动断开），不算重连
		if err == nil {
			backoff = r.BaseBackoff
			continue
		}
		if time.Since(started) >= r.StableAfter {
			backoff = r.BaseBackoff
		}

		metrics.StreamReconnectTotal.WithLabelValues(s.Name()).Inc()
		r.log.Warn("stream disconnected, reconnecting",
			zap.String("streamer", s.Name()),
			zap.Duration("uptime", time.Since(started)),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		// 指数退避 + jitter（避免所有源同时重连造成尖峰）
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2+1)))
		if sleep > r.MaxBackoff {
			sleep = r.MaxBackoff
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
	}
}
