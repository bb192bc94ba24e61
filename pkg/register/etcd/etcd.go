package etcd

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/encoding/json"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"quotehub.com/pkg/logger"
	"quotehub.com/pkg/register"
)

type EtcdRegister struct {
	client   *clientv3.Client
	basePath string // 比如 "/quotehub/services"
	ttl      int64  // 租约秒数

	mu      sync.Mutex
	leaseID clientv3.LeaseID
	stop    context.CancelFunc
}

func NewEtcdRegister(c *clientv3.Client, basePath string, ttl int64) *EtcdRegister {
	if ttl <= 0 {
		ttl = 10
	}
	return &EtcdRegister{
		client:   c,
		basePath: basePath,
		ttl:      ttl,
	}
}

func (e *EtcdRegister) Key(ins *register.Instance) string {
	return fmt.Sprintf("%s/%s/%s", e.basePath, ins.Name, ins.ID)
}

func (e *EtcdRegister) Register(ctx context.Context, ins *register.Instance) error {
	grant, err := e.client.Grant(ctx, e.ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	val, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	if _, err = e.client.Put(ctx, e.Key(ins), string(val), clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("put instance: %w", err)
	}

	// 心跳不能跟着调用方的 ctx 走，调用方通常带超时
	kaCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := e.client.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keepalive: %w", err)
	}

	e.mu.Lock()
	e.leaseID = grant.ID
	e.stop = cancel
	e.mu.Unlock()

	go e.drain(kaCtx, ch, ins)
	return nil
}

func (e *EtcdRegister) UnRegister(ctx context.Context, ins *register.Instance) error {
	e.mu.Lock()
	leaseID, stop := e.leaseID, e.stop
	e.mu.Unlock()
	if stop != nil {
		stop()
	}

	if _, err := e.client.Delete(ctx, e.Key(ins)); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if leaseID != 0 {
		if _, err := e.client.Revoke(ctx, leaseID); err != nil {
			return fmt.Errorf("revoke lease: %w", err)
		}
	}
	return nil
}

func (e *EtcdRegister) drain(ctx context.Context, ch <-chan *clientv3.LeaseKeepAliveResponse, ins *register.Instance) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				// 租约丢了（etcd 重启 / 网络断太久），只记日志，实例会从注册中心消失
				logger.Warn(ctx, "etcd keepalive channel closed", zap.String("key", e.Key(ins)))
				return
			}
		}
	}
}
