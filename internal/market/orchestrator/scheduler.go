package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/safe"
)

// Leader 多副本时只有 leader 执行定时刷新；单副本传 nil
type Leader interface {
	IsLeader(ctx context.Context) bool
}

// Scheduler 每个 assetClass 的每个不同刷新间隔一个 ticker
type Scheduler struct {
	svc    *Service
	leader Leader
	log    *zap.Logger
}

func NewScheduler(svc *Service, leader Leader, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{svc: svc, leader: leader, log: log}
}

type bucket struct {
	assetClass model.AssetClass
	interval   time.Duration
	dataTypes  []model.DataType // 保持声明顺序
}

func buckets(assets []AssetConfig) []bucket {
	var out []bucket
	for _, a := range assets {
		idx := map[time.Duration]int{}
		for _, c := range a.DataTypes {
			if c.RefreshInterval <= 0 || !c.Cacheable() {
				continue
			}
			i, ok := idx[c.RefreshInterval]
			if !ok {
				i = len(out)
				idx[c.RefreshInterval] = i
				out = append(out, bucket{assetClass: a.AssetClass, interval: c.RefreshInterval})
			}
			out[i].dataTypes = append(out[i].dataTypes, c.DataType)
		}
	}
	return out
}

// Run 阻塞到 ctx 结束
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, b := range buckets(s.svc.AssetConfigs()) {
		wg.Add(1)
		safe.GoCtx(ctx, func(ctx context.Context) {
			defer wg.Done()
			s.loop(ctx, b)
		})
		s.log.Info("refresh job registered",
			zap.String("asset_class", string(b.assetClass)),
			zap.Duration("interval", b.interval),
			zap.Any("data_types", b.dataTypes))
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, b bucket) {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx, b)
		}
	}
}

// tick 依次刷新，单个失败不影响其他
func (s *Scheduler) tick(ctx context.Context, b bucket) {
	if s.leader != nil && !s.leader.IsLeader(ctx) {
		return
	}
	for _, dt := range b.dataTypes {
		if ctx.Err() != nil {
			return
		}
		if !s.svc.caller.Has(b.assetClass, dt) {
			continue
		}
		if _, err := s.svc.refreshNow(ctx, b.assetClass, dt, 0, triggerSchedule); err != nil {
			s.log.Error("scheduled refresh failed",
				zap.String("asset_class", string(b.assetClass)),
				zap.String("data_type", string(dt)),
				zap.Error(err))
		}
	}
}
