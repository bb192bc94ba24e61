package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"quotehub.com/internal/market/cache"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/xerr"
)

// Caller 由 provider.Registry 实现
type Caller interface {
	Call(ctx context.Context, ac model.AssetClass, dt model.DataType, q model.QueryParams) ([]model.Record, error)
	Has(ac model.AssetClass, dt model.DataType) bool
}

// Notifier 刷新成功后把快照发出去（广播频道据此 resync）
type Notifier interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

const (
	triggerRead     = "read"
	triggerManual   = "manual"
	triggerSchedule = "schedule"
	triggerWarmup   = "warmup"
)

type Option func(*Service)

func WithNotifier(n Notifier) Option        { return func(s *Service) { s.notifier = n } }
func WithEnrichers(e ...Enricher) Option    { return func(s *Service) { s.enrichers = e } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithJitter(d time.Duration) Option     { return func(s *Service) { s.jitter = d } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }

// Service 读缓存、合并并发刷新、按策略写缓存
type Service struct {
	caller    Caller
	store     cache.Store
	assets    []AssetConfig
	enrichers []Enricher
	notifier  Notifier
	now       func() time.Time
	jitter    time.Duration
	log       *zap.Logger

	// key -> 正在进行的刷新；完成后（无论成败）立刻移除
	flights singleflight.Group
}

func NewService(caller Caller, store cache.Store, assets []AssetConfig, opts ...Option) *Service {
	s := &Service{
		caller: caller,
		store:  store,
		assets: assets,
		now:    time.Now,
		log:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) AssetConfigs() []AssetConfig { return s.assets }

func (s *Service) config(ac model.AssetClass, dt model.DataType) (DataTypeConfig, bool) {
	for _, a := range s.assets {
		if a.AssetClass == ac {
			return a.lookup(dt)
		}
	}
	return DataTypeConfig{}, false
}

func unsupported(ac model.AssetClass, dt model.DataType) error {
	return xerr.Wrap(provider.ErrUnsupportedDataType, xerr.UnsupportedRouting, fmt.Sprintf("%s/%s not supported", ac, dt))
}

// resolve 归一化参数并补默认 limit；key 在这之后算，刷新和读取才能命中同一条
func (s *Service) resolve(q model.QueryParams) (model.QueryParams, DataTypeConfig, error) {
	q = q.Normalize()
	if !s.caller.Has(q.AssetClass, q.DataType) {
		return q, DataTypeConfig{}, unsupported(q.AssetClass, q.DataType)
	}
	cfg, _ := s.config(q.AssetClass, q.DataType)
	if q.Limit == 0 && cfg.DefaultLimit > 0 {
		q.Limit = cfg.DefaultLimit
	}
	return q, cfg, nil
}

// GetMarketData 缓存命中直接返回，否则加入（或发起）同 key 的刷新。
// 调用方 ctx 取消只影响自己的等待，刷新本身会跑完并写缓存。
func (s *Service) GetMarketData(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	q, cfg, err := s.resolve(q)
	if err != nil {
		return nil, err
	}
	ac, dt := string(q.AssetClass), string(q.DataType)
	key := cache.Key(q)

	if cfg.Cacheable() {
		recs, ok, err := cache.GetJSON[[]model.Record](ctx, s.store, key)
		if err != nil {
			// 缓存不可用时退化为直连上游
			s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		if ok {
			metrics.CacheRequestsTotal.WithLabelValues(ac, dt, "hit").Inc()
			return recs, nil
		}
	}

	ch := s.flights.DoChan(key, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), q, cfg, key, triggerRead)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		result := "miss"
		switch {
		case !cfg.Cacheable():
			result = "bypass"
		case res.Shared:
			result = "shared"
		}
		metrics.CacheRequestsTotal.WithLabelValues(ac, dt, result).Inc()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Record), nil
	}
}

// RefreshCache 无条件刷新，可缓存的类型写缓存。limit=0 用默认 limit。
func (s *Service) RefreshCache(ctx context.Context, ac model.AssetClass, dt model.DataType, limit int) ([]model.Record, error) {
	return s.refreshNow(ctx, ac, dt, limit, triggerManual)
}

func (s *Service) refreshNow(ctx context.Context, ac model.AssetClass, dt model.DataType, limit int, trigger string) ([]model.Record, error) {
	q, cfg, err := s.resolve(model.QueryParams{AssetClass: ac, DataType: dt, Limit: limit})
	if err != nil {
		return nil, err
	}
	key := cache.Key(q)
	v, err, _ := s.flights.Do(key, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), q, cfg, key, trigger)
	})
	if err != nil {
		return nil, err
	}
	recs := v.([]model.Record)
	// 只广播默认参数的快照，和 Peek 读的是同一个 key
	if q.Limit == cfg.DefaultLimit {
		s.notify(ctx, ac, dt, recs)
	}
	return recs, nil
}

// refresh 调上游、补全、按 TTL 写缓存；只在 single-flight 里执行
func (s *Service) refresh(ctx context.Context, q model.QueryParams, cfg DataTypeConfig, key, trigger string) ([]model.Record, error) {
	ac, dt := string(q.AssetClass), string(q.DataType)
	recs, err := s.caller.Call(ctx, q.AssetClass, q.DataType, q)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(ac, dt, trigger, "error").Inc()
		return nil, err
	}
	if recs == nil {
		recs = []model.Record{}
	}
	recs = s.enrich(ctx, q, cfg, recs)

	if cfg.Cacheable() {
		ttl := cache.WithJitter(cfg.TTL(q, s.now()), s.jitter)
		if ttl > 0 {
			if err := cache.SetJSON(ctx, s.store, key, recs, ttl); err != nil {
				s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			} else {
				s.log.Debug("cache saved", zap.String("key", key), zap.Int("items", len(recs)), zap.Duration("ttl", ttl), zap.String("trigger", trigger))
			}
		}
	}
	metrics.RefreshTotal.WithLabelValues(ac, dt, trigger, "ok").Inc()
	return recs, nil
}

func (s *Service) enrich(ctx context.Context, q model.QueryParams, cfg DataTypeConfig, recs []model.Record) []model.Record {
	for _, e := range s.enrichers {
		out, err := e.Enrich(ctx, q, cfg, recs)
		if err != nil {
			s.log.Warn("enrich failed", zap.String("enricher", e.Name()), zap.String("data_type", string(q.DataType)), zap.Error(err))
			continue
		}
		recs = out
	}
	return recs
}

func (s *Service) notify(ctx context.Context, ac model.AssetClass, dt model.DataType, recs []model.Record) {
	if s.notifier == nil {
		return
	}
	b, err := json.Marshal(recs)
	if err != nil {
		s.log.Warn("encode snapshot", zap.Error(err))
		return
	}
	if err := s.notifier.Publish(ctx, cache.Topic(ac, dt), b); err != nil {
		s.log.Warn("publish snapshot failed", zap.String("topic", cache.Topic(ac, dt)), zap.Error(err))
	}
}

// Peek 只读缓存里默认参数的快照，不触发刷新
func (s *Service) Peek(ctx context.Context, ac model.AssetClass, dt model.DataType) ([]model.Record, bool, error) {
	cfg, ok := s.config(ac, dt)
	if !ok || !cfg.Cacheable() {
		return nil, false, unsupported(ac, dt)
	}
	q := model.QueryParams{AssetClass: ac, DataType: dt, Limit: cfg.DefaultLimit}
	return cache.GetJSON[[]model.Record](ctx, s.store, cache.Key(q))
}

// Warmup 各 assetClass 并行，同一 assetClass 内按声明顺序串行；
// 单个数据类型失败只记日志，不影响后面的。
func (s *Service) Warmup(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range s.assets {
		g.Go(func() error {
			for _, c := range a.DataTypes {
				if !c.WarmupEnabled() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !s.caller.Has(a.AssetClass, c.DataType) {
					continue
				}
				recs, err := s.refreshNow(ctx, a.AssetClass, c.DataType, 0, triggerWarmup)
				if err != nil {
					s.log.Error("warmup failed", zap.String("asset_class", string(a.AssetClass)), zap.String("data_type", string(c.DataType)), zap.Error(err))
					continue
				}
				s.log.Info("warmed", zap.String("asset_class", string(a.AssetClass)), zap.String("data_type", string(c.DataType)), zap.Int("items", len(recs)))
			}
			return nil
		})
	}
	return g.Wait()
}
