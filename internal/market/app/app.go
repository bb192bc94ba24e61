package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"quotehub.com/internal/market/cache"
	"quotehub.com/internal/market/gateway"
	"quotehub.com/internal/market/httpapi"
	"quotehub.com/internal/market/orchestrator"
	"quotehub.com/internal/market/provider"
	"quotehub.com/internal/market/providers/alpaca"
	"quotehub.com/internal/market/providers/logodev"
	"quotehub.com/internal/market/providers/upbit"
	"quotehub.com/internal/market/subscription"
	"quotehub.com/internal/market/ttl"
	"quotehub.com/internal/market/ws"
	"quotehub.com/pkg/bootstrap"
	"quotehub.com/pkg/config"
	"quotehub.com/pkg/logger"
	"quotehub.com/pkg/ratelimit"
	"quotehub.com/pkg/safe"
	"quotehub.com/pkg/trace"
	"quotehub.com/pkg/xredis"
)

const (
	ServiceName = "market-service"

	leaderKey    = "market:scheduler:leader"
	leaderTTL    = 30 * time.Second
	warmupBudget = 30 * time.Second
)

// Run 加载配置并启动服务，阻塞到 ctx 结束
func Run(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	return bootstrap.Run(ctx, bootstrap.Options{
		ConfigName:  ServiceName,
		ConfigPtr:   cfg,
		ServiceName: func(c interface{}) string { return c.(*Config).name() },
		HTTPAddr:    func(c interface{}) string { return c.(*Config).HTTP.Addr },
		LogLevel:    func(c interface{}) string { return c.(*Config).Log.Level },
		LogFile: func(c interface{}) logger.FileOptions {
			l := c.(*Config).Log
			return logger.FileOptions{Path: l.File, MaxSizeMB: l.MaxSizeMB, MaxBackups: l.MaxBackups, MaxAgeDays: l.MaxAgeDays}
		},
		EtcdConfig: func(c interface{}) *bootstrap.EtcdCfg { return &c.(*Config).Etcd },
		InitTracer: func(c interface{}) (func(context.Context) error, error) {
			cfg := c.(*Config)
			if !cfg.Otel.Enabled {
				return nil, nil
			}
			return trace.InitTrace(cfg.name(), cfg.Otel.Addr)
		},
		InitSentinel: bootstrap.InitSentinelFromCfg(func(c interface{}) *bootstrap.SentinelCfg { return &c.(*Config).Sentinel }),
		BuildRedis: func(ctx context.Context, c interface{}) (*redis.Client, error) {
			cfg := c.(*Config)
			if !cfg.redisEnabled() {
				return nil, nil
			}
			return xredis.NewRedis(ctx, &cfg.Redis)
		},
		OnRedisReady: func(ctx context.Context, rdb *redis.Client) { xredis.ObserveStats(ctx, rdb, 15*time.Second) },
		BuildHandler: func(ctx context.Context, c interface{}, deps bootstrap.Deps) (http.Handler, func(context.Context) error, error) {
			m, err := build(ctx, c.(*Config), deps.Redis)
			if err != nil {
				return nil, nil, err
			}
			// 先挂上快照订阅再预热，预热产生的快照才能进 hub
			cleanup, err := m.start()
			if err != nil {
				return nil, nil, err
			}
			m.warmup(ctx)
			return m.router, cleanup, nil
		},
		MetricsAddr: func(c interface{}) string { return c.(*Config).HTTP.MetricsAddr },
		PprofAddr:   func(c interface{}) string { return c.(*Config).HTTP.PprofAddr },
	})
}

func (c *Config) name() string {
	if c.Name == "" {
		return ServiceName
	}
	return c.Name
}

// market 组装好的服务：REST 缓存编排 + 推流订阅引擎 + ws 网关
type market struct {
	cfg *Config

	registry  *provider.Registry
	svc       *orchestrator.Service
	scheduler *orchestrator.Scheduler
	leader    *xredis.LeaderLock

	streams []provider.StreamProvider
	engine  *subscription.Engine
	hub     *ws.Hub
	broker  gateway.Broker
	gw      *gateway.Gateway
	limiter *ratelimit.Store
	router  *gin.Engine

	// ctx 服务生命周期，cleanup 时取消
	ctx    context.Context
	cancel context.CancelFunc
}

func build(ctx context.Context, cfg *Config, rdb *redis.Client) (*market, error) {
	name := cfg.name()
	m := &market{cfg: cfg, registry: provider.NewRegistry()}
	m.ctx, m.cancel = context.WithCancel(ctx)

	var store cache.Store
	switch {
	case cfg.Cache.Driver == "redis" && rdb == nil:
		m.cancel()
		return nil, errors.New("cache driver redis requires redis.addr")
	case rdb != nil:
		store = cache.NewRedisStore(rdb)
		m.leader = xredis.NewLeaderLock(rdb, leaderKey, leaderTTL)
	default:
		store = cache.NewMemStore()
	}

	// 上游保护：每个 provider 一个令牌桶，每个 provider.dataType 一个熔断器
	breakers := ratelimit.NewManager(name, cfg.Breaker, nil)
	pc := cfg.Providers
	if pc.Alpaca.Key != "" {
		guard := provider.Guard(name, upstreamLimiter(pc.Alpaca.Rate, pc.Alpaca.Burst, 3), breakers)
		m.registry.Register(alpaca.NewProvider(alpaca.NewClient(pc.Alpaca)), guard)
		m.streams = append(m.streams, alpaca.NewStream(pc.Alpaca, logger.Named("alpaca-stream")))
	} else {
		logger.Warn(ctx, "alpaca key not configured, equity routes disabled")
	}
	guard := provider.Guard(name, upstreamLimiter(pc.Upbit.Rate, pc.Upbit.Burst, 8), breakers)
	m.registry.Register(upbit.NewProvider(upbit.NewClient(pc.Upbit)), guard)
	m.streams = append(m.streams, upbit.NewStream(pc.Upbit, logger.Named("upbit-stream")))

	// 单机用进程内 broker；多副本时经 NATS 把快照通知广播到所有 ws 节点
	if cfg.Nats.URL != "" {
		b, err := gateway.NewNatsBroker(cfg.Nats.URL, nats.Name(name), nats.MaxReconnects(-1))
		if err != nil {
			m.cancel()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		m.broker = b
	} else {
		m.broker = gateway.NewMemBroker()
	}

	assets := orchestrator.DefaultAssetConfigs(ttl.NewCalendarClock("XNYS"))
	m.svc = orchestrator.NewService(m.registry, store, assets,
		orchestrator.WithNotifier(m.broker),
		orchestrator.WithEnrichers(
			orchestrator.NewNameEnricher(store),
			orchestrator.NewLogoEnricher(store, logodev.New(pc.Logodev)),
		),
		orchestrator.WithJitter(time.Duration(cfg.Cache.JitterMs)*time.Millisecond),
		orchestrator.WithLogger(logger.Named("orchestrator")),
	)
	var leader orchestrator.Leader
	if m.leader != nil {
		leader = m.leader
	}
	m.scheduler = orchestrator.NewScheduler(m.svc, leader, logger.Named("scheduler"))

	m.engine = subscription.NewEngine(m.streams, m.svc, logger.Named("engine"))
	m.hub = ws.NewHub()
	m.gw = gateway.NewGateway(m.hub, m.broker, m.engine, logger.Named("gateway"))
	wsServer := ws.NewServer(m.ctx, m.hub, m.engine, logger.Named("ws"))

	if cfg.RateLimit.Rate > 0 {
		m.limiter = ratelimit.NewStore(rate.Limit(cfg.RateLimit.Rate), cfg.RateLimit.Burst, 10*time.Minute)
	}
	sc := cfg.Sentinel
	m.router = httpapi.NewRouter(m.svc, httpapi.Options{
		Service:  name,
		Limiter:  m.limiter,
		Sentinel: sc.Enabled || sc.Flow.Enabled || sc.Breaker.Enabled,
		Metrics:  true,
		WS:       wsServer.ServeWS,
	})
	return m, nil
}

func upstreamLimiter(r float64, burst int, def float64) *ratelimit.Store {
	if r <= 0 {
		r = def
	}
	if burst <= 0 {
		burst = int(r)
	}
	return ratelimit.NewStore(rate.Limit(r), burst, time.Hour)
}

// warmup 启动时预热缓存，失败只记日志
func (m *market) warmup(ctx context.Context) {
	if !m.cfg.Warmup.Enabled {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, warmupBudget)
	defer cancel()
	start := time.Now()
	if err := m.svc.Warmup(wctx); err != nil {
		logger.Warn(ctx, "cache warmup incomplete", zap.Error(err))
		return
	}
	logger.Info(ctx, "cache warmed up", zap.Duration("took", time.Since(start)))
}

// start 拉起后台协程，返回的 cleanup 在 http server 停止后调用。
// 返回时 gateway 已经订阅了快照通知。
func (m *market) start() (func(context.Context) error, error) {
	ctx := m.ctx
	snaps, err := m.gw.Listen(ctx)
	if err != nil {
		m.cancel()
		return nil, fmt.Errorf("listen snapshots: %w", err)
	}
	var wg sync.WaitGroup
	run := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		safe.GoCtx(ctx, func(ctx context.Context) {
			defer wg.Done()
			fn(ctx)
			logger.Debug(ctx, "background task stopped", zap.String("task", name))
		})
	}

	if m.limiter != nil {
		m.limiter.StartJanitor(ctx, time.Minute)
	}
	run("gateway", func(ctx context.Context) {
		if err := m.gw.Serve(ctx, snaps); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error(ctx, "gateway stopped", zap.Error(err))
		}
	})
	run("pump", func(ctx context.Context) { m.gw.Pump(ctx, m.engine.Broadcasts()) })
	run("engine", m.engine.Run)
	for _, s := range m.streams {
		run(s.Name(), func(ctx context.Context) {
			if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, "stream stopped", zap.String("provider", s.Name()), zap.Error(err))
			}
		})
	}
	if m.cfg.Scheduler.Enabled {
		run("scheduler", m.scheduler.Run)
	}

	return func(ctx context.Context) error {
		m.cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn(ctx, "background tasks did not stop in time")
		}
		var errs []error
		if m.leader != nil {
			errs = append(errs, m.leader.Release(ctx))
		}
		errs = append(errs, m.broker.Close())
		return errors.Join(errs...)
	}, nil
}
