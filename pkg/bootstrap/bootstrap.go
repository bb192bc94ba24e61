package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"quotehub.com/pkg/config"
	"quotehub.com/pkg/logger"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/register"
	"quotehub.com/pkg/register/etcd"
)

// Deps collects common dependencies that bootstrap can prepare.
type Deps struct {
	Redis *redis.Client
}

// EtcdCfg holds service discovery config.
type EtcdCfg struct {
	Endpoints     []string `mapstructure:"endpoints"`
	ServicePrefix string   `mapstructure:"service_prefix"`
}

// Options controls the bootstrap process; provide hooks for service-specific bits.
type Options struct {
	// Required: config name and target struct
	ConfigName string
	ConfigPtr  interface{}

	// Required: extract service name and http addr from config
	ServiceName func(cfg interface{}) string
	HTTPAddr    func(cfg interface{}) string

	// Optional: log level / rolling file
	LogLevel func(cfg interface{}) string
	LogFile  func(cfg interface{}) logger.FileOptions

	// Optional: return Etcd config; if nil, skip registration
	EtcdConfig func(cfg interface{}) *EtcdCfg

	// Optional: init tracer, return shutdown func
	InitTracer func(cfg interface{}) (func(context.Context) error, error)

	// Optional: init sentinel governance; only called when provided
	InitSentinel func(cfg interface{}) error

	// Optional builders; nil means skip
	BuildRedis   func(ctx context.Context, cfg interface{}) (*redis.Client, error)
	OnRedisReady func(ctx context.Context, rdb *redis.Client)

	// Build the http handler; cleanup runs after the server stopped accepting requests
	BuildHandler func(ctx context.Context, cfg interface{}, deps Deps) (h http.Handler, cleanup func(context.Context) error, err error)

	// Listen addresses, empty means disabled
	MetricsAddr func(cfg interface{}) string
	PprofAddr   func(cfg interface{}) string

	ShutdownTimeout time.Duration
}

// Run boots a service with common wiring; callers inject config and service-specific hooks via Options.
// 阻塞直到 ctx 结束或 http server 出错
func Run(ctx context.Context, opt Options) error {
	if opt.ConfigName == "" || opt.ConfigPtr == nil || opt.ServiceName == nil || opt.HTTPAddr == nil || opt.BuildHandler == nil {
		return fmt.Errorf("bootstrap: missing required options")
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}

	if _, err := config.LoadAndWatch(opt.ConfigName, opt.ConfigPtr); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svcName := opt.ServiceName(opt.ConfigPtr)
	level := "info"
	if opt.LogLevel != nil {
		if l := opt.LogLevel(opt.ConfigPtr); l != "" {
			level = l
		}
	}
	var fileOpts logger.FileOptions
	if opt.LogFile != nil {
		fileOpts = opt.LogFile(opt.ConfigPtr)
	}
	logger.InitWithFile(svcName, level, fileOpts)
	defer logger.Sync()
	metrics.MustRegister()

	if opt.InitSentinel != nil {
		if err := opt.InitSentinel(opt.ConfigPtr); err != nil {
			return fmt.Errorf("init sentinel: %w", err)
		}
	}

	var deps Deps
	var err error
	if opt.BuildRedis != nil {
		deps.Redis, err = opt.BuildRedis(ctx, opt.ConfigPtr)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		if deps.Redis != nil {
			defer func() { _ = deps.Redis.Close() }()
			if opt.OnRedisReady != nil {
				opt.OnRedisReady(ctx, deps.Redis)
			}
		}
	}

	var shutdownTracer func(context.Context) error
	if opt.InitTracer != nil {
		shutdownTracer, err = opt.InitTracer(opt.ConfigPtr)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
	}

	handler, cleanup, err := opt.BuildHandler(ctx, opt.ConfigPtr, deps)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if opt.PprofAddr != nil {
		if addr := opt.PprofAddr(opt.ConfigPtr); addr != "" {
			startPprof(addr)
		}
	}
	if opt.MetricsAddr != nil {
		if addr := opt.MetricsAddr(opt.ConfigPtr); addr != "" {
			startMetrics(addr)
		}
	}

	httpAddr := opt.HTTPAddr(opt.ConfigPtr)
	if ec := opt.EtcdConfig; ec != nil {
		if eCfg := ec(opt.ConfigPtr); eCfg != nil && len(eCfg.Endpoints) > 0 {
			unregister, err := registerEtcd(ctx, eCfg, svcName, httpAddr)
			if err != nil {
				return err
			}
			defer unregister()
		}
	}

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http listening", zap.String("addr", httpAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	case serveErr = <-errCh:
		logger.Error(context.Background(), "http server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opt.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
	}
	if cleanup != nil {
		if err := cleanup(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "service cleanup", zap.Error(err))
		}
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(shutdownCtx)
	}

	logger.Info(context.Background(), "service stopped", zap.String("service", svcName))
	return serveErr
}

func registerEtcd(ctx context.Context, eCfg *EtcdCfg, svcName, addr string) (func(), error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   eCfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	var reg register.Register = etcd.NewEtcdRegister(cli, eCfg.ServicePrefix, 10)
	ins := &register.Instance{
		ID:   fmt.Sprintf("%s-%s", svcName, addr),
		Name: svcName,
		Addr: addr,
		MetaData: map[string]string{
			"version":   "v1",
			"transport": "http+ws",
		},
	}
	regCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := reg.Register(regCtx, ins); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("register etcd: %w", err)
	}
	logger.Info(ctx, "registered to etcd", zap.String("id", ins.ID))

	return func() {
		c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := reg.UnRegister(c, ins); err != nil {
			logger.Warn(c, "etcd unregister", zap.Error(err))
		}
		_ = cli.Close()
	}, nil
}

func startPprof(addr string) {
	runtime.SetMutexProfileFraction(10)
	runtime.SetBlockProfileRate(10000)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info(context.Background(), "pprof listening", zap.String("addr", srv.Addr))
		if e := srv.ListenAndServe(); e != nil && e != http.ErrServerClosed {
			logger.Warn(context.Background(), "pprof listen error", zap.Error(e))
		}
	}()
}

func startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		logger.Info(context.Background(), "metrics listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn(context.Background(), "metrics server error", zap.Error(err))
		}
	}()
}
