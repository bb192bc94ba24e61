package app

import (
	"quotehub.com/internal/market/providers/alpaca"
	"quotehub.com/internal/market/providers/logodev"
	"quotehub.com/internal/market/providers/upbit"
	"quotehub.com/pkg/bootstrap"
	"quotehub.com/pkg/ratelimit"
	"quotehub.com/pkg/xredis"
)

// Config 对应 config/market-service.yaml
type Config struct {
	Name string     `mapstructure:"name"`
	HTTP HTTPConfig `mapstructure:"http"`
	Log  LogConfig  `mapstructure:"log"`

	Cache CacheConfig   `mapstructure:"cache"`
	Redis xredis.Config `mapstructure:"redis"`

	Otel     OtelConfig            `mapstructure:"otel"`
	Etcd     bootstrap.EtcdCfg     `mapstructure:"etcd"`
	Sentinel bootstrap.SentinelCfg `mapstructure:"sentinel"`
	Nats     NatsConfig            `mapstructure:"nats"`

	Scheduler SwitchConfig `mapstructure:"scheduler"`
	Warmup    SwitchConfig `mapstructure:"warmup"`

	Providers ProvidersConfig `mapstructure:"providers"`
	Breaker   ratelimit.Rule  `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type HTTPConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	PprofAddr   string `mapstructure:"pprof_addr"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CacheConfig struct {
	Driver   string `mapstructure:"driver"` // redis | memory
	JitterMs int    `mapstructure:"jitter_ms"`
}

type OtelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"` // host:4317 或 stdout
}

type NatsConfig struct {
	URL string `mapstructure:"url"` // 为空用进程内 broker
}

type SwitchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ProvidersConfig struct {
	Alpaca  alpaca.Config  `mapstructure:"alpaca"`
	Upbit   upbit.Config   `mapstructure:"upbit"`
	Logodev logodev.Config `mapstructure:"logodev"`
}

// RateLimitConfig http 入口按 ip+路由限流
type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

func (c *Config) redisEnabled() bool {
	return c.Cache.Driver == "redis" && c.Redis.Addr != ""
}
