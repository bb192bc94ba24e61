package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// redis 连接池 / 命令指标，cache 走 redis 时由 xredis 采集
var (
	RedisPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "pool_open",
		Help:      "Open connections in the cache redis pool.",
	})
	RedisPoolIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "redis", Name: "pool_idle",
		Help: "Idle connections in the cache redis pool.",
	})
	RedisPoolHits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "redis", Name: "pool_hits",
		Help: "Times a free connection was found in the pool.",
	})
	RedisPoolMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "redis", Name: "pool_misses",
		Help: "Times a free connection was not found in the pool.",
	})
	RedisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "redis", Name: "pool_timeouts",
		Help: "Times a wait for a pool connection timed out.",
	})

	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "cmd_duration_seconds",
		Help:      "Latency of cache redis commands.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms ~ 4s
	}, []string{"cmd", "status"})
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "redis",
		Name:      "errors_total",
		Help:      "Cache redis command errors.",
	}, []string{"cmd", "code"})
)
