package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quotehub"

var (
	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "method", "reason"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // state: closed/open/half_open
	)

	// 行情缓存
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_cache_requests_total",
			Help:      "Market data cache lookups partitioned by result (hit/miss/bypass/shared).",
		},
		[]string{"asset_class", "data_type", "result"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "market_refresh_total",
			Help:      "Cache refreshes partitioned by trigger (schedule/warmup/manual) and status.",
		},
		[]string{"asset_class", "data_type", "trigger", "status"},
	)

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms ~ 10s
		},
		[]string{"provider", "data_type", "status"},
	)

	// 上游推流
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Normalized events received from upstream streams.",
		},
		[]string{"streamer", "kind"},
	)

	StreamReconnectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnect_total",
			Help:      "Upstream stream reconnect attempts.",
		},
		[]string{"streamer"},
	)

	UpstreamSymbols = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_upstream_symbols",
			Help:      "Symbols currently subscribed upstream.",
		},
		[]string{"asset_class"},
	)

	// result: routed | dropped（没有频道关心这个 symbol/kind）
	EngineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_events_total",
			Help:      "Stream events seen by the fan-out engine.",
		},
		[]string{"asset_class", "result"},
	)

	EngineChannels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_channels",
			Help:      "Channels with at least one subscriber.",
		},
		[]string{"asset_class"},
	)
)

var registerOnce sync.Once

// MustRegister 可以被多次调用（测试里会多次构建 app）
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RateLimitBlockTotal, CBRejectTotal, CBState,
			CacheRequestsTotal, RefreshTotal, UpstreamDuration,
			StreamEventsTotal, StreamReconnectTotal, UpstreamSymbols,
			EngineEventsTotal, EngineChannels,
		)
	})
}
