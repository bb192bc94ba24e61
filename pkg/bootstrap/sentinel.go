package bootstrap

import (
	"context"
	"fmt"
	"strings"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	"github.com/alibaba/sentinel-golang/core/flow"
	"go.uber.org/zap"
	"quotehub.com/pkg/logger"
)

// SentinelCfg holds rules for governance.
type SentinelCfg struct {
	Enabled bool          `mapstructure:"enabled"`
	Flow    FlowSection   `mapstructure:"flow"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type FlowSection struct {
	Enabled bool       `mapstructure:"enabled"`
	Rules   []FlowRule `mapstructure:"rules"`
}

// FlowRule.Resource 对应 http 中间件的 "METHOD /route/:param"
type FlowRule struct {
	Resource         string  `mapstructure:"resource"`
	Threshold        float64 `mapstructure:"threshold"`
	StatIntervalMs   uint32  `mapstructure:"stat_interval_ms"`
	Strategy         string  `mapstructure:"strategy"`
	Control          string  `mapstructure:"control"`
	MaxQueueWaitMs   uint32  `mapstructure:"max_queue_wait_ms"`
	WarmUpSec        uint32  `mapstructure:"warmup_sec"`
	WarmUpColdFactor uint32  `mapstructure:"warmup_cold_factor"`
}

type BreakerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Rules   []BreakerRule `mapstructure:"rules"`
}

type BreakerRule struct {
	Resource         string  `mapstructure:"resource"`
	Strategy         string  `mapstructure:"strategy"`
	Threshold        float64 `mapstructure:"threshold"`
	StatIntervalMs   uint32  `mapstructure:"stat_interval_ms"`
	MinRequestAmount uint64  `mapstructure:"min_request_amount"`
	RetryTimeoutMs   uint64  `mapstructure:"retry_timeout_ms"`
}

// BuildFlowRules 把配置转换成 sentinel 限流规则，没有 resource 的规则跳过
func BuildFlowRules(rules []FlowRule) []*flow.Rule {
	out := make([]*flow.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Resource == "" {
			continue
		}
		r := &flow.Rule{
			Resource:         rule.Resource,
			Threshold:        rule.Threshold,
			StatIntervalInMs: rule.StatIntervalMs,
		}
		switch strings.ToLower(rule.Strategy) {
		case "warmup":
			r.TokenCalculateStrategy = flow.WarmUp
			r.WarmUpPeriodSec = rule.WarmUpSec
			r.WarmUpColdFactor = rule.WarmUpColdFactor
		case "memory_adaptive":
			r.TokenCalculateStrategy = flow.MemoryAdaptive
		default:
			r.TokenCalculateStrategy = flow.Direct
		}

		switch strings.ToLower(rule.Control) {
		case "throttling":
			r.ControlBehavior = flow.Throttling
			r.MaxQueueingTimeMs = rule.MaxQueueWaitMs
		default:
			r.ControlBehavior = flow.Reject
		}
		out = append(out, r)
	}
	return out
}

func BuildBreakerRules(rules []BreakerRule) []*circuitbreaker.Rule {
	out := make([]*circuitbreaker.Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Resource == "" {
			continue
		}
		r := &circuitbreaker.Rule{
			Resource:         rule.Resource,
			Threshold:        rule.Threshold,
			StatIntervalMs:   rule.StatIntervalMs,
			MinRequestAmount: rule.MinRequestAmount,
			RetryTimeoutMs:   uint32(rule.RetryTimeoutMs),
		}
		switch strings.ToLower(rule.Strategy) {
		case "error_count":
			r.Strategy = circuitbreaker.ErrorCount
		case "slow_request_ratio":
			r.Strategy = circuitbreaker.SlowRequestRatio
		default:
			r.Strategy = circuitbreaker.ErrorRatio
		}
		out = append(out, r)
	}
	return out
}

// InitSentinelFromCfg builds an InitSentinel hook from a sentinel config.
func InitSentinelFromCfg(getCfg func(cfg interface{}) *SentinelCfg) func(cfg interface{}) error {
	return func(cfg interface{}) error {
		sc := getCfg(cfg)
		if sc == nil || !(sc.Enabled || sc.Flow.Enabled || sc.Breaker.Enabled) {
			return nil
		}
		if err := sentinels.InitDefault(); err != nil {
			return fmt.Errorf("init sentinel: %w", err)
		}

		if sc.Flow.Enabled {
			if rules := BuildFlowRules(sc.Flow.Rules); len(rules) > 0 {
				if _, err := flow.LoadRules(rules); err != nil {
					return fmt.Errorf("load flow rules: %w", err)
				}
			}
		}
		if sc.Breaker.Enabled {
			if rules := BuildBreakerRules(sc.Breaker.Rules); len(rules) > 0 {
				if _, err := circuitbreaker.LoadRules(rules); err != nil {
					return fmt.Errorf("load circuit breaker rules: %w", err)
				}
			}
		}

		logger.Info(context.Background(), "sentinel initialized",
			zap.Int("flow_rules", len(sc.Flow.Rules)),
			zap.Int("breaker_rules", len(sc.Breaker.Rules)),
		)
		return nil
	}
}
