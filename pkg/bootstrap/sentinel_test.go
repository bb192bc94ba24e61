package bootstrap

import (
	"testing"

	"github.com/alibaba/sentinel-golang/core/circuitbreaker"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFlowRules(t *testing.T) {
	rules := BuildFlowRules([]FlowRule{
		{Resource: "GET /api/market/:assetClass/:dataType", Threshold: 200, StatIntervalMs: 1000},
		{Resource: ""},
		{Resource: "GET /ws", Threshold: 20, Strategy: "warmup", WarmUpSec: 10, WarmUpColdFactor: 3, Control: "throttling", MaxQueueWaitMs: 50},
	})
	require.Len(t, rules, 2)
	assert.Equal(t, flow.Direct, rules[0].TokenCalculateStrategy)
	assert.Equal(t, flow.Reject, rules[0].ControlBehavior)
	assert.Equal(t, flow.WarmUp, rules[1].TokenCalculateStrategy)
	assert.Equal(t, flow.Throttling, rules[1].ControlBehavior)
	assert.Equal(t, uint32(50), rules[1].MaxQueueingTimeMs)
}

func TestBuildBreakerRules(t *testing.T) {
	rules := BuildBreakerRules([]BreakerRule{
		{Resource: "POST /api/market/:assetClass/:dataType/refresh", Strategy: "error_count", Threshold: 5},
		{Resource: "GET /api/market/:assetClass/:dataType", Threshold: 0.5},
	})
	require.Len(t, rules, 2)
	assert.Equal(t, circuitbreaker.ErrorCount, rules[0].Strategy)
	assert.Equal(t, circuitbreaker.ErrorRatio, rules[1].Strategy)
}
