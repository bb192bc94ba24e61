package stream

import (
	"context"

	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/metrics"
)

// Emit 把事件送进 adapter 的输出 channel；ctx 结束返回 false。
// 输出 channel 由引擎的分发协程消费，这里阻塞是为了保持同一 symbol 的顺序。
func Emit(ctx context.Context, out chan<- model.Event, streamer string, ev model.Event) bool {
	select {
	case out <- ev:
		metrics.StreamEventsTotal.WithLabelValues(streamer, string(ev.Kind)).Inc()
		return true
	case <-ctx.Done():
		return false
	}
}

// KindSet 辅助：kinds 去重并保持固定顺序 ticker, trade, candle
func KindSet(kinds []model.StreamKind) []model.StreamKind {
	var has [3]bool
	for _, k := range kinds {
		switch k {
		case model.KindTicker:
			has[0] = true
		case model.KindTrade:
			has[1] = true
		case model.KindCandle:
			has[2] = true
		}
	}
	out := make([]model.StreamKind, 0, 3)
	for i, k := range []model.StreamKind{model.KindTicker, model.KindTrade, model.KindCandle} {
		if has[i] {
			out = append(out, k)
		}
	}
	return out
}
