package ttl

import (
	"time"

	"quotehub.com/internal/market/model"
)

// Policy 每次刷新时计算 TTL，不缓存结果
type Policy func(q model.QueryParams, now time.Time) time.Duration

func Const(d time.Duration) Policy {
	return func(model.QueryParams, time.Time) time.Duration { return d }
}

// MarketHours 开市 open，闭市 closed
func MarketHours(clock MarketClock, open, closed time.Duration) Policy {
	return func(_ model.QueryParams, now time.Time) time.Duration {
		if clock.IsOpen(now) {
			return open
		}
		return closed
	}
}

type window struct{ open, closed time.Duration }

var candleWindows = map[model.Timeframe]window{
	model.TF1Min:    {60 * time.Second, 600 * time.Second},
	model.TF3Min:    {60 * time.Second, 600 * time.Second},
	model.TF5Min:    {60 * time.Second, 600 * time.Second},
	model.TF10Min:   {300 * time.Second, 1800 * time.Second},
	model.TF15Min:   {300 * time.Second, 1800 * time.Second},
	model.TF30Min:   {300 * time.Second, 1800 * time.Second},
	model.TF1Hour:   {300 * time.Second, 1800 * time.Second},
	model.TF1Day:    {12 * time.Hour, 12 * time.Hour},
	model.TF1Week:   {7 * 24 * time.Hour, 7 * 24 * time.Hour},
	model.TF1Month:  {7 * 24 * time.Hour, 7 * 24 * time.Hour},
	model.TF12Month: {7 * 24 * time.Hour, 7 * 24 * time.Hour},
}

// Candles 按 timeframe 查表，空 timeframe 按 1T 处理
func Candles(clock MarketClock) Policy {
	return func(q model.QueryParams, now time.Time) time.Duration {
		tf := q.Timeframe
		if tf == "" {
			tf = model.TF1Min
		}
		w, ok := candleWindows[tf]
		if !ok {
			w = candleWindows[model.TF1Min]
		}
		if clock.IsOpen(now) {
			return w.open
		}
		return w.closed
	}
}
