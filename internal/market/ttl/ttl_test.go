package ttl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"quotehub.com/internal/market/model"
)

type fakeClock bool

func (f fakeClock) IsOpen(time.Time) bool { return bool(f) }

var (
	// 2025-03-04 周二
	tueOpen   = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC) // 10:00 纽约
	tueClosed = time.Date(2025, 3, 4, 22, 0, 0, 0, time.UTC) // 17:00 纽约
	saturday  = time.Date(2025, 3, 8, 15, 0, 0, 0, time.UTC)
)

func TestCandles_OpenVsClosed(t *testing.T) {
	q := model.QueryParams{AssetClass: model.Equity, DataType: model.Candles, Symbols: []string{"AAPL"}, Limit: 100}

	open := Candles(fakeClock(true))(q, tueOpen)
	closed := Candles(fakeClock(false))(q, tueClosed)
	assert.LessOrEqual(t, open, 60*time.Second)
	assert.Greater(t, closed, open)
}

func TestCandles_Table(t *testing.T) {
	open, closed := Candles(fakeClock(true)), Candles(fakeClock(false))
	cases := []struct {
		tf           model.Timeframe
		open, closed time.Duration
	}{
		{model.TF1Min, time.Minute, 10 * time.Minute},
		{model.TF5Min, time.Minute, 10 * time.Minute},
		{model.TF15Min, 5 * time.Minute, 30 * time.Minute},
		{model.TF1Hour, 5 * time.Minute, 30 * time.Minute},
		{model.TF1Day, 12 * time.Hour, 12 * time.Hour},
		{model.TF1Week, 7 * 24 * time.Hour, 7 * 24 * time.Hour},
		{model.TF12Month, 7 * 24 * time.Hour, 7 * 24 * time.Hour},
		{"", time.Minute, 10 * time.Minute},
	}
	for _, c := range cases {
		q := model.QueryParams{Timeframe: c.tf}
		assert.Equal(t, c.open, open(q, tueOpen), "open %s", c.tf)
		assert.Equal(t, c.closed, closed(q, tueOpen), "closed %s", c.tf)
	}
}

func TestMarketHours(t *testing.T) {
	p := MarketHours(fakeClock(true), 10*time.Second, time.Minute)
	assert.Equal(t, 10*time.Second, p(model.QueryParams{}, tueOpen))
	p = MarketHours(fakeClock(false), 10*time.Second, time.Minute)
	assert.Equal(t, time.Minute, p(model.QueryParams{}, tueOpen))
	assert.Equal(t, 12*time.Hour, Const(12*time.Hour)(model.QueryParams{}, tueOpen))
}

func TestCalendarClock_XNYS(t *testing.T) {
	c := NewCalendarClock("xnys")
	assert.True(t, c.IsOpen(tueOpen))
	assert.False(t, c.IsOpen(tueClosed))
	assert.False(t, c.IsOpen(saturday))
}

func TestFallbackOpen(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	assert.True(t, fallbackOpen(tueOpen.In(ny)))
	assert.False(t, fallbackOpen(tueClosed.In(ny)))
	assert.False(t, fallbackOpen(saturday.In(ny)))
	assert.True(t, AlwaysOpen{}.IsOpen(saturday))
}
