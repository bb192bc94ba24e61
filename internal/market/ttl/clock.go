package ttl

import (
	"context"
	"time"

	"github.com/scmhub/calendar"
	"go.uber.org/zap"
	"quotehub.com/pkg/logger"
)

// MarketClock 判断某一时刻交易所是否开市
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// AlwaysOpen 加密货币 7x24
type AlwaysOpen struct{}

func (AlwaysOpen) IsOpen(time.Time) bool { return true }

// CalendarClock 基于 scmhub/calendar 的交易日历（含节假日、半日市）
type CalendarClock struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NewCalendarClock mic 例如 "xnys"；日历加载失败时退化为 周一至周五 09:30-16:00 纽约时间
func NewCalendarClock(mic string) *CalendarClock {
	if cal := calendar.GetCalendar(mic); cal != nil {
		return &CalendarClock{cal: cal, loc: cal.Loc}
	}
	logger.Warn(context.Background(), "calendar not found, using weekday fallback", zap.String("mic", mic))
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &CalendarClock{loc: loc}
}

func (c *CalendarClock) IsOpen(t time.Time) bool {
	t = t.In(c.loc)
	if c.cal != nil {
		return c.cal.IsOpen(t)
	}
	return fallbackOpen(t)
}

func fallbackOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	mins := t.Hour()*60 + t.Minute()
	return mins >= 9*60+30 && mins < 16*60
}
