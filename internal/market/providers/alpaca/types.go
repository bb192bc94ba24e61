package alpaca

import (
	"time"

	"github.com/shopspring/decimal"
)

type assetDTO struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Class    string `json:"class"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

type mostActiveDTO struct {
	Symbol     string          `json:"symbol"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int64           `json:"trade_count"`
}

type mostActivesResp struct {
	MostActives []mostActiveDTO `json:"most_actives"`
}

type moverDTO struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	PercentChange decimal.Decimal `json:"percent_change"` // 百分数，1.25 = 1.25%
}

type moversResp struct {
	Gainers []moverDTO `json:"gainers"`
	Losers  []moverDTO `json:"losers"`
}

type barDTO struct {
	T  string          `json:"t"`
	O  decimal.Decimal `json:"o"`
	H  decimal.Decimal `json:"h"`
	L  decimal.Decimal `json:"l"`
	C  decimal.Decimal `json:"c"`
	V  decimal.Decimal `json:"v"`
	N  int64           `json:"n"`
	VW decimal.Decimal `json:"vw"`
}

type quoteDTO struct {
	T  string          `json:"t"`
	AP decimal.Decimal `json:"ap"`
	AS decimal.Decimal `json:"as"`
	BP decimal.Decimal `json:"bp"`
	BS decimal.Decimal `json:"bs"`
}

type tradeDTO struct {
	T string          `json:"t"`
	P decimal.Decimal `json:"p"`
	S decimal.Decimal `json:"s"`
	I int64           `json:"i"`
}

type snapshotDTO struct {
	LatestTrade  *tradeDTO `json:"latestTrade"`
	LatestQuote  *quoteDTO `json:"latestQuote"`
	MinuteBar    *barDTO   `json:"minuteBar"`
	DailyBar     *barDTO   `json:"dailyBar"`
	PrevDailyBar *barDTO   `json:"prevDailyBar"`
}

type barsResp struct {
	Bars          map[string][]barDTO `json:"bars"`
	NextPageToken *string             `json:"next_page_token"`
}

type tradesResp struct {
	Trades        map[string][]tradeDTO `json:"trades"`
	NextPageToken *string               `json:"next_page_token"`
}

// 流消息是数组，每个元素先看 T：t(trade) / q(quote) / b(bar) / success / error / subscription
// json 解码 key 大小写不敏感，"T" 和 "t" 必须各有精确匹配的字段，否则互相覆盖
type streamHeader struct {
	T    string `json:"T"`
	Time string `json:"t"`
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

type streamTrade struct {
	Type string          `json:"T"`
	S    string          `json:"S"`
	I    int64           `json:"i"`
	P    decimal.Decimal `json:"p"`
	Z    decimal.Decimal `json:"s"`
	T    string          `json:"t"`
}

type streamQuote struct {
	Type string          `json:"T"`
	S    string          `json:"S"`
	AP   decimal.Decimal `json:"ap"`
	BP   decimal.Decimal `json:"bp"`
	T    string          `json:"t"`
}

type streamBar struct {
	Type string          `json:"T"`
	S    string          `json:"S"`
	O    decimal.Decimal `json:"o"`
	H    decimal.Decimal `json:"h"`
	L    decimal.Decimal `json:"l"`
	C    decimal.Decimal `json:"c"`
	V    decimal.Decimal `json:"v"`
	N    int64           `json:"n"`
	T    string          `json:"t"`
}

// parseMillis RFC3339(纳秒精度) -> unix ms，解析失败返回 0
func parseMillis(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
