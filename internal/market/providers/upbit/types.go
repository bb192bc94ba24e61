package upbit

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const quote = "KRW-"

type marketDTO struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

type tickerDTO struct {
	Market            string          `json:"market"`
	TradePrice        decimal.Decimal `json:"trade_price"`
	SignedChangePrice decimal.Decimal `json:"signed_change_price"`
	SignedChangeRate  decimal.Decimal `json:"signed_change_rate"` // 已经是比率
	AccTradeVolume24h decimal.Decimal `json:"acc_trade_volume_24h"`
	AccTradePrice24h  decimal.Decimal `json:"acc_trade_price_24h"`
	PrevClosingPrice  decimal.Decimal `json:"prev_closing_price"`
	Timestamp         int64           `json:"timestamp"`
}

type candleDTO struct {
	Market               string          `json:"market"`
	CandleDateTimeUTC    string          `json:"candle_date_time_utc"`
	OpeningPrice         decimal.Decimal `json:"opening_price"`
	HighPrice            decimal.Decimal `json:"high_price"`
	LowPrice             decimal.Decimal `json:"low_price"`
	TradePrice           decimal.Decimal `json:"trade_price"`
	CandleAccTradePrice  decimal.Decimal `json:"candle_acc_trade_price"`
	CandleAccTradeVolume decimal.Decimal `json:"candle_acc_trade_volume"`
	Timestamp            int64           `json:"timestamp"`
}

type tradeDTO struct {
	Market       string          `json:"market"`
	Timestamp    int64           `json:"timestamp"`
	TradePrice   decimal.Decimal `json:"trade_price"`
	TradeVolume  decimal.Decimal `json:"trade_volume"`
	AskBid       string          `json:"ask_bid"`
	SequentialID int64           `json:"sequential_id"`
}

// 流消息（DEFAULT 格式），按 type 区分
type streamMsg struct {
	Type string `json:"type"`
	Code string `json:"code"`

	// ticker
	TradePrice        decimal.Decimal `json:"trade_price"`
	SignedChangePrice decimal.Decimal `json:"signed_change_price"`
	SignedChangeRate  decimal.Decimal `json:"signed_change_rate"`
	AccTradeVolume24h decimal.Decimal `json:"acc_trade_volume_24h"`
	AccTradePrice24h  decimal.Decimal `json:"acc_trade_price_24h"`
	PrevClosingPrice  decimal.Decimal `json:"prev_closing_price"`
	Timestamp         int64           `json:"timestamp"`

	// trade
	TradeVolume    decimal.Decimal `json:"trade_volume"`
	AskBid         string          `json:"ask_bid"`
	SequentialID   int64           `json:"sequential_id"`
	TradeTimestamp int64           `json:"trade_timestamp"`

	// candle.1m
	CandleDateTimeUTC    string          `json:"candle_date_time_utc"`
	OpeningPrice         decimal.Decimal `json:"opening_price"`
	HighPrice            decimal.Decimal `json:"high_price"`
	LowPrice             decimal.Decimal `json:"low_price"`
	CandleAccTradeVolume decimal.Decimal `json:"candle_acc_trade_volume"`
	CandleAccTradePrice  decimal.Decimal `json:"candle_acc_trade_price"`

	// 错误帧 {"error":{"name":"...","message":"..."}}
	Error *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func toMarket(symbol string) string { return quote + symbol }

func toSymbol(market string) string { return strings.TrimPrefix(market, quote) }

func toMarkets(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = toMarket(s)
	}
	return out
}

// candle_date_time_utc 没有时区后缀
func parseCandleTime(s string) int64 {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return 0
	}
	return t.UTC().UnixMilli()
}
