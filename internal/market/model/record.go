package model

import (
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = ""
)

// Asset 标的身份信息
type Asset struct {
	AssetClass AssetClass `json:"assetClass"`
	Symbol     string     `json:"symbol"`
	Name       string     `json:"name,omitempty"`
	Exchange   string     `json:"exchange,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	Logo       string     `json:"logo,omitempty"`
}

// Ticker 最新价快照；ChangeRate 是比例（0.0125 = 1.25%）
type Ticker struct {
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangeRate    decimal.Decimal `json:"changeRate"`
	Volume        decimal.Decimal `json:"volume"`
	AccTradePrice decimal.Decimal `json:"accTradePrice"`
	PrevClose     decimal.Decimal `json:"prevClose"`
	Timestamp     int64           `json:"timestamp"` // unix ms
}

type Candle struct {
	Timeframe     Timeframe       `json:"timeframe"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	AccTradePrice decimal.Decimal `json:"accTradePrice"`
	TradeCount    int64           `json:"tradeCount,omitempty"`
	Start         int64           `json:"start"` // unix ms
}

type Trade struct {
	ID        string          `json:"id,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      Side            `json:"side,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix ms
}

// Record 统一后的行情记录：Asset 必填，其余按 dataType 只填一个
type Record struct {
	Asset
	Ticker *Ticker `json:"ticker,omitempty"`
	Candle *Candle `json:"candle,omitempty"`
	Trade  *Trade  `json:"trade,omitempty"`
}

func (r Record) Clone() Record {
	out := r
	if r.Ticker != nil {
		t := *r.Ticker
		out.Ticker = &t
	}
	if r.Candle != nil {
		c := *r.Candle
		out.Candle = &c
	}
	if r.Trade != nil {
		t := *r.Trade
		out.Trade = &t
	}
	return out
}

// Symbols 按顺序取出 records 的 symbol（去重）
func Symbols(records []Record) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Symbol == "" {
			continue
		}
		if _, ok := seen[r.Symbol]; ok {
			continue
		}
		seen[r.Symbol] = struct{}{}
		out = append(out, r.Symbol)
	}
	return out
}

// Event 推流统一事件，所有 stream adapter 都输出这个形状
type Event struct {
	Kind   StreamKind `json:"kind"`
	Record Record     `json:"data"`
}

func (e Event) Symbol() string { return e.Record.Symbol }

// Interest 引擎当前希望上游订阅的一个 symbol，adapter 重连时按它回放
type Interest struct {
	Symbol    string
	Kinds     []StreamKind
	Timeframe Timeframe
}
