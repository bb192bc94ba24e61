package upbit

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/pkg/xerr"
)

const (
	Name = "upbit"

	maxCount = 200 // candles / trades 单次上限
)

// Provider 韩元市场的加密货币行情
type Provider struct {
	client *Client
}

func NewProvider(c *Client) *Provider {
	return &Provider{client: c}
}

func (p *Provider) Name() string                 { return Name }
func (p *Provider) AssetClass() model.AssetClass { return model.Crypto }

func (p *Provider) Methods() map[model.DataType]provider.Method {
	return map[model.DataType]provider.Method{
		model.Assets:         p.assets,
		model.TopTraded:      p.ranked(byAccTradePrice),
		model.MostActive:     p.ranked(byVolume),
		model.Gainers:        p.ranked(byChangeRateDesc),
		model.Losers:         p.ranked(byChangeRateAsc),
		model.SymbolSnapshot: p.snapshot,
		model.Candles:        p.candles,
		model.Trades:         p.trades,
	}
}

func (p *Provider) assets(ctx context.Context, _ model.QueryParams) ([]model.Record, error) {
	markets, err := p.client.Markets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(markets))
	for _, m := range markets {
		if !strings.HasPrefix(m.Market, quote) {
			continue
		}
		a := cryptoAsset(toSymbol(m.Market))
		a.Name = m.KoreanName
		out = append(out, model.Record{Asset: a})
	}
	return out, nil
}

// krwTickers 全部 KRW 市场的 ticker
func (p *Provider) krwTickers(ctx context.Context) ([]tickerDTO, error) {
	markets, err := p.client.Markets(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		if strings.HasPrefix(m.Market, quote) {
			codes = append(codes, m.Market)
		}
	}
	if len(codes) == 0 {
		return nil, nil
	}
	return p.client.Tickers(ctx, codes)
}

type rankFn func(a, b tickerDTO) int

func byAccTradePrice(a, b tickerDTO) int  { return b.AccTradePrice24h.Cmp(a.AccTradePrice24h) }
func byVolume(a, b tickerDTO) int         { return b.AccTradeVolume24h.Cmp(a.AccTradeVolume24h) }
func byChangeRateDesc(a, b tickerDTO) int { return b.SignedChangeRate.Cmp(a.SignedChangeRate) }
func byChangeRateAsc(a, b tickerDTO) int  { return a.SignedChangeRate.Cmp(b.SignedChangeRate) }

// ranked 排行榜都是同一份全市场 ticker，只是排序键不同
func (p *Provider) ranked(cmp rankFn) provider.Method {
	return func(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
		tickers, err := p.krwTickers(ctx)
		if err != nil {
			return nil, err
		}
		slices.SortStableFunc(tickers, cmp)
		n := top(q)
		if n < len(tickers) {
			tickers = tickers[:n]
		}
		out := make([]model.Record, 0, len(tickers))
		for _, t := range tickers {
			out = append(out, tickerRecord(t))
		}
		return out, nil
	}
}

func (p *Provider) snapshot(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	symbols := q.Symbols
	if len(symbols) == 0 {
		symbols = []string{"BTC"}
	}
	tickers, err := p.client.Tickers(ctx, toMarkets(symbols))
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, tickerRecord(t))
	}
	return out, nil
}

func (p *Provider) candles(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	if len(q.Symbols) == 0 {
		return nil, xerr.New(xerr.MissingRequiredParameter, "symbols is required")
	}
	tf := q.Timeframe
	if tf == "" {
		tf = model.TF1Min
	}
	path, err := candlePath(tf)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, 64)
	for _, sym := range q.Symbols {
		list, err := p.client.Candles(ctx, path, toMarket(sym), count(q.Limit), q.End)
		if err != nil {
			return nil, err
		}
		// 接口按时间倒序返回，这里统一成正序
		for i := len(list) - 1; i >= 0; i-- {
			c := list[i]
			out = append(out, model.Record{
				Asset: cryptoAsset(sym),
				Candle: &model.Candle{
					Timeframe:     tf,
					Open:          c.OpeningPrice,
					High:          c.HighPrice,
					Low:           c.LowPrice,
					Close:         c.TradePrice,
					Volume:        c.CandleAccTradeVolume,
					AccTradePrice: c.CandleAccTradePrice,
					Start:         parseCandleTime(c.CandleDateTimeUTC),
				},
			})
		}
	}
	return out, nil
}

func (p *Provider) trades(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	if len(q.Symbols) == 0 {
		return nil, xerr.New(xerr.MissingRequiredParameter, "symbols is required")
	}
	out := make([]model.Record, 0, 64)
	for _, sym := range q.Symbols {
		list, err := p.client.Trades(ctx, toMarket(sym), count(q.Limit))
		if err != nil {
			return nil, err
		}
		for _, t := range list {
			out = append(out, model.Record{
				Asset: cryptoAsset(sym),
				Trade: &model.Trade{
					ID:        strconv.FormatInt(t.SequentialID, 10),
					Price:     t.TradePrice,
					Size:      t.TradeVolume,
					Side:      side(t.AskBid),
					Timestamp: t.Timestamp,
				},
			})
		}
	}
	return out, nil
}

func top(q model.QueryParams) int {
	if q.Limit > 0 {
		return q.Limit
	}
	return 10
}

func count(limit int) int {
	if limit <= 0 || limit > maxCount {
		return maxCount
	}
	return limit
}

func cryptoAsset(symbol string) model.Asset {
	return model.Asset{AssetClass: model.Crypto, Symbol: symbol, Exchange: "UPBIT", Currency: "KRW"}
}

func tickerRecord(t tickerDTO) model.Record {
	return model.Record{
		Asset: cryptoAsset(toSymbol(t.Market)),
		Ticker: &model.Ticker{
			Price:         t.TradePrice,
			Change:        t.SignedChangePrice,
			ChangeRate:    t.SignedChangeRate,
			Volume:        t.AccTradeVolume24h,
			AccTradePrice: t.AccTradePrice24h,
			PrevClose:     t.PrevClosingPrice,
			Timestamp:     t.Timestamp,
		},
	}
}

// ASK = 매도(卖方主动成交)
func side(askBid string) model.Side {
	switch askBid {
	case "ASK":
		return model.SideSell
	case "BID":
		return model.SideBuy
	}
	return model.SideUnknown
}

func candlePath(tf model.Timeframe) (string, error) {
	switch tf {
	case model.TF1Min, model.TF3Min, model.TF5Min, model.TF10Min, model.TF15Min, model.TF30Min, model.TF1Hour:
		return fmt.Sprintf("minutes/%d", tf.Minutes()), nil
	case model.TF1Day:
		return "days", nil
	case model.TF1Week:
		return "weeks", nil
	case model.TF1Month:
		return "months", nil
	case model.TF12Month:
		return "years", nil
	}
	return "", xerr.New(xerr.RequestParamsError, "unsupported timeframe "+string(tf))
}

var _ provider.Provider = (*Provider)(nil)
