package alpaca

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/pkg/xerr"
)

const Name = "alpaca"

var hundred = decimal.NewFromInt(100)

// Provider 美股 REST 数据
type Provider struct {
	client *Client
}

func NewProvider(c *Client) *Provider {
	return &Provider{client: c}
}

func (p *Provider) Name() string                 { return Name }
func (p *Provider) AssetClass() model.AssetClass { return model.Equity }

func (p *Provider) Methods() map[model.DataType]provider.Method {
	return map[model.DataType]provider.Method{
		model.Assets:         p.assets,
		model.MostActive:     p.mostActive,
		model.Gainers:        p.gainers,
		model.Losers:         p.losers,
		model.SymbolSnapshot: p.snapshot,
		model.Candles:        p.candles,
		model.Trades:         p.trades,
	}
}

func (p *Provider) assets(ctx context.Context, _ model.QueryParams) ([]model.Record, error) {
	list, err := p.client.Assets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(list))
	for _, a := range list {
		if !a.Tradable || a.Symbol == "" {
			continue
		}
		out = append(out, model.Record{Asset: equityAsset(a.Symbol, a.Name, a.Exchange)})
	}
	return out, nil
}

// mostActive 榜单只有成交量，价格和涨跌从 snapshots 补
func (p *Provider) mostActive(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	list, err := p.client.MostActives(ctx, top(q))
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return []model.Record{}, nil
	}
	symbols := make([]string, 0, len(list))
	for _, m := range list {
		symbols = append(symbols, m.Symbol)
	}
	snaps, err := p.client.Snapshots(ctx, symbols)
	if err != nil {
		return nil, err
	}

	out := make([]model.Record, 0, len(list))
	for _, m := range list {
		rec := model.Record{Asset: equityAsset(m.Symbol, "", "")}
		if s, ok := snaps[m.Symbol]; ok {
			rec.Ticker = snapshotTicker(s)
		} else {
			rec.Ticker = &model.Ticker{}
		}
		rec.Ticker.Volume = m.Volume
		out = append(out, rec)
	}
	return out, nil
}

func (p *Provider) gainers(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	mv, err := p.client.Movers(ctx, top(q))
	if err != nil {
		return nil, err
	}
	return moverRecords(mv.Gainers), nil
}

func (p *Provider) losers(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	mv, err := p.client.Movers(ctx, top(q))
	if err != nil {
		return nil, err
	}
	return moverRecords(mv.Losers), nil
}

func (p *Provider) snapshot(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	if len(q.Symbols) == 0 {
		return nil, xerr.New(xerr.MissingRequiredParameter, "symbols is required")
	}
	snaps, err := p.client.Snapshots(ctx, q.Symbols)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(q.Symbols))
	for _, sym := range q.Symbols {
		s, ok := snaps[sym]
		if !ok {
			continue
		}
		out = append(out, model.Record{Asset: equityAsset(sym, "", ""), Ticker: snapshotTicker(s)})
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
	apiTF, err := timeframe(tf)
	if err != nil {
		return nil, err
	}
	bars, err := p.client.Bars(ctx, BarsQuery{Symbols: q.Symbols, Timeframe: apiTF, Limit: q.Limit, Start: q.Start, End: q.End})
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, 64)
	for _, sym := range q.Symbols {
		for _, b := range bars[sym] {
			out = append(out, model.Record{Asset: equityAsset(sym, "", ""), Candle: barCandle(tf, b)})
		}
	}
	return out, nil
}

func (p *Provider) trades(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
	if len(q.Symbols) == 0 {
		return nil, xerr.New(xerr.MissingRequiredParameter, "symbols is required")
	}
	trades, err := p.client.Trades(ctx, q.Symbols, q.Limit, q.Start, q.End)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, 64)
	for _, sym := range q.Symbols {
		for _, t := range trades[sym] {
			out = append(out, model.Record{
				Asset: equityAsset(sym, "", ""),
				Trade: &model.Trade{
					ID:        fmt.Sprint(t.I),
					Price:     t.P,
					Size:      t.S,
					Timestamp: parseMillis(t.T),
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
	return 50
}

func equityAsset(symbol, name, exchange string) model.Asset {
	return model.Asset{AssetClass: model.Equity, Symbol: symbol, Name: name, Exchange: exchange, Currency: "USD"}
}

func moverRecords(list []moverDTO) []model.Record {
	out := make([]model.Record, 0, len(list))
	for _, m := range list {
		out = append(out, model.Record{
			Asset: equityAsset(m.Symbol, "", ""),
			Ticker: &model.Ticker{
				Price:      m.Price,
				Change:     m.Change,
				ChangeRate: m.PercentChange.Div(hundred),
				PrevClose:  m.Price.Sub(m.Change),
			},
		})
	}
	return out
}

// snapshotTicker 价格取最新成交，涨跌相对前一交易日收盘
func snapshotTicker(s snapshotDTO) *model.Ticker {
	t := &model.Ticker{}
	switch {
	case s.LatestTrade != nil:
		t.Price = s.LatestTrade.P
		t.Timestamp = parseMillis(s.LatestTrade.T)
	case s.MinuteBar != nil:
		t.Price = s.MinuteBar.C
		t.Timestamp = parseMillis(s.MinuteBar.T)
	case s.DailyBar != nil:
		t.Price = s.DailyBar.C
		t.Timestamp = parseMillis(s.DailyBar.T)
	}
	if s.DailyBar != nil {
		t.Volume = s.DailyBar.V
		t.AccTradePrice = s.DailyBar.VW.Mul(s.DailyBar.V)
	}
	if s.PrevDailyBar != nil && !s.PrevDailyBar.C.IsZero() {
		t.PrevClose = s.PrevDailyBar.C
		t.Change = t.Price.Sub(t.PrevClose)
		t.ChangeRate = t.Change.Div(t.PrevClose)
	}
	return t
}

func barCandle(tf model.Timeframe, b barDTO) *model.Candle {
	return &model.Candle{
		Timeframe:     tf,
		Open:          b.O,
		High:          b.H,
		Low:           b.L,
		Close:         b.C,
		Volume:        b.V,
		AccTradePrice: b.VW.Mul(b.V),
		TradeCount:    b.N,
		Start:         parseMillis(b.T),
	}
}

func timeframe(tf model.Timeframe) (string, error) {
	switch tf {
	case model.TF1Min, model.TF3Min, model.TF5Min, model.TF10Min, model.TF15Min, model.TF30Min:
		return fmt.Sprintf("%dMin", tf.Minutes()), nil
	case model.TF1Hour:
		return "1Hour", nil
	case model.TF1Day:
		return "1Day", nil
	case model.TF1Week:
		return "1Week", nil
	case model.TF1Month:
		return "1Month", nil
	case model.TF12Month:
		return "12Month", nil
	}
	return "", xerr.New(xerr.RequestParamsError, "unsupported timeframe "+string(tf))
}

var _ provider.Provider = (*Provider)(nil)
